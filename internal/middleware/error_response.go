package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/socialsense/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Detail string `json:"detail"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// エラーコードはX-Error-Codeヘッダーで返す。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	if apiErr.Code != "" {
		w.Header().Set("X-Error-Code", apiErr.Code)
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{Detail: apiErr.Message})
}

// WriteUnauthorized は認証失敗の401レスポンスを書き込む。
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
