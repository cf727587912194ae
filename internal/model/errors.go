// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は呼び出し元に返すエラーを表す。
// Messageはレスポンスボディのdetailとしてそのまま返す。
type APIError struct {
	Code    string // エラーコード（ログ・メトリクス用）
	Message string // レスポンスのdetail
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeMissingCredential = "MISSING_DELEGATED_CREDENTIAL"
	ErrCodeLoginFailed       = "LOGIN_FAILED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeNoComments        = "NO_COMMENTS"
	ErrCodeModelUnavailable  = "MODEL_UNAVAILABLE"
	ErrCodeEngineBusy        = "ENGINE_BUSY"
	ErrCodeUpstreamAPI       = "UPSTREAM_API_ERROR"
	ErrCodeUpstreamTransport = "UPSTREAM_TRANSPORT_ERROR"
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInvalidQueryParam = "INVALID_QUERY_PARAM"
)

// 分類処理のセンチネルエラー。handlerでHTTPステータスに変換する。
var (
	// ErrModelUnavailable は分類エンジンの準備がまだ完了していないことを示す。
	ErrModelUnavailable = errors.New("classification engine is not ready")
	// ErrEngineBusy は分類エンジンの待ち行列が満杯であることを示す。
	ErrEngineBusy = errors.New("classification engine queue is full")
	// ErrNoComments は分割後に有効なコメントが残らなかったことを示す。
	ErrNoComments = errors.New("no valid comments provided")
)

// UpstreamAPIError はGraph APIが2xx以外のステータスを返したことを表す。
// プロバイダーのステータスコードとレスポンスボディをそのまま保持する。
type UpstreamAPIError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// TransportError はネットワーク障害・タイムアウト・レスポンス解析失敗を表す。
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewUnauthorizedError は認証失敗エラーを生成する。
// どの検証で失敗したかは含めない。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Message: "Could not validate credentials",
	}
}

// NewMissingCredentialError はセッショントークンに委任クレデンシャルがない場合のエラーを生成する。
func NewMissingCredentialError() *APIError {
	return &APIError{
		Code:    ErrCodeMissingCredential,
		Message: "Facebook access token not found in session token.",
	}
}

// NewLoginFailedError はOAuthログイン失敗エラーを生成する。
func NewLoginFailedError(reason string) *APIError {
	return &APIError{
		Code:    ErrCodeLoginFailed,
		Message: reason,
	}
}

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidRequest,
		Message: "Request body could not be parsed.",
	}
}

// NewInvalidQueryParamError はクエリパラメータ不正エラーを生成する。
func NewInvalidQueryParamError(name string) *APIError {
	return &APIError{
		Code:    ErrCodeInvalidQueryParam,
		Message: fmt.Sprintf("Invalid query parameter: %s", name),
	}
}

// NewNoCommentsError はコメントが空の場合のエラーを生成する。
func NewNoCommentsError() *APIError {
	return &APIError{
		Code:    ErrCodeNoComments,
		Message: "No valid comments provided for analysis.",
	}
}

// NewModelUnavailableError は分類エンジン未準備エラーを生成する。
func NewModelUnavailableError() *APIError {
	return &APIError{
		Code:    ErrCodeModelUnavailable,
		Message: "Model is not loaded. Please wait or check server status.",
	}
}

// NewEngineBusyError は分類エンジンの混雑エラーを生成する。
func NewEngineBusyError() *APIError {
	return &APIError{
		Code:    ErrCodeEngineBusy,
		Message: "Classification engine is busy. Please retry shortly.",
	}
}

// NewUpstreamTransportError は上流への通信失敗エラーを生成する。
func NewUpstreamTransportError() *APIError {
	return &APIError{
		Code:    ErrCodeUpstreamTransport,
		Message: "An unexpected error occurred while contacting Facebook.",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:    ErrCodeRateLimitExceeded,
		Message: "Too many requests. Please try again later.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: "Internal server error.",
	}
}
