package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/socialsense/internal/middleware"
	"github.com/hitoshi/socialsense/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層のエラーを適切なHTTPレスポンスに変換する。
// upstreamPrefixはGraph APIのエラーボディの前に付ける説明。
func handleServiceError(w http.ResponseWriter, err error, upstreamPrefix string) {
	var upstreamErr *model.UpstreamAPIError
	var transportErr *model.TransportError

	switch {
	case errors.Is(err, model.ErrModelUnavailable):
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewModelUnavailableError())
	case errors.Is(err, model.ErrEngineBusy):
		w.Header().Set("Retry-After", "1")
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, model.NewEngineBusyError())
	case errors.Is(err, model.ErrNoComments):
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewNoCommentsError())
	case errors.As(err, &upstreamErr):
		status := upstreamErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeAPIErrorResponse(w, status, &model.APIError{
			Code:    model.ErrCodeUpstreamAPI,
			Message: upstreamPrefix + upstreamErr.Body,
		})
	case errors.As(err, &transportErr):
		slog.Error("upstream transport error", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewUpstreamTransportError())
	default:
		slog.Error("unexpected service error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}
