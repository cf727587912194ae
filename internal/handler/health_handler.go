package handler

import "net/http"

// ModelStatus は分類エンジンの準備状態を返す。
type ModelStatus interface {
	Ready() bool
}

// HealthHandler は稼働確認用のHTTPハンドラー。
type HealthHandler struct {
	model ModelStatus
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(model ModelStatus) *HealthHandler {
	return &HealthHandler{model: model}
}

// Root はウェルカムメッセージを返す。
// GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the socialsense API."})
}

// Health はプロセスの稼働状態と分類エンジンの状態を返す。
// エンジンの準備中でもプロセス自体は正常なので200を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	modelState := "loading"
	if h.model != nil && h.model.Ready() {
		modelState = "ready"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"model":  modelState,
	})
}
