package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/socialsense/internal/model"
)

// maxPredictBodySize は分類リクエストのボディの上限（1MB）。
const maxPredictBodySize = 1 << 20

// SentimentServiceInterface はセンチメントハンドラーが必要とするサービスインターフェース。
type SentimentServiceInterface interface {
	Predict(ctx context.Context, raw, delimiter string) (*model.SentimentReport, error)
}

// SentimentHandler はセンチメント分類のHTTPハンドラー。
type SentimentHandler struct {
	service SentimentServiceInterface
}

// NewSentimentHandler はSentimentHandlerを生成する。
func NewSentimentHandler(service SentimentServiceInterface) *SentimentHandler {
	return &SentimentHandler{service: service}
}

// predictRequest は分類リクエストのボディ。delimiterを省略すると改行で分割する。
type predictRequest struct {
	Comments  string `json:"comments"`
	Delimiter string `json:"delimiter,omitempty"`
}

// Predict はコメントを分類し、コメントごとのラベルと割合を返す。
// POST /api/v1/sentiment/predict
func (h *SentimentHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPredictBodySize)).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	report, err := h.service.Predict(r.Context(), req.Comments, req.Delimiter)
	if err != nil {
		handleServiceError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
