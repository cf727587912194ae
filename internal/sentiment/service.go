package sentiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/socialsense/internal/model"
)

// BatchClassifier はバッチを分類してラベル列を返す。
type BatchClassifier interface {
	Classify(ctx context.Context, batch []Entry) ([]string, error)
}

// ReadinessChecker は分類エンジンが利用可能かを返す。
type ReadinessChecker interface {
	Ready() bool
}

// Service はコメント文字列を受け取り、分類結果と割合を返す。
type Service struct {
	classifier BatchClassifier
	readiness  ReadinessChecker
	logger     *slog.Logger
}

// NewService はServiceを生成する。
func NewService(classifier BatchClassifier, readiness ReadinessChecker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		classifier: classifier,
		readiness:  readiness,
		logger:     logger,
	}
}

// Predict はコメントを分割・分類・集計する。
// エンジン未準備ならmodel.ErrModelUnavailable、有効なコメントがなければmodel.ErrNoCommentsを返す。
func (s *Service) Predict(ctx context.Context, raw, delimiter string) (*model.SentimentReport, error) {
	if s.readiness != nil && !s.readiness.Ready() {
		return nil, model.ErrModelUnavailable
	}

	batch := BuildBatch(raw, delimiter)
	if len(batch) == 0 {
		return nil, model.ErrNoComments
	}

	labels, err := s.classifier.Classify(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(labels) != len(batch) {
		return nil, fmt.Errorf("classifier returned %d labels for %d comments", len(labels), len(batch))
	}

	predictions := make([]model.Prediction, len(batch))
	for i, entry := range batch {
		predictions[i] = model.Prediction{
			Comment:   entry.Text,
			Label:     labels[i],
			MediaRefs: entry.MediaRefs,
		}
	}

	dist := Aggregate(labels)
	s.logger.Info("センチメント分類完了",
		slog.Int("comments", len(batch)),
		slog.Float64("positive", dist.Positive),
		slog.Float64("negative", dist.Negative),
		slog.Float64("neutral", dist.Neutral),
	)

	return &model.SentimentReport{
		Predictions: predictions,
		Positive:    dist.Positive,
		Negative:    dist.Negative,
		Neutral:     dist.Neutral,
	}, nil
}
