// Package sentiment はコメントの一括センチメント分類を提供する。
package sentiment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/socialsense/internal/metrics"
)

// URLValidator は画像URLがエンジンに渡してよいものか検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// MediaFetcher は画像URLを取得してdata URIに変換する。
type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Classifier はバッチ内のコメントを順に分類エンジンへ渡す。
type Classifier struct {
	runtime  *Runtime
	executor *Executor
	guard    URLValidator
	fetcher  MediaFetcher
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewClassifier はClassifierを生成する。
// fetcherがnilの場合、画像はURLのままエンジンに渡す。
// guard・collectorはnilでもよい。
func NewClassifier(runtime *Runtime, executor *Executor, guard URLValidator, fetcher MediaFetcher, collector metrics.MetricsCollector, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		runtime:  runtime,
		executor: executor,
		guard:    guard,
		fetcher:  fetcher,
		metrics:  collector,
		logger:   logger,
	}
}

// Classify はバッチの各コメントを分類し、入力と同じ順序でラベルを返す。
// ラベルは前後の空白を除いた小文字。エンジンのエラーはリクエスト全体の失敗とする。
func (c *Classifier) Classify(ctx context.Context, batch []Entry) ([]string, error) {
	engine, err := c.runtime.Engine()
	if err != nil {
		return nil, err
	}

	labels := make([]string, 0, len(batch))
	err = c.executor.Do(ctx, func(ctx context.Context) error {
		for i, entry := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}

			media := c.resolveMedia(ctx, entry.MediaRefs)

			start := time.Now()
			out, err := engine.Complete(ctx, BuildPrompt(entry, media))
			if err != nil {
				return fmt.Errorf("failed to classify comment %d: %w", i, err)
			}
			label := normalizeLabel(out)

			if c.metrics != nil {
				c.metrics.RecordClassificationLatency(time.Since(start))
				c.metrics.RecordClassification(label)
			}
			labels = append(labels, label)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return labels, nil
}

// resolveMedia は安全でない画像URLを除外し、必要ならdata URIに変換する。
// 失敗した画像はその画像だけを捨てる。
func (c *Classifier) resolveMedia(ctx context.Context, refs []string) []string {
	media := make([]string, 0, len(refs))
	for _, ref := range refs {
		if c.guard != nil {
			if err := c.guard.ValidateURL(ref); err != nil {
				c.logger.Debug("画像URLを除外", slog.String("url", ref), slog.String("error", err.Error()))
				continue
			}
		}

		if c.fetcher == nil {
			media = append(media, ref)
			continue
		}

		dataURI, err := c.fetcher.Fetch(ctx, ref)
		if err != nil {
			c.logger.Warn("画像の取得に失敗", slog.String("url", ref), slog.String("error", err.Error()))
			continue
		}
		media = append(media, dataURI)
	}
	return media
}

func normalizeLabel(out string) string {
	return strings.ToLower(strings.TrimSpace(out))
}
