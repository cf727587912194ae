package sentiment

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/hitoshi/socialsense/internal/metrics"
	"github.com/hitoshi/socialsense/internal/model"
)

// DefaultQueueDepth は実行中のバッチの後ろで待機できるバッチ数の既定値。
const DefaultQueueDepth = 1

// Executor は分類エンジンへのバッチ投入を1件ずつに直列化する。
// 実行枠1つと待機枠queueDepth個を持ち、満杯ならすぐにmodel.ErrEngineBusyを返す。
type Executor struct {
	run     *semaphore.Weighted
	admit   *semaphore.Weighted
	waiting atomic.Int64
	metrics metrics.MetricsCollector
}

// NewExecutor はExecutorを生成する。queueDepthが負の場合は0として扱う。
// collectorはnilでもよい。
func NewExecutor(queueDepth int, collector metrics.MetricsCollector) *Executor {
	if queueDepth < 0 {
		queueDepth = 0
	}
	return &Executor{
		run:     semaphore.NewWeighted(1),
		admit:   semaphore.NewWeighted(int64(1 + queueDepth)),
		metrics: collector,
	}
}

// Do は実行枠を得てからfnを実行する。
// 待機中にctxが終了した場合はctx.Err()を返す。
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !e.admit.TryAcquire(1) {
		if e.metrics != nil {
			e.metrics.RecordExecutorRejected()
		}
		return model.ErrEngineBusy
	}
	defer e.admit.Release(1)

	e.setWaiting(e.waiting.Add(1))
	err := e.run.Acquire(ctx, 1)
	e.setWaiting(e.waiting.Add(-1))
	if err != nil {
		return err
	}
	defer e.run.Release(1)

	return fn(ctx)
}

// Waiting は実行枠を待っているバッチ数を返す。
func (e *Executor) Waiting() int {
	return int(e.waiting.Load())
}

func (e *Executor) setWaiting(n int64) {
	if e.metrics != nil {
		e.metrics.SetExecutorWaiting(int(n))
	}
}
