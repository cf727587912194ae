// Package cleanup はログインイベントの保持期間管理ジョブを提供する。
// 保持期間を超過したlogin_eventsを定期的に削除する。ユーザーとidentityは残す。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays はログインイベントの既定の保持日数。
const DefaultRetentionDays = 90

// DefaultInterval はジョブの既定の実行間隔。
const DefaultInterval = 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Job は保持期間を超過したログインイベントの削除ジョブ。
// 削除対象がなくてもエラーにならないため、何度実行してもよい。
type Job struct {
	db            Executor
	logger        *slog.Logger
	retentionDays int
}

// NewJob は新しいJobを生成する。retentionDaysが0以下の場合はDefaultRetentionDaysを使う。
func NewJob(db Executor, logger *slog.Logger, retentionDays int) *Job {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Job{
		db:            db,
		logger:        logger,
		retentionDays: retentionDays,
	}
}

// RetentionDays は保持日数を返す。
func (j *Job) RetentionDays() int {
	return j.retentionDays
}

// Run はcreated_atが保持期間より古いログインイベントを削除する。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.retentionDays)

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM login_events WHERE created_at < now() - $1::interval`,
		interval,
	)
	if err != nil {
		j.logger.Error("ログインイベントの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.retentionDays),
		)
		return fmt.Errorf("ログインイベントの削除に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("ログインイベントのクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.retentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、以降intervalごとにRunを繰り返す。
// ctxがキャンセルされるまでブロックする。失敗してもループは継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	// 失敗はRun内でログ出力済み
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}

