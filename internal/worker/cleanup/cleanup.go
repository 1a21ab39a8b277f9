// Package cleanup は期限切れセッションと使用済みワンタイムIDの定期削除ジョブを提供する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskman/internal/metrics"
)

const (
	// initialRetryDelay は失敗直後の再実行までの待ち時間。
	initialRetryDelay = 30 * time.Second
	// maxRetryDelay は再実行待ちの上限。実行間隔の方が短ければそちらを使う。
	maxRetryDelay = 30 * time.Minute
	// defaultInterval は0以下の実行間隔が渡された場合に使う。
	defaultInterval = time.Hour
)

// ExpiredSessionDeleter は期限切れセッションを削除するインターフェース。
// repository.SessionRepositoryが実装する。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	store    ExpiredSessionDeleter
	logger   *slog.Logger
	recorder metrics.Recorder
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(store ExpiredSessionDeleter, logger *slog.Logger, recorder metrics.Recorder) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &CleanupJob{
		store:    store,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Run は現在時刻で期限切れのセッションを1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.store.DeleteExpired(ctx, j.now().UTC())
	if err != nil {
		j.logger.Error("セッションクリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	j.recorder.RecordCleanupDeleted(deleted)
	j.logger.Info("セッションクリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、その後はinterval間隔でRunを実行する。
// 失敗が続いた場合は待ち時間を倍々に伸ばしつつinterval以内で再実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.logger.Info("セッションクリーンアップを開始しました",
		slog.Duration("interval", interval),
	)

	failures := 0
	for {
		if err := j.Run(ctx); err != nil {
			failures++
		} else {
			failures = 0
		}

		timer := time.NewTimer(nextDelay(interval, failures))
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("セッションクリーンアップを停止しました")
			return
		case <-timer.C:
		}
	}
}

// nextDelay は連続失敗回数に応じた次回実行までの待ち時間を返す。
func nextDelay(interval time.Duration, consecutiveFailures int) time.Duration {
	if interval <= 0 {
		interval = defaultInterval
	}
	if consecutiveFailures == 0 {
		return interval
	}
	delay := initialRetryDelay
	for i := 1; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}
	return min(delay, interval)
}
