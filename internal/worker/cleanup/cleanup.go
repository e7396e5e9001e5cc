// Package cleanup は失効済みセッションの定期削除ジョブを提供する。
// 参照時の失効判定に加えて、期限切れ行が溜まり続けないよう定期的に掃除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/fonomed/internal/metrics"
	"github.com/hitoshi/fonomed/internal/repository"
)

// SessionSweepJob は expires_at <= now のセッションを削除するジョブ。
// 冪等: 削除対象がない場合でもエラーにならない。
type SessionSweepJob struct {
	sessions repository.ExpiredSessionDeleter
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionSweepJob は新しいSessionSweepJobを生成する。
func NewSessionSweepJob(sessions repository.ExpiredSessionDeleter, recorder metrics.Recorder, logger *slog.Logger) *SessionSweepJob {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &SessionSweepJob{
		sessions: sessions,
		metrics:  recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Run は失効済みセッションを削除し、削除件数を返す。
func (j *SessionSweepJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("セッション掃除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("失効セッションの削除に失敗: %w", err)
	}

	j.metrics.RecordSessionsSwept(deleted)
	j.logger.Info("セッション掃除ジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}
