package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule はセッション掃除の既定スケジュール。
const DefaultSchedule = "@every 1h"

// runTimeout は1回の掃除に許す最大時間。
const runTimeout = time.Minute

// Job はスケジューラから定期実行されるジョブ。
type Job interface {
	Run(ctx context.Context) (int64, error)
}

// Scheduler はcron式に従ってJobを実行する。
// 前回の実行が終わっていない場合は次の起動をスキップする。
type Scheduler struct {
	cron     *cron.Cron
	job      Job
	schedule string
	logger   *slog.Logger
}

// NewScheduler はSchedulerを生成する。scheduleが空の場合はDefaultScheduleを使う。
func NewScheduler(job Job, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return &Scheduler{
		cron:     c,
		job:      job,
		schedule: schedule,
		logger:   logger,
	}
}

// Start はジョブを登録してcronを起動する。スケジュールが不正な場合はエラーを返す。
// ctxがキャンセルされると実行中のジョブも中断される。
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("セッション掃除スケジューラを開始しました", slog.String("schedule", s.schedule))
	return nil
}

// Stop は新たな起動を止め、実行中のジョブの完了を待つ。
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("セッション掃除スケジューラを停止しました")
}

func (s *Scheduler) runOnce(parent context.Context) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, runTimeout)
	defer cancel()

	// エラーはジョブ側でログ出力済み
	_, _ = s.job.Run(ctx)
}
