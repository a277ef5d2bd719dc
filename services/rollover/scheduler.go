package rollover

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"advocacy-engine/pkg/config"
	"advocacy-engine/pkg/task"
	"advocacy-engine/pkg/taskname"
)

// Scheduler is the program clock. It ticks once a day at the configured hour
// in the program timezone and enqueues the day's work: the rollover sweep on
// the last day of the month, the mid-cycle reminder on the 15th, and the
// standings snapshot every night. Cross-process uniqueness comes from the
// asynq task ids, not from any in-process flag.
type Scheduler struct {
	enqueuer task.Enqueuer

	loc    *time.Location
	hour   int
	minute int
}

type SchedulerParams struct {
	fx.In

	Enqueuer task.Enqueuer
	Config   *config.Config
}

func NewScheduler(p SchedulerParams) *Scheduler {
	loc, err := time.LoadLocation(p.Config.Program.Timezone)
	if err != nil {
		loc = time.UTC
	}

	return &Scheduler{
		enqueuer: p.Enqueuer,
		loc:      loc,
		hour:     p.Config.Program.SweepHour,
		minute:   p.Config.Program.SweepMinute,
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] program clock started",
		zap.String("timezone", s.loc.String()),
		zap.Int("hour", s.hour),
		zap.Int("minute", s.minute),
	)

	for {
		now := time.Now().In(s.loc)
		next := nextRunTime(now, s.hour, s.minute)

		zap.L().Info("[Scheduler] next tick scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", next.Sub(now)),
		)

		select {
		case <-time.After(next.Sub(now)):
			s.tick(ctx, time.Now().In(s.loc))
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	day := now.Format("2006-01-02")
	cycleID := CycleIDFor(now)

	if isLastDayOfMonth(now) {
		s.enqueue(ctx, taskname.RolloverSweep, SweepPayload{CycleID: cycleID, TriggeredBy: "scheduler"},
			asynq.TaskID(taskname.RolloverSweep+":"+cycleID),
			asynq.Queue("critical"),
			asynq.MaxRetry(5),
		)
	}

	if now.Day() == 15 {
		s.enqueue(ctx, taskname.RolloverReminder, ReminderPayload{CycleID: cycleID},
			asynq.TaskID(taskname.RolloverReminder+":"+cycleID),
			asynq.Queue("default"),
		)
	}

	s.enqueue(ctx, taskname.ExportSnapshot, nil,
		asynq.TaskID(taskname.ExportSnapshot+":"+day),
		asynq.Queue("low"),
	)

	// Nightly mirror catch-up; the engine also reconciles on boot.
	s.enqueue(ctx, taskname.LedgerReconcile, nil,
		asynq.TaskID(taskname.LedgerReconcile+":"+day),
		asynq.Queue("low"),
	)
}

func (s *Scheduler) enqueue(ctx context.Context, name string, payload any, opts ...asynq.Option) {
	t, err := newTask(name, payload)
	if err != nil {
		zap.L().Error("[Scheduler] failed to build task", zap.String("task_type", name), zap.Error(err))
		return
	}

	info, err := s.enqueuer.Enqueue(ctx, t, opts...)
	if err != nil {
		// TaskID conflicts mean another process already enqueued this run.
		zap.L().Warn("[Scheduler] enqueue skipped", zap.String("task_type", name), zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] task enqueued",
		zap.String("task_type", name),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
