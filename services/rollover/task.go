package rollover

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type SweepPayload struct {
	CycleID     string `json:"cycle_id"`
	TriggeredBy string `json:"triggered_by"`
}

type ReminderPayload struct {
	CycleID string `json:"cycle_id"`
}

type Task struct {
	service *Service
}

type TaskParams struct {
	fx.In

	Service *Service
}

func NewTask(p TaskParams) *Task {
	return &Task{service: p.Service}
}

func (t *Task) HandleSweepTask(ctx context.Context, a *asynq.Task) error {
	var payload SweepPayload
	if err := json.Unmarshal(a.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", a.Type()),
		zap.String("cycle_id", payload.CycleID),
		zap.String("triggered_by", payload.TriggeredBy),
	)
	zapLog.Info("start rollover sweep task")

	report, err := t.service.Sweep(ctx, time.Now())
	if err != nil {
		zapLog.Error("rollover sweep failed", zap.Error(err))
		return err
	}

	// Partial failures retry through asynq; participants already closed are
	// skipped by the report-row check on the next attempt.
	if report.Failed > 0 {
		return fmt.Errorf("sweep left %d participants unclosed", report.Failed)
	}

	zapLog.Info("rollover sweep task finished",
		zap.Int("closed", report.Closed),
		zap.Int("already_closed", report.AlreadyClosed),
	)
	return nil
}

func (t *Task) HandleReminderTask(ctx context.Context, a *asynq.Task) error {
	var payload ReminderPayload
	if err := json.Unmarshal(a.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	report, err := t.service.Remind(ctx, time.Now())
	if err != nil {
		return err
	}

	zap.L().Info("mid-cycle reminder task finished",
		zap.String("task_type", a.Type()),
		zap.String("cycle_id", report.CycleID),
		zap.Int("behind", len(report.Behind)),
	)
	return nil
}

func newTask(name string, payload any) (*asynq.Task, error) {
	if payload == nil {
		return asynq.NewTask(name, nil), nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(name, body), nil
}
