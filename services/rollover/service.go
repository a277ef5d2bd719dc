package rollover

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"advocacy-engine/pkg/config"
	"advocacy-engine/pkg/featureflags"
	"advocacy-engine/services/ledger"
)

// Flipping this flag on in Flagsmith pauses the monthly sweep without a
// deploy. An unreachable Flagsmith reads as off, so the sweep keeps running.
const sweepPauseFlag = "pause_rollover_sweep"

// Ledger is the slice of the ledger service the sweep settles through.
type Ledger interface {
	AllParticipants(ctx context.Context, status string) ([]*ledger.Participant, bool, error)
	CloseCycle(ctx context.Context, cycleID, participantID string, window ledger.CycleWindow, decide func(*ledger.Participant) ledger.CycleOutcome) (*ledger.CycleReport, bool, error)
	CycleReports(ctx context.Context, cycleID string) ([]*ledger.CycleReport, error)
}

type Service struct {
	ledger   Ledger
	flags    featureflags.FeatureFlag
	notifier Notifier

	loc               *time.Location
	monthlyThreshold  int64
	reminderThreshold int64
}

type ServiceParams struct {
	fx.In

	Ledger   *ledger.Service
	Flags    featureflags.FeatureFlag `optional:"true"`
	Notifier Notifier                 `optional:"true"`
	Config   *config.Config
}

func NewService(p ServiceParams) *Service {
	loc, err := time.LoadLocation(p.Config.Program.Timezone)
	if err != nil {
		zap.L().Warn("unknown program timezone, falling back to UTC",
			zap.String("timezone", p.Config.Program.Timezone), zap.Error(err))
		loc = time.UTC
	}

	return &Service{
		ledger:            p.Ledger,
		flags:             p.Flags,
		notifier:          p.Notifier,
		loc:               loc,
		monthlyThreshold:  int64(p.Config.Program.MonthlyThreshold),
		reminderThreshold: int64(p.Config.Program.ReminderThreshold),
	}
}

type SweepReport struct {
	CycleID       string `json:"cycle_id"`
	Closed        int    `json:"closed"`
	AlreadyClosed int    `json:"already_closed"`
	Failed        int    `json:"failed"`
	Paused        bool   `json:"paused,omitempty"`
}

// Sweep closes the cycle containing now for every active participant. Each
// participant settles in its own ledger transaction, so a crash mid-sweep
// leaves the rest for the next run; the cycle report row makes re-runs
// no-ops per participant.
func (s *Service) Sweep(ctx context.Context, now time.Time) (*SweepReport, error) {
	now = now.In(s.loc)
	report := &SweepReport{CycleID: CycleIDFor(now)}

	if s.flags != nil && s.flags.IsEnabled(ctx, sweepPauseFlag) {
		zap.L().Warn("rollover sweep paused by feature flag", zap.String("cycle_id", report.CycleID))
		report.Paused = true
		return report, nil
	}

	participants, stale, err := s.ledger.AllParticipants(ctx, ledger.StatusActive)
	if err != nil {
		return nil, err
	}
	if stale {
		// A mirror-served roster could miss freshly enrolled participants.
		// Their close simply lands on the next re-run once the primary is back.
		zap.L().Warn("sweep roster served from mirror, re-run after primary recovers")
	}

	window := WindowFor(now)

	for _, p := range participants {
		_, closed, err := s.ledger.CloseCycle(ctx, report.CycleID, p.ID, window, s.decide)
		if err != nil {
			report.Failed++
			zap.L().Error("cycle close failed",
				zap.String("cycle_id", report.CycleID),
				zap.String("participant_id", p.ID),
				zap.Error(err),
			)
			continue
		}
		if closed {
			report.Closed++
			cyclesClosedTotal.Inc()
		} else {
			report.AlreadyClosed++
		}
	}

	zap.L().Info("rollover sweep finished",
		zap.String("cycle_id", report.CycleID),
		zap.Int("closed", report.Closed),
		zap.Int("already_closed", report.AlreadyClosed),
		zap.Int("failed", report.Failed),
	)

	return report, nil
}

// decide is the per-participant cycle transition. It runs under the
// participant's row lock inside CloseCycle.
func (s *Service) decide(p *ledger.Participant) ledger.CycleOutcome {
	compliant := p.CurrentCyclePoints >= s.monthlyThreshold

	streak := int64(0)
	if compliant {
		streak = p.ConsecutiveCompliantCycles + 1
	}

	return ledger.CycleOutcome{
		Compliant: compliant,
		Streak:    streak,
		Tier:      TierFor(streak),
	}
}

type ReminderEntry struct {
	ParticipantID string `json:"participant_id"`
	Handle        string `json:"handle"`
	Points        int64  `json:"points"`
	PointsNeeded  int64  `json:"points_needed"`
}

type ReminderReport struct {
	CycleID string          `json:"cycle_id"`
	Behind  []ReminderEntry `json:"behind"`
}

// Remind lists active participants running behind mid-cycle and hands them
// to the notifier. Delivery is best-effort; a dead webhook never fails the
// task into asynq's retry loop.
func (s *Service) Remind(ctx context.Context, now time.Time) (*ReminderReport, error) {
	now = now.In(s.loc)
	report := &ReminderReport{CycleID: CycleIDFor(now)}

	participants, _, err := s.ledger.AllParticipants(ctx, ledger.StatusActive)
	if err != nil {
		return nil, err
	}

	for _, p := range participants {
		if p.CurrentCyclePoints >= s.reminderThreshold {
			continue
		}
		report.Behind = append(report.Behind, ReminderEntry{
			ParticipantID: p.ID,
			Handle:        p.Handle,
			Points:        p.CurrentCyclePoints,
			PointsNeeded:  s.monthlyThreshold - p.CurrentCyclePoints,
		})
	}

	if len(report.Behind) == 0 || s.notifier == nil {
		return report, nil
	}

	if err := s.notifier.NotifyBehind(ctx, report); err != nil {
		zap.L().Warn("reminder delivery failed", zap.String("cycle_id", report.CycleID), zap.Error(err))
	}

	return report, nil
}

// Reports lists the cycle report rows, optionally for one cycle.
func (s *Service) Reports(ctx context.Context, cycleID string) ([]*ledger.CycleReport, error) {
	return s.ledger.CycleReports(ctx, cycleID)
}
