package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/sequence"
	"advocacy-engine/services/ledger"
	"advocacy-engine/services/submission"
)

// Ledger is the read-and-correct slice the exporter uses. Corrections go
// through AddPoints so they ride the same per-participant serialization as
// live intake.
type Ledger interface {
	AllParticipants(ctx context.Context, status string) ([]*ledger.Participant, bool, error)
	AddPoints(ctx context.Context, participantID string, delta int64) (*ledger.Participant, error)
}

type Service struct {
	ledger Ledger
	blobs  submission.BlobStore
	seq    sequence.Generator
}

type ServiceParams struct {
	fx.In

	Ledger   *ledger.Service
	Blobs    submission.BlobStore `optional:"true"`
	Sequence sequence.Generator   `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		ledger: p.Ledger,
		blobs:  p.Blobs,
		seq:    p.Sequence,
	}
}

// Snapshot renders the current standings as CSV, sorted by lifetime points
// then id so identical roster states always produce identical bytes. The
// snapshot is a one-way export; nothing reads it back.
func (s *Service) Snapshot(ctx context.Context) ([]byte, bool, error) {
	participants, stale, err := s.ledger.AllParticipants(ctx, "")
	if err != nil {
		return nil, false, err
	}

	sort.Slice(participants, func(i, j int) bool {
		if participants[i].LifetimePoints != participants[j].LifetimePoints {
			return participants[i].LifetimePoints > participants[j].LifetimePoints
		}
		return participants[i].ID < participants[j].ID
	})

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write([]string{
		"participant_id", "handle", "status", "reward_tier",
		"consecutive_compliant_cycles", "current_cycle_points", "lifetime_points",
	})
	for _, p := range participants {
		_ = w.Write([]string{
			p.ID,
			p.Handle,
			p.Status,
			p.RewardTier,
			strconv.FormatInt(p.ConsecutiveCompliantCycles, 10),
			strconv.FormatInt(p.CurrentCyclePoints, 10),
			strconv.FormatInt(p.LifetimePoints, 10),
		})
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, false, errutil.Internal("snapshot encoding failed", err)
	}

	return buf.Bytes(), stale, nil
}

// AdjustmentEntry is one row of the external mirror's manual adjustment
// column, value still in its raw spreadsheet form.
type AdjustmentEntry struct {
	ParticipantID string `json:"participant_id"`
	Value         string `json:"value"`
	Note          string `json:"note"`
}

type AdjustRequest struct {
	Entries []AdjustmentEntry `json:"entries"`
}

type AppliedAdjustment struct {
	ParticipantID  string `json:"participant_id"`
	Delta          int64  `json:"delta"`
	LifetimePoints int64  `json:"lifetime_points"`
}

type SkippedAdjustment struct {
	ParticipantID string `json:"participant_id"`
	Value         string `json:"value"`
	Reason        string `json:"reason"`
}

type AdjustResult struct {
	Applied []AppliedAdjustment `json:"applied"`
	Skipped []SkippedAdjustment `json:"skipped"`
}

// Adjust applies manual corrections from the mirror sheet. Non-numeric
// values and unknown participants are skipped and reported, never applied;
// the batch always settles whatever it can.
func (s *Service) Adjust(ctx context.Context, req *AdjustRequest) (*AdjustResult, error) {
	if len(req.Entries) == 0 {
		return nil, errutil.BadRequest("no adjustment entries", nil)
	}

	result := &AdjustResult{}

	for _, entry := range req.Entries {
		delta, err := parseAdjustment(entry.Value)
		if err != nil {
			zap.L().Warn("ignoring non-numeric manual adjustment",
				zap.String("participant_id", entry.ParticipantID),
				zap.String("value", entry.Value),
			)
			result.Skipped = append(result.Skipped, SkippedAdjustment{
				ParticipantID: entry.ParticipantID,
				Value:         entry.Value,
				Reason:        "not a number",
			})
			continue
		}

		if delta == 0 {
			continue
		}

		updated, err := s.ledger.AddPoints(ctx, entry.ParticipantID, delta)
		if err != nil {
			if !errutil.HasStatus(err, errutil.StatusUnknownParticipant) {
				return nil, err
			}
			result.Skipped = append(result.Skipped, SkippedAdjustment{
				ParticipantID: entry.ParticipantID,
				Value:         entry.Value,
				Reason:        "unknown participant",
			})
			continue
		}

		zap.L().Info("manual adjustment applied",
			zap.String("participant_id", entry.ParticipantID),
			zap.Int64("delta", delta),
			zap.String("note", entry.Note),
		)
		result.Applied = append(result.Applied, AppliedAdjustment{
			ParticipantID:  entry.ParticipantID,
			Delta:          delta,
			LifetimePoints: updated.LifetimePoints,
		})
	}

	return result, nil
}

func parseAdjustment(raw string) (int64, error) {
	v := strings.TrimSpace(raw)
	v = strings.TrimPrefix(v, "+")
	if v == "" {
		return 0, errutil.InvalidAdjustment("empty adjustment value", nil)
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errutil.InvalidAdjustment("adjustment value is not an integer", err)
	}
	return n, nil
}
