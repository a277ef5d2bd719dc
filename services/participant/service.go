package participant

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"advocacy-engine/pkg/db/pagination"
	"advocacy-engine/pkg/errutil"
	"advocacy-engine/services/ledger"
)

const profileTTL = 30 * time.Second

type Service struct {
	ledger *ledger.Service
	cache  *profileCache
	node   *snowflake.Node
}

type ServiceParams struct {
	fx.In

	Ledger *ledger.Service
	Node   *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		ledger: p.Ledger,
		cache:  newProfileCache(profileTTL),
		node:   p.Node,
	}
}

type EnrollRequest struct {
	ID             string     `json:"id"`
	Handle         string     `json:"handle"`
	TargetChannels []string   `json:"target_channels"`
	JoinedAt       *time.Time `json:"joined_at"`
}

// Enroll puts a participant on the active roster. Enrolling an ID that left
// the program reactivates it in place with its balances and streak intact;
// enrolling an already active ID is a conflict.
func (s *Service) Enroll(ctx context.Context, req *EnrollRequest) (*ledger.Participant, error) {
	if req.Handle == "" {
		return nil, errutil.BadRequest("handle is required", nil)
	}

	id := req.ID
	if id == "" {
		id = s.node.Generate().String()
	}

	existing, _, err := s.ledger.ParticipantByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.Active() {
			return nil, errutil.Conflict("participant already enrolled", nil,
				errutil.WithDetails(errutil.Detail{Field: "participant_id", Message: id}))
		}

		updates := map[string]any{
			"status": ledger.StatusActive,
			"handle": req.Handle,
		}
		if len(req.TargetChannels) > 0 {
			updates["target_platforms"] = strings.Join(req.TargetChannels, ",")
		}
		if err := s.ledger.UpdateParticipant(ctx, id, updates); err != nil {
			return nil, err
		}
		s.cache.invalidate(id)

		reactivated, _, err := s.ledger.ParticipantByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return reactivated, nil
	}

	joinedAt := time.Now()
	if req.JoinedAt != nil {
		joinedAt = *req.JoinedAt
	}

	p := &ledger.Participant{
		ID:             id,
		Handle:         req.Handle,
		TargetChannels: strings.Join(req.TargetChannels, ","),
		RewardTier:     ledger.TierNone,
		Status:         ledger.StatusActive,
		JoinedAt:       &joinedAt,
	}
	if err := s.ledger.CreateParticipant(ctx, p); err != nil {
		return nil, err
	}

	return p, nil
}

// Deactivate takes a participant off the active roster. Balances and history
// stay; a later Enroll with the same ID picks them back up.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	p, _, err := s.ledger.ParticipantByID(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return errutil.UnknownParticipant("participant not on the roster", nil,
			errutil.WithDetails(errutil.Detail{Field: "participant_id", Message: id}))
	}
	if !p.Active() {
		return nil
	}

	if err := s.ledger.UpdateParticipant(ctx, id, map[string]any{"status": ledger.StatusInactive}); err != nil {
		return err
	}
	s.cache.invalidate(id)
	return nil
}

type SubmissionSummary struct {
	ID             string    `json:"id"`
	ReferenceCode  string    `json:"reference_code"`
	Platform       string    `json:"platform"`
	ContentType    string    `json:"content_type"`
	PointsAwarded  int64     `json:"points_awarded"`
	IsDuplicate    bool      `json:"is_duplicate"`
	ValidityStatus string    `json:"validity_status"`
	CreatedAt      time.Time `json:"created_at"`
}

type Profile struct {
	Participant *ledger.Participant `json:"participant"`
	Recent      []SubmissionSummary `json:"recent_submissions"`
	Stale       bool                `json:"stale,omitempty"`
}

// Profile returns one participant with their recent submissions. Reads go
// through the TTL cache; a stale flag means the data came from the mirror.
func (s *Service) Profile(ctx context.Context, id string) (*Profile, error) {
	p, stale, err := s.cache.load(ctx, id, func() (*ledger.Participant, bool, error) {
		return s.ledger.ParticipantByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errutil.UnknownParticipant("participant not on the roster", nil,
			errutil.WithDetails(errutil.Detail{Field: "participant_id", Message: id}))
	}

	subs, subsStale, err := s.ledger.RecentSubmissions(ctx, id, 10)
	if err != nil {
		return nil, err
	}

	recent := make([]SubmissionSummary, 0, len(subs))
	for _, sub := range subs {
		recent = append(recent, SubmissionSummary{
			ID:             sub.ID,
			ReferenceCode:  sub.ReferenceCode,
			Platform:       sub.Platform,
			ContentType:    sub.ContentType,
			PointsAwarded:  sub.PointsAwarded,
			IsDuplicate:    sub.IsDuplicate,
			ValidityStatus: sub.ValidityStatus,
			CreatedAt:      sub.CreatedAt,
		})
	}

	return &Profile{
		Participant: p,
		Recent:      recent,
		Stale:       stale || subsStale,
	}, nil
}

// Leaderboard lists active participants, by lifetime points unless the
// caller asks otherwise.
func (s *Service) Leaderboard(ctx context.Context, q ledger.ListQuery) ([]*ledger.Participant, *pagination.PageInfo, bool, error) {
	if q.SortBy == "" {
		q.SortBy = "lifetime_points"
		q.OrderBy = "desc"
	}
	if q.Status == "" {
		q.Status = ledger.StatusActive
	}
	return s.ledger.ListParticipants(ctx, q)
}
