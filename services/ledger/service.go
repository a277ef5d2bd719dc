package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"advocacy-engine/pkg/db"
	"advocacy-engine/pkg/db/option"
	"advocacy-engine/pkg/db/pagination"
	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/repository"
)

const (
	storeAttempts  = 3
	retryBaseDelay = 100 * time.Millisecond
)

// Service is the dual-backend ledger. The primary store is authoritative;
// every successful write is copied to the sqlite mirror best-effort, and
// reads fall back to the mirror (marked stale) when the primary stays down
// through the retry budget.
type Service struct {
	conns *db.Conns
	node  *snowflake.Node

	participants repository.Repository[Record]
	submissions  repository.Repository[Submission]
	reports      repository.Repository[CycleReport]

	mirrorParticipants repository.Repository[Record]
	mirrorSubmissions  repository.Repository[Submission]
	mirrorReports      repository.Repository[CycleReport]
}

type ServiceParams struct {
	fx.In
	Conns *db.Conns
	Node  *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		conns: p.Conns,
		node:  p.Node,

		participants: repository.ProvideStore[Record](p.Conns.Primary),
		submissions:  repository.ProvideStore[Submission](p.Conns.Primary),
		reports:      repository.ProvideStore[CycleReport](p.Conns.Primary),
	}

	if p.Conns.Mirror != nil {
		s.mirrorParticipants = repository.ProvideStore[Record](p.Conns.Mirror)
		s.mirrorSubmissions = repository.ProvideStore[Submission](p.Conns.Mirror)
		s.mirrorReports = repository.ProvideStore[CycleReport](p.Conns.Mirror)
	}

	return s
}

// withRetry runs fn against the primary with bounded backoff. Domain errors
// and context cancellation return immediately; exhaustion wraps the last
// error as TransientStore.
func (s *Service) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < storeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBaseDelay << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err = fn(); err == nil {
			return nil
		}

		if errutil.StatusOf(err) != errutil.StatusUnknown {
			return err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		zap.L().Warn("primary store operation failed",
			zap.String("store", "primary"),
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return errutil.TransientStore(fmt.Sprintf("%s failed after %d attempts", op, storeAttempts), err)
}

func (s *Service) normalizeWarn(rec *Record) *Participant {
	p, err := rec.Normalize()
	if err != nil {
		zap.L().Warn("participant row in unknown layout, best-effort normalize",
			zap.String("participant_id", rec.ID),
			zap.Error(err),
		)
	}
	return p
}

// mirrorUpsert copies a row to the mirror. Mirror failures are logged and
// swallowed; the mirror is never allowed to fail a write.
func (s *Service) mirrorUpsert(ctx context.Context, value any) {
	if s.conns.Mirror == nil {
		return
	}
	if err := s.conns.Mirror.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error; err != nil {
		zap.L().Warn("mirror write-through failed", zap.String("store", "mirror"), zap.Error(err))
	}
}

func (s *Service) refreshMirrorParticipant(ctx context.Context, id string) {
	if s.conns.Mirror == nil {
		return
	}
	rec, err := s.participants.FindOne(ctx, &Record{ID: id})
	if err != nil || rec == nil {
		return
	}
	s.mirrorUpsert(ctx, rec)
}

// ParticipantByID reads from the primary, falling back to the mirror when
// the primary stays unavailable. The bool reports a possibly-stale read.
func (s *Service) ParticipantByID(ctx context.Context, id string) (*Participant, bool, error) {
	var rec *Record
	err := s.withRetry(ctx, "participant_by_id", func() error {
		var ferr error
		rec, ferr = s.participants.FindOne(ctx, &Record{ID: id})
		return ferr
	})
	if err == nil {
		if rec == nil {
			return nil, false, nil
		}
		return s.normalizeWarn(rec), false, nil
	}

	if !errutil.HasStatus(err, errutil.StatusTransientStore) || s.mirrorParticipants == nil {
		return nil, false, err
	}

	zap.L().Warn("primary unavailable, reading participant from mirror", zap.String("participant_id", id))
	rec, merr := s.mirrorParticipants.FindOne(ctx, &Record{ID: id})
	if merr != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, true, nil
	}
	return s.normalizeWarn(rec), true, nil
}

type ListQuery struct {
	Status     string
	SortBy     string
	OrderBy    string
	Pagination pagination.Pagination
}

var leaderboardColumns = map[string]bool{
	"lifetime_points":      true,
	"current_cycle_points": true,
	"created_at":           true,
}

// ListParticipants serves the leaderboard. Sorting is allow-listed; unknown
// columns fall back to created_at.
func (s *Service) ListParticipants(ctx context.Context, q ListQuery) ([]*Participant, *pagination.PageInfo, bool, error) {
	limit := q.Pagination.Limit
	if limit <= 0 {
		limit = 10
	}

	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: q.SortBy, OrderBy: q.OrderBy, Allow: leaderboardColumns}),
		option.ApplyPagination(q.Pagination),
	}

	query := &Record{Status: q.Status}

	var recs []*Record
	err := s.withRetry(ctx, "list_participants", func() error {
		var ferr error
		recs, ferr = s.participants.Find(ctx, query, opts...)
		return ferr
	})

	stale := false
	if err != nil {
		if !errutil.HasStatus(err, errutil.StatusTransientStore) || s.mirrorParticipants == nil {
			return nil, nil, false, err
		}
		zap.L().Warn("primary unavailable, listing participants from mirror")
		recs, err = s.mirrorParticipants.Find(ctx, query, opts...)
		if err != nil {
			return nil, nil, false, errutil.TransientStore("list_participants failed on both stores", err)
		}
		stale = true
	}

	pageInfo := pagination.BuildCursorPageInfo(recs, limit, func(r *Record) string {
		cursor, cerr := pagination.EncodeCursor(pagination.Cursor{CreatedAt: r.CreatedAt.Format(time.RFC3339Nano), ID: r.ID})
		if cerr != nil {
			return ""
		}
		return cursor
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}

	out := make([]*Participant, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.normalizeWarn(rec))
	}

	return out, pageInfo, stale, nil
}

// AllParticipants returns the whole roster, optionally filtered by status.
// Used by the sweep, the export snapshot and reconcile.
func (s *Service) AllParticipants(ctx context.Context, status string) ([]*Participant, bool, error) {
	query := &Record{Status: status}

	var recs []*Record
	err := s.withRetry(ctx, "all_participants", func() error {
		var ferr error
		recs, ferr = s.participants.Find(ctx, query)
		return ferr
	})

	stale := false
	if err != nil {
		if !errutil.HasStatus(err, errutil.StatusTransientStore) || s.mirrorParticipants == nil {
			return nil, false, err
		}
		recs, err = s.mirrorParticipants.Find(ctx, query)
		if err != nil {
			return nil, false, errutil.TransientStore("all_participants failed on both stores", err)
		}
		stale = true
	}

	out := make([]*Participant, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.normalizeWarn(rec))
	}

	return out, stale, nil
}

func (s *Service) CreateParticipant(ctx context.Context, p *Participant) error {
	if p.RewardTier == "" {
		p.RewardTier = TierNone
	}
	if p.Status == "" {
		p.Status = StatusActive
	}

	rec := NewRecord(p)
	if err := s.withRetry(ctx, "create_participant", func() error {
		return s.participants.Create(ctx, rec)
	}); err != nil {
		return err
	}

	s.mirrorUpsert(ctx, rec)
	return nil
}

func (s *Service) UpdateParticipant(ctx context.Context, id string, updates map[string]any) error {
	updates["updated_at"] = time.Now()

	if err := s.withRetry(ctx, "update_participant", func() error {
		return s.participants.Update(ctx, id, updates)
	}); err != nil {
		return err
	}

	s.refreshMirrorParticipant(ctx, id)
	return nil
}

// IsDuplicate is the advisory dedup pre-check. The authoritative check runs
// again inside ApplySubmission's transaction; this one exists so intake can
// skip oracle calls and scoring for obvious repeats.
func (s *Service) IsDuplicate(ctx context.Context, participantID, fingerprint string) (bool, error) {
	query := &Submission{ParticipantID: participantID, ContentFingerprint: fingerprint}

	var prior *Submission
	err := s.withRetry(ctx, "dedup_check", func() error {
		var ferr error
		prior, ferr = s.submissions.FindOne(ctx, query)
		return ferr
	})
	if err == nil {
		return prior != nil, nil
	}

	if !errutil.HasStatus(err, errutil.StatusTransientStore) || s.mirrorSubmissions == nil {
		return false, err
	}

	zap.L().Warn("primary unavailable, dedup check against mirror",
		zap.String("participant_id", participantID),
		zap.String("fingerprint", fingerprint),
	)
	prior, merr := s.mirrorSubmissions.FindOne(ctx, query)
	if merr != nil {
		return false, err
	}
	return prior != nil, nil
}

// ApplySubmission persists one submission and settles its points in a single
// primary transaction: the participant row is locked, the dedup check re-runs
// under that lock, and accepted points increment both balances atomically.
// Two concurrent identical submissions therefore end as exactly one accepted
// row and one duplicate row.
func (s *Service) ApplySubmission(ctx context.Context, sub *Submission) (*Submission, *Participant, error) {
	if sub.ID == "" {
		sub.ID = s.node.Generate().String()
	}

	// Retries rerun the whole transaction, so the settle-able fields have to
	// start from the caller's values each attempt.
	origPoints := sub.PointsAwarded
	origValidity := sub.ValidityStatus

	err := s.withRetry(ctx, "apply_submission", func() error {
		sub.IsDuplicate = false
		sub.PointsAwarded = origPoints
		sub.ValidityStatus = origValidity

		return s.conns.Primary.Transaction(func(tx *gorm.DB) error {
			tx = tx.Scopes(option.LockingUpdate)

			participants := s.participants.WithTrx(tx)
			submissions := s.submissions.WithTrx(tx)

			rec, err := participants.FindOne(ctx, &Record{ID: sub.ParticipantID}, option.WithLockingUpdate())
			if err != nil {
				return err
			}
			if rec == nil {
				return errutil.UnknownParticipant("participant not on the roster", nil,
					errutil.WithDetails(errutil.Detail{Field: "participant_id", Message: sub.ParticipantID}))
			}

			prior, err := submissions.FindOne(ctx, &Submission{
				ParticipantID:      sub.ParticipantID,
				ContentFingerprint: sub.ContentFingerprint,
			})
			if err != nil {
				return err
			}

			if prior != nil {
				sub.IsDuplicate = true
				sub.PointsAwarded = 0
				sub.ValidityStatus = ValidityRejected
			}

			if err := submissions.Create(ctx, sub); err != nil {
				return err
			}

			if !sub.IsDuplicate && sub.ValidityStatus == ValidityAccepted && sub.PointsAwarded > 0 {
				return participants.Update(ctx, rec.ID, map[string]any{
					"current_cycle_points": gorm.Expr("current_cycle_points + ?", sub.PointsAwarded),
					"lifetime_points":      gorm.Expr("lifetime_points + ?", sub.PointsAwarded),
					"updated_at":           time.Now(),
				})
			}

			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	s.mirrorUpsert(ctx, sub)
	s.refreshMirrorParticipant(ctx, sub.ParticipantID)

	updated, _, err := s.ParticipantByID(ctx, sub.ParticipantID)
	if err != nil {
		return sub, nil, nil
	}

	return sub, updated, nil
}

// AddPoints applies a manual correction to both balances through the same
// serialized path as submissions. Negative deltas floor at zero.
func (s *Service) AddPoints(ctx context.Context, participantID string, delta int64) (*Participant, error) {
	err := s.withRetry(ctx, "add_points", func() error {
		return s.conns.Primary.Transaction(func(tx *gorm.DB) error {
			tx = tx.Scopes(option.LockingUpdate)

			participants := s.participants.WithTrx(tx)

			rec, err := participants.FindOne(ctx, &Record{ID: participantID}, option.WithLockingUpdate())
			if err != nil {
				return err
			}
			if rec == nil {
				return errutil.UnknownParticipant("participant not on the roster", nil,
					errutil.WithDetails(errutil.Detail{Field: "participant_id", Message: participantID}))
			}

			if delta >= 0 {
				return participants.Update(ctx, rec.ID, map[string]any{
					"current_cycle_points": gorm.Expr("current_cycle_points + ?", delta),
					"lifetime_points":      gorm.Expr("lifetime_points + ?", delta),
					"updated_at":           time.Now(),
				})
			}

			return participants.Update(ctx, rec.ID, map[string]any{
				"current_cycle_points": clampZero(rec.CurrentCyclePoints + delta),
				"lifetime_points":      clampZero(rec.LifetimePoints + delta),
				"updated_at":           time.Now(),
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.refreshMirrorParticipant(ctx, participantID)

	updated, _, err := s.ParticipantByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func clampZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

type CycleOutcome struct {
	Compliant bool
	Streak    int64
	Tier      string
}

// CloseCycle snapshots and resets one participant for a cycle. The report
// row is the idempotence marker: when it already exists the call is a no-op
// and returns false. decide runs under the participant row lock so the
// snapshot it sees is the one that gets reported and reset.
func (s *Service) CloseCycle(ctx context.Context, cycleID, participantID string, window CycleWindow, decide func(*Participant) CycleOutcome) (*CycleReport, bool, error) {
	var report *CycleReport

	err := s.withRetry(ctx, "close_cycle", func() error {
		report = nil
		return s.conns.Primary.Transaction(func(tx *gorm.DB) error {
			tx = tx.Scopes(option.LockingUpdate)

			participants := s.participants.WithTrx(tx)
			submissions := s.submissions.WithTrx(tx)
			reports := s.reports.WithTrx(tx)

			rec, err := participants.FindOne(ctx, &Record{ID: participantID}, option.WithLockingUpdate())
			if err != nil {
				return err
			}
			if rec == nil {
				return errutil.UnknownParticipant("participant not on the roster", nil,
					errutil.WithDetails(errutil.Detail{Field: "participant_id", Message: participantID}))
			}

			existing, err := reports.FindOne(ctx, &CycleReport{CycleID: cycleID, ParticipantID: participantID})
			if err != nil {
				return err
			}
			if existing != nil {
				return nil
			}

			p := s.normalizeWarn(rec)
			outcome := decide(p)

			accepted, err := submissions.Count(ctx,
				&Submission{ParticipantID: participantID, ValidityStatus: ValidityAccepted},
				option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.GTE, Value: window.From}),
				option.ApplyOperator(option.Condition{Field: "created_at", Operator: option.LT, Value: window.To}),
			)
			if err != nil {
				return err
			}

			report = &CycleReport{
				ID:                  s.node.Generate().String(),
				CycleID:             cycleID,
				ParticipantID:       participantID,
				TotalPoints:         p.CurrentCyclePoints,
				AcceptedSubmissions: accepted,
				Compliant:           outcome.Compliant,
				TierAfter:           outcome.Tier,
				GeneratedAt:         time.Now(),
			}

			if err := reports.Create(ctx, report); err != nil {
				return err
			}

			return participants.Update(ctx, rec.ID, map[string]any{
				"current_cycle_points":         0,
				"consecutive_compliant_cycles": outcome.Streak,
				"reward_tier":                  outcome.Tier,
				"updated_at":                   time.Now(),
			})
		})
	})
	if err != nil {
		return nil, false, err
	}
	if report == nil {
		return nil, false, nil
	}

	s.mirrorUpsert(ctx, report)
	s.refreshMirrorParticipant(ctx, participantID)

	return report, true, nil
}

type CycleWindow struct {
	From time.Time
	To   time.Time
}

// RecentSubmissions lists a participant's newest submissions, mirror
// fallback included.
func (s *Service) RecentSubmissions(ctx context.Context, participantID string, limit int) ([]*Submission, bool, error) {
	if limit <= 0 {
		limit = 10
	}

	query := &Submission{ParticipantID: participantID}
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc", Allow: map[string]bool{"created_at": true}}),
		option.ApplyPagination(pagination.Pagination{Limit: limit}),
	}

	var subs []*Submission
	err := s.withRetry(ctx, "recent_submissions", func() error {
		var ferr error
		subs, ferr = s.submissions.Find(ctx, query, opts...)
		return ferr
	})
	if err == nil {
		return trimToLimit(subs, limit), false, nil
	}

	if !errutil.HasStatus(err, errutil.StatusTransientStore) || s.mirrorSubmissions == nil {
		return nil, false, err
	}

	subs, merr := s.mirrorSubmissions.Find(ctx, query, opts...)
	if merr != nil {
		return nil, false, err
	}
	return trimToLimit(subs, limit), true, nil
}

// trimToLimit drops the extra look-ahead row ApplyPagination fetches.
func trimToLimit(subs []*Submission, limit int) []*Submission {
	if len(subs) > limit {
		return subs[:limit]
	}
	return subs
}

// CycleReports lists report rows, optionally filtered by cycle.
func (s *Service) CycleReports(ctx context.Context, cycleID string) ([]*CycleReport, error) {
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{SortBy: "generated_at", OrderBy: "desc", Allow: map[string]bool{"generated_at": true}}),
	}

	var out []*CycleReport
	err := s.withRetry(ctx, "cycle_reports", func() error {
		var ferr error
		out, ferr = s.reports.Find(ctx, &CycleReport{CycleID: cycleID}, opts...)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reconcile bulk-copies every participant row from the primary over the
// mirror. Idempotent; runs at startup and on POST /v1/reconcile.
func (s *Service) Reconcile(ctx context.Context) (int64, error) {
	if s.conns.Mirror == nil {
		zap.L().Info("no mirror configured, reconcile skipped")
		return 0, nil
	}

	var recs []*Record
	if err := s.withRetry(ctx, "reconcile_pull", func() error {
		var ferr error
		recs, ferr = s.participants.Find(ctx, &Record{})
		return ferr
	}); err != nil {
		return 0, err
	}

	if len(recs) == 0 {
		return 0, nil
	}

	if err := s.conns.Mirror.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(recs, 100).Error; err != nil {
		return 0, errutil.Internal("mirror reconcile failed", err)
	}

	zap.L().Info("mirror reconciled", zap.Int("participants", len(recs)))
	return int64(len(recs)), nil
}
