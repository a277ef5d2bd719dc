package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"advocacy-engine/pkg/db"
	"advocacy-engine/pkg/db/option"
	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/repository"
	"advocacy-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	withTrxFn     func(tx *gorm.DB) repository.Repository[T]
	findFn        func(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	findOneFn     func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	createFn      func(ctx context.Context, resource *T) error
	updateFn      func(ctx context.Context, resourceID string, resource any) error
	batchCreateFn func(ctx context.Context, resources []*T) error
	batchUpdateFn func(ctx context.Context, resources []*T) error
	countFn       func(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] {
	if m.withTrxFn != nil {
		return m.withTrxFn(tx)
	}
	return m
}

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(ctx context.Context, resource *T) error {
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *repoMock[T]) Update(ctx context.Context, resourceID string, resource any) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, resourceID, resource)
	}
	return nil
}

func (m *repoMock[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if m.batchCreateFn != nil {
		return m.batchCreateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	if m.batchUpdateFn != nil {
		return m.batchUpdateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) Count(ctx context.Context, query *T, opts ...option.QueryOption) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, query, opts...)
	}
	return 0, nil
}

func newTestService(t *testing.T) (*Service, *db.Conns) {
	t.Helper()

	conns := testutil.NewTestConns(t, Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{Conns: conns, Node: node}), conns
}

func seedParticipant(t *testing.T, svc *Service, id string, points int64) {
	t.Helper()

	err := svc.CreateParticipant(context.Background(), &Participant{
		ID:                 id,
		Handle:             "@" + id,
		TargetChannels:     "instagram",
		CurrentCyclePoints: points,
		LifetimePoints:     points,
		Status:             StatusActive,
	})
	require.NoError(t, err)
}

func TestNewService(t *testing.T) {
	svc, _ := newTestService(t)

	require.NotNil(t, svc.participants)
	require.NotNil(t, svc.submissions)
	require.NotNil(t, svc.reports)
	require.NotNil(t, svc.mirrorParticipants)
}

func TestApplySubmissionAccepted(t *testing.T) {
	svc, conns := newTestService(t)
	seedParticipant(t, svc, "user-1", 0)

	sub := &Submission{
		ParticipantID:      "user-1",
		Platform:           "youtube",
		ContentType:        "video",
		SourceReference:    "https://youtube.com/watch?v=abc",
		ContentFingerprint: "fp-accept",
		PointsAwarded:      23,
		ValidityStatus:     ValidityAccepted,
	}

	saved, updated, err := svc.ApplySubmission(context.Background(), sub)
	require.NoError(t, err)
	require.False(t, saved.IsDuplicate)
	require.Equal(t, int64(23), saved.PointsAwarded)
	require.Equal(t, int64(23), updated.CurrentCyclePoints)
	require.Equal(t, int64(23), updated.LifetimePoints)

	// Write-through lands on the mirror too.
	var mirrored Submission
	require.NoError(t, conns.Mirror.Where("content_fingerprint = ?", "fp-accept").First(&mirrored).Error)
	require.Equal(t, saved.ID, mirrored.ID)
}

func TestApplySubmissionDuplicateLeavesBalancesAlone(t *testing.T) {
	svc, _ := newTestService(t)
	seedParticipant(t, svc, "user-1", 0)

	first := &Submission{
		ParticipantID:      "user-1",
		ContentFingerprint: "fp-dup",
		PointsAwarded:      15,
		ValidityStatus:     ValidityAccepted,
	}
	_, updated, err := svc.ApplySubmission(context.Background(), first)
	require.NoError(t, err)
	require.Equal(t, int64(15), updated.LifetimePoints)

	second := &Submission{
		ParticipantID:      "user-1",
		ContentFingerprint: "fp-dup",
		PointsAwarded:      15,
		ValidityStatus:     ValidityAccepted,
	}
	saved, updated, err := svc.ApplySubmission(context.Background(), second)
	require.NoError(t, err)
	require.True(t, saved.IsDuplicate)
	require.Equal(t, int64(0), saved.PointsAwarded)
	require.Equal(t, ValidityRejected, saved.ValidityStatus)

	// Balances unchanged by the repeat.
	require.Equal(t, int64(15), updated.CurrentCyclePoints)
	require.Equal(t, int64(15), updated.LifetimePoints)
}

func TestApplySubmissionDuplicateAcrossValidity(t *testing.T) {
	svc, _ := newTestService(t)
	seedParticipant(t, svc, "user-1", 0)

	flagged := &Submission{
		ParticipantID:      "user-1",
		ContentFingerprint: "fp-flagged",
		PointsAwarded:      0,
		ValidityStatus:     ValidityFlagged,
	}
	_, _, err := svc.ApplySubmission(context.Background(), flagged)
	require.NoError(t, err)

	// A flagged prior row still blocks the repeat.
	retry := &Submission{
		ParticipantID:      "user-1",
		ContentFingerprint: "fp-flagged",
		PointsAwarded:      15,
		ValidityStatus:     ValidityAccepted,
	}
	saved, _, err := svc.ApplySubmission(context.Background(), retry)
	require.NoError(t, err)
	require.True(t, saved.IsDuplicate)
}

func TestApplySubmissionUnknownParticipant(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.ApplySubmission(context.Background(), &Submission{
		ParticipantID:      "ghost",
		ContentFingerprint: "fp",
		ValidityStatus:     ValidityAccepted,
	})
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusUnknownParticipant))
}

func TestIsDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	seedParticipant(t, svc, "user-1", 0)

	dup, err := svc.IsDuplicate(context.Background(), "user-1", "fp-x")
	require.NoError(t, err)
	require.False(t, dup)

	_, _, err = svc.ApplySubmission(context.Background(), &Submission{
		ParticipantID:      "user-1",
		ContentFingerprint: "fp-x",
		ValidityStatus:     ValidityAccepted,
	})
	require.NoError(t, err)

	dup, err = svc.IsDuplicate(context.Background(), "user-1", "fp-x")
	require.NoError(t, err)
	require.True(t, dup)
}

func TestAddPointsNegativeFloorsAtZero(t *testing.T) {
	svc, _ := newTestService(t)
	seedParticipant(t, svc, "user-1", 10)

	updated, err := svc.AddPoints(context.Background(), "user-1", -25)
	require.NoError(t, err)
	require.Equal(t, int64(0), updated.CurrentCyclePoints)
	require.Equal(t, int64(0), updated.LifetimePoints)
}

func TestAddPointsPositive(t *testing.T) {
	svc, _ := newTestService(t)
	seedParticipant(t, svc, "user-1", 10)

	updated, err := svc.AddPoints(context.Background(), "user-1", 5)
	require.NoError(t, err)
	require.Equal(t, int64(15), updated.CurrentCyclePoints)
	require.Equal(t, int64(15), updated.LifetimePoints)
}

func TestCloseCycleResetsAndSnapshots(t *testing.T) {
	svc, _ := newTestService(t)
	seedParticipant(t, svc, "user-1", 60)

	window := CycleWindow{
		From: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
	}

	report, applied, err := svc.CloseCycle(context.Background(), "2025-08", "user-1", window, func(p *Participant) CycleOutcome {
		return CycleOutcome{Compliant: true, Streak: p.ConsecutiveCompliantCycles + 1, Tier: TierNone}
	})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, int64(60), report.TotalPoints)
	require.True(t, report.Compliant)

	p, _, err := svc.ParticipantByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), p.CurrentCyclePoints)
	require.Equal(t, int64(60), p.LifetimePoints)
	require.Equal(t, int64(1), p.ConsecutiveCompliantCycles)
}

func TestCloseCycleIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	seedParticipant(t, svc, "user-1", 60)

	window := CycleWindow{
		From: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	decide := func(p *Participant) CycleOutcome {
		return CycleOutcome{Compliant: true, Streak: p.ConsecutiveCompliantCycles + 1, Tier: TierNone}
	}

	_, applied, err := svc.CloseCycle(context.Background(), "2025-08", "user-1", window, decide)
	require.NoError(t, err)
	require.True(t, applied)

	// Re-running the same cycle must be a no-op.
	report, applied, err := svc.CloseCycle(context.Background(), "2025-08", "user-1", window, decide)
	require.NoError(t, err)
	require.False(t, applied)
	require.Nil(t, report)

	p, _, err := svc.ParticipantByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), p.ConsecutiveCompliantCycles)
}

func TestReconcileCopiesPrimaryToMirror(t *testing.T) {
	svc, conns := newTestService(t)
	seedParticipant(t, svc, "user-1", 10)
	seedParticipant(t, svc, "user-2", 20)

	// Drift the mirror, then reconcile.
	require.NoError(t, conns.Mirror.Where("1 = 1").Delete(&Record{}).Error)

	count, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	var mirrored int64
	require.NoError(t, conns.Mirror.Model(&Record{}).Count(&mirrored).Error)
	require.Equal(t, int64(2), mirrored)
}

func TestParticipantByIDFallsBackToMirror(t *testing.T) {
	channels := "instagram"
	boom := errors.New("connection refused")

	svc := &Service{
		conns: &db.Conns{},
		participants: &repoMock[Record]{
			findOneFn: func(ctx context.Context, _ *Record, _ ...option.QueryOption) (*Record, error) {
				return nil, boom
			},
		},
		mirrorParticipants: &repoMock[Record]{
			findOneFn: func(ctx context.Context, _ *Record, _ ...option.QueryOption) (*Record, error) {
				return &Record{ID: "user-1", TargetPlatforms: &channels, Status: StatusActive}, nil
			},
		},
	}

	p, stale, err := svc.ParticipantByID(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, stale)
	require.Equal(t, "user-1", p.ID)
}

func TestParticipantByIDSurfacesTransientWhenNoMirror(t *testing.T) {
	boom := errors.New("connection refused")

	svc := &Service{
		conns: &db.Conns{},
		participants: &repoMock[Record]{
			findOneFn: func(ctx context.Context, _ *Record, _ ...option.QueryOption) (*Record, error) {
				return nil, boom
			},
		},
	}

	_, _, err := svc.ParticipantByID(context.Background(), "user-1")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusTransientStore))
}

func TestListParticipantsLeaderboardOrder(t *testing.T) {
	svc, _ := newTestService(t)
	seedParticipant(t, svc, "low", 5)
	seedParticipant(t, svc, "high", 50)
	seedParticipant(t, svc, "mid", 20)

	out, _, stale, err := svc.ListParticipants(context.Background(), ListQuery{
		SortBy:  "lifetime_points",
		OrderBy: "desc",
	})
	require.NoError(t, err)
	require.False(t, stale)
	require.Len(t, out, 3)
	require.Equal(t, "high", out[0].ID)
	require.Equal(t, "mid", out[1].ID)
	require.Equal(t, "low", out[2].ID)
}

func TestRecentSubmissions(t *testing.T) {
	svc, _ := newTestService(t)
	seedParticipant(t, svc, "user-1", 0)

	for _, fp := range []string{"a", "b", "c"} {
		_, _, err := svc.ApplySubmission(context.Background(), &Submission{
			ParticipantID:      "user-1",
			ContentFingerprint: fp,
			ValidityStatus:     ValidityAccepted,
		})
		require.NoError(t, err)
	}

	subs, stale, err := svc.RecentSubmissions(context.Background(), "user-1", 2)
	require.NoError(t, err)
	require.False(t, stale)
	require.Len(t, subs, 2)

	// A limit past the row count returns everything, no look-ahead row.
	subs, _, err = svc.RecentSubmissions(context.Background(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, subs, 3)
}
