package participant

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"advocacy-engine/pkg/db/pagination"
	"advocacy-engine/pkg/errutil"
	"advocacy-engine/services/ledger"
	"advocacy-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newRosterService(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()

	conns := testutil.NewTestConns(t, ledger.Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	lsvc := ledger.NewService(ledger.ServiceParams{Conns: conns, Node: node})
	return NewService(ServiceParams{Ledger: lsvc, Node: node}), lsvc
}

func TestEnrollNew(t *testing.T) {
	svc, lsvc := newRosterService(t)

	p, err := svc.Enroll(context.Background(), &EnrollRequest{
		ID:             "amb-1",
		Handle:         "@casey",
		TargetChannels: []string{"instagram", "youtube"},
	})
	require.NoError(t, err)
	require.Equal(t, "amb-1", p.ID)
	require.Equal(t, "instagram,youtube", p.TargetChannels)
	require.Equal(t, ledger.TierNone, p.RewardTier)
	require.Equal(t, ledger.StatusActive, p.Status)
	require.NotNil(t, p.JoinedAt)

	stored, stale, err := lsvc.ParticipantByID(context.Background(), "amb-1")
	require.NoError(t, err)
	require.False(t, stale)
	require.Equal(t, "@casey", stored.Handle)
}

func TestEnrollGeneratesID(t *testing.T) {
	svc, _ := newRosterService(t)

	p, err := svc.Enroll(context.Background(), &EnrollRequest{Handle: "@quinn"})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
}

func TestEnrollRequiresHandle(t *testing.T) {
	svc, _ := newRosterService(t)

	_, err := svc.Enroll(context.Background(), &EnrollRequest{ID: "amb-1"})
	require.True(t, errutil.HasStatus(err, errutil.StatusBadRequest))
}

func TestEnrollConflictWhenActive(t *testing.T) {
	svc, _ := newRosterService(t)

	_, err := svc.Enroll(context.Background(), &EnrollRequest{ID: "amb-1", Handle: "@casey"})
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), &EnrollRequest{ID: "amb-1", Handle: "@casey"})
	require.True(t, errutil.HasStatus(err, errutil.StatusConflict))
}

func TestEnrollReactivatesKeepingBalances(t *testing.T) {
	svc, lsvc := newRosterService(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, &EnrollRequest{ID: "amb-1", Handle: "@casey"})
	require.NoError(t, err)

	_, err = lsvc.AddPoints(ctx, "amb-1", 42)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, "amb-1"))

	p, err := svc.Enroll(ctx, &EnrollRequest{
		ID:             "amb-1",
		Handle:         "@casey_new",
		TargetChannels: []string{"tiktok"},
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusActive, p.Status)
	require.Equal(t, "@casey_new", p.Handle)
	require.Equal(t, "tiktok", p.TargetChannels)
	require.Equal(t, int64(42), p.LifetimePoints)
	require.Equal(t, int64(42), p.CurrentCyclePoints)
}

func TestDeactivateUnknown(t *testing.T) {
	svc, _ := newRosterService(t)

	err := svc.Deactivate(context.Background(), "ghost")
	require.True(t, errutil.HasStatus(err, errutil.StatusUnknownParticipant))
}

func TestDeactivateIdempotent(t *testing.T) {
	svc, _ := newRosterService(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, &EnrollRequest{ID: "amb-1", Handle: "@casey"})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, "amb-1"))
	require.NoError(t, svc.Deactivate(ctx, "amb-1"))
}

func TestProfileWithRecentSubmissions(t *testing.T) {
	svc, lsvc := newRosterService(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, &EnrollRequest{ID: "amb-1", Handle: "@casey"})
	require.NoError(t, err)

	for _, fp := range []string{"fp-1", "fp-2"} {
		_, _, err := lsvc.ApplySubmission(ctx, &ledger.Submission{
			ParticipantID:      "amb-1",
			Platform:           "youtube",
			ContentType:        "video",
			ContentFingerprint: fp,
			PointsAwarded:      15,
			ValidityStatus:     ledger.ValidityAccepted,
		})
		require.NoError(t, err)
	}

	profile, err := svc.Profile(ctx, "amb-1")
	require.NoError(t, err)
	require.False(t, profile.Stale)
	require.Equal(t, int64(30), profile.Participant.LifetimePoints)
	require.Len(t, profile.Recent, 2)
	require.Equal(t, "youtube", profile.Recent[0].Platform)
}

func TestProfileUnknown(t *testing.T) {
	svc, _ := newRosterService(t)

	_, err := svc.Profile(context.Background(), "ghost")
	require.True(t, errutil.HasStatus(err, errutil.StatusUnknownParticipant))
}

func TestProfileServedFromCacheUntilInvalidated(t *testing.T) {
	svc, lsvc := newRosterService(t)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, &EnrollRequest{ID: "amb-1", Handle: "@casey"})
	require.NoError(t, err)

	first, err := svc.Profile(ctx, "amb-1")
	require.NoError(t, err)
	require.Zero(t, first.Participant.LifetimePoints)

	_, err = lsvc.AddPoints(ctx, "amb-1", 5)
	require.NoError(t, err)

	cached, err := svc.Profile(ctx, "amb-1")
	require.NoError(t, err)
	require.Zero(t, cached.Participant.LifetimePoints)

	svc.cache.invalidate("amb-1")
	fresh, err := svc.Profile(ctx, "amb-1")
	require.NoError(t, err)
	require.Equal(t, int64(5), fresh.Participant.LifetimePoints)
}

func TestLeaderboardDefaultOrder(t *testing.T) {
	svc, lsvc := newRosterService(t)
	ctx := context.Background()

	for id, points := range map[string]int64{"low": 5, "high": 50, "mid": 20} {
		_, err := svc.Enroll(ctx, &EnrollRequest{ID: id, Handle: "@" + id})
		require.NoError(t, err)
		_, err = lsvc.AddPoints(ctx, id, points)
		require.NoError(t, err)
	}

	out, pageInfo, stale, err := svc.Leaderboard(ctx, ledger.ListQuery{})
	require.NoError(t, err)
	require.False(t, stale)
	require.False(t, pageInfo.HasMore)
	require.Len(t, out, 3)
	require.Equal(t, "high", out[0].ID)
	require.Equal(t, "mid", out[1].ID)
	require.Equal(t, "low", out[2].ID)
}

func TestLeaderboardPagination(t *testing.T) {
	svc, lsvc := newRosterService(t)
	ctx := context.Background()

	for id, points := range map[string]int64{"a": 1, "b": 2, "c": 3} {
		_, err := svc.Enroll(ctx, &EnrollRequest{ID: id, Handle: "@" + id})
		require.NoError(t, err)
		_, err = lsvc.AddPoints(ctx, id, points)
		require.NoError(t, err)
	}

	out, pageInfo, _, err := svc.Leaderboard(ctx, ledger.ListQuery{
		Pagination: pagination.Pagination{Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.True(t, pageInfo.HasMore)
	require.NotEmpty(t, pageInfo.NextCursor)
}
