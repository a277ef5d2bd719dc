package export

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"advocacy-engine/pkg/errutil"
	"advocacy-engine/services/ledger"
	"advocacy-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newExportService(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()

	conns := testutil.NewTestConns(t, ledger.Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	lsvc := ledger.NewService(ledger.ServiceParams{Conns: conns, Node: node})
	return NewService(ServiceParams{Ledger: lsvc}), lsvc
}

func seed(t *testing.T, lsvc *ledger.Service, p ledger.Participant) {
	t.Helper()
	require.NoError(t, lsvc.CreateParticipant(context.Background(), &p))
}

func TestSnapshotGolden(t *testing.T) {
	svc, lsvc := newExportService(t)

	seed(t, lsvc, ledger.Participant{
		ID: "amb-alpha", Handle: "@alpha", Status: ledger.StatusActive,
		RewardTier: ledger.TierRecurring3Mo, ConsecutiveCompliantCycles: 3,
		CurrentCyclePoints: 40, LifetimePoints: 120,
	})
	seed(t, lsvc, ledger.Participant{
		ID: "amb-beta", Handle: "@beta", Status: ledger.StatusActive,
		CurrentCyclePoints: 10, LifetimePoints: 45,
	})
	seed(t, lsvc, ledger.Participant{
		ID: "amb-gamma", Handle: "@gamma", Status: ledger.StatusInactive,
		LifetimePoints: 45,
	})

	data, stale, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.False(t, stale)

	g := goldie.New(t)
	g.Assert(t, "snapshot", data)
}

func TestSnapshotDeterministic(t *testing.T) {
	svc, lsvc := newExportService(t)

	seed(t, lsvc, ledger.Participant{ID: "b", Handle: "@b", Status: ledger.StatusActive, LifetimePoints: 7})
	seed(t, lsvc, ledger.Participant{ID: "a", Handle: "@a", Status: ledger.StatusActive, LifetimePoints: 7})

	first, _, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	second, _, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAdjustAppliesNumericValues(t *testing.T) {
	svc, lsvc := newExportService(t)
	ctx := context.Background()

	seed(t, lsvc, ledger.Participant{ID: "amb-1", Handle: "@casey", Status: ledger.StatusActive, LifetimePoints: 10, CurrentCyclePoints: 10})

	result, err := svc.Adjust(ctx, &AdjustRequest{Entries: []AdjustmentEntry{
		{ParticipantID: "amb-1", Value: " +5 ", Note: "contest bonus"},
	}})
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)
	require.Equal(t, int64(5), result.Applied[0].Delta)
	require.Equal(t, int64(15), result.Applied[0].LifetimePoints)

	p, _, err := lsvc.ParticipantByID(ctx, "amb-1")
	require.NoError(t, err)
	require.Equal(t, int64(15), p.LifetimePoints)
	require.Equal(t, int64(15), p.CurrentCyclePoints)
}

func TestAdjustSkipsNonNumeric(t *testing.T) {
	svc, lsvc := newExportService(t)
	ctx := context.Background()

	seed(t, lsvc, ledger.Participant{ID: "amb-1", Handle: "@casey", Status: ledger.StatusActive, LifetimePoints: 10})

	result, err := svc.Adjust(ctx, &AdjustRequest{Entries: []AdjustmentEntry{
		{ParticipantID: "amb-1", Value: "five points"},
		{ParticipantID: "amb-1", Value: ""},
		{ParticipantID: "amb-1", Value: "3"},
	}})
	require.NoError(t, err)
	require.Len(t, result.Applied, 1)
	require.Len(t, result.Skipped, 2)
	require.Equal(t, "not a number", result.Skipped[0].Reason)

	p, _, err := lsvc.ParticipantByID(ctx, "amb-1")
	require.NoError(t, err)
	require.Equal(t, int64(13), p.LifetimePoints)
}

func TestAdjustSkipsUnknownParticipant(t *testing.T) {
	svc, _ := newExportService(t)

	result, err := svc.Adjust(context.Background(), &AdjustRequest{Entries: []AdjustmentEntry{
		{ParticipantID: "ghost", Value: "10"},
	}})
	require.NoError(t, err)
	require.Empty(t, result.Applied)
	require.Len(t, result.Skipped, 1)
	require.Equal(t, "unknown participant", result.Skipped[0].Reason)
}

func TestAdjustNegativeFloorsAtZero(t *testing.T) {
	svc, lsvc := newExportService(t)
	ctx := context.Background()

	seed(t, lsvc, ledger.Participant{ID: "amb-1", Handle: "@casey", Status: ledger.StatusActive, LifetimePoints: 5, CurrentCyclePoints: 5})

	_, err := svc.Adjust(ctx, &AdjustRequest{Entries: []AdjustmentEntry{
		{ParticipantID: "amb-1", Value: "-20"},
	}})
	require.NoError(t, err)

	p, _, err := lsvc.ParticipantByID(ctx, "amb-1")
	require.NoError(t, err)
	require.Zero(t, p.LifetimePoints)
	require.Zero(t, p.CurrentCyclePoints)
}

func TestAdjustEmptyBatch(t *testing.T) {
	svc, _ := newExportService(t)

	_, err := svc.Adjust(context.Background(), &AdjustRequest{})
	require.True(t, errutil.HasStatus(err, errutil.StatusBadRequest))
}
