package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"advocacy-engine/pkg/errutil"
)

func TestNormalizeCanonicalLayout(t *testing.T) {
	joined := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	channels := "instagram, tiktok"

	rec := &Record{
		ID:              "user-1",
		Handle:          "casey",
		TargetPlatforms: &channels,
		JoinedDate:      &joined,
		LifetimePoints:  120,
		Status:          StatusActive,
	}

	p, err := rec.Normalize()
	require.NoError(t, err)
	require.Equal(t, "instagram, tiktok", p.TargetChannels)
	require.NotNil(t, p.JoinedAt)
	require.True(t, p.JoinedAt.Equal(joined))
	require.Equal(t, int64(120), p.LifetimePoints)
}

func TestNormalizeLegacyLayout(t *testing.T) {
	channels := "youtube"

	rec := &Record{
		ID:        "user-2",
		Platforms: &channels,
		Status:    StatusActive,
	}

	p, err := rec.Normalize()
	require.NoError(t, err)
	require.Equal(t, "youtube", p.TargetChannels)
	require.Nil(t, p.JoinedAt)
}

func TestNormalizePrefersCanonicalOverLegacy(t *testing.T) {
	legacy := "old"
	canonical := "new"

	rec := &Record{ID: "user-3", Platforms: &legacy, TargetPlatforms: &canonical}

	p, err := rec.Normalize()
	require.NoError(t, err)
	require.Equal(t, "new", p.TargetChannels)
}

func TestNormalizeUnknownLayoutIsBestEffort(t *testing.T) {
	rec := &Record{
		ID:             "user-4",
		Handle:         "drew",
		LifetimePoints: 40,
		Status:         StatusActive,
	}

	p, err := rec.Normalize()
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusSchemaMismatch))

	// The participant still comes back usable.
	require.NotNil(t, p)
	require.Equal(t, "drew", p.Handle)
	require.Equal(t, int64(40), p.LifetimePoints)
	require.Empty(t, p.TargetChannels)
}

func TestNormalizeDefaultsTier(t *testing.T) {
	channels := "x"
	rec := &Record{ID: "user-5", TargetPlatforms: &channels}

	p, err := rec.Normalize()
	require.NoError(t, err)
	require.Equal(t, TierNone, p.RewardTier)
}

func TestNewRecordWritesCanonicalFamily(t *testing.T) {
	joined := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	p := &Participant{
		ID:             "user-6",
		TargetChannels: "reddit",
		JoinedAt:       &joined,
		Status:         StatusActive,
	}

	rec := NewRecord(p)
	require.Nil(t, rec.Platforms)
	require.NotNil(t, rec.TargetPlatforms)
	require.Equal(t, "reddit", *rec.TargetPlatforms)
	require.NotNil(t, rec.JoinedDate)
}

func TestMetricsJSONRoundTrip(t *testing.T) {
	m := EngagementMetrics{Likes: 50, Comments: 10, Shares: 2}

	got := MetricsFromJSON(m.JSON())
	require.Equal(t, m, got)
}

func TestMetricsFromJSONEmpty(t *testing.T) {
	got := MetricsFromJSON(nil)
	require.Equal(t, EngagementMetrics{}, got)
}
