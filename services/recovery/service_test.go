package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"advocacy-engine/pkg/config"
	"advocacy-engine/pkg/errutil"
	"advocacy-engine/services/ledger"
	"advocacy-engine/services/oracle"
	"advocacy-engine/services/submission"
	"advocacy-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type historyMock struct {
	messages map[string][]Message
	files    map[string][]byte
	err      error
}

func (m *historyMock) Messages(_ context.Context, channel string, after time.Time) ([]Message, error) {
	if m.err != nil {
		return nil, m.err
	}

	var out []Message
	for _, msg := range m.messages[channel] {
		if msg.Timestamp.After(after) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *historyMock) Fetch(_ context.Context, url string) ([]byte, error) {
	raw, ok := m.files[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return raw, nil
}

type oracleMock struct {
	verdict *oracle.Verdict
}

func (m *oracleMock) Analyze(context.Context, []byte, string) (*oracle.Verdict, error) {
	if m.verdict == nil {
		return nil, errutil.OracleUnavailable("oracle down", nil)
	}
	return m.verdict, nil
}

type seqMock struct{}

func (seqMock) NextSubmissionCode(context.Context) (string, error) { return "SUB-TEST-001AA", nil }
func (seqMock) NextExportCode(_ context.Context, cycleID string) (string, error) {
	return "RPT-" + cycleID + "-01", nil
}

func scanConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Program.RecoveryLookbackDays = 30
	cfg.Program.Channels = []string{"promo"}
	return cfg
}

func newScanService(t *testing.T, history HistorySource, verdict *oracle.Verdict) (*Service, *ledger.Service) {
	t.Helper()

	conns := testutil.NewTestConns(t, ledger.Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	lsvc := ledger.NewService(ledger.ServiceParams{Conns: conns, Node: node})
	ssvc := submission.NewService(submission.ServiceParams{
		Ledger:   lsvc,
		Oracle:   &oracleMock{verdict: verdict},
		Sequence: seqMock{},
	})

	svc := &Service{
		submitter:           ssvc,
		history:             history,
		defaultLookbackDays: scanConfig().Program.RecoveryLookbackDays,
		defaultChannels:     scanConfig().Program.Channels,
	}
	return svc, lsvc
}

func enroll(t *testing.T, lsvc *ledger.Service, id string) {
	t.Helper()
	require.NoError(t, lsvc.CreateParticipant(context.Background(), &ledger.Participant{
		ID: id, Handle: "@" + id, Status: ledger.StatusActive,
	}))
}

func TestScanRecoversMissedSubmissions(t *testing.T) {
	history := &historyMock{messages: map[string][]Message{
		"promo": {
			{ID: "m1", AuthorID: "amb-1", Content: "posted https://youtu.be/abc", Timestamp: time.Now().Add(-time.Hour)},
			{ID: "m2", AuthorID: "stranger", Content: "https://youtu.be/xyz", Timestamp: time.Now().Add(-time.Hour)},
			{ID: "m3", AuthorID: "amb-1", Content: "just chatting", Timestamp: time.Now().Add(-time.Hour)},
		},
	}}

	svc, lsvc := newScanService(t, history, nil)
	enroll(t, lsvc, "amb-1")

	report, err := svc.Scan(context.Background(), &ScanRequest{})
	require.NoError(t, err)
	require.Equal(t, 3, report.Messages)
	require.Equal(t, 1, report.Recovered)
	require.Equal(t, 2, report.Skipped) // non-participant + empty payload
	require.Zero(t, report.Duplicates)

	p, _, err := lsvc.ParticipantByID(context.Background(), "amb-1")
	require.NoError(t, err)
	require.Equal(t, int64(15), p.LifetimePoints)
}

func TestScanIdempotent(t *testing.T) {
	history := &historyMock{messages: map[string][]Message{
		"promo": {
			{ID: "m1", AuthorID: "amb-1", Content: "https://youtu.be/abc", Timestamp: time.Now().Add(-time.Hour)},
			{ID: "m2", AuthorID: "amb-1", Content: "https://x.com/me/status/9", Timestamp: time.Now().Add(-time.Hour)},
		},
	}}

	svc, lsvc := newScanService(t, history, nil)
	enroll(t, lsvc, "amb-1")
	ctx := context.Background()

	first, err := svc.Scan(ctx, &ScanRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, first.Recovered)

	after, _, err := lsvc.ParticipantByID(ctx, "amb-1")
	require.NoError(t, err)

	// Same window again: every replay lands as a duplicate row, balances
	// untouched.
	second, err := svc.Scan(ctx, &ScanRequest{})
	require.NoError(t, err)
	require.Zero(t, second.Recovered)
	require.Equal(t, 2, second.Duplicates)

	again, _, err := lsvc.ParticipantByID(ctx, "amb-1")
	require.NoError(t, err)
	require.Equal(t, after.LifetimePoints, again.LifetimePoints)
	require.Equal(t, after.CurrentCyclePoints, again.CurrentCyclePoints)
}

func TestScanSeesLiveSubmissionsAsDuplicates(t *testing.T) {
	history := &historyMock{messages: map[string][]Message{
		"promo": {
			{ID: "m1", AuthorID: "amb-1", Content: "https://youtu.be/abc", Timestamp: time.Now().Add(-time.Hour)},
		},
	}}

	svc, lsvc := newScanService(t, history, nil)
	enroll(t, lsvc, "amb-1")
	ctx := context.Background()

	// The live path already settled this exact message.
	live := submission.NewService(submission.ServiceParams{
		Ledger: lsvc, Oracle: &oracleMock{}, Sequence: seqMock{},
	})
	_, err := live.Submit(ctx, &submission.SubmitRequest{
		ParticipantID: "amb-1",
		Text:          "https://youtu.be/abc",
		Channel:       "promo",
	})
	require.NoError(t, err)

	report, err := svc.Scan(ctx, &ScanRequest{})
	require.NoError(t, err)
	require.Zero(t, report.Recovered)
	require.Equal(t, 1, report.Duplicates)

	p, _, err := lsvc.ParticipantByID(ctx, "amb-1")
	require.NoError(t, err)
	require.Equal(t, int64(15), p.LifetimePoints)
}

func TestScanReplaysAttachments(t *testing.T) {
	history := &historyMock{
		messages: map[string][]Message{
			"promo": {
				{
					ID: "m1", AuthorID: "amb-1", Content: "proof attached",
					Timestamp: time.Now().Add(-time.Hour),
					Attachments: []Attachment{
						{URL: "https://cdn.example/shot.png", Filename: "shot.png", ContentType: "image/png"},
						{URL: "https://cdn.example/notes.pdf", Filename: "notes.pdf", ContentType: "application/pdf"},
					},
				},
			},
		},
		files: map[string][]byte{"https://cdn.example/shot.png": []byte("fake png bytes")},
	}

	svc, lsvc := newScanService(t, history, &oracle.Verdict{
		Platform: "instagram", ContentType: "post", IsAuthentic: true, Quality: 8,
	})
	enroll(t, lsvc, "amb-1")

	report, err := svc.Scan(context.Background(), &ScanRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Recovered)

	p, _, err := lsvc.ParticipantByID(context.Background(), "amb-1")
	require.NoError(t, err)
	require.Equal(t, int64(8), p.LifetimePoints)
}

func TestScanRespectsLookbackWindow(t *testing.T) {
	history := &historyMock{messages: map[string][]Message{
		"promo": {
			{ID: "old", AuthorID: "amb-1", Content: "https://youtu.be/old", Timestamp: time.Now().AddDate(0, 0, -10)},
			{ID: "new", AuthorID: "amb-1", Content: "https://youtu.be/new", Timestamp: time.Now().Add(-time.Hour)},
		},
	}}

	svc, lsvc := newScanService(t, history, nil)
	enroll(t, lsvc, "amb-1")

	report, err := svc.Scan(context.Background(), &ScanRequest{LookbackDays: 2})
	require.NoError(t, err)
	require.Equal(t, 1, report.Messages)
	require.Equal(t, 1, report.Recovered)

	p, _, err := lsvc.ParticipantByID(context.Background(), "amb-1")
	require.NoError(t, err)
	require.Equal(t, int64(15), p.LifetimePoints)
}

func TestScanUnreadableChannelRecorded(t *testing.T) {
	history := &historyMock{err: errors.New("gateway timeout")}

	svc, _ := newScanService(t, history, nil)

	report, err := svc.Scan(context.Background(), &ScanRequest{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Zero(t, report.Messages)
}

func TestScanWithoutHistorySource(t *testing.T) {
	conns := testutil.NewTestConns(t, ledger.Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	lsvc := ledger.NewService(ledger.ServiceParams{Conns: conns, Node: node})
	ssvc := submission.NewService(submission.ServiceParams{
		Ledger: lsvc, Oracle: &oracleMock{}, Sequence: seqMock{},
	})

	svc := NewService(ServiceParams{Submitter: ssvc, Config: scanConfig()})

	_, err = svc.Scan(context.Background(), &ScanRequest{})
	require.True(t, errutil.HasStatus(err, errutil.StatusServiceUnavailable))
}

func TestScanRequiresChannels(t *testing.T) {
	svc, _ := newScanService(t, &historyMock{}, nil)
	svc.defaultChannels = nil

	_, err := svc.Scan(context.Background(), &ScanRequest{})
	require.True(t, errutil.HasStatus(err, errutil.StatusBadRequest))
}
