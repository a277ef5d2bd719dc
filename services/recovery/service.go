package recovery

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"advocacy-engine/pkg/config"
	"advocacy-engine/pkg/errutil"
	"advocacy-engine/services/submission"
)

const scanConcurrency = 4

// Submitter is the live intake pipeline. Recovery replays history through
// the exact same path, so dedup and scoring behave identically for a
// replayed message and a live one.
type Submitter interface {
	Submit(ctx context.Context, req *submission.SubmitRequest) (*submission.SubmitResult, error)
}

type Service struct {
	submitter Submitter
	history   HistorySource

	defaultLookbackDays int
	defaultChannels     []string
}

type ServiceParams struct {
	fx.In

	Submitter *submission.Service
	History   HistorySource `optional:"true"`
	Config    *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		submitter:           p.Submitter,
		history:             p.History,
		defaultLookbackDays: p.Config.Program.RecoveryLookbackDays,
		defaultChannels:     p.Config.Program.Channels,
	}
}

type ScanRequest struct {
	LookbackDays int      `json:"lookback_days"`
	Channels     []string `json:"channels"`
}

type Report struct {
	Channels   int `json:"channels"`
	Messages   int `json:"messages"`
	Recovered  int `json:"recovered"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Scan replays the lookback window of every known channel through the intake
// pipeline. It holds no locks of its own and keeps no seen-set: idempotence
// across runs and against concurrent live traffic comes entirely from the
// dedup guard, so running it twice, or mid-traffic, never double-credits.
func (s *Service) Scan(ctx context.Context, req *ScanRequest) (*Report, error) {
	if s.history == nil {
		return nil, errutil.ServiceUnavailable("history gateway not configured", nil)
	}

	lookback := req.LookbackDays
	if lookback <= 0 {
		lookback = s.defaultLookbackDays
	}
	channels := req.Channels
	if len(channels) == 0 {
		channels = s.defaultChannels
	}
	if len(channels) == 0 {
		return nil, errutil.BadRequest("no channels to scan", nil)
	}

	after := time.Now().AddDate(0, 0, -lookback)

	report := &Report{Channels: len(channels)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)

	for _, channel := range channels {
		g.Go(func() error {
			messages, err := s.history.Messages(gctx, channel, after)
			if err != nil {
				// One unreadable channel should not sink the scan; the next
				// run covers it as long as the window still does.
				zap.L().Error("channel history fetch failed", zap.String("channel", channel), zap.Error(err))
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return nil
			}

			for _, msg := range messages {
				outcome := s.replay(gctx, channel, msg)
				mu.Lock()
				report.Messages++
				report.Recovered += outcome.recovered
				report.Duplicates += outcome.duplicates
				report.Skipped += outcome.skipped
				report.Failed += outcome.failed
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("recovery scan finished",
		zap.Int("channels", report.Channels),
		zap.Int("messages", report.Messages),
		zap.Int("recovered", report.Recovered),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)

	return report, nil
}

type replayOutcome struct {
	recovered  int
	duplicates int
	skipped    int
	failed     int
}

func (s *Service) replay(ctx context.Context, channel string, msg Message) replayOutcome {
	req := &submission.SubmitRequest{
		ParticipantID: msg.AuthorID,
		Text:          msg.Content,
		Channel:       channel,
		IsReply:       msg.IsReply,
		Images:        s.fetchImages(ctx, msg),
	}

	res, err := s.submitter.Submit(ctx, req)
	if err != nil {
		switch errutil.StatusOf(err) {
		case errutil.StatusUnknownParticipant, errutil.StatusEmptyPayload:
			// Chatter from non-participants and plain-text messages are the
			// bulk of any channel; they are not recoverable submissions.
			return replayOutcome{skipped: 1}
		default:
			zap.L().Warn("replay failed",
				zap.String("channel", channel),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			return replayOutcome{failed: 1}
		}
	}

	var out replayOutcome
	for _, item := range res.Items {
		if item.IsDuplicate {
			out.duplicates++
		} else {
			out.recovered++
		}
	}
	return out
}

func (s *Service) fetchImages(ctx context.Context, msg Message) []submission.ImagePayload {
	var images []submission.ImagePayload

	for _, att := range msg.Attachments {
		if !isImage(att) {
			continue
		}

		raw, err := s.history.Fetch(ctx, att.URL)
		if err != nil || len(raw) == 0 || len(raw) > maxAttachmentBytes {
			zap.L().Warn("attachment fetch skipped",
				zap.String("message_id", msg.ID),
				zap.String("url", att.URL),
				zap.Error(err),
			)
			continue
		}

		images = append(images, submission.ImagePayload{
			Filename: att.Filename,
			MimeType: att.ContentType,
			Data:     base64.StdEncoding.EncodeToString(raw),
		})
	}

	return images
}

func isImage(att Attachment) bool {
	if strings.HasPrefix(att.ContentType, "image/") {
		return true
	}
	switch strings.ToLower(pathExt(att.Filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

func pathExt(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}
