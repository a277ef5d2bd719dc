package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"advocacy-engine/pkg/config"
	"advocacy-engine/pkg/errutil"
	"advocacy-engine/pkg/httpclient"
)

// Attachment is a file hanging off a historical message. Only image
// attachments are replayed; everything else is ignored.
type Attachment struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// Message is one historical chat message as served by the history gateway.
type Message struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	AuthorID    string       `json:"author_id"`
	Content     string       `json:"content"`
	IsReply     bool         `json:"is_reply"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []Attachment `json:"attachments"`
}

// HistorySource abstracts the chat platform's history API. The scanner only
// needs paging through a channel and pulling attachment bytes.
type HistorySource interface {
	Messages(ctx context.Context, channel string, after time.Time) ([]Message, error)
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Attachments larger than this are not replayed; the oracle would reject
// them anyway and history fetches should stay cheap.
const maxAttachmentBytes = 10 << 20

type httpSource struct {
	client  *http.Client
	baseURL string
	token   string
}

type SourceParams struct {
	fx.In

	Config *config.Config
}

// NewHistorySource builds the HTTP history client. Without a configured base
// URL recovery scans fail fast instead of silently scanning nothing.
func NewHistorySource(p SourceParams) HistorySource {
	if p.Config.History.BaseURL == "" {
		zap.L().Warn("history gateway not configured, recovery scans disabled")
		return nil
	}

	return &httpSource{
		client: httpclient.New(httpclient.Options{
			Timeout: p.Config.History.Timeout,
			Proxy:   p.Config.History.Proxy,
		}),
		baseURL: p.Config.History.BaseURL,
		token:   p.Config.History.Token,
	}
}

func (s *httpSource) Messages(ctx context.Context, channel string, after time.Time) ([]Message, error) {
	endpoint := fmt.Sprintf("%s/channels/%s/messages?after=%s",
		s.baseURL, url.PathEscape(channel), url.QueryEscape(after.UTC().Format(time.RFC3339)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errutil.ServiceUnavailable("history gateway unreachable", err,
			errutil.WithDetails(errutil.Detail{Field: "channel", Message: channel}))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errutil.ServiceUnavailable(
			fmt.Sprintf("history gateway returned %s", resp.Status), nil,
			errutil.WithDetails(errutil.Detail{Field: "channel", Message: channel}))
	}

	var out []Message
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errutil.Internal("malformed history response", err)
	}

	return out, nil
}

func (s *httpSource) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment fetch returned %s", resp.Status)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
}
