package rollover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"advocacy-engine/pkg/config"
	"advocacy-engine/pkg/httpclient"
)

// Notifier delivers the mid-cycle reminder summary to operators.
type Notifier interface {
	NotifyBehind(ctx context.Context, report *ReminderReport) error
}

type webhookNotifier struct {
	client *http.Client
	url    string
}

// NewWebhookNotifier posts reminder summaries to the configured webhook.
// Without a URL the reminder task still runs and just logs its findings.
func NewWebhookNotifier(cfg *config.Config) Notifier {
	if cfg.Program.ReminderWebhookURL == "" {
		zap.L().Info("no reminder webhook configured, reminders log only")
		return nil
	}

	return &webhookNotifier{
		client: httpclient.New(httpclient.Options{Timeout: cfg.History.Timeout}),
		url:    cfg.Program.ReminderWebhookURL,
	}
}

func (n *webhookNotifier) NotifyBehind(ctx context.Context, report *ReminderReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("reminder webhook returned %s", resp.Status)
	}

	return nil
}
