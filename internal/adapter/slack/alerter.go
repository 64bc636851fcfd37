// Package slack sends operator alerts to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Strob0t/Fanout/internal/port/alerter"
)

const channelName = "slack"

func init() {
	alerter.Register(channelName, func(settings map[string]string) (alerter.Alerter, error) {
		return NewAlerter(settings["webhook_url"], nil), nil
	})
}

// Alerter posts Block Kit messages to one incoming webhook.
type Alerter struct {
	webhookURL string
	httpClient *http.Client
}

// NewAlerter creates a Slack alerter. A nil client uses http.DefaultClient.
func NewAlerter(webhookURL string, httpClient *http.Client) *Alerter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Alerter{webhookURL: webhookURL, httpClient: httpClient}
}

func (a *Alerter) Name() string { return channelName }

type message struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks"`
}

type block struct {
	Type string `json:"type"`
	Text *text  `json:"text,omitempty"`
}

type text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send posts the alert. Any status >= 400 is an error.
func (a *Alerter) Send(ctx context.Context, alert alerter.Alert) error {
	if a.webhookURL == "" {
		return alerter.ErrNotConfigured
	}

	header := fmt.Sprintf("%s %s", severityTag(alert.Severity), alert.Title)
	msg := message{
		Text: header,
		Blocks: []block{
			{Type: "header", Text: &text{Type: "plain_text", Text: header}},
			{Type: "section", Text: &text{Type: "mrkdwn", Text: alert.Message}},
		},
	}
	if alert.Source != "" {
		msg.Blocks = append(msg.Blocks, block{
			Type: "context",
			Text: &text{Type: "mrkdwn", Text: "_" + alert.Source + "_"},
		})
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack responded %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

func severityTag(s alerter.Severity) string {
	switch s {
	case alerter.SeverityError:
		return "[ERROR]"
	case alerter.SeverityWarning:
		return "[WARN]"
	default:
		return "[INFO]"
	}
}
