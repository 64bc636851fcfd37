// Package discord sends operator alerts to a Discord webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Strob0t/Fanout/internal/port/alerter"
)

const channelName = "discord"

func init() {
	alerter.Register(channelName, func(settings map[string]string) (alerter.Alerter, error) {
		return NewAlerter(settings["webhook_url"], nil), nil
	})
}

// Alerter posts embeds to one Discord webhook.
type Alerter struct {
	webhookURL string
	httpClient *http.Client
}

// NewAlerter creates a Discord alerter. A nil client uses http.DefaultClient.
func NewAlerter(webhookURL string, httpClient *http.Client) *Alerter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Alerter{webhookURL: webhookURL, httpClient: httpClient}
}

func (a *Alerter) Name() string { return channelName }

type payload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       int     `json:"color"`
	Footer      *footer `json:"footer,omitempty"`
}

type footer struct {
	Text string `json:"text"`
}

// Send posts the alert as a single embed. Discord answers 204 on success.
func (a *Alerter) Send(ctx context.Context, alert alerter.Alert) error {
	if a.webhookURL == "" {
		return alerter.ErrNotConfigured
	}

	e := embed{Title: alert.Title, Description: alert.Message, Color: severityColor(alert.Severity)}
	if alert.Source != "" {
		e.Footer = &footer{Text: alert.Source}
	}

	body, err := json.Marshal(payload{Embeds: []embed{e}})
	if err != nil {
		return fmt.Errorf("discord marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req) //nolint:gosec // webhook URL from trusted config
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("discord responded %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

func severityColor(s alerter.Severity) int {
	switch s {
	case alerter.SeverityError:
		return 0xE74C3C
	case alerter.SeverityWarning:
		return 0xF39C12
	default:
		return 0x3498DB
	}
}
