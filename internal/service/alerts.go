package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/Fanout/internal/domain/webhook"
	"github.com/Strob0t/Fanout/internal/port/alerter"
)

// EndpointAlerts tells operators when an endpoint is disabled. Sends run in
// the background so delivery workers never wait on a chat service.
type EndpointAlerts struct {
	channels []alerter.Alerter
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewEndpointAlerts creates an EndpointAlerts over channels. A non-positive
// timeout defaults to five seconds.
func NewEndpointAlerts(timeout time.Duration, channels ...alerter.Alerter) *EndpointAlerts {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EndpointAlerts{channels: channels, timeout: timeout}
}

// Watch hooks the alerts to registry.
func (a *EndpointAlerts) Watch(registry *WebhookRegistry) {
	if len(a.channels) == 0 {
		return
	}
	registry.OnDisabled(a.EndpointDisabled)
}

// EndpointDisabled sends one alert per channel for ep.
func (a *EndpointAlerts) EndpointDisabled(ep webhook.Endpoint) {
	alert := alerter.Alert{
		Title:    "Webhook endpoint disabled",
		Message:  fmt.Sprintf("%s (%s) was disabled after %d exhausted deliveries.", ep.URL, ep.ID, ep.FailureCount),
		Severity: alerter.SeverityError,
		Source:   "webhook.disabled",
	}
	for _, ch := range a.channels {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
			defer cancel()
			if err := ch.Send(ctx, alert); err != nil {
				slog.Warn("alert send failed", "channel", ch.Name(), "endpoint_id", ep.ID, "error", err)
			}
		}()
	}
}

// Wait blocks until in-flight alerts finish.
func (a *EndpointAlerts) Wait() {
	a.wg.Wait()
}
