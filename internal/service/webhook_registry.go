package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/domain/webhook"
	"github.com/Strob0t/Fanout/internal/port/database"
)

const secretBytes = 32

// WebhookRegistry manages subscriber endpoint records. Only the delivery
// engine calls the accounting methods.
type WebhookRegistry struct {
	store database.EndpointStore
	clock clockwork.Clock

	hookMu     sync.RWMutex
	onDisabled []func(webhook.Endpoint)
}

// NewWebhookRegistry creates a registry over store. A nil clock uses the
// real clock.
func NewWebhookRegistry(store database.EndpointStore, clock clockwork.Clock) *WebhookRegistry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WebhookRegistry{store: store, clock: clock}
}

// OnDisabled adds a hook run once each time an endpoint crosses the failure
// threshold and is deactivated.
func (r *WebhookRegistry) OnDisabled(fn func(webhook.Endpoint)) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.onDisabled = append(r.onDisabled, fn)
}

// Register validates req and stores a new active endpoint. When req carries
// no secret one is generated.
func (r *WebhookRegistry) Register(ctx context.Context, req webhook.CreateRequest) (*webhook.Endpoint, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	secret := req.Secret
	if secret == "" {
		var err error
		if secret, err = generateSecret(); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	}

	now := r.clock.Now().UTC()
	ep := &webhook.Endpoint{
		ID:          uuid.NewString(),
		URL:         req.URL,
		Secret:      secret,
		EventTypes:  req.EventTypes,
		Description: req.Description,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, fmt.Errorf("create endpoint: %w", err)
	}

	slog.Info("webhook endpoint registered", "endpoint_id", ep.ID, "url", ep.URL, "event_types", ep.EventTypes)
	return ep, nil
}

// Unregister deletes an endpoint. Pending retries for it end at their next
// attempt.
func (r *WebhookRegistry) Unregister(ctx context.Context, id string) error {
	if err := r.store.DeleteEndpoint(ctx, id); err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	slog.Info("webhook endpoint unregistered", "endpoint_id", id)
	return nil
}

// Get returns one endpoint, including its secret.
func (r *WebhookRegistry) Get(ctx context.Context, id string) (*webhook.Endpoint, error) {
	ep, err := r.store.GetEndpoint(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get endpoint: %w", err)
	}
	return ep, nil
}

// List returns all endpoints.
func (r *WebhookRegistry) List(ctx context.Context) ([]webhook.Endpoint, error) {
	eps, err := r.store.ListEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	return eps, nil
}

// ListForEvent returns the active endpoints subscribed to t.
func (r *WebhookRegistry) ListForEvent(ctx context.Context, t event.Type) ([]webhook.Endpoint, error) {
	eps, err := r.store.ListActiveEndpoints(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("list endpoints for %s: %w", t, err)
	}
	return eps, nil
}

// Update changes url, event types or the active flag of an endpoint.
func (r *WebhookRegistry) Update(ctx context.Context, id string, req webhook.UpdateRequest) (*webhook.Endpoint, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ep, err := r.store.UpdateEndpoint(ctx, id, req, r.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update endpoint: %w", err)
	}
	slog.Info("webhook endpoint updated", "endpoint_id", id, "active", ep.Active, "state", ep.State())
	return ep, nil
}

// RecordSuccess clears the failure count after a delivered event.
func (r *WebhookRegistry) RecordSuccess(ctx context.Context, id string) (*webhook.Endpoint, error) {
	ep, err := r.store.RecordSuccess(ctx, id, r.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("record success: %w", err)
	}
	return ep, nil
}

// RecordExhausted adds one failure for a delivery chain that ran out of
// attempts and deactivates the endpoint once the count exceeds the threshold.
func (r *WebhookRegistry) RecordExhausted(ctx context.Context, id string) (*webhook.Endpoint, error) {
	ep, err := r.store.RecordExhausted(ctx, id, webhook.DisableThreshold, r.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("record exhausted: %w", err)
	}
	if !ep.Active && ep.FailureCount == webhook.DisableThreshold+1 {
		slog.Warn("webhook endpoint disabled", "endpoint_id", id, "url", ep.URL, "failure_count", ep.FailureCount)
		r.hookMu.RLock()
		hooks := r.onDisabled
		r.hookMu.RUnlock()
		for _, fn := range hooks {
			fn(ep.Redacted())
		}
	}
	return ep, nil
}

func generateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return webhook.SecretPrefix + hex.EncodeToString(b), nil
}
