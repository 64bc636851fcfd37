// Package database defines the persistence port for webhook endpoints.
package database

import (
	"context"
	"time"

	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/domain/webhook"
)

// EndpointStore persists webhook endpoint records. Lookups of unknown IDs
// return an error wrapping domain.ErrNotFound.
type EndpointStore interface {
	CreateEndpoint(ctx context.Context, ep *webhook.Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*webhook.Endpoint, error)
	ListEndpoints(ctx context.Context) ([]webhook.Endpoint, error)
	// ListActiveEndpoints returns active endpoints subscribed to t.
	ListActiveEndpoints(ctx context.Context, t event.Type) ([]webhook.Endpoint, error)
	UpdateEndpoint(ctx context.Context, id string, req webhook.UpdateRequest, now time.Time) (*webhook.Endpoint, error)
	DeleteEndpoint(ctx context.Context, id string) error

	// RecordSuccess clears the failure count and stamps the last success.
	RecordSuccess(ctx context.Context, id string, at time.Time) (*webhook.Endpoint, error)
	// RecordExhausted adds one failure and deactivates the endpoint once the
	// count exceeds threshold. Both writes happen atomically.
	RecordExhausted(ctx context.Context, id string, threshold int, at time.Time) (*webhook.Endpoint, error)
}
