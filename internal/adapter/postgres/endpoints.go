package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/domain/webhook"
)

const endpointColumns = `id, url, secret, event_types, description, active, failure_count,
	created_at, updated_at, last_success_at`

// EndpointStore implements database.EndpointStore on a webhook_endpoints
// table.
type EndpointStore struct {
	pool *pgxpool.Pool
}

// NewEndpointStore creates a store on pool. Migrations must already be
// applied.
func NewEndpointStore(pool *pgxpool.Pool) *EndpointStore {
	return &EndpointStore{pool: pool}
}

func (s *EndpointStore) CreateEndpoint(ctx context.Context, ep *webhook.Endpoint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_endpoints (id, url, secret, event_types, description, active, failure_count, created_at, updated_at, last_success_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ep.ID, ep.URL, ep.Secret, typesToText(ep.EventTypes), ep.Description, ep.Active, ep.FailureCount,
		ep.CreatedAt, ep.UpdatedAt, nullTime(ep.LastSuccessAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: endpoint %s already exists", domain.ErrValidation, ep.ID)
	}
	if err != nil {
		return fmt.Errorf("insert endpoint: %w", err)
	}
	return nil
}

func (s *EndpointStore) GetEndpoint(ctx context.Context, id string) (*webhook.Endpoint, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1`, id)
	ep, err := scanEndpoint(row)
	if err != nil {
		return nil, notFoundWrap(err, "endpoint %s", id)
	}
	return &ep, nil
}

func (s *EndpointStore) ListEndpoints(ctx context.Context) ([]webhook.Endpoint, error) {
	return s.list(ctx, `SELECT `+endpointColumns+` FROM webhook_endpoints ORDER BY seq`)
}

func (s *EndpointStore) ListActiveEndpoints(ctx context.Context, t event.Type) ([]webhook.Endpoint, error) {
	return s.list(ctx,
		`SELECT `+endpointColumns+` FROM webhook_endpoints
		 WHERE active AND event_types @> ARRAY[$1::text]
		 ORDER BY seq`, string(t))
}

func (s *EndpointStore) list(ctx context.Context, query string, args ...any) ([]webhook.Endpoint, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var out []webhook.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// UpdateEndpoint applies req under a row lock so concurrent updates and
// accounting writes serialize.
func (s *EndpointStore) UpdateEndpoint(ctx context.Context, id string, req webhook.UpdateRequest, now time.Time) (*webhook.Endpoint, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	ep, err := scanEndpoint(tx.QueryRow(ctx,
		`SELECT `+endpointColumns+` FROM webhook_endpoints WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundWrap(err, "endpoint %s", id)
	}
	req.Apply(&ep, now)

	if _, err := tx.Exec(ctx,
		`UPDATE webhook_endpoints
		 SET url = $2, event_types = $3, active = $4, failure_count = $5, updated_at = $6
		 WHERE id = $1`,
		id, ep.URL, typesToText(ep.EventTypes), ep.Active, ep.FailureCount, ep.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update endpoint %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &ep, nil
}

func (s *EndpointStore) DeleteEndpoint(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete endpoint %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("endpoint %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *EndpointStore) RecordSuccess(ctx context.Context, id string, at time.Time) (*webhook.Endpoint, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE webhook_endpoints
		 SET failure_count = 0, last_success_at = $2, updated_at = $2
		 WHERE id = $1
		 RETURNING `+endpointColumns, id, at)
	ep, err := scanEndpoint(row)
	if err != nil {
		return nil, notFoundWrap(err, "record success %s", id)
	}
	return &ep, nil
}

// RecordExhausted increments and deactivates in one statement.
func (s *EndpointStore) RecordExhausted(ctx context.Context, id string, threshold int, at time.Time) (*webhook.Endpoint, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE webhook_endpoints
		 SET failure_count = failure_count + 1,
		     active = active AND failure_count + 1 <= $2,
		     updated_at = $3
		 WHERE id = $1
		 RETURNING `+endpointColumns, id, threshold, at)
	ep, err := scanEndpoint(row)
	if err != nil {
		return nil, notFoundWrap(err, "record exhausted %s", id)
	}
	return &ep, nil
}

func scanEndpoint(row scannable) (webhook.Endpoint, error) {
	var (
		ep          webhook.Endpoint
		types       []string
		lastSuccess *time.Time
	)
	if err := row.Scan(&ep.ID, &ep.URL, &ep.Secret, &types, &ep.Description, &ep.Active, &ep.FailureCount,
		&ep.CreatedAt, &ep.UpdatedAt, &lastSuccess); err != nil {
		return webhook.Endpoint{}, err
	}
	ep.EventTypes = textToTypes(types)
	if lastSuccess != nil {
		ep.LastSuccessAt = *lastSuccess
	}
	return ep, nil
}

// nullTime stores a zero time as NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
