// Package webhook defines domain types for subscriber endpoints and their
// delivery lifecycle.
package webhook

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/event"
)

const (
	// MaxAttempts bounds a single delivery chain.
	MaxAttempts = 3
	// DisableThreshold is the failure count an endpoint may reach before it is
	// deactivated; the next exhausted chain disables it.
	DisableThreshold = 5
	// SecretPrefix marks generated signing secrets.
	SecretPrefix = "whsec_"
)

// State is the health of an endpoint derived from its accounting fields.
type State string

const (
	StateActive   State = "active"
	StateDegraded State = "degraded"
	StateDisabled State = "disabled"
)

// Endpoint is a registered external URL subscribed to event types.
type Endpoint struct {
	ID            string       `json:"id"`
	URL           string       `json:"url"`
	Secret        string       `json:"secret,omitempty"` //nolint:gosec // G117: field name, not a credential
	EventTypes    []event.Type `json:"event_types"`
	Description   string       `json:"description,omitempty"`
	Active        bool         `json:"active"`
	FailureCount  int          `json:"failure_count"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	LastSuccessAt time.Time    `json:"last_success_at,omitzero"`
}

// State derives ACTIVE, DEGRADED or DISABLED from the endpoint fields.
func (e *Endpoint) State() State {
	switch {
	case !e.Active:
		return StateDisabled
	case e.FailureCount > 0:
		return StateDegraded
	default:
		return StateActive
	}
}

// Subscribes reports whether the endpoint wants events of type t.
func (e *Endpoint) Subscribes(t event.Type) bool {
	return slices.Contains(e.EventTypes, t)
}

// Redacted returns a copy safe to list, with the secret removed.
func (e Endpoint) Redacted() Endpoint {
	e.Secret = ""
	e.EventTypes = slices.Clone(e.EventTypes)
	return e
}

// CreateRequest holds the fields needed to register an endpoint.
type CreateRequest struct {
	URL         string       `json:"url"`
	EventTypes  []event.Type `json:"event_types"`
	Secret      string       `json:"secret,omitempty"` //nolint:gosec // G117: field name, not a credential
	Description string       `json:"description,omitempty"`
}

// Validate checks the request and normalizes its event types.
func (r *CreateRequest) Validate() error {
	if err := validateURL(r.URL); err != nil {
		return err
	}
	types, err := normalizeTypes(r.EventTypes)
	if err != nil {
		return err
	}
	r.EventTypes = types
	return nil
}

// UpdateRequest changes the mutable registration fields. Nil fields are left
// untouched.
type UpdateRequest struct {
	URL        *string      `json:"url,omitempty"`
	EventTypes []event.Type `json:"event_types,omitempty"`
	Active     *bool        `json:"active,omitempty"`
}

// Validate checks the request and normalizes its event types.
func (r *UpdateRequest) Validate() error {
	if r.URL == nil && r.EventTypes == nil && r.Active == nil {
		return fmt.Errorf("%w: nothing to update", domain.ErrValidation)
	}
	if r.URL != nil {
		if err := validateURL(*r.URL); err != nil {
			return err
		}
	}
	if r.EventTypes != nil {
		types, err := normalizeTypes(r.EventTypes)
		if err != nil {
			return err
		}
		r.EventTypes = types
	}
	return nil
}

// Apply writes the request onto ep. Reactivation clears the failure count.
func (r *UpdateRequest) Apply(ep *Endpoint, now time.Time) {
	if r.URL != nil {
		ep.URL = *r.URL
	}
	if r.EventTypes != nil {
		ep.EventTypes = slices.Clone(r.EventTypes)
	}
	if r.Active != nil {
		if *r.Active && !ep.Active {
			ep.FailureCount = 0
		}
		ep.Active = *r.Active
	}
	ep.UpdatedAt = now
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: url is required", domain.ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: url must be an absolute http(s) url", domain.ErrValidation)
	}
	return nil
}

// normalizeTypes rejects empty or unknown sets and removes duplicates,
// preserving the caller's order.
func normalizeTypes(types []event.Type) ([]event.Type, error) {
	if len(types) == 0 {
		return nil, fmt.Errorf("%w: at least one event type is required", domain.ErrValidation)
	}
	out := make([]event.Type, 0, len(types))
	for _, t := range types {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, t)
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}
