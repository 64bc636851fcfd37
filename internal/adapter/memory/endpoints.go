// Package memory provides an in-process webhook endpoint store.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/domain/webhook"
)

// EndpointStore keeps endpoints in a map guarded by a mutex. It returns
// copies so callers never share state with the store.
type EndpointStore struct {
	mu        sync.RWMutex
	endpoints map[string]*webhook.Endpoint
	order     []string // creation order
}

// NewEndpointStore creates an empty store.
func NewEndpointStore() *EndpointStore {
	return &EndpointStore{endpoints: make(map[string]*webhook.Endpoint)}
}

func (s *EndpointStore) CreateEndpoint(_ context.Context, ep *webhook.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[ep.ID]; ok {
		return fmt.Errorf("%w: endpoint %s already exists", domain.ErrValidation, ep.ID)
	}
	s.endpoints[ep.ID] = clone(ep)
	s.order = append(s.order, ep.ID)
	return nil
}

func (s *EndpointStore) GetEndpoint(_ context.Context, id string) (*webhook.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, notFound(id)
	}
	return clone(ep), nil
}

func (s *EndpointStore) ListEndpoints(_ context.Context) ([]webhook.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]webhook.Endpoint, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *clone(s.endpoints[id]))
	}
	return out, nil
}

func (s *EndpointStore) ListActiveEndpoints(_ context.Context, t event.Type) ([]webhook.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []webhook.Endpoint
	for _, id := range s.order {
		ep := s.endpoints[id]
		if ep.Active && ep.Subscribes(t) {
			out = append(out, *clone(ep))
		}
	}
	return out, nil
}

func (s *EndpointStore) UpdateEndpoint(_ context.Context, id string, req webhook.UpdateRequest, now time.Time) (*webhook.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, notFound(id)
	}
	req.Apply(ep, now)
	return clone(ep), nil
}

func (s *EndpointStore) DeleteEndpoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[id]; !ok {
		return notFound(id)
	}
	delete(s.endpoints, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	return nil
}

func (s *EndpointStore) RecordSuccess(_ context.Context, id string, at time.Time) (*webhook.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, notFound(id)
	}
	ep.FailureCount = 0
	ep.LastSuccessAt = at
	ep.UpdatedAt = at
	return clone(ep), nil
}

func (s *EndpointStore) RecordExhausted(_ context.Context, id string, threshold int, at time.Time) (*webhook.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, notFound(id)
	}
	ep.FailureCount++
	if ep.FailureCount > threshold {
		ep.Active = false
	}
	ep.UpdatedAt = at
	return clone(ep), nil
}

func clone(ep *webhook.Endpoint) *webhook.Endpoint {
	c := *ep
	c.EventTypes = slices.Clone(ep.EventTypes)
	return &c
}

func notFound(id string) error {
	return fmt.Errorf("endpoint %s: %w", id, domain.ErrNotFound)
}
