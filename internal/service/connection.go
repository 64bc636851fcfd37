package service

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/session"
)

// ConnectionRegistry owns every live session and indexes them by identity.
// One identity may hold several concurrent sessions.
type ConnectionRegistry struct {
	mu         sync.RWMutex
	sessions   map[string]*session.Session
	byIdentity map[string]map[string]struct{}
	clock      clockwork.Clock

	hookMu       sync.RWMutex
	onUnregister []func(*session.Session)
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry(clock clockwork.Clock) *ConnectionRegistry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ConnectionRegistry{
		sessions:   make(map[string]*session.Session),
		byIdentity: make(map[string]map[string]struct{}),
		clock:      clock,
	}
}

// OnUnregister adds a hook run after a session has been removed.
func (r *ConnectionRegistry) OnUnregister(fn func(*session.Session)) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.onUnregister = append(r.onUnregister, fn)
}

// Register creates a session for an authenticated identity.
func (r *ConnectionRegistry) Register(identity session.Identity, transport session.Transport) (*session.Session, error) {
	if identity.ID == "" {
		return nil, fmt.Errorf("%w: identity id is required", domain.ErrValidation)
	}
	if transport == nil {
		return nil, fmt.Errorf("%w: transport is required", domain.ErrValidation)
	}

	s := &session.Session{
		ID:        uuid.NewString(),
		Identity:  identity,
		Transport: transport,
		CreatedAt: r.clock.Now().UTC(),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	ids, ok := r.byIdentity[identity.ID]
	if !ok {
		ids = make(map[string]struct{})
		r.byIdentity[identity.ID] = ids
	}
	ids[s.ID] = struct{}{}
	r.mu.Unlock()

	slog.Info("session registered", "session_id", s.ID, "identity", identity.ID, "role", identity.Role)
	return s, nil
}

// Unregister removes a session. Removing the last session of an identity
// removes the identity entry. Unknown IDs are ignored.
func (r *ConnectionRegistry) Unregister(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)
	if ids := r.byIdentity[s.Identity.ID]; ids != nil {
		delete(ids, sessionID)
		if len(ids) == 0 {
			delete(r.byIdentity, s.Identity.ID)
		}
	}
	r.mu.Unlock()

	r.hookMu.RLock()
	hooks := slices.Clone(r.onUnregister)
	r.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(s)
	}

	slog.Info("session unregistered", "session_id", sessionID, "identity", s.Identity.ID)
}

// Get returns a live session by ID.
func (r *ConnectionRegistry) Get(sessionID string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// IsOnline reports whether the identity holds at least one session.
func (r *ConnectionRegistry) IsOnline(identityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identityID]) > 0
}

// SessionsFor returns the sorted IDs of the identity's live sessions.
func (r *ConnectionRegistry) SessionsFor(identityID string) []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byIdentity[identityID]))
	for id := range r.byIdentity[identityID] {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Count returns the number of live sessions.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IdentityCount returns the number of identities with at least one session.
func (r *ConnectionRegistry) IdentityCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
