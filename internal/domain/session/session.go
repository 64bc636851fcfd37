// Package session defines live session domain types.
package session

import (
	"context"
	"time"
)

// Role classifies an authenticated identity.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Identity is the authenticated principal behind a session.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the identity has the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Transport is the minimal capability a live connection exposes.
// Send must not block on network I/O.
type Transport interface {
	Send(ctx context.Context, data []byte) error
	Close() error
}

// Session is one live connection owned by a single identity.
type Session struct {
	ID        string
	Identity  Identity
	Transport Transport
	CreatedAt time.Time
}

// Send pushes an encoded message to the session transport.
func (s *Session) Send(ctx context.Context, data []byte) error {
	return s.Transport.Send(ctx, data)
}

// Close closes the underlying transport.
func (s *Session) Close() error {
	return s.Transport.Close()
}
