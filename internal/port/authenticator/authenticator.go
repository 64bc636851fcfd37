// Package authenticator defines the port that validates bearer credentials.
package authenticator

import (
	"context"

	"github.com/Strob0t/Fanout/internal/domain/session"
)

// Authenticator validates a bearer credential and returns its identity.
// Implementations return an error wrapping domain.ErrUnauthenticated for a
// missing, malformed or expired credential.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (session.Identity, error)
}
