// Package jwtauth implements the authenticator port with HS256 JSON Web
// Tokens.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/session"
)

// Claims are the token claims the authenticator reads. The identity id is the
// registered subject.
type Claims struct {
	jwt.RegisteredClaims
	Role session.Role `json:"role"`
}

// Authenticator validates HS256 tokens signed with a shared secret.
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// New creates an Authenticator. An empty issuer accepts tokens from any
// issuer.
func New(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Authenticate parses and validates token. Every failure wraps
// domain.ErrUnauthenticated.
func (a *Authenticator) Authenticate(_ context.Context, token string) (session.Identity, error) {
	if token == "" {
		return session.Identity{}, fmt.Errorf("empty token: %w", domain.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return session.Identity{}, fmt.Errorf("parse token: %w: %w", domain.ErrUnauthenticated, err)
	}

	if claims.Subject == "" {
		return session.Identity{}, fmt.Errorf("token has no subject: %w", domain.ErrUnauthenticated)
	}
	role := claims.Role
	switch role {
	case "":
		role = session.RoleCustomer
	case session.RoleCustomer, session.RoleAdmin:
	default:
		return session.Identity{}, fmt.Errorf("unknown role %q: %w", role, domain.ErrUnauthenticated)
	}
	return session.Identity{ID: claims.Subject, Role: role}, nil
}

// Issue signs a token for identity valid for ttl. Used by tooling and tests.
func (a *Authenticator) Issue(identity session.Identity, ttl time.Duration) (string, error) {
	if identity.ID == "" {
		return "", errors.New("identity id is required")
	}
	now := a.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: identity.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
