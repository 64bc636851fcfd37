package jwtauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/session"
)

func TestAuthenticateRoundTrip(t *testing.T) {
	a := New("secret", "fanout")
	tests := []struct {
		name     string
		identity session.Identity
		want     session.Role
	}{
		{"customer", session.Identity{ID: "u1", Role: session.RoleCustomer}, session.RoleCustomer},
		{"admin", session.Identity{ID: "a1", Role: session.RoleAdmin}, session.RoleAdmin},
		{"default role", session.Identity{ID: "u2"}, session.RoleCustomer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := a.Issue(tt.identity, time.Minute)
			if err != nil {
				t.Fatal(err)
			}
			got, err := a.Authenticate(context.Background(), tok)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID != tt.identity.ID || got.Role != tt.want {
				t.Fatalf("expected %s/%s, got %+v", tt.identity.ID, tt.want, got)
			}
		})
	}
}

func TestAuthenticateRejects(t *testing.T) {
	a := New("secret", "fanout")
	now := time.Now()

	expired := New("secret", "fanout")
	expired.now = func() time.Time { return now.Add(-time.Hour) }
	expiredTok, _ := expired.Issue(session.Identity{ID: "u1"}, time.Minute)

	otherKey, _ := New("other", "fanout").Issue(session.Identity{ID: "u1"}, time.Minute)
	otherIssuer, _ := New("secret", "elsewhere").Issue(session.Identity{ID: "u1"}, time.Minute)
	badRole, _ := a.Issue(session.Identity{ID: "u1", Role: "root"}, time.Minute)

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "fanout"},
	}).SignedString([]byte("secret"))
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "fanout", ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
	}).SignedString([]byte("secret"))
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "fanout", ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"expired", expiredTok},
		{"wrong key", otherKey},
		{"wrong issuer", otherIssuer},
		{"unknown role", badRole},
		{"no expiry", noExp},
		{"no subject", noSubject},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), tt.token)
			if !errors.Is(err, domain.ErrUnauthenticated) {
				t.Fatalf("expected ErrUnauthenticated, got %v", err)
			}
		})
	}
}

func TestAuthenticateAnyIssuer(t *testing.T) {
	a := New("secret", "")
	tok, _ := New("secret", "somewhere").Issue(session.Identity{ID: "u1"}, time.Minute)
	if _, err := a.Authenticate(context.Background(), tok); err != nil {
		t.Fatalf("expected token from any issuer to pass, got %v", err)
	}
}

func TestIssueRequiresIdentity(t *testing.T) {
	if _, err := New("secret", "").Issue(session.Identity{}, time.Minute); err == nil {
		t.Fatal("expected error for empty identity")
	}
}
