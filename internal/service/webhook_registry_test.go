package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/Strob0t/Fanout/internal/adapter/memory"
	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/domain/webhook"
)

func newTestRegistry() *WebhookRegistry {
	return NewWebhookRegistry(memory.NewEndpointStore(), clockwork.NewFakeClock())
}

func mustRegister(t *testing.T, r *WebhookRegistry, types ...event.Type) *webhook.Endpoint {
	t.Helper()
	ep, err := r.Register(context.Background(), webhook.CreateRequest{URL: "https://example.com/hook", EventTypes: types})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return ep
}

func TestRegisterGeneratesSecret(t *testing.T) {
	r := newTestRegistry()
	ep := mustRegister(t, r, event.TypeOrderUpdated)

	if !strings.HasPrefix(ep.Secret, webhook.SecretPrefix) {
		t.Fatalf("expected %s prefix, got %q", webhook.SecretPrefix, ep.Secret)
	}
	if len(ep.Secret) != len(webhook.SecretPrefix)+64 {
		t.Fatalf("expected 32 random bytes hex encoded, got %q", ep.Secret)
	}
	if !ep.Active || ep.FailureCount != 0 || ep.ID == "" {
		t.Fatalf("unexpected new endpoint: %+v", ep)
	}

	other := mustRegister(t, r, event.TypeOrderUpdated)
	if other.Secret == ep.Secret {
		t.Fatal("expected distinct generated secrets")
	}
}

func TestRegisterKeepsProvidedSecret(t *testing.T) {
	r := newTestRegistry()
	ep, err := r.Register(context.Background(), webhook.CreateRequest{
		URL:        "https://example.com/hook",
		EventTypes: []event.Type{event.TypeNotification},
		Secret:     "mine",
	})
	if err != nil {
		t.Fatal(err)
	}
	if ep.Secret != "mine" {
		t.Fatalf("expected provided secret, got %q", ep.Secret)
	}
}

func TestRegisterRejectsEmptyTypeSet(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Register(context.Background(), webhook.CreateRequest{URL: "https://example.com/hook"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	eps, _ := r.List(context.Background())
	if len(eps) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(eps))
	}
}

func TestListForEvent(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	a := mustRegister(t, r, event.TypeOrderUpdated)
	mustRegister(t, r, event.TypeNotification)
	c := mustRegister(t, r, event.TypeOrderUpdated)

	inactive := false
	if _, err := r.Update(ctx, c.ID, webhook.UpdateRequest{Active: &inactive}); err != nil {
		t.Fatal(err)
	}

	eps, err := r.ListForEvent(ctx, event.TypeOrderUpdated)
	if err != nil {
		t.Fatal(err)
	}
	if len(eps) != 1 || eps[0].ID != a.ID {
		t.Fatalf("expected only %s, got %+v", a.ID, eps)
	}
}

func TestUnregisterUnknown(t *testing.T) {
	r := newTestRegistry()
	if err := r.Unregister(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExhaustedChainsDisableAfterSixth(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	ep := mustRegister(t, r, event.TypeOrderUpdated)

	for i := 1; i <= webhook.DisableThreshold; i++ {
		got, err := r.RecordExhausted(ctx, ep.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.FailureCount != i || !got.Active {
			t.Fatalf("chain %d: expected active with count %d, got %+v", i, i, got)
		}
		if got.State() != webhook.StateDegraded {
			t.Fatalf("chain %d: expected degraded, got %s", i, got.State())
		}
	}

	got, err := r.RecordExhausted(ctx, ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Active || got.State() != webhook.StateDisabled {
		t.Fatalf("expected disabled endpoint, got %+v", got)
	}

	eps, _ := r.ListForEvent(ctx, event.TypeOrderUpdated)
	if len(eps) != 0 {
		t.Fatal("disabled endpoint must not be listed for events")
	}
}

func TestOnDisabledFiresOncePerDeactivation(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	ep := mustRegister(t, r, event.TypeOrderUpdated)

	var disabled []webhook.Endpoint
	r.OnDisabled(func(e webhook.Endpoint) { disabled = append(disabled, e) })

	for range webhook.DisableThreshold + 3 {
		_, _ = r.RecordExhausted(ctx, ep.ID)
	}
	if len(disabled) != 1 {
		t.Fatalf("expected one disable notification, got %d", len(disabled))
	}
	if disabled[0].ID != ep.ID || disabled[0].Secret != "" {
		t.Fatalf("expected redacted endpoint %s, got %+v", ep.ID, disabled[0])
	}

	active := true
	if _, err := r.Update(ctx, ep.ID, webhook.UpdateRequest{Active: &active}); err != nil {
		t.Fatal(err)
	}
	for range webhook.DisableThreshold + 1 {
		_, _ = r.RecordExhausted(ctx, ep.ID)
	}
	if len(disabled) != 2 {
		t.Fatalf("expected a second notification after reactivation, got %d", len(disabled))
	}
}

func TestReactivationRestoresActiveState(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	ep := mustRegister(t, r, event.TypeOrderUpdated)
	for range webhook.DisableThreshold + 1 {
		_, _ = r.RecordExhausted(ctx, ep.ID)
	}

	active := true
	got, err := r.Update(ctx, ep.ID, webhook.UpdateRequest{Active: &active})
	if err != nil {
		t.Fatal(err)
	}
	if got.State() != webhook.StateActive || got.FailureCount != 0 {
		t.Fatalf("expected reactivated endpoint, got %+v", got)
	}
}

func TestRecordSuccessResetsDegraded(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	ep := mustRegister(t, r, event.TypeOrderUpdated)
	_, _ = r.RecordExhausted(ctx, ep.ID)

	got, err := r.RecordSuccess(ctx, ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FailureCount != 0 || got.LastSuccessAt.IsZero() {
		t.Fatalf("expected reset endpoint, got %+v", got)
	}
}

func TestUpdateValidation(t *testing.T) {
	r := newTestRegistry()
	ep := mustRegister(t, r, event.TypeOrderUpdated)

	_, err := r.Update(context.Background(), ep.ID, webhook.UpdateRequest{EventTypes: []event.Type{"order.lost"}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
