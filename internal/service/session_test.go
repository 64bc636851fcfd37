package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/domain/session"
)

type mockSink struct {
	mu    sync.Mutex
	reads []string
	err   error
}

func (m *mockSink) MarkRead(_ context.Context, identityID, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reads = append(m.reads, identityID+"/"+notificationID)
	return nil
}

func newTestSessionService(owned map[string]string, sink *mockSink) (*SessionService, *RoomRouter) {
	reg := NewConnectionRegistry(nil)
	rooms := NewRoomRouter(reg, ownsOracle(owned), nil)
	return NewSessionService(reg, rooms, sink, clockwork.NewFakeClock(), nil), rooms
}

func connectSession(t *testing.T, svc *SessionService, id session.Identity) (*session.Session, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	s, err := svc.Connect(context.Background(), id, tr)
	if err != nil {
		t.Fatal(err)
	}
	return s, tr
}

func TestConnectAttachesRooms(t *testing.T) {
	svc, rooms := newTestSessionService(nil, &mockSink{})
	s, _ := connectSession(t, svc, customerU)

	if got := rooms.RoomsOf(s.ID); !slices.Equal(got, []string{"all", "user:u1"}) {
		t.Fatalf("unexpected rooms %v", got)
	}
}

func TestDisconnectRevokesRooms(t *testing.T) {
	svc, rooms := newTestSessionService(nil, &mockSink{})
	s, _ := connectSession(t, svc, customerU)

	svc.Disconnect(context.Background(), s.ID)
	svc.Disconnect(context.Background(), s.ID)

	if len(rooms.RoomsOf(s.ID)) != 0 {
		t.Fatal("expected memberships to be revoked")
	}
	if err := svc.HandleMessage(context.Background(), s.ID, []byte(`{"type":"ping"}`)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after disconnect, got %v", err)
	}
}

func TestHandleSubscribeAndUnsubscribe(t *testing.T) {
	svc, rooms := newTestSessionService(map[string]string{"o1": "u1"}, &mockSink{})
	s, tr := connectSession(t, svc, customerU)
	ctx := context.Background()

	if err := svc.HandleMessage(ctx, s.ID, []byte(`{"type":"order:subscribe","payload":{"orderId":"o1"}}`)); err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(rooms.RoomsOf(s.ID), "order:o1") {
		t.Fatal("expected order room membership")
	}

	if err := svc.HandleMessage(ctx, s.ID, []byte(`{"type":"order:unsubscribe","payload":{"orderId":"o1"}}`)); err != nil {
		t.Fatal(err)
	}
	if slices.Contains(rooms.RoomsOf(s.ID), "order:o1") {
		t.Fatal("expected order room to be left")
	}
	ack := decodeFrame[event.SubscriptionAck](t, tr.last())
	if ack.Room != "order:o1" || ack.Subscribed {
		t.Fatalf("unexpected unsubscribe ack %+v", ack)
	}
	if got := tr.messages(t); !slices.Equal(got, []string{event.MsgSubscriptionAck, event.MsgSubscriptionAck}) {
		t.Fatalf("unexpected replies %v", got)
	}
}

func TestHandleSubscribeUnownedOrder(t *testing.T) {
	svc, rooms := newTestSessionService(map[string]string{"o1": "u2"}, &mockSink{})
	s, tr := connectSession(t, svc, customerU)

	if err := svc.HandleMessage(context.Background(), s.ID, []byte(`{"type":"order:subscribe","payload":{"orderId":"o1"}}`)); err != nil {
		t.Fatalf("denial must not surface as an error, got %v", err)
	}
	if slices.Contains(rooms.RoomsOf(s.ID), "order:o1") {
		t.Fatal("unowned order must not be joined")
	}
	if got := tr.messages(t); !slices.Equal(got, []string{event.MsgSubscriptionError}) {
		t.Fatalf("expected one subscription error, got %v", got)
	}
}

func TestHandleMarkRead(t *testing.T) {
	sink := &mockSink{}
	svc, _ := newTestSessionService(nil, sink)
	s, tr := connectSession(t, svc, customerU)

	if err := svc.HandleMessage(context.Background(), s.ID, []byte(`{"type":"notification:read","payload":{"notificationId":"n7"}}`)); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(sink.reads, []string{"u1/n7"}) {
		t.Fatalf("expected receipt for u1/n7, got %v", sink.reads)
	}
	if p := decodeFrame[event.MarkReadRequest](t, tr.last()); p.NotificationID != "n7" {
		t.Fatalf("unexpected reply %+v", p)
	}
}

func TestHandleMarkReadSinkFailure(t *testing.T) {
	svc, _ := newTestSessionService(nil, &mockSink{err: errors.New("queue down")})
	s, tr := connectSession(t, svc, customerU)

	if err := svc.HandleMessage(context.Background(), s.ID, []byte(`{"type":"notification:read","payload":{"notificationId":"n7"}}`)); err != nil {
		t.Fatal(err)
	}
	if decodeType(t, tr.last()) != event.MsgError {
		t.Fatalf("expected error reply, got %s", decodeType(t, tr.last()))
	}
}

func TestHandlePing(t *testing.T) {
	svc, _ := newTestSessionService(nil, &mockSink{})
	s, tr := connectSession(t, svc, customerU)

	if err := svc.HandleMessage(context.Background(), s.ID, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	if decodeType(t, tr.last()) != event.MsgPong {
		t.Fatalf("expected pong, got %s", decodeType(t, tr.last()))
	}
	if p := decodeFrame[event.PongPayload](t, tr.last()); p.Timestamp.IsZero() {
		t.Fatal("expected pong timestamp")
	}
}

func TestHandleBadMessages(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"not json", `hello`, "malformed message"},
		{"missing type", `{"payload":{}}`, "malformed message"},
		{"unknown type", `{"type":"order:teleport"}`, `unknown message type "order:teleport"`},
		{"missing payload", `{"type":"order:subscribe"}`, "order:subscribe: payload is required"},
		{"bad payload", `{"type":"order:subscribe","payload":"o1"}`, "order:subscribe: invalid payload"},
		{"missing order id", `{"type":"order:unsubscribe","payload":{}}`, "orderId is required"},
		{"missing notification id", `{"type":"notification:read","payload":{}}`, "notificationId is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestSessionService(nil, &mockSink{})
			s, tr := connectSession(t, svc, customerU)

			if err := svc.HandleMessage(context.Background(), s.ID, []byte(tt.data)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := tr.messages(t); !slices.Equal(got, []string{event.MsgError}) {
				t.Fatalf("expected one error reply, got %v", got)
			}
			if p := decodeFrame[event.ErrorPayload](t, tr.last()); p.Message != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, p.Message)
			}
		})
	}
}
