package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/Fanout/internal/config"
	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/domain/session"
	"github.com/Strob0t/Fanout/internal/port/ownership"
	"github.com/Strob0t/Fanout/internal/service"
)

type fakeAuth map[string]session.Identity

func (f fakeAuth) Authenticate(_ context.Context, token string) (session.Identity, error) {
	id, ok := f[token]
	if !ok {
		return session.Identity{}, domain.ErrUnauthenticated
	}
	return id, nil
}

type nopSink struct{}

func (nopSink) MarkRead(context.Context, string, string) error { return nil }

type wsHarness struct {
	srv      *httptest.Server
	handler  *Handler
	registry *service.ConnectionRegistry
	rooms    *service.RoomRouter
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	registry := service.NewConnectionRegistry(nil)
	oracle := ownership.OracleFunc(func(_ context.Context, identityID, orderID string) (bool, error) {
		return identityID == "u1" && orderID == "o1", nil
	})
	rooms := service.NewRoomRouter(registry, oracle, nil)
	sessions := service.NewSessionService(registry, rooms, nopSink{}, nil, nil)

	auth := fakeAuth{
		"good":  {ID: "u1", Role: session.RoleCustomer},
		"admin": {ID: "a1", Role: session.RoleAdmin},
	}
	h := NewHandler(auth, sessions, config.WebSocket{
		SendQueue:    16,
		PingInterval: time.Minute,
		WriteTimeout: time.Second,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &wsHarness{srv: srv, handler: h, registry: registry, rooms: rooms}
}

func (h *wsHarness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/?token=" + token
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func send(t *testing.T, c *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := event.Message{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		msg.Payload = raw
	}
	data, _ := json.Marshal(msg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func receive(t *testing.T, c *websocket.Conn) event.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg event.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerPingPong(t *testing.T) {
	h := newWSHarness(t)
	c := h.dial(t, "good")

	send(t, c, event.MsgPing, nil)
	if msg := receive(t, c); msg.Type != event.MsgPong {
		t.Fatalf("expected pong, got %s", msg.Type)
	}
}

func TestHandlerRegistersAndJoinsImplicitRooms(t *testing.T) {
	h := newWSHarness(t)
	_ = h.dial(t, "good")

	waitFor(t, func() bool { return h.registry.IsOnline("u1") })
	if got := len(h.rooms.Members(event.UserRoom("u1"))); got != 1 {
		t.Fatalf("expected 1 member in user room, got %d", got)
	}
	if h.handler.ConnectionCount() != 1 {
		t.Fatalf("expected 1 tracked connection, got %d", h.handler.ConnectionCount())
	}
}

func TestHandlerSubscribeOwnedOrder(t *testing.T) {
	h := newWSHarness(t)
	c := h.dial(t, "good")

	send(t, c, event.MsgOrderSubscribe, event.OrderRequest{OrderID: "o1"})
	if msg := receive(t, c); msg.Type != event.MsgSubscriptionAck {
		t.Fatalf("expected subscription ack, got %s", msg.Type)
	}

	send(t, c, event.MsgOrderSubscribe, event.OrderRequest{OrderID: "o2"})
	if msg := receive(t, c); msg.Type != event.MsgSubscriptionError {
		t.Fatalf("expected subscription error, got %s", msg.Type)
	}
}

func TestHandlerRejectsBadCredential(t *testing.T) {
	h := newWSHarness(t)

	tests := []struct {
		name  string
		query string
	}{
		{"missing", ""},
		{"invalid", "?token=bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/" + tt.query
			_, resp, err := websocket.Dial(ctx, url, nil)
			if err == nil {
				t.Fatal("expected dial to fail")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401 response, got %v", resp)
			}
		})
	}
	if h.registry.Count() != 0 {
		t.Fatalf("expected no sessions, got %d", h.registry.Count())
	}
}

func TestHandlerDisconnectRemovesSession(t *testing.T) {
	h := newWSHarness(t)
	c := h.dial(t, "good")
	waitFor(t, func() bool { return h.registry.Count() == 1 })

	_ = c.Close(websocket.StatusNormalClosure, "bye")

	waitFor(t, func() bool { return h.registry.Count() == 0 })
	waitFor(t, func() bool { return h.handler.ConnectionCount() == 0 })
	if got := len(h.rooms.Members(event.UserRoom("u1"))); got != 0 {
		t.Fatalf("expected empty user room, got %d members", got)
	}
}

func TestHandlerCloseAllSendsGoingAway(t *testing.T) {
	h := newWSHarness(t)
	c := h.dial(t, "admin")
	waitFor(t, func() bool { return h.handler.ConnectionCount() == 1 })

	h.handler.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	if status := websocket.CloseStatus(err); status != websocket.StatusGoingAway {
		t.Fatalf("expected going away close, got %v (%v)", status, err)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header", "Bearer abc", "", "abc"},
		{"query", "", "?token=xyz", "xyz"},
		{"header wins", "Bearer abc", "?token=xyz", "abc"},
		{"wrong scheme", "Basic abc", "", ""},
		{"none", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := bearerToken(r); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestConnSlowConsumer(t *testing.T) {
	c := newConn(nil, 2, time.Second)
	ctx := context.Background()

	for i := range 2 {
		if err := c.Send(ctx, []byte("x")); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := c.Send(ctx, []byte("x")); !errors.Is(err, ErrSlowConsumer) {
		t.Fatalf("expected ErrSlowConsumer, got %v", err)
	}
	if err := c.Send(ctx, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after overflow, got %v", err)
	}
	if c.code != websocket.StatusPolicyViolation {
		t.Fatalf("expected policy violation close code, got %v", c.code)
	}
}
