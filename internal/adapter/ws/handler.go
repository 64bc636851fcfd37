// Package ws implements the WebSocket transport for live sessions.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/Strob0t/Fanout/internal/config"
	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/session"
	"github.com/Strob0t/Fanout/internal/port/authenticator"
)

// Sessions is the session lifecycle the handler drives.
type Sessions interface {
	Connect(ctx context.Context, identity session.Identity, transport session.Transport) (*session.Session, error)
	Disconnect(ctx context.Context, sessionID string)
	HandleMessage(ctx context.Context, sessionID string, data []byte) error
}

// Handler authenticates WebSocket handshakes and serves one session per
// connection.
type Handler struct {
	auth     authenticator.Authenticator
	sessions Sessions
	cfg      config.WebSocket

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// NewHandler creates a WebSocket handler.
func NewHandler(auth authenticator.Authenticator, sessions Sessions, cfg config.WebSocket) *Handler {
	return &Handler{
		auth:     auth,
		sessions: sessions,
		cfg:      cfg,
		conns:    make(map[*conn]struct{}),
	}
}

// ServeHTTP rejects the handshake with 401 unless the request carries a valid
// credential, then runs the session until the connection ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeUnauthorized(w, "missing credential")
		return
	}
	identity, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		if !errors.Is(err, domain.ErrUnauthenticated) {
			slog.Warn("websocket authentication failed", "error", err)
		}
		writeUnauthorized(w, "invalid credential")
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: h.cfg.AllowedOrigins}
	if len(h.cfg.AllowedOrigins) == 0 {
		opts.InsecureSkipVerify = true // origin checks disabled when no origins are configured
	}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newConn(ws, h.cfg.SendQueue, h.cfg.WriteTimeout)
	sess, err := h.sessions.Connect(ctx, identity, c)
	if err != nil {
		slog.Error("session connect failed", "identity", identity.ID, "error", err)
		_ = ws.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	h.track(c)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()
	go c.pingLoop(ctx, h.cfg.PingInterval)

	slog.Info("websocket connected", "session_id", sess.ID, "identity", identity.ID, "remote", r.RemoteAddr)
	h.readLoop(ctx, ws, sess.ID)

	h.sessions.Disconnect(ctx, sess.ID)
	h.untrack(c)
	c.closeWith(websocket.StatusNormalClosure, "")
	<-writerDone
	slog.Info("websocket disconnected", "session_id", sess.ID)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sessionID string) {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if err := h.sessions.HandleMessage(ctx, sessionID, data); err != nil {
			slog.Warn("websocket message failed", "session_id", sessionID, "error", err)
			return
		}
	}
}

// ConnectionCount returns the number of open connections.
func (h *Handler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll closes every open connection, telling clients the server is going
// away. Used during shutdown since hijacked connections outlive the server.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		c.closeWith(websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *Handler) track(c *conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Handler) untrack(c *conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// bearerToken reads the credential from the Authorization header, falling
// back to the token query parameter for browser clients.
func bearerToken(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		if tok, ok := strings.CutPrefix(v, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
