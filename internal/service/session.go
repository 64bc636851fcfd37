package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	cfotel "github.com/Strob0t/Fanout/internal/adapter/otel"
	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/domain/session"
	"github.com/Strob0t/Fanout/internal/logger"
	"github.com/Strob0t/Fanout/internal/port/receipts"
)

// SessionService connects authenticated transports and serves the messages
// clients send over them.
type SessionService struct {
	registry *ConnectionRegistry
	rooms    *RoomRouter
	receipts receipts.Sink
	clock    clockwork.Clock
	metrics  *cfotel.Metrics
}

// NewSessionService creates a SessionService. A nil clock uses the real clock.
func NewSessionService(registry *ConnectionRegistry, rooms *RoomRouter, sink receipts.Sink, clock clockwork.Clock, metrics *cfotel.Metrics) *SessionService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionService{registry: registry, rooms: rooms, receipts: sink, clock: clock, metrics: metrics}
}

// Connect registers a session for an authenticated identity and joins it to
// its implicit rooms.
func (s *SessionService) Connect(ctx context.Context, identity session.Identity, transport session.Transport) (*session.Session, error) {
	sess, err := s.registry.Register(identity, transport)
	if err != nil {
		return nil, err
	}
	s.rooms.Attach(sess)
	s.metrics.SessionOpened(ctx)
	return sess, nil
}

// Disconnect unregisters a session, revoking all of its room memberships.
func (s *SessionService) Disconnect(ctx context.Context, sessionID string) {
	if _, ok := s.registry.Get(sessionID); !ok {
		return
	}
	s.registry.Unregister(sessionID)
	s.metrics.SessionClosed(ctx)
}

// HandleMessage serves one client message. Problems with the message itself
// are answered with an error event; the only returned error is
// domain.ErrNotFound for an unknown session.
func (s *SessionService) HandleMessage(ctx context.Context, sessionID string, data []byte) error {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	ctx = logger.WithSessionID(ctx, sessionID)

	var msg event.Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		replyError(ctx, sess, "malformed message")
		return nil
	}

	switch msg.Type {
	case event.MsgOrderSubscribe:
		var req event.OrderRequest
		if !decodePayload(ctx, sess, msg, &req) || !requireField(ctx, sess, req.OrderID, "orderId") {
			return nil
		}
		_, err := s.rooms.JoinRoom(ctx, sessionID, event.OrderRoom(req.OrderID))
		return err

	case event.MsgOrderUnsubscribe:
		var req event.OrderRequest
		if !decodePayload(ctx, sess, msg, &req) || !requireField(ctx, sess, req.OrderID, "orderId") {
			return nil
		}
		room := event.OrderRoom(req.OrderID)
		s.rooms.LeaveRoom(sessionID, room)
		reply(ctx, sess, event.MsgSubscriptionAck, event.SubscriptionAck{Room: room, Subscribed: false})

	case event.MsgMarkRead:
		var req event.MarkReadRequest
		if !decodePayload(ctx, sess, msg, &req) || !requireField(ctx, sess, req.NotificationID, "notificationId") {
			return nil
		}
		if err := s.receipts.MarkRead(ctx, sess.Identity.ID, req.NotificationID); err != nil {
			slog.WarnContext(ctx, "mark notification read failed", "notification_id", req.NotificationID, "error", err)
			replyError(ctx, sess, "could not mark notification read")
			return nil
		}
		reply(ctx, sess, event.MsgNotificationRead, req)

	case event.MsgPing:
		reply(ctx, sess, event.MsgPong, event.PongPayload{Timestamp: s.clock.Now().UTC()})

	default:
		replyError(ctx, sess, fmt.Sprintf("unknown message type %q", msg.Type))
	}
	return nil
}

func decodePayload(ctx context.Context, sess *session.Session, msg event.Message, dst any) bool {
	if len(msg.Payload) == 0 {
		replyError(ctx, sess, msg.Type+": payload is required")
		return false
	}
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		replyError(ctx, sess, msg.Type+": invalid payload")
		return false
	}
	return true
}

func requireField(ctx context.Context, sess *session.Session, value, name string) bool {
	if value == "" {
		replyError(ctx, sess, name+" is required")
		return false
	}
	return true
}

func replyError(ctx context.Context, sess *session.Session, message string) {
	reply(ctx, sess, event.MsgError, event.ErrorPayload{Message: message})
}
