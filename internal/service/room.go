package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	cfotel "github.com/Strob0t/Fanout/internal/adapter/otel"
	"github.com/Strob0t/Fanout/internal/domain"
	"github.com/Strob0t/Fanout/internal/domain/event"
	"github.com/Strob0t/Fanout/internal/domain/session"
	"github.com/Strob0t/Fanout/internal/port/ownership"
)

// room keeps its members in join order.
type room struct {
	members []string
	index   map[string]struct{}
}

func (r *room) add(sessionID string) bool {
	if _, ok := r.index[sessionID]; ok {
		return false
	}
	r.index[sessionID] = struct{}{}
	r.members = append(r.members, sessionID)
	return true
}

func (r *room) remove(sessionID string) bool {
	if _, ok := r.index[sessionID]; !ok {
		return false
	}
	delete(r.index, sessionID)
	r.members = slices.DeleteFunc(r.members, func(id string) bool { return id == sessionID })
	return true
}

// RoomRouter manages room membership over the sessions of a
// ConnectionRegistry and pushes messages to room members.
type RoomRouter struct {
	registry *ConnectionRegistry
	oracle   ownership.Oracle
	metrics  *cfotel.Metrics

	mu          sync.RWMutex
	rooms       map[string]*room
	memberships map[string]map[string]struct{} // session ID -> rooms

	// pushMu serializes broadcasts so every session observes the same
	// relative order of messages.
	pushMu sync.Mutex
}

// NewRoomRouter creates a RoomRouter and hooks it to registry so that
// unregistered sessions leave all rooms.
func NewRoomRouter(registry *ConnectionRegistry, oracle ownership.Oracle, metrics *cfotel.Metrics) *RoomRouter {
	rr := &RoomRouter{
		registry:    registry,
		oracle:      oracle,
		metrics:     metrics,
		rooms:       make(map[string]*room),
		memberships: make(map[string]map[string]struct{}),
	}
	registry.OnUnregister(func(s *session.Session) { rr.removeSession(s.ID) })
	return rr
}

// Attach joins a freshly registered session to its implicit rooms: its
// personal room, the catalog room and, for admins, the admin room.
func (rr *RoomRouter) Attach(s *session.Session) {
	rr.add(s.ID, event.UserRoom(s.Identity.ID))
	rr.add(s.ID, event.RoomAll)
	if s.Identity.IsAdmin() {
		rr.add(s.ID, event.RoomAdmin)
	}
}

// JoinRoom adds a session to a room after authorizing the session's
// identity. A refused join is reported to the session as a
// subscription:error message and never returned as an error; the only
// error is domain.ErrNotFound for an unknown session.
func (rr *RoomRouter) JoinRoom(ctx context.Context, sessionID, roomName string) (bool, error) {
	s, ok := rr.registry.Get(sessionID)
	if !ok {
		return false, fmt.Errorf("join room %s: session %s: %w", roomName, sessionID, domain.ErrNotFound)
	}

	if err := rr.authorize(ctx, s.Identity, roomName); err != nil {
		reason := "not authorized"
		if !errors.Is(err, domain.ErrForbidden) && !errors.Is(err, domain.ErrValidation) {
			slog.Warn("room authorization failed", "session_id", sessionID, "room", roomName, "error", err)
			reason = "authorization unavailable"
		} else if errors.Is(err, domain.ErrValidation) {
			reason = "unknown room"
		}
		rr.metrics.JoinDenied(ctx)
		reply(ctx, s, event.MsgSubscriptionError, event.SubscriptionError{Room: roomName, Error: reason})
		return false, nil
	}

	rr.add(sessionID, roomName)
	reply(ctx, s, event.MsgSubscriptionAck, event.SubscriptionAck{Room: roomName, Subscribed: true})
	return true, nil
}

// LeaveRoom removes a session from a room. Leaving a room the session is not
// in is a no-op.
func (rr *RoomRouter) LeaveRoom(sessionID, roomName string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.removeLocked(sessionID, roomName)
}

// Members returns the session IDs of a room in join order.
func (rr *RoomRouter) Members(roomName string) []string {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	if r, ok := rr.rooms[roomName]; ok {
		return slices.Clone(r.members)
	}
	return nil
}

// RoomsOf returns the sorted rooms a session belongs to.
func (rr *RoomRouter) RoomsOf(sessionID string) []string {
	rr.mu.RLock()
	rooms := make([]string, 0, len(rr.memberships[sessionID]))
	for name := range rr.memberships[sessionID] {
		rooms = append(rooms, name)
	}
	rr.mu.RUnlock()
	slices.Sort(rooms)
	return rooms
}

// RoomCount returns the number of non-empty rooms.
func (rr *RoomRouter) RoomCount() int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return len(rr.rooms)
}

// Broadcast pushes msg once to every member of the union of rooms, in
// room order then join order, and returns the number of successful pushes.
func (rr *RoomRouter) Broadcast(ctx context.Context, msg event.Message, rooms ...string) int {
	data, err := msg.Encode()
	if err != nil {
		slog.Error("broadcast marshal failed", "type", msg.Type, "error", err)
		return 0
	}

	rr.pushMu.Lock()
	defer rr.pushMu.Unlock()

	pushed := 0
	for _, id := range rr.recipients(rooms) {
		s, ok := rr.registry.Get(id)
		if !ok {
			continue
		}
		if err := s.Send(ctx, data); err != nil {
			slog.Debug("session push failed", "session_id", id, "type", msg.Type, "error", err)
			continue
		}
		pushed++
	}
	rr.metrics.Pushed(ctx, msg.Type, pushed)
	return pushed
}

// recipients returns the deduplicated members of rooms.
func (rr *RoomRouter) recipients(rooms []string) []string {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, name := range rooms {
		r, ok := rr.rooms[name]
		if !ok {
			continue
		}
		for _, id := range r.members {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func (rr *RoomRouter) authorize(ctx context.Context, id session.Identity, roomName string) error {
	switch {
	case roomName == event.RoomAll:
		return nil
	case roomName == event.RoomAdmin:
		if !id.IsAdmin() {
			return domain.ErrForbidden
		}
		return nil
	}

	if userID, ok := event.ParseUserRoom(roomName); ok {
		if userID != id.ID && !id.IsAdmin() {
			return domain.ErrForbidden
		}
		return nil
	}

	if orderID, ok := event.ParseOrderRoom(roomName); ok {
		if id.IsAdmin() {
			return nil
		}
		owns, err := rr.oracle.OwnsOrder(ctx, id.ID, orderID)
		if err != nil {
			return fmt.Errorf("ownership check for order %s: %w", orderID, err)
		}
		if !owns {
			return domain.ErrForbidden
		}
		return nil
	}

	return fmt.Errorf("%w: unknown room %q", domain.ErrValidation, roomName)
}

func (rr *RoomRouter) add(sessionID, roomName string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	r, ok := rr.rooms[roomName]
	if !ok {
		r = &room{index: make(map[string]struct{})}
		rr.rooms[roomName] = r
	}
	if !r.add(sessionID) {
		return
	}
	m, ok := rr.memberships[sessionID]
	if !ok {
		m = make(map[string]struct{})
		rr.memberships[sessionID] = m
	}
	m[roomName] = struct{}{}
}

// removeLocked must be called with rr.mu held.
func (rr *RoomRouter) removeLocked(sessionID, roomName string) {
	r, ok := rr.rooms[roomName]
	if !ok || !r.remove(sessionID) {
		return
	}
	if len(r.members) == 0 {
		delete(rr.rooms, roomName)
	}
	if m := rr.memberships[sessionID]; m != nil {
		delete(m, roomName)
		if len(m) == 0 {
			delete(rr.memberships, sessionID)
		}
	}
}

func (rr *RoomRouter) removeSession(sessionID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	for name := range rr.memberships[sessionID] {
		rr.removeLocked(sessionID, name)
	}
}

// reply pushes a single message to one session.
func reply(ctx context.Context, s *session.Session, msgType string, payload any) {
	msg, err := event.NewMessage(msgType, payload)
	if err != nil {
		slog.Error("reply marshal failed", "type", msgType, "error", err)
		return
	}
	data, err := msg.Encode()
	if err != nil {
		slog.Error("reply encode failed", "type", msgType, "error", err)
		return
	}
	if err := s.Send(ctx, data); err != nil {
		slog.Debug("session reply failed", "session_id", s.ID, "type", msgType, "error", err)
	}
}
