// Package broadcast defines the port for pushing real-time events to rooms of
// connected sessions.
package broadcast

import (
	"context"

	"github.com/Strob0t/Fanout/internal/domain/event"
)

// Broadcaster pushes a message to every session in the given rooms.
type Broadcaster interface {
	// Broadcast sends msg once to each member of the union of rooms and
	// returns the number of sessions it was pushed to.
	Broadcast(ctx context.Context, msg event.Message, rooms ...string) int
}
