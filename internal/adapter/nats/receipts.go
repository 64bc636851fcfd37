package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/Strob0t/Fanout/internal/port/messagequeue"
)

// ReceiptSink forwards read receipts to the notifications module over the
// queue.
type ReceiptSink struct {
	queue messagequeue.Queue
	clock clockwork.Clock
}

// NewReceiptSink creates a sink publishing on queue. A nil clock uses the real
// clock.
func NewReceiptSink(queue messagequeue.Queue, clock clockwork.Clock) *ReceiptSink {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ReceiptSink{queue: queue, clock: clock}
}

// MarkRead publishes a receipt on notifications.read.
func (s *ReceiptSink) MarkRead(ctx context.Context, identityID, notificationID string) error {
	data, err := json.Marshal(messagequeue.ReadReceiptPayload{
		UserID:         identityID,
		NotificationID: notificationID,
		ReadAt:         s.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal read receipt: %w", err)
	}
	return s.queue.Publish(ctx, messagequeue.SubjectReadReceipts, data)
}

// LogReceiptSink records read receipts in the log only. It stands in when no
// queue is configured.
type LogReceiptSink struct{}

// MarkRead logs the receipt.
func (LogReceiptSink) MarkRead(ctx context.Context, identityID, notificationID string) error {
	slog.InfoContext(ctx, "notification read", "identity", identityID, "notification_id", notificationID)
	return nil
}
