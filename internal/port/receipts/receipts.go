// Package receipts defines the port through which notification read receipts
// reach the notifications module.
package receipts

import "context"

// Sink records that an identity has read a notification.
type Sink interface {
	MarkRead(ctx context.Context, identityID, notificationID string) error
}
