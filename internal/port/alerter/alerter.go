// Package alerter defines the port for operator alerts sent to chat channels.
package alerter

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when an alerter has no destination.
var ErrNotConfigured = errors.New("alerter: not configured")

// Severity grades an alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert is one operator-facing message.
type Alert struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Source   string   `json:"source"` // e.g. "webhook.disabled"
}

// Alerter delivers alerts to one channel.
type Alerter interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}
