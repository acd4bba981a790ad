// Package notify delivers push notifications and haptic cues to rider and
// driver devices. Delivery is fire-and-forget; the caller never blocks on
// or observes delivery failures.
package notify

import "context"

type Notification struct {
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Intensity string            `json:"intensity,omitempty"` // haptic hint: light, medium, heavy
}

type Notifier interface {
	Notify(ctx context.Context, recipientID string, n Notification)
}

// Nop discards all notifications. Used in tests and when no push backend
// is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string, Notification) {}
