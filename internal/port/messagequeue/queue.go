// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
// The review worker fleet consumes task dispatches and publishes findings
// back; the core never sees the transport.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for review dispatch.
const (
	SubjectReviewCreated   = "reviews.created"   // core -> workers: task ready for pickup
	SubjectReviewStarted   = "reviews.started"   // workers -> core: task picked up
	SubjectReviewCompleted = "reviews.completed" // workers -> core: findings + aggregate counts
)
