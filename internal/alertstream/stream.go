package alertstream

import (
	"context"

	"dashsync/internal/domain"
)

// Publisher emits fired alerts for external consumers.
// Params: context and fired alert record.
// Returns: publish error. Publishing is best effort; failures are logged by
// the caller and never block dispatch.
type Publisher interface {
	Publish(ctx context.Context, fired domain.FiredAlert) error
	Close() error
}

// Noop is a publisher that drops every event.
// Params: none.
// Returns: publisher used when the event stream is disabled.
type Noop struct{}

// Publish drops the event.
// Params: context and fired alert.
// Returns: nil.
func (Noop) Publish(context.Context, domain.FiredAlert) error { return nil }

// Close does nothing.
// Params: none.
// Returns: nil.
func (Noop) Close() error { return nil }
