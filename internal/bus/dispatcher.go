package bus

import (
	"context"

	"apolo/internal/schema"
)

// DeliverFunc runs the subscribers of one event.
type DeliverFunc func(ctx context.Context, e schema.Event)

// Dispatcher decides where and when an event is delivered. Subscribers are unaware of the
// choice, so the synchronous default can be swapped for a queue without touching them.
type Dispatcher interface {
	Dispatch(ctx context.Context, e schema.Event, deliver DeliverFunc) error
}

// SyncDispatcher delivers on the caller's goroutine, depth-first.
type SyncDispatcher struct{}

func (SyncDispatcher) Dispatch(ctx context.Context, e schema.Event, deliver DeliverFunc) error {
	deliver(ctx, e)
	return nil
}
