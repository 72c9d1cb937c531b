package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"apolo/internal/obs"
	"apolo/internal/schema"
	"apolo/pkg/exception"
)

// Handler consumes one event. A returned error or a panic is a handler failure.
type Handler func(ctx context.Context, e schema.Event) error

// Broker is the part of Bus that pipeline components depend on.
type Broker interface {
	Subscribe(kind schema.Kind, name string, handler Handler) error
	Publish(ctx context.Context, e schema.Event) error
}

type subscription struct {
	name    string
	handler Handler
}

// Config wires optional collaborators. The zero value is a synchronous bus.
type Config struct {
	Dispatcher Dispatcher
	Metrics    *obs.Metrics
	Sequence   *obs.Sequence
}

// Bus is an in-process publish/subscribe dispatcher.
//
// Handlers of one kind run in registration order. A failing handler never aborts the
// remaining handlers of the same event and never propagates to the publisher: the failure
// is converted to a single KindError event.
type Bus struct {
	mu   sync.RWMutex
	subs map[schema.Kind][]subscription

	dispatcher Dispatcher
	metrics    *obs.Metrics
	seq        *obs.Sequence
}

// New creates a bus. Without a dispatcher, events are delivered on the publisher's goroutine.
func New(cfg Config) *Bus {
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = SyncDispatcher{}
	}
	seq := cfg.Sequence
	if seq == nil {
		seq = obs.NewSequence(0)
	}
	return &Bus{
		subs:       make(map[schema.Kind][]subscription),
		dispatcher: dispatcher,
		metrics:    cfg.Metrics,
		seq:        seq,
	}
}

// Subscribe registers handler for kind under name. The name is reported as originHandler
// when the handler fails.
func (b *Bus) Subscribe(kind schema.Kind, name string, handler Handler) error {
	if handler == nil {
		return errors.Wrapf(exception.ErrBusNilHandler, "name: %s", name)
	}
	if !kind.Valid() {
		return errors.Wrapf(exception.ErrBusUnknownKind, "kind: %d", kind)
	}

	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], subscription{name: name, handler: handler})
	b.mu.Unlock()

	logs.Infof("bus: subscribed %s to %s", name, kind)
	return nil
}

// Publish hands e to the dispatcher. With the synchronous dispatcher it returns only after
// every handler, and everything those handlers published, has completed.
func (b *Bus) Publish(ctx context.Context, e schema.Event) error {
	if !e.Kind.Valid() {
		return errors.Wrapf(exception.ErrBusUnknownKind, "kind: %d", e.Kind)
	}
	e.Seq = b.seq.Next()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	b.metrics.ObserveEvent(e.Kind)

	if err := b.dispatcher.Dispatch(ctx, e, b.deliver); err != nil {
		b.metrics.IncQueueDrop()
		return errors.Wrapf(err, "dispatch %s", e.Kind)
	}
	return nil
}

// Reset clears every subscription. Intended for test isolation.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.subs = make(map[schema.Kind][]subscription)
	b.mu.Unlock()
}

// Subscribers returns the number of handlers registered for kind.
func (b *Bus) Subscribers(kind schema.Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

func (b *Bus) handlers(kind schema.Kind) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.subs[kind]
	out := make([]subscription, len(subs))
	copy(out, subs)
	return out
}

// deliver runs every handler of e.Kind in order, containing failures.
func (b *Bus) deliver(ctx context.Context, e schema.Event) {
	if e.Kind == schema.KindError {
		ctx = withDispatchingError(ctx)
	}
	for _, sub := range b.handlers(e.Kind) {
		err := invoke(ctx, sub, e)
		if err == nil {
			continue
		}
		b.fail(ctx, e, sub.name, err)
	}
}

func (b *Bus) fail(ctx context.Context, e schema.Event, origin string, err error) {
	b.metrics.IncHandlerFailure(e.Kind, origin)
	logs.Errorf("bus: handler %s failed on %s, err: %+v", origin, e, err)

	if isDispatchingError(ctx) {
		// an Error handler failed; report it without feeding the error channel again
		return
	}

	errEvent := schema.NewEvent(schema.KindError, schema.ErrorPayload{
		Message:       err.Error(),
		OriginHandler: origin,
	}.Payload())
	if pubErr := b.Publish(ctx, errEvent); pubErr != nil {
		logs.Errorf("bus: publish error event for %s, err: %+v", origin, pubErr)
	}
}

func invoke(ctx context.Context, sub subscription, e schema.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(exception.ErrBusHandlerPanic, "%s", fmt.Sprint(r))
		}
	}()
	return sub.handler(ctx, e)
}

type dispatchingErrorKey struct{}

func withDispatchingError(ctx context.Context) context.Context {
	return context.WithValue(ctx, dispatchingErrorKey{}, true)
}

func isDispatchingError(ctx context.Context) bool {
	v, _ := ctx.Value(dispatchingErrorKey{}).(bool)
	return v
}
