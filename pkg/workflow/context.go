package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Context is the per-run state shared by all steps of a single workflow run.
// It owns the state store, the event stream, the pending-waiter table, and
// the injected resources. Sub-agent runs get their own Context and exchange
// only explicit state snapshots with the parent.
type Context struct {
	store  *Store
	stream *eventQueue

	mu      sync.Mutex
	waiters map[string]chan Event // waiter key -> delivery channel
	inbound chan Event

	resources   map[string]ResourceFactory
	resolved    map[string]any
	resolving   map[string]bool
	resourcesMu sync.Mutex

	runCtx context.Context
}

// NewContext creates a standalone run context. The workflow runner creates
// one per run; orchestrator tools create fresh ones for sub-agents.
func NewContext() *Context {
	return &Context{
		store:     NewStore(),
		stream:    newEventQueue(),
		waiters:   make(map[string]chan Event),
		inbound:   make(chan Event, 64),
		resources: make(map[string]ResourceFactory),
		resolved:  make(map[string]any),
		resolving: make(map[string]bool),
		runCtx:    context.Background(),
	}
}

// Store returns the run's state store.
func (c *Context) Store() *Store { return c.store }

// WriteEventToStream publishes ev to the run's stream. Non-blocking; order
// of publication per producer is preserved. Publication never fails.
func (c *Context) WriteEventToStream(ev Event) {
	c.stream.Publish(ev)
}

// StreamEvents returns the single-consumer channel of streamed events. The
// channel closes when the run completes or is cancelled.
func (c *Context) StreamEvents() <-chan Event {
	return c.stream.Out()
}

// CloseStream drains and closes the stream. The runner closes it at run end;
// standalone contexts (sub-agent runs) close it when the child finishes.
func (c *Context) CloseStream() {
	c.stream.Close()
}

// SendEvent delivers an event into the run. Events that correlate with a
// pending waiter are routed to that waiter; everything else is dispatched to
// steps by the runner.
func (c *Context) SendEvent(ev Event) {
	if c.deliverToWaiter(ev) {
		return
	}
	select {
	case c.inbound <- ev:
	case <-c.runCtx.Done():
	}
}

func waiterKey(kind, waiterID string) string {
	return kind + "\x00" + waiterID
}

func (c *Context) deliverToWaiter(ev Event) bool {
	correlated, ok := ev.(Correlated)
	if !ok {
		return false
	}

	c.mu.Lock()
	key := waiterKey(ev.EventName(), correlated.CorrelationID())
	ch, exists := c.waiters[key]
	if exists {
		delete(c.waiters, key)
	}
	c.mu.Unlock()

	if !exists {
		return false
	}
	ch <- ev
	return true
}

// WaitForEvent publishes waiterEvent to the stream, then suspends until an
// event of the named kind arrives whose correlation id equals waiterID.
// Returns ErrCancelled on cancellation and ErrTimeout when the run deadline
// expires.
func (c *Context) WaitForEvent(ctx context.Context, kind string, waiterID string, waiterEvent Event) (Event, error) {
	ch := make(chan Event, 1)

	c.mu.Lock()
	c.waiters[waiterKey(kind, waiterID)] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.waiters, waiterKey(kind, waiterID))
		c.mu.Unlock()
	}()

	c.WriteEventToStream(waiterEvent)

	select {
	case ev := <-ch:
		return ev, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrCancelled
	}
}

// ResourceFactory builds one injected resource. Factories may resolve other
// resources through the context; dependency cycles are an invariant error.
type ResourceFactory func(ctx context.Context, rc *Context) (any, error)

// AddResource registers a factory under name. Factories run at most once per
// run; their product is cached for the run's lifetime.
func (c *Context) AddResource(name string, factory ResourceFactory) {
	c.resourcesMu.Lock()
	defer c.resourcesMu.Unlock()
	c.resources[name] = factory
}

// Resource resolves the named resource, running its factory on first use.
func (c *Context) Resource(ctx context.Context, name string) (any, error) {
	c.resourcesMu.Lock()

	if v, ok := c.resolved[name]; ok {
		c.resourcesMu.Unlock()
		return v, nil
	}
	if c.resolving[name] {
		c.resourcesMu.Unlock()
		return nil, fmt.Errorf("%w: resource dependency cycle at %q", ErrInvariant, name)
	}
	factory, ok := c.resources[name]
	if !ok {
		c.resourcesMu.Unlock()
		return nil, fmt.Errorf("%w: unknown resource %q", ErrInvariant, name)
	}
	c.resolving[name] = true
	c.resourcesMu.Unlock()

	v, err := factory(ctx, c)

	c.resourcesMu.Lock()
	delete(c.resolving, name)
	if err == nil {
		c.resolved[name] = v
	}
	c.resourcesMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("resource %q: %w", name, err)
	}
	return v, nil
}

// ForwardStream copies every event from child's stream onto this context's
// stream until the child stream closes. Used by sub-agent handoff so the
// user sees a single stream.
func (c *Context) ForwardStream(child *Context) {
	for ev := range child.StreamEvents() {
		c.WriteEventToStream(ev)
	}
}

// eventQueue is an unbounded multi-producer single-consumer event queue.
// Publish never blocks; Out yields events in publish order per producer.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	signal chan struct{}
	out    chan Event
	done   chan struct{}
	closed bool
	once   sync.Once
}

// closeGrace bounds how long a closed queue waits for a draining consumer to
// take each remaining event before abandoning the tail.
const closeGrace = 100 * time.Millisecond

func newEventQueue() *eventQueue {
	q := &eventQueue{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *eventQueue) Publish(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) Out() <-chan Event { return q.out }

// Close drains remaining events then closes the consumer channel.
func (q *eventQueue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
		select {
		case q.signal <- struct{}{}:
		default:
		}
	})
}

func (q *eventQueue) pump() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			if q.closed {
				q.mu.Unlock()
				close(q.out)
				return
			}
			q.mu.Unlock()
			<-q.signal
			continue
		}
		ev := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.done:
			q.drainAfterClose(ev)
			return
		}
	}
}

// drainAfterClose hands the tail to a consumer still ranging over the stream,
// or abandons it when nobody takes an event within the grace window.
func (q *eventQueue) drainAfterClose(ev Event) {
	defer close(q.out)
	for {
		select {
		case q.out <- ev:
		case <-time.After(closeGrace):
			return
		}

		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		ev = q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
	}
}
