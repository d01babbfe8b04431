package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StepFunc is the body of one workflow step. It receives the cancellation
// context, the run context, and the triggering event, and returns at most
// one output event. A nil output ends that branch of the run.
type StepFunc func(ctx context.Context, rc *Context, ev Event) (Event, error)

type step struct {
	name   string
	inputs []string
	fn     StepFunc
}

// Workflow is a registry of steps routed by event name plus per-run options.
type Workflow struct {
	steps     []step
	resources map[string]ResourceFactory
	timeout   time.Duration
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithTimeout sets the per-run timeout. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.timeout = d }
}

// New creates an empty workflow.
func New(opts ...Option) *Workflow {
	w := &Workflow{resources: make(map[string]ResourceFactory)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// AddStep registers fn under name for the given input event names.
func (w *Workflow) AddStep(name string, inputs []string, fn StepFunc) {
	w.steps = append(w.steps, step{name: name, inputs: inputs, fn: fn})
}

// AddResource registers a resource factory applied to every run's context.
func (w *Workflow) AddResource(name string, factory ResourceFactory) {
	w.resources[name] = factory
}

// Run is a handle over one in-flight workflow execution.
type Run struct {
	rc     *Context
	done   chan struct{}
	cancel context.CancelFunc

	mu     sync.Mutex
	result any
	err    error
}

// Context returns the run's context (stream, store, SendEvent).
func (r *Run) Context() *Context { return r.rc }

// Stream returns the run's event stream.
func (r *Run) Stream() <-chan Event { return r.rc.StreamEvents() }

// SendEvent delivers an external event (e.g. a human response) to the run.
func (r *Run) SendEvent(ev Event) { r.rc.SendEvent(ev) }

// Cancel cancels the run.
func (r *Run) Cancel() { r.cancel() }

// Wait blocks until the run finishes and returns its result.
func (r *Run) Wait() (any, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

func (r *Run) finish(result any, err error) {
	r.mu.Lock()
	r.result = result
	r.err = err
	r.mu.Unlock()
}

// Start begins executing the workflow from the given start event. Steps run
// concurrently as their input events arrive; the run completes when a
// StopEvent is produced, the timeout expires, or a step fails.
func (w *Workflow) Start(ctx context.Context, start Event) *Run {
	rc := NewContext()
	for name, factory := range w.resources {
		rc.AddResource(name, factory)
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if w.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, w.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	rc.runCtx = runCtx

	run := &Run{rc: rc, done: make(chan struct{}), cancel: cancel}

	go w.drive(runCtx, rc, run, start)
	return run
}

func (w *Workflow) drive(ctx context.Context, rc *Context, run *Run, start Event) {
	defer close(run.done)
	defer run.cancel()
	defer rc.stream.Close()

	var wg sync.WaitGroup
	stop := make(chan StopEvent, 1)
	failed := make(chan StepFailedEvent, 1)

	var dispatch func(ev Event)
	dispatch = func(ev Event) {
		if stopEv, ok := ev.(StopEvent); ok {
			select {
			case stop <- stopEv:
			default:
			}
			return
		}

		matched := false
		for _, st := range w.steps {
			if !matchesInput(st, ev) {
				continue
			}
			matched = true
			wg.Add(1)
			go func(st step, ev Event) {
				defer wg.Done()
				out, err := st.fn(ctx, rc, ev)
				if err != nil {
					if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
						return
					}
					slog.Error("workflow step failed", "step", st.name, "error", err)
					failure := StepFailedEvent{Step: st.name, Err: err}
					rc.WriteEventToStream(failure)
					select {
					case failed <- failure:
					default:
					}
					return
				}
				if out != nil {
					rc.SendEvent(out)
				}
			}(st, ev)
		}

		if !matched {
			slog.Debug("event has no matching step", "event", ev.EventName())
		}
	}

	dispatch(start)

	// Inbound loop: route events until a stop, failure, or cancellation.
	for {
		select {
		case ev := <-rc.inbound:
			dispatch(ev)
		case stopEv := <-stop:
			run.cancel()
			wg.Wait()
			run.finish(stopEv.Result, nil)
			return
		case failure := <-failed:
			run.cancel()
			wg.Wait()
			run.finish(nil, fmt.Errorf("%w: %s: %v", ErrStepFailed, failure.Step, failure.Err))
			return
		case <-ctx.Done():
			wg.Wait()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				run.finish(nil, ErrTimeout)
			} else {
				run.finish(nil, ErrCancelled)
			}
			return
		}
	}
}

func matchesInput(st step, ev Event) bool {
	name := ev.EventName()
	for _, input := range st.inputs {
		if input == name {
			return true
		}
	}
	return false
}
