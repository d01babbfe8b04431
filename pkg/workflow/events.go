// Package workflow implements the step-based workflow runtime: typed events,
// a per-run context with a keyed state store, a streaming event bus,
// human-in-the-loop suspension, and resource injection.
//
// A workflow is a set of steps registered against event names. Starting a run
// injects a start event; each emitted event is routed to every step that
// declared its name as input. The run completes when a StopEvent is produced.
package workflow

// Event is the unit of communication between steps and with the outside
// world. Implementations are small value types.
type Event interface {
	EventName() string
}

// Correlated is implemented by events that answer a pending waiter.
type Correlated interface {
	Event
	CorrelationID() string
}

// Distinguished event names used by the runtime itself.
const (
	StopEventName          = "StopEvent"
	InputRequiredEventName = "InputRequiredEvent"
	HumanResponseEventName = "HumanResponseEvent"
	StepFailedEventName    = "StepFailedEvent"
)

// StopEvent completes the run; Result becomes the run's result.
type StopEvent struct {
	Result any
}

func (StopEvent) EventName() string { return StopEventName }

// InputRequiredEvent asks the human driver for input. Prefix is the prompt
// to display; WaiterID correlates the eventual HumanResponseEvent.
type InputRequiredEvent struct {
	Prefix   string
	WaiterID string
}

func (InputRequiredEvent) EventName() string { return InputRequiredEventName }

// HumanResponseEvent carries one line of human input back into the run.
type HumanResponseEvent struct {
	Response string
	WaiterID string
}

func (HumanResponseEvent) EventName() string { return HumanResponseEventName }

// CorrelationID implements Correlated.
func (e HumanResponseEvent) CorrelationID() string { return e.WaiterID }

// StepFailedEvent reports an unhandled error inside a step. It is terminal
// for the run unless a step consumes it and emits a corrective event.
type StepFailedEvent struct {
	Step string
	Err  error
}

func (StepFailedEvent) EventName() string { return StepFailedEventName }
