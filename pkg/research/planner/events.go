package planner

// Event names of the planning workflow.
const (
	StartPlanEventName     = "PlanStartEvent"
	PlannerTurnEventName   = "PlannerTurnEvent"
	PlannerOutputEventName = "PlannerOutputEvent"
	PlannerStatusEventName = "PlannerStatusEvent"
)

// StartPlanEvent starts a planning run.
type StartPlanEvent struct {
	InitialQuery string
}

func (StartPlanEvent) EventName() string { return StartPlanEventName }

// PlannerTurnEvent carries one user message into the planning conversation.
type PlannerTurnEvent struct {
	Message string
}

func (PlannerTurnEvent) EventName() string { return PlannerTurnEventName }

// PlannerOutputEvent carries the structured planner output for one turn.
type PlannerOutputEvent struct {
	Output      PlannerAgentOutput
	UserMessage string
}

func (PlannerOutputEvent) EventName() string { return PlannerOutputEventName }

// PlannerStatusEvent reports progress and errors to the stream.
type PlannerStatusEvent struct {
	Level   string // info or error
	Message string
}

func (PlannerStatusEvent) EventName() string { return PlannerStatusEventName }
