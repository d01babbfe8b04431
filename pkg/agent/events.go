package agent

// ToolCallEvent reports that an agent is invoking a tool.
type ToolCallEvent struct {
	Agent string
	Tool  string
	Args  map[string]any
}

func (ToolCallEvent) EventName() string { return "ToolCallEvent" }

// ToolResultEvent reports a completed tool invocation.
type ToolResultEvent struct {
	Agent   string
	Tool    string
	Success bool
	Content string
}

func (ToolResultEvent) EventName() string { return "ToolResultEvent" }
