// Package tools defines the agent-facing tool contract and a registry that
// exposes tools to the LLM in its function-calling wire format.
package tools

import (
	"context"

	"github.com/fathomresearch/fathom/pkg/llms"
)

// ToolParameter describes one argument of a tool.
type ToolParameter struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Required    bool           `json:"required"`
	Enum        []string       `json:"enum,omitempty"`
	Items       map[string]any `json:"items,omitempty"`
}

// ToolInfo is the metadata the registry publishes for a tool.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`

	// ReturnDirect tools terminate the agent loop: their content becomes
	// the loop's final answer instead of another model turn.
	ReturnDirect bool `json:"return_direct,omitempty"`
}

// ToolResult is the outcome of one tool execution. Failed executions set
// Success false and Error; the error text is surfaced to the model, not
// raised, so the loop can self-correct.
type ToolResult struct {
	Success  bool           `json:"success"`
	Content  string         `json:"content,omitempty"`
	Error    string         `json:"error,omitempty"`
	ToolName string         `json:"tool_name"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Tool is one callable capability offered to an agent.
type Tool interface {
	GetInfo() ToolInfo
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

// Definition converts tool metadata to the provider wire format.
func Definition(info ToolInfo) llms.ToolDefinition {
	properties := make(map[string]any)
	required := []string{}

	for _, p := range info.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if len(p.Items) > 0 {
			prop["items"] = p.Items
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return llms.ToolDefinition{
		Name:        info.Name,
		Description: info.Description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}
