// Package llms defines the chat-completion abstraction used by every agent:
// message and tool-call shapes, the provider interface, structured output
// configuration, and a scripted in-memory provider for tests and dry runs.
package llms

import (
	"context"
	"errors"
	"fmt"
)

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Message is one turn of a chat conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage is a convenience constructor.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage is a convenience constructor.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage is a convenience constructor.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolMessage carries one tool result back to the model.
func ToolMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// ToolDefinition describes one callable tool in the provider wire format.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Response is the provider's answer to one chat request.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	TokensUsed int
}

// StructuredOutputConfig asks the provider for schema-constrained JSON.
type StructuredOutputConfig struct {
	Name   string
	Schema map[string]any
}

// LLM is the chat-completion provider contract. Implementations must be safe
// for concurrent use.
type LLM interface {
	// Chat runs one completion. Tools may be nil.
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error)

	// ChatStructured runs one completion constrained to the given JSON schema
	// and returns the raw JSON text in Response.Text.
	ChatStructured(ctx context.Context, messages []Message, structured *StructuredOutputConfig) (*Response, error)

	// ModelName reports the configured model identifier.
	ModelName() string
}

// ErrLLM marks provider failures (transport errors, API errors, malformed
// responses). Transient failures are retried once at the transport layer
// before surfacing.
var ErrLLM = errors.New("llm error")

func llmErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLLM, fmt.Sprintf(format, args...))
}
