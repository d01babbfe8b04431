package llms

import (
	"context"
	"sync"
)

// Mock is a scripted provider. Responses are consumed in order; when the
// script is exhausted it returns an empty assistant message. Used by tests
// and by dry runs when no API key is configured.
type Mock struct {
	mu     sync.Mutex
	model  string
	script []*Response

	// Requests records every call for assertions.
	Requests [][]Message

	// OnChat, when set, computes the response instead of the script.
	OnChat func(messages []Message, tools []ToolDefinition) (*Response, error)
}

// NewMock creates a mock provider with an empty script.
func NewMock(model string) *Mock {
	if model == "" {
		model = "mock-model"
	}
	return &Mock{model: model}
}

// Enqueue appends responses to the script.
func (m *Mock) Enqueue(responses ...*Response) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
	return m
}

// EnqueueText appends a plain text response to the script.
func (m *Mock) EnqueueText(text string) *Mock {
	return m.Enqueue(&Response{Text: text})
}

// EnqueueToolCall appends a single tool-call response to the script.
func (m *Mock) EnqueueToolCall(id, name string, args map[string]any) *Mock {
	return m.Enqueue(&Response{ToolCalls: []ToolCall{{ID: id, Name: name, Args: args}}})
}

// Chat implements LLM.
func (m *Mock) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.Requests = append(m.Requests, messages)
	onChat := m.OnChat
	m.mu.Unlock()

	if onChat != nil {
		return onChat(messages, tools)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.script) == 0 {
		return &Response{}, nil
	}
	next := m.script[0]
	m.script = m.script[1:]
	return next, nil
}

// ChatStructured implements LLM.
func (m *Mock) ChatStructured(ctx context.Context, messages []Message, structured *StructuredOutputConfig) (*Response, error) {
	return m.Chat(ctx, messages, nil)
}

// ModelName implements LLM.
func (m *Mock) ModelName() string { return m.model }
