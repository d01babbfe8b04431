package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomresearch/fathom/pkg/config"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*OpenAIProvider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	temp := 0.2
	provider := NewOpenAIProvider(config.LLMModelConfig{
		Provider:    "openai",
		Model:       "gpt-4o",
		Temperature: &temp,
		BaseURL:     server.URL,
		APIKey:      "test-key",
	})
	return provider, server
}

func TestOpenAIChatText(t *testing.T) {
	var captured openAIRequest
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{
				Message:      openAIMessage{Role: "assistant", Content: "hello"},
				FinishReason: "stop",
			}},
			Usage: openAIUsage{TotalTokens: 12},
		})
	})

	resp, err := provider.Chat(context.Background(), []Message{
		SystemMessage("be brief"),
		UserMessage("hi"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "hello", resp.Text)
	assert.Equal(t, 12, resp.TokensUsed)
	assert.Empty(t, resp.ToolCalls)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "gpt-4o", captured.Model)
	require.NotNil(t, captured.Temperature)
	assert.Equal(t, 0.2, *captured.Temperature)
}

func TestOpenAIChatToolCalls(t *testing.T) {
	var captured openAIRequest
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{
				Message: openAIMessage{
					Role: "assistant",
					ToolCalls: []openAIToolCall{{
						ID:   "call_1",
						Type: "function",
						Function: openAIFunctionCall{
							Name:      "web_search",
							Arguments: `{"queries":["go workflows"]}`,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
		})
	})

	tools := []ToolDefinition{{
		Name:        "web_search",
		Description: "search the web",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"queries": map[string]any{"type": "array"},
			},
		},
	}}

	resp, err := provider.Chat(context.Background(), []Message{UserMessage("find sources")}, tools)
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "web_search", resp.ToolCalls[0].Name)
	assert.Equal(t, []any{"go workflows"}, resp.ToolCalls[0].Args["queries"])

	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "auto", captured.ToolChoice)
}

func TestOpenAIChatStructured(t *testing.T) {
	var captured openAIRequest
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{
				Message: openAIMessage{Role: "assistant", Content: `{"decision":"finalize"}`},
			}},
		})
	})

	structured := &StructuredOutputConfig{
		Name: "planner_output",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"decision": map[string]any{"type": "string"},
			},
		},
	}

	resp, err := provider.ChatStructured(context.Background(), []Message{UserMessage("plan")}, structured)
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision":"finalize"}`, resp.Text)

	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_schema", captured.ResponseFormat.Type)
	assert.Equal(t, "planner_output", captured.ResponseFormat.JSONSchema.Name)
	assert.True(t, captured.ResponseFormat.JSONSchema.Strict)
}

func TestOpenAIAPIError(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(openAIResponse{
			Error: &openAIError{Message: "invalid api key", Type: "auth"},
		})
	})

	_, err := provider.Chat(context.Background(), []Message{UserMessage("hi")}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLLM)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestOpenAIRetriesTransientFailure(t *testing.T) {
	attempts := 0
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{Message: openAIMessage{Role: "assistant", Content: "ok"}}},
		})
	})

	resp, err := provider.Chat(context.Background(), []Message{UserMessage("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, attempts)
}

func TestOpenAINoChoices(t *testing.T) {
	provider, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openAIResponse{})
	})

	_, err := provider.Chat(context.Background(), []Message{UserMessage("hi")}, nil)
	assert.ErrorIs(t, err, ErrLLM)
}

func TestSchemaFor(t *testing.T) {
	type sample struct {
		Decision string `json:"decision"`
		Plan     string `json:"plan,omitempty"`
	}

	schema, err := SchemaFor(&sample{})
	require.NoError(t, err)
	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "$schema")

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "decision")
}

func TestMockScript(t *testing.T) {
	mock := NewMock("").
		EnqueueToolCall("c1", "finalize_research", nil).
		EnqueueText("done")

	resp, err := mock.Chat(context.Background(), []Message{UserMessage("go")}, nil)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "finalize_research", resp.ToolCalls[0].Name)

	resp, err = mock.Chat(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)

	// Script exhausted: empty response, not an error.
	resp, err = mock.Chat(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Text)

	assert.Len(t, mock.Requests, 3)
}
