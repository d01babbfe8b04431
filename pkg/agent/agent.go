// Package agent implements the tool-calling loop shared by every worker:
// chat with the model, dispatch requested tools concurrently, feed results
// back, and stop on a plain answer or a return-direct tool.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/fathomresearch/fathom/pkg/llms"
	"github.com/fathomresearch/fathom/pkg/tools"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

const defaultMaxIterations = 20

// ErrIterationLimit is returned when the loop exhausts its iteration budget
// without producing a final answer.
var ErrIterationLimit = errors.New("iteration limit exceeded")

// PrepareStep runs before every model call with the working message list.
// It may rewrite messages (typically the system prompt) to reflect current
// run state. The first message must remain a system message.
type PrepareStep func(ctx context.Context, rc *workflow.Context, messages []llms.Message) ([]llms.Message, error)

// Agent runs one tool loop against a fixed registry.
type Agent struct {
	name          string
	llm           llms.LLM
	registry      *tools.Registry
	systemPrompt  string
	maxIterations int
	prepareStep   PrepareStep
}

// Option configures an Agent.
type Option func(*Agent)

// WithSystemPrompt sets the static system prompt used when no PrepareStep
// rewrites it.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) { a.systemPrompt = prompt }
}

// WithMaxIterations caps model turns per run.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithPrepareStep installs the pre-call hook.
func WithPrepareStep(hook PrepareStep) Option {
	return func(a *Agent) { a.prepareStep = hook }
}

// New creates an agent.
func New(name string, llm llms.LLM, registry *tools.Registry, opts ...Option) *Agent {
	a := &Agent{
		name:          name,
		llm:           llm,
		registry:      registry,
		maxIterations: defaultMaxIterations,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Run executes the loop for a single user input.
func (a *Agent) Run(ctx context.Context, rc *workflow.Context, input string) (string, error) {
	return a.RunMessages(ctx, rc, []llms.Message{
		llms.SystemMessage(a.systemPrompt),
		llms.UserMessage(input),
	})
}

// RunMessages executes the loop over an explicit seed conversation. The seed
// must start with a system message.
func (a *Agent) RunMessages(ctx context.Context, rc *workflow.Context, messages []llms.Message) (string, error) {
	if len(messages) == 0 || messages[0].Role != llms.RoleSystem {
		return "", fmt.Errorf("%w: conversation must start with a system message", workflow.ErrInvariant)
	}

	defs := a.registry.Definitions()

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		if a.prepareStep != nil {
			prepared, err := a.prepareStep(ctx, rc, messages)
			if err != nil {
				return "", fmt.Errorf("prepare step: %w", err)
			}
			if len(prepared) == 0 || prepared[0].Role != llms.RoleSystem {
				return "", fmt.Errorf("%w: prepare step must keep a leading system message", workflow.ErrInvariant)
			}
			messages = prepared
		}

		resp, err := a.llm.Chat(ctx, messages, defs)
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		messages = append(messages, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		results, err := a.dispatch(ctx, rc, resp.ToolCalls)
		if err != nil {
			return "", err
		}

		for i, result := range results {
			messages = append(messages, llms.ToolMessage(resp.ToolCalls[i].ID, resultContent(result)))
		}

		// A successful return-direct tool ends the loop; its content is the
		// final answer. Failed ones stay in the conversation so the model
		// can correct itself.
		for i, result := range results {
			if !result.Success {
				continue
			}
			if tool, ok := a.registry.Get(resp.ToolCalls[i].Name); ok && tool.GetInfo().ReturnDirect {
				return result.Content, nil
			}
		}
	}

	return "", fmt.Errorf("%w: agent %s exceeded %d iterations", ErrIterationLimit, a.name, a.maxIterations)
}

// dispatch executes all requested tool calls concurrently and returns their
// results in call order.
func (a *Agent) dispatch(ctx context.Context, rc *workflow.Context, calls []llms.ToolCall) ([]tools.ToolResult, error) {
	results := make([]tools.ToolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			if rc != nil {
				rc.WriteEventToStream(ToolCallEvent{Agent: a.name, Tool: call.Name, Args: call.Args})
			}

			tool, ok := a.registry.Get(call.Name)
			if !ok {
				results[i] = tools.ToolResult{
					Success:  false,
					Error:    fmt.Sprintf("unknown tool: %s", call.Name),
					ToolName: call.Name,
				}
				return nil
			}

			result, err := tool.Execute(gctx, call.Args)
			if err != nil {
				return fmt.Errorf("tool %s: %w", call.Name, err)
			}
			if !result.Success {
				slog.Warn("tool execution failed", "agent", a.name, "tool", call.Name, "error", result.Error)
			}
			results[i] = result

			if rc != nil {
				rc.WriteEventToStream(ToolResultEvent{
					Agent:   a.name,
					Tool:    call.Name,
					Success: result.Success,
					Content: resultContent(result),
				})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func resultContent(result tools.ToolResult) string {
	if result.Success {
		return result.Content
	}
	return fmt.Sprintf("Error: %s", result.Error)
}
