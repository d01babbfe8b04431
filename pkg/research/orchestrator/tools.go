// Package orchestrator implements the plan-to-report decision loop. The
// orchestrator agent sees the plan, the live report, and the latest evidence
// summary, and drives the Searcher and Writer as isolated sub-agents that
// exchange only state snapshots.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/fathomresearch/fathom/pkg/agent"
	"github.com/fathomresearch/fathom/pkg/research"
	"github.com/fathomresearch/fathom/pkg/tools"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

// AgentFactory builds a sub-agent bound to a fresh run context. Factories
// break the dependency cycle between the orchestrator and its sub-agents.
type AgentFactory func(rc *workflow.Context) *agent.Agent

// Tools exposes the two orchestrator tools over one run context.
type Tools struct {
	rc            *workflow.Context
	researchAgent AgentFactory
	writeAgent    AgentFactory
}

// NewTools creates the tool set bound to rc's state store.
func NewTools(rc *workflow.Context, researchAgent, writeAgent AgentFactory) *Tools {
	return &Tools{rc: rc, researchAgent: researchAgent, writeAgent: writeAgent}
}

// Registry returns the orchestrator tools.
func (t *Tools) Registry() *tools.Registry {
	return tools.NewRegistry().MustRegister(
		tools.NewFuncTool(tools.ToolInfo{
			Name: "call_research_agent",
			Description: "Hand one specific research question to the Searcher. " +
				"Returns a summary of the evidence gathered for it.",
			Parameters: []tools.ToolParameter{
				{Name: "prompt", Type: "string", Description: "The research goal for this turn, one focused question.", Required: true},
			},
		}, t.callResearchAgent),

		tools.NewFuncTool(tools.ToolInfo{
			Name: "call_write_agent",
			Description: "Hand an editorial instruction to the Writer, who updates the report " +
				"from the gathered evidence. Include an explicit word count target.",
			Parameters: []tools.ToolParameter{
				{Name: "instruction", Type: "string", Description: "The editorial instruction for this writing session.", Required: true},
			},
		}, t.callWriteAgent),
	)
}

func (t *Tools) callResearchAgent(ctx context.Context, args map[string]any) (string, error) {
	prompt := tools.StringArg(args, "prompt")
	if prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}

	parent := research.GetState(t.rc.Store())

	child := workflow.NewContext()
	childState := research.NewDeepResearchState()
	childState.Orchestrator.ResearchPlan = parent.Orchestrator.ResearchPlan
	childState.ResearchArtifact = parent.ResearchArtifact.Clone()
	childState.ResearchTurn = parent.ResearchTurn.Clone()
	research.SetState(child.Store(), childState)

	if _, err := t.runChild(ctx, t.researchAgent, child, prompt); err != nil {
		return "", fmt.Errorf("research agent: %w", err)
	}

	final := research.GetState(child.Store())

	edit := research.EditState(t.rc.Store())
	edit.State.ResearchTurn = final.ResearchTurn.Clone()
	edit.Close()

	return final.ResearchTurn.Evidence.Summary(), nil
}

func (t *Tools) callWriteAgent(ctx context.Context, args map[string]any) (string, error) {
	instruction := tools.StringArg(args, "instruction")
	if instruction == "" {
		return "", fmt.Errorf("instruction is required")
	}

	parent := research.GetState(t.rc.Store())

	child := workflow.NewContext()
	childState := research.NewDeepResearchState()
	childState.Orchestrator.ResearchPlan = parent.Orchestrator.ResearchPlan
	childState.ResearchArtifact = parent.ResearchArtifact.Clone()
	childState.ResearchTurn = parent.ResearchTurn.Clone()
	draft := parent.ResearchArtifact.Content
	childState.ResearchArtifact.TurnDraft = &draft
	research.SetState(child.Store(), childState)

	if _, err := t.runChild(ctx, t.writeAgent, child, "Instruction: "+instruction); err != nil {
		return "", fmt.Errorf("write agent: %w", err)
	}

	final := research.GetState(child.Store())

	edit := research.EditState(t.rc.Store())
	edit.State.ResearchArtifact.Content = final.ResearchArtifact.Content
	edit.State.ResearchArtifact.TurnDraft = nil
	edit.State.ResearchTurn.Clear()
	edit.Close()

	return "Writing session finished. Report updated.", nil
}

// runChild executes a sub-agent over its own context while forwarding its
// stream to the parent, so the user sees a single event stream.
func (t *Tools) runChild(ctx context.Context, factory AgentFactory, child *workflow.Context, input string) (string, error) {
	forwarded := make(chan struct{})
	go func() {
		t.rc.ForwardStream(child)
		close(forwarded)
	}()

	sub := factory(child)
	out, err := sub.Run(ctx, child, input)

	child.CloseStream()
	<-forwarded
	return out, err
}
