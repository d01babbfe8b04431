package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fathomresearch/fathom/pkg/config"
	"github.com/fathomresearch/fathom/pkg/llms"
	"github.com/fathomresearch/fathom/pkg/memory"
	"github.com/fathomresearch/fathom/pkg/services"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

const (
	planStateKey = "research_plan_state"
	memoryKey    = "planner_memory"

	hitlWaiterID = "planner"
)

const systemPromptBase = `You are an expert deep-research planner collaborating with a human.

Goal: produce a high-quality research plan through HITL iterations.

You MUST output a valid JSON object that matches the PlannerAgentOutput schema.

The generated plan must be ready to be accepted. No meta questions about the topic.

Plan editing rules:
- If the user asks for ANY change, you MUST update the plan accordingly.
- Preserve the existing plan structure, numbering, and wording as much as possible.
- Do NOT add new sections, new deliverables, new data sources, new methodology, or new scope expansions unless the user explicitly asks.
- Do NOT add a 'Timeline' (or estimates of time/effort) unless the user explicitly asks for timing.
- Always return the FULL revised plan in the 'plan' field (raw text, not JSON).
- Avoid changing the plan between interactions unless the user explicitly asks.

Your job: convert the user's request into a compact research plan as questions we will research.

Decision policy (HITL):
- decision='propose_plan': Present a plan (initial or revised) for user review.
- decision='finalize': Use this when the user agrees with the plan (e.g., they say 'accept').
  This is the TERMINAL step. The workflow will end here.
- If details are missing in the query, ask clarifying questions in response, and propose the best plan you can.`

func buildSystemPrompt(currentPlan string) string {
	plan := strings.TrimSpace(currentPlan)
	if plan == "" {
		plan = "(none yet)"
	}
	return systemPromptBase + "\n\nCurrent plan:\n" + plan + "\n"
}

// planner holds the dependencies shared by the workflow's steps.
type planner struct {
	llm      llms.LLM
	cfg      *config.ResearchConfig
	sessions services.SessionStore
}

// NewWorkflow assembles the HITL planning workflow. Planning runs are
// unbounded in time; the human side of the loop has no deadline.
func NewWorkflow(llm llms.LLM, cfg *config.ResearchConfig, sessions services.SessionStore) *workflow.Workflow {
	p := &planner{llm: llm, cfg: cfg, sessions: sessions}

	w := workflow.New()
	w.AddStep("init_session", []string{StartPlanEventName}, p.initSession)
	w.AddStep("run_planner_llm", []string{PlannerTurnEventName}, p.runPlannerLLM)
	w.AddStep("apply_plan_update", []string{PlannerOutputEventName}, p.applyPlanUpdate)
	w.AddStep("on_human_response", []string{workflow.HumanResponseEventName}, p.onHumanResponse)
	return w
}

func getPlanState(store *workflow.Store) *PlanState {
	if s, ok := store.Get(planStateKey, nil).(*PlanState); ok {
		copied := *s
		return &copied
	}
	return &PlanState{Status: StatusPlanning}
}

func setPlanState(store *workflow.Store, s *PlanState) {
	copied := *s
	store.Set(planStateKey, &copied)
}

func getMemory(store *workflow.Store) *memory.Buffer {
	if m, ok := store.Get(memoryKey, nil).(*memory.Buffer); ok {
		return m
	}
	buf := memory.NewBuffer()
	store.Set(memoryKey, buf)
	return buf
}

func (p *planner) initSession(ctx context.Context, rc *workflow.Context, ev workflow.Event) (workflow.Event, error) {
	start, ok := ev.(StartPlanEvent)
	if !ok {
		return nil, fmt.Errorf("%w: init_session expects StartPlanEvent", workflow.ErrInvariant)
	}

	setPlanState(rc.Store(), &PlanState{
		InitialQuery: start.InitialQuery,
		ResearchID:   uuid.NewString(),
		Status:       StatusPlanning,
	})
	rc.Store().Set(memoryKey, memory.NewBuffer())

	rc.WriteEventToStream(PlannerStatusEvent{Level: "info", Message: "planning session started"})
	return PlannerTurnEvent{Message: start.InitialQuery}, nil
}

func (p *planner) runPlannerLLM(ctx context.Context, rc *workflow.Context, ev workflow.Event) (workflow.Event, error) {
	turn, ok := ev.(PlannerTurnEvent)
	if !ok {
		return nil, fmt.Errorf("%w: run_planner_llm expects PlannerTurnEvent", workflow.ErrInvariant)
	}

	state := getPlanState(rc.Store())

	messages := []llms.Message{llms.SystemMessage(buildSystemPrompt(state.PlanText))}
	messages = append(messages, getMemory(rc.Store()).Messages()...)
	messages = append(messages, llms.UserMessage(turn.Message))

	structured, err := llms.StructuredFor("planner_agent_output", &PlannerAgentOutput{})
	if err != nil {
		return nil, err
	}
	resp, err := p.llm.ChatStructured(ctx, messages, structured)
	if err != nil {
		return nil, fmt.Errorf("planner llm: %w", err)
	}

	var out PlannerAgentOutput
	if err := llms.DecodeStructured(resp.Text, &out); err != nil {
		return nil, fmt.Errorf("planner output: %w", err)
	}
	out.TextConfig.SetDefaults()

	return PlannerOutputEvent{Output: out, UserMessage: turn.Message}, nil
}

func (p *planner) applyPlanUpdate(ctx context.Context, rc *workflow.Context, ev workflow.Event) (workflow.Event, error) {
	output, ok := ev.(PlannerOutputEvent)
	if !ok {
		return nil, fmt.Errorf("%w: apply_plan_update expects PlannerOutputEvent", workflow.ErrInvariant)
	}

	getMemory(rc.Store()).Add(
		llms.UserMessage(output.UserMessage),
		llms.AssistantMessage(output.Output.Response),
	)

	state := getPlanState(rc.Store())
	state.PlanText = output.Output.Plan
	state.TextConfig = output.Output.TextConfig
	setPlanState(rc.Store(), state)

	if output.Output.Decision != DecisionFinalize {
		prefix := fmt.Sprintf(
			"Current Plan:\n%s\n\n-----------------------\n\n%s\n\nIf the actual plan is good enough, type 'accept' to approve, or reply with edits.",
			output.Output.Plan, output.Output.Response,
		)
		rc.WriteEventToStream(workflow.InputRequiredEvent{Prefix: prefix, WaiterID: hitlWaiterID})
		return nil, nil
	}

	return p.finalize(ctx, rc)
}

func (p *planner) onHumanResponse(ctx context.Context, rc *workflow.Context, ev workflow.Event) (workflow.Event, error) {
	response, ok := ev.(workflow.HumanResponseEvent)
	if !ok {
		return nil, fmt.Errorf("%w: on_human_response expects HumanResponseEvent", workflow.ErrInvariant)
	}

	if strings.EqualFold(strings.TrimSpace(response.Response), "accept") {
		if getPlanState(rc.Store()).PlanText != "" {
			return p.finalize(ctx, rc)
		}
		// Nothing to accept yet; treat it as another planning turn.
	}
	return PlannerTurnEvent{Message: response.Response}, nil
}

func (p *planner) finalize(ctx context.Context, rc *workflow.Context) (workflow.Event, error) {
	state := getPlanState(rc.Store())
	state.Status = StatusFinalized
	setPlanState(rc.Store(), state)

	textConfig, err := json.Marshal(state.TextConfig)
	if err != nil {
		return nil, err
	}
	record := services.SessionRecord{
		ResearchID:   state.ResearchID,
		Status:       state.Status,
		InitialQuery: state.InitialQuery,
		Plan:         state.PlanText,
		TextConfig:   textConfig,
	}
	if err := p.sessions.Upsert(ctx, p.cfg.Collections.ResearchCollection, record); err != nil {
		rc.WriteEventToStream(PlannerStatusEvent{Level: "error", Message: "session persistence failed: " + err.Error()})
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	rc.WriteEventToStream(PlannerStatusEvent{Level: "info", Message: "plan finalized"})
	return workflow.StopEvent{Result: PlanResult{
		ResearchID:   state.ResearchID,
		Status:       state.Status,
		InitialQuery: state.InitialQuery,
		Plan:         state.PlanText,
		TextConfig:   state.TextConfig,
	}}, nil
}
