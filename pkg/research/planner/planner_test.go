package planner

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomresearch/fathom/pkg/config"
	"github.com/fathomresearch/fathom/pkg/llms"
	"github.com/fathomresearch/fathom/pkg/services"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

func plannerResponse(t *testing.T, decision, response, plan string) *llms.Response {
	t.Helper()
	raw, err := json.Marshal(PlannerAgentOutput{
		Decision:   decision,
		Response:   response,
		Plan:       plan,
		TextConfig: TextSynthesizerConfig{TargetWords: 900},
	})
	require.NoError(t, err)
	return &llms.Response{Text: string(raw)}
}

func newPlannerFixture(t *testing.T) (*config.ResearchConfig, *services.SQLiteSessionStore) {
	t.Helper()
	cfg := &config.ResearchConfig{}
	cfg.SetDefaults()

	sessions, err := services.NewSQLiteSessionStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })
	return cfg, sessions
}

func TestPlannerHappyPath(t *testing.T) {
	cfg, sessions := newPlannerFixture(t)

	llm := llms.NewMock("main")
	llm.Enqueue(
		plannerResponse(t, DecisionProposePlan, "Here is the plan.", "1. Energy density\n2. Safety\n3. Cost"),
		plannerResponse(t, DecisionProposePlan, "Trimmed to 3 sections.", "1. Energy density\n2. Safety\n3. Outlook"),
		plannerResponse(t, DecisionFinalize, "Finalizing.", "1. Energy density\n2. Safety\n3. Outlook"),
	)

	w := NewWorkflow(llm, cfg, sessions)
	run := w.Start(context.Background(), StartPlanEvent{
		InitialQuery: "Compare SSB vs Li-ion batteries (energy density & safety)",
	})

	responses := []string{"please keep to 3 sections", "accept"}
	inputRequests := 0
	for ev := range run.Stream() {
		if _, ok := ev.(workflow.InputRequiredEvent); ok {
			require.Less(t, inputRequests, len(responses))
			run.SendEvent(workflow.HumanResponseEvent{Response: responses[inputRequests], WaiterID: hitlWaiterID})
			inputRequests++
		}
	}

	result, err := run.Wait()
	require.NoError(t, err)
	assert.Equal(t, 2, inputRequests)

	plan, ok := result.(PlanResult)
	require.True(t, ok)
	assert.Equal(t, StatusFinalized, plan.Status)
	assert.NotEmpty(t, plan.Plan)
	_, err = uuid.Parse(plan.ResearchID)
	assert.NoError(t, err)

	record, err := sessions.Get(context.Background(), cfg.Collections.ResearchCollection, plan.ResearchID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, plan.Plan, record.Plan)
	assert.Equal(t, StatusFinalized, record.Status)
	assert.Contains(t, string(record.TextConfig), `"target_words":900`)
}

func TestPlannerFinalizeWithoutResponseCycle(t *testing.T) {
	cfg, sessions := newPlannerFixture(t)

	// A finalize decision on the first turn stops without any HITL round.
	llm := llms.NewMock("main")
	llm.Enqueue(plannerResponse(t, DecisionFinalize, "Done.", "1. Only question"))

	w := NewWorkflow(llm, cfg, sessions)
	run := w.Start(context.Background(), StartPlanEvent{InitialQuery: "q"})

	sawInputRequired := false
	for ev := range run.Stream() {
		if _, ok := ev.(workflow.InputRequiredEvent); ok {
			sawInputRequired = true
		}
	}

	result, err := run.Wait()
	require.NoError(t, err)
	assert.False(t, sawInputRequired)
	assert.Equal(t, StatusFinalized, result.(PlanResult).Status)
}

func TestOnHumanResponseAcceptWithoutPlanContinues(t *testing.T) {
	cfg, sessions := newPlannerFixture(t)
	p := &planner{llm: llms.NewMock(""), cfg: cfg, sessions: sessions}
	rc := workflow.NewContext()

	out, err := p.onHumanResponse(context.Background(), rc, workflow.HumanResponseEvent{Response: "accept"})
	require.NoError(t, err)

	turn, ok := out.(PlannerTurnEvent)
	require.True(t, ok)
	assert.Equal(t, "accept", turn.Message)
}

func TestPlannerMemoryCarriesHistory(t *testing.T) {
	cfg, sessions := newPlannerFixture(t)

	llm := llms.NewMock("main")
	llm.Enqueue(
		plannerResponse(t, DecisionProposePlan, "First draft.", "1. A"),
		plannerResponse(t, DecisionFinalize, "Ok.", "1. A"),
	)

	w := NewWorkflow(llm, cfg, sessions)
	run := w.Start(context.Background(), StartPlanEvent{InitialQuery: "the query"})

	for ev := range run.Stream() {
		if _, ok := ev.(workflow.InputRequiredEvent); ok {
			run.SendEvent(workflow.HumanResponseEvent{Response: "looks wrong, fix it", WaiterID: hitlWaiterID})
		}
	}
	_, err := run.Wait()
	require.NoError(t, err)

	// The second model call sees the first exchange plus the new message.
	require.Len(t, llm.Requests, 2)
	second := llm.Requests[1]
	require.GreaterOrEqual(t, len(second), 4)
	assert.Equal(t, llms.RoleSystem, second[0].Role)
	assert.Equal(t, "the query", second[1].Content)
	assert.Equal(t, "First draft.", second[2].Content)
	assert.Equal(t, "looks wrong, fix it", second[len(second)-1].Content)
	// The hot system prompt carries the current plan.
	assert.Contains(t, second[0].Content, "Current plan:\n1. A")
}

func TestTextConfigFormat(t *testing.T) {
	cfg := TextSynthesizerConfig{}
	cfg.SetDefaults()

	block := cfg.Format()
	assert.Contains(t, block, "OUTPUT CONFIG (GUIDE)")
	assert.Contains(t, block, "- synthesis_type: Report")
	assert.Contains(t, block, "- target_words: 1200")
	assert.NotContains(t, block, "custom_instructions")

	cfg.CustomInstructions = "no bullet lists"
	assert.Contains(t, cfg.Format(), "- custom_instructions: no bullet lists")
}

func TestRenderedPlanAppendsConfig(t *testing.T) {
	result := PlanResult{Plan: "1. A\n2. B"}
	result.TextConfig.SetDefaults()

	rendered := result.RenderedPlan()
	assert.True(t, strings.HasPrefix(rendered, "1. A\n2. B\n\n"))
	assert.Contains(t, rendered, "OUTPUT CONFIG (GUIDE)")
}
