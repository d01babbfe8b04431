package orchestrator

import (
	"context"
	"strings"

	"github.com/fathomresearch/fathom/pkg/agent"
	"github.com/fathomresearch/fathom/pkg/llms"
	"github.com/fathomresearch/fathom/pkg/research"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

// orchestratorMaxIterations bounds one full research run: alternating
// research and writing turns until the plan is covered.
const orchestratorMaxIterations = 40

// New builds the orchestrator agent bound to rc.
func New(llm llms.LLM, rc *workflow.Context, researchAgent, writeAgent AgentFactory) *agent.Agent {
	t := NewTools(rc, researchAgent, writeAgent)
	return agent.New("orchestrator", llm, t.Registry(),
		agent.WithSystemPrompt(SystemPrompt("", "", "No evidence gathered yet.", 0)),
		agent.WithMaxIterations(orchestratorMaxIterations),
		agent.WithPrepareStep(prepareStep),
	)
}

func prepareStep(ctx context.Context, rc *workflow.Context, messages []llms.Message) ([]llms.Message, error) {
	state := research.GetState(rc.Store())

	prepared := append([]llms.Message(nil), messages...)
	prepared[0] = llms.SystemMessage(SystemPrompt(
		state.Orchestrator.ResearchPlan,
		state.ResearchArtifact.Content,
		state.ResearchTurn.Evidence.Summary(),
		len(strings.Fields(state.ResearchArtifact.Content)),
	))
	return prepared, nil
}
