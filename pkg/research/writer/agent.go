package writer

import (
	"context"
	"strings"

	"github.com/fathomresearch/fathom/pkg/agent"
	"github.com/fathomresearch/fathom/pkg/llms"
	"github.com/fathomresearch/fathom/pkg/research"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

const writerMaxIterations = 15

// New builds the writer agent bound to rc. The system prompt is recomputed
// from state before every model call so the agent always sees the live draft
// and word count.
func New(llm llms.LLM, rc *workflow.Context) *agent.Agent {
	t := NewTools(rc)
	return agent.New("writer", llm, t.Registry(),
		agent.WithSystemPrompt(SystemPrompt("", "No evidence available.", "", 0)),
		agent.WithMaxIterations(writerMaxIterations),
		agent.WithPrepareStep(prepareStep),
	)
}

func prepareStep(ctx context.Context, rc *workflow.Context, messages []llms.Message) ([]llms.Message, error) {
	state := research.GetState(rc.Store())

	draft := state.ResearchArtifact.Content
	if state.ResearchArtifact.TurnDraft != nil {
		draft = *state.ResearchArtifact.TurnDraft
	}

	prepared := append([]llms.Message(nil), messages...)
	prepared[0] = llms.SystemMessage(SystemPrompt(
		state.ResearchArtifact.Content,
		state.ResearchTurn.Evidence.ContentForWriting(),
		draft,
		len(strings.Fields(draft)),
	))
	return prepared, nil
}
