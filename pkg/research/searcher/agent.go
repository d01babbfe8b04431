package searcher

import (
	"github.com/fathomresearch/fathom/pkg/agent"
	"github.com/fathomresearch/fathom/pkg/config"
	"github.com/fathomresearch/fathom/pkg/llms"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

// searcherMaxIterations allows several plan/search/read cycles before the
// loop gives up.
const searcherMaxIterations = 30

// New builds the searcher agent bound to rc. The orchestrator creates one
// per research call with a fresh sub-agent context.
func New(llm llms.LLM, rc *workflow.Context, cfg *config.ResearchConfig, svcs Services) *agent.Agent {
	t := NewTools(rc, cfg, svcs)
	return agent.New("searcher", llm, t.Registry(),
		agent.WithSystemPrompt(SystemPrompt()),
		agent.WithMaxIterations(searcherMaxIterations),
	)
}
