package orchestrator

import (
	"context"
	"time"

	"github.com/fathomresearch/fathom/pkg/llms"
	"github.com/fathomresearch/fathom/pkg/research"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

// StartResearchEventName routes the research start event.
const StartResearchEventName = "StartResearchEvent"

// StartResearchEvent begins a research run over an approved plan.
type StartResearchEvent struct {
	ResearchID string
	Plan       string
}

func (StartResearchEvent) EventName() string { return StartResearchEventName }

// ResearchResult is the run's final result.
type ResearchResult struct {
	ResearchID string                  `json:"research_id"`
	Report     string                  `json:"report"`
	Status     research.ArtifactStatus `json:"status"`
}

// NewWorkflow wires the orchestrator loop as a single-step workflow with the
// given per-run timeout. Zero timeout means unbounded.
func NewWorkflow(llm llms.LLM, researchAgent, writeAgent AgentFactory, timeout time.Duration) *workflow.Workflow {
	w := workflow.New(workflow.WithTimeout(timeout))

	w.AddStep("run_orchestrator", []string{StartResearchEventName},
		func(ctx context.Context, rc *workflow.Context, ev workflow.Event) (workflow.Event, error) {
			start, ok := ev.(StartResearchEvent)
			if !ok {
				return nil, workflow.ErrInvariant
			}

			state := research.NewDeepResearchState()
			state.Orchestrator.ResearchPlan = start.Plan
			research.SetState(rc.Store(), state)

			ag := New(llm, rc, researchAgent, writeAgent)
			_, err := ag.Run(ctx, rc, "Produce the research report for the plan above. Work plan item by plan item.")

			edit := research.EditState(rc.Store())
			if err != nil {
				edit.State.ResearchArtifact.Status = research.StatusFailed
			} else {
				edit.State.ResearchArtifact.Status = research.StatusCompleted
			}
			report := edit.State.ResearchArtifact.Content
			status := edit.State.ResearchArtifact.Status
			edit.Close()

			if err != nil {
				return nil, err
			}
			return workflow.StopEvent{Result: ResearchResult{
				ResearchID: start.ResearchID,
				Report:     report,
				Status:     status,
			}}, nil
		})

	return w
}
