package research

import (
	"github.com/fathomresearch/fathom/pkg/config"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

// StateKey is the single well-known store key holding the DeepResearchState.
const StateKey = "deep_research_state"

// ArtifactStatus is the report lifecycle state.
type ArtifactStatus string

const (
	StatusRunning   ArtifactStatus = "running"
	StatusCompleted ArtifactStatus = "completed"
	StatusFailed    ArtifactStatus = "failed"
)

// OrchestratorState carries the accepted research plan.
type OrchestratorState struct {
	ResearchPlan string `json:"research_plan"`
}

// ResearchTurnState accumulates one search turn: URL bookkeeping, gathered
// evidence, follow-up queries, and the no-progress counter.
type ResearchTurnState struct {
	SeenURLs          []string       `json:"seen_urls"`
	FailedURLs        []string       `json:"failed_urls"`
	Evidence          EvidenceBundle `json:"evidence"`
	FollowUpQueries   []string       `json:"follow_up_queries"`
	NoNewResultsCount int            `json:"no_new_results_count"`
}

// Clear resets all turn fields.
func (t *ResearchTurnState) Clear() {
	t.SeenURLs = nil
	t.FailedURLs = nil
	t.Evidence = EvidenceBundle{}
	t.FollowUpQueries = nil
	t.NoNewResultsCount = 0
}

// HasSeen reports whether url was already observed this turn.
func (t *ResearchTurnState) HasSeen(url string) bool {
	for _, u := range t.SeenURLs {
		if u == url {
			return true
		}
	}
	return false
}

// AddSeenURLs merges urls into the seen set, preserving insertion order.
func (t *ResearchTurnState) AddSeenURLs(urls []string) {
	for _, url := range urls {
		if url != "" && !t.HasSeen(url) {
			t.SeenURLs = append(t.SeenURLs, url)
		}
	}
}

// AddFailedURLs merges urls into the failed set and the seen set; failed
// sources stay visible to the dedupe filter.
func (t *ResearchTurnState) AddFailedURLs(urls []string) {
	for _, url := range urls {
		if url == "" {
			continue
		}
		present := false
		for _, u := range t.FailedURLs {
			if u == url {
				present = true
				break
			}
		}
		if !present {
			t.FailedURLs = append(t.FailedURLs, url)
		}
	}
	t.AddSeenURLs(urls)
}

// AddEvidenceItems appends items and records their URLs as seen.
func (t *ResearchTurnState) AddEvidenceItems(items []EvidenceItem) {
	for _, item := range items {
		t.Evidence.Items = append(t.Evidence.Items, item.Clone())
		t.AddSeenURLs([]string{item.URL})
	}
}

// Clone returns a deep copy.
func (t ResearchTurnState) Clone() ResearchTurnState {
	out := t
	out.SeenURLs = append([]string(nil), t.SeenURLs...)
	out.FailedURLs = append([]string(nil), t.FailedURLs...)
	out.FollowUpQueries = append([]string(nil), t.FollowUpQueries...)
	out.Evidence = t.Evidence.Clone()
	return out
}

// ResearchArtifactState is the report artifact: committed content plus an
// uncommitted draft buffer. TurnDraft nil means no edits are outstanding.
type ResearchArtifactState struct {
	Path      string         `json:"path"`
	Content   string         `json:"content"`
	TurnDraft *string        `json:"turn_draft"`
	Status    ArtifactStatus `json:"status"`
}

// Clone returns a deep copy.
func (a ResearchArtifactState) Clone() ResearchArtifactState {
	out := a
	if a.TurnDraft != nil {
		draft := *a.TurnDraft
		out.TurnDraft = &draft
	}
	return out
}

// DeepResearchState is the nested record stored under StateKey.
type DeepResearchState struct {
	Orchestrator     OrchestratorState     `json:"orchestrator"`
	ResearchTurn     ResearchTurnState     `json:"research_turn"`
	ResearchArtifact ResearchArtifactState `json:"research_artifact"`
}

// NewDeepResearchState returns the zero state with artifact defaults set.
func NewDeepResearchState() *DeepResearchState {
	return &DeepResearchState{
		ResearchArtifact: ResearchArtifactState{
			Path:   config.ReportArtifactPath,
			Status: StatusRunning,
		},
	}
}

// Clone returns a deep copy.
func (s *DeepResearchState) Clone() *DeepResearchState {
	return &DeepResearchState{
		Orchestrator:     s.Orchestrator,
		ResearchTurn:     s.ResearchTurn.Clone(),
		ResearchArtifact: s.ResearchArtifact.Clone(),
	}
}

// GetState reads a deep-copied snapshot of the state from the store. Absent
// state yields a fresh default record.
func GetState(store *workflow.Store) *DeepResearchState {
	if s, ok := store.Get(StateKey, nil).(*DeepResearchState); ok {
		return s.Clone()
	}
	return NewDeepResearchState()
}

// SetState stores a deep copy of s.
func SetState(store *workflow.Store, s *DeepResearchState) {
	store.Set(StateKey, s.Clone())
}

// StateEdit is a scoped exclusive edit of the research state. Mutate State
// and Close to publish; Discard abandons the changes.
type StateEdit struct {
	editor *workflow.Editor

	State *DeepResearchState
}

// EditState opens an exclusive edit over the state key.
func EditState(store *workflow.Store) *StateEdit {
	editor := store.Edit(StateKey)

	var state *DeepResearchState
	if current, ok := editor.Value.(*DeepResearchState); ok {
		state = current.Clone()
	} else {
		state = NewDeepResearchState()
	}
	return &StateEdit{editor: editor, State: state}
}

// Close publishes the edited state and releases the key.
func (e *StateEdit) Close() {
	e.editor.Value = e.State
	e.editor.Close()
}

// Discard releases the key without publishing.
func (e *StateEdit) Discard() {
	e.editor.Discard()
}
