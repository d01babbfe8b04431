package searcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomresearch/fathom/pkg/config"
	"github.com/fathomresearch/fathom/pkg/llms"
	"github.com/fathomresearch/fathom/pkg/research"
	"github.com/fathomresearch/fathom/pkg/services"
	"github.com/fathomresearch/fathom/pkg/utils"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

// countingSearch is a WebSearch fake that records provider calls.
type countingSearch struct {
	searchCalls int
	results     []services.SearchResult
	pages       map[string]string
}

func (s *countingSearch) Search(ctx context.Context, query string, maxResults int) ([]services.SearchResult, int, error) {
	s.searchCalls++
	results := s.results
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, 1, nil
}

func (s *countingSearch) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	page, ok := s.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", services.ErrDownloadFailed, url)
	}
	return []byte(page), nil
}

func structuredMock(t *testing.T, payload any) *llms.Mock {
	t.Helper()
	mock := llms.NewMock("weak")
	mock.OnChat = func(messages []llms.Message, tools []llms.ToolDefinition) (*llms.Response, error) {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		return &llms.Response{Text: string(raw)}, nil
	}
	return mock
}

func newSearcher(t *testing.T, search *countingSearch) (*Tools, *workflow.Context) {
	t.Helper()

	cfg := &config.ResearchConfig{}
	cfg.SetDefaults()

	store := services.NewMemoryFileStore()
	analyzer, err := services.NewContentAnalyzer(structuredMock(t, services.AnalysisResult{
		Insights: []services.Insight{{Content: "finding", RelevanceScore: 0.9}},
	}))
	require.NoError(t, err)
	counter, err := utils.NewTokenCounter("gpt-4o")
	require.NoError(t, err)

	rc := workflow.NewContext()
	tls := NewTools(rc, cfg, Services{
		Queries:  services.NewQueryService(structuredMock(t, services.QueryPlan{Queries: []string{"deeper angle"}})),
		Search:   search,
		Evidence: services.NewEvidenceService(search, store, services.NewLocalParser(store), analyzer, counter),
		Counter:  counter,
	})
	return tls, rc
}

func seedSeen(rc *workflow.Context, urls ...string) {
	edit := research.EditState(rc.Store())
	edit.State.ResearchTurn.AddSeenURLs(urls)
	edit.Close()
}

func turnState(rc *workflow.Context) research.ResearchTurnState {
	return research.GetState(rc.Store()).ResearchTurn
}

func page(body string) string {
	return "<html><head><title>Doc</title></head><body><p>" + body + "</p></body></html>"
}

func TestWebSearchReturnsFreshResults(t *testing.T) {
	search := &countingSearch{results: []services.SearchResult{
		{Title: "Old", URL: "https://seen.example", Snippet: "old"},
		{Title: "New", URL: "https://new.example", Snippet: "fresh"},
	}}
	tls, rc := newSearcher(t, search)
	seedSeen(rc, "https://seen.example")

	out, err := tls.webSearch(context.Background(), map[string]any{"query": "q"})
	require.NoError(t, err)

	assert.Contains(t, out, "Found 1 new results")
	assert.Contains(t, out, "filtered 1 already-seen URLs")
	assert.Contains(t, out, "URL: https://new.example")
	assert.NotContains(t, out, "Title: Old")
	assert.Equal(t, 0, turnState(rc).NoNewResultsCount)
}

func TestWebSearchResetsCounterOnProgress(t *testing.T) {
	search := &countingSearch{results: []services.SearchResult{
		{Title: "New", URL: "https://new.example", Snippet: "s"},
	}}
	tls, rc := newSearcher(t, search)

	edit := research.EditState(rc.Store())
	edit.State.ResearchTurn.NoNewResultsCount = 1
	edit.Close()

	_, err := tls.webSearch(context.Background(), map[string]any{"query": "q"})
	require.NoError(t, err)
	assert.Equal(t, 0, turnState(rc).NoNewResultsCount)
}

func TestWebSearchNoProgressStreak(t *testing.T) {
	search := &countingSearch{results: []services.SearchResult{
		{Title: "Dup", URL: "https://dup.example", Snippet: "s"},
	}}
	tls, rc := newSearcher(t, search)
	seedSeen(rc, "https://dup.example")
	ctx := context.Background()
	args := map[string]any{"query": "q"}

	out, err := tls.webSearch(ctx, args)
	require.NoError(t, err)
	assert.Contains(t, out, NoNewResults)
	assert.NotContains(t, out, MaxNoNewResultsReached)
	assert.Equal(t, 1, turnState(rc).NoNewResultsCount)
	assert.Equal(t, 1, search.searchCalls)

	out, err = tls.webSearch(ctx, args)
	require.NoError(t, err)
	assert.Contains(t, out, NoNewResults)
	assert.Equal(t, 2, turnState(rc).NoNewResultsCount)
	assert.Equal(t, 2, search.searchCalls)

	// Third attempt short-circuits without a provider call.
	out, err = tls.webSearch(ctx, args)
	require.NoError(t, err)
	assert.Contains(t, out, MaxNoNewResultsReached)
	assert.Equal(t, 2, search.searchCalls)
	assert.GreaterOrEqual(t, turnState(rc).NoNewResultsCount, maxNoNewResults)
}

func TestWebSearchZeroRawResultsIncrements(t *testing.T) {
	search := &countingSearch{}
	tls, rc := newSearcher(t, search)

	out, err := tls.webSearch(context.Background(), map[string]any{"query": "q"})
	require.NoError(t, err)
	assert.Contains(t, out, NoNewResults)
	assert.Contains(t, out, "no results at all")
	assert.Equal(t, 1, turnState(rc).NoNewResultsCount)
}

func TestWebSearchHoardingNote(t *testing.T) {
	search := &countingSearch{results: []services.SearchResult{
		{Title: "Dup", URL: "https://dup.example", Snippet: "s"},
	}}
	tls, rc := newSearcher(t, search)

	// Seen URLs but zero evidence items looks like hoarding.
	edit := research.EditState(rc.Store())
	edit.State.ResearchTurn.AddFailedURLs([]string{"https://dup.example", "https://failed.example"})
	edit.Close()

	out, err := tls.webSearch(context.Background(), map[string]any{"query": "q"})
	require.NoError(t, err)
	assert.Contains(t, out, "generated no evidence yet")
}

func TestGenerateEvidencesMergesState(t *testing.T) {
	search := &countingSearch{pages: map[string]string{
		"https://good.example": page("useful content about the topic"),
	}}
	tls, rc := newSearcher(t, search)
	seedSeen(rc, "https://already.example")

	edit := research.EditState(rc.Store())
	edit.State.ResearchTurn.NoNewResultsCount = 2
	edit.Close()

	out, err := tls.generateEvidences(context.Background(), map[string]any{
		"urls":      []any{"https://good.example", "https://already.example", "https://dead.example"},
		"directive": "extract findings",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "Generated 1 evidence items.")
	assert.Contains(t, out, "https://good.example")
	assert.Contains(t, out, "Failed to read 1 sources: https://dead.example")
	assert.Contains(t, out, "deeper angle")

	turn := turnState(rc)
	require.Len(t, turn.Evidence.Items, 1)
	assert.Equal(t, "https://good.example", turn.Evidence.Items[0].URL)
	assert.Equal(t, []string{"https://dead.example"}, turn.FailedURLs)
	assert.Contains(t, turn.SeenURLs, "https://good.example")
	assert.Contains(t, turn.SeenURLs, "https://dead.example")
	assert.Equal(t, []string{"deeper angle"}, turn.FollowUpQueries)
	assert.Equal(t, 0, turn.NoNewResultsCount)
}

func TestGenerateEvidencesAllDuplicates(t *testing.T) {
	tls, rc := newSearcher(t, &countingSearch{})
	seedSeen(rc, "https://a.example", "https://b.example")

	out, err := tls.generateEvidences(context.Background(), map[string]any{
		"urls":      []any{"https://a.example", "https://b.example"},
		"directive": "d",
	})
	require.NoError(t, err)
	assert.Equal(t, "All provided URLs have already been processed.", out)
}

func TestFinalizeResearchTotals(t *testing.T) {
	tls, rc := newSearcher(t, &countingSearch{})

	edit := research.EditState(rc.Store())
	edit.State.ResearchTurn.AddEvidenceItems([]research.EvidenceItem{
		{URL: "https://a.example", Content: "c", Summary: "s", Assets: []research.Asset{
			{ID: "asset-1", Type: research.AssetImage, URL: "https://a.example/i.png", IsSelected: true},
		}},
	})
	edit.State.ResearchTurn.AddFailedURLs([]string{"https://dead.example"})
	edit.Close()

	out, err := tls.finalizeResearch(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Evidence items: 1.")
	assert.Contains(t, out, "URLs seen: 2.")
	assert.Contains(t, out, "URLs failed: 1.")
	assert.Contains(t, out, "image=1")
}

func TestSearcherAgentRunEndsWithFinalize(t *testing.T) {
	search := &countingSearch{
		results: []services.SearchResult{{Title: "New", URL: "https://new.example", Snippet: "s"}},
		pages:   map[string]string{"https://new.example": page("useful content")},
	}
	tls, rc := newSearcher(t, search)

	main := llms.NewMock("main")
	main.EnqueueToolCall("c1", "web_search", map[string]any{"query": "q"})
	main.EnqueueToolCall("c2", "generate_evidences", map[string]any{
		"urls": []any{"https://new.example"}, "directive": "d",
	})
	main.EnqueueToolCall("c3", "finalize_research", map[string]any{})

	ag := New(main, rc, tls.cfg, tls.svcs)
	out, err := ag.Run(context.Background(), rc, "research goal")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "Research complete."))
	assert.Len(t, turnState(rc).Evidence.Items, 1)
}

func TestSystemPromptMentionsSentinels(t *testing.T) {
	prompt := SystemPrompt()
	assert.Contains(t, prompt, NoNewResults)
	assert.Contains(t, prompt, MaxNoNewResultsReached)
	assert.Contains(t, prompt, "finalize_research")
	assert.Contains(t, prompt, "Current date:")
}
