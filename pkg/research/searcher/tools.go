// Package searcher implements the evidence-gathering agent: query planning,
// web search with per-turn URL deduplication, the evidence pipeline, and
// no-progress detection.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fathomresearch/fathom/pkg/config"
	"github.com/fathomresearch/fathom/pkg/research"
	"github.com/fathomresearch/fathom/pkg/services"
	"github.com/fathomresearch/fathom/pkg/tools"
	"github.com/fathomresearch/fathom/pkg/utils"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

// Sentinel tokens returned by web_search. The system prompt tells the model
// how to react to each.
const (
	NoNewResults           = "NO_NEW_RESULTS"
	MaxNoNewResultsReached = "MAX_NO_NEW_RESULTS_REACHED"
)

// maxNoNewResults is the no-progress streak at which web_search stops
// calling the search provider.
const maxNoNewResults = 3

// Services bundles the external capabilities the searcher tools consume.
type Services struct {
	Queries  *services.QueryService
	Search   services.WebSearch
	Evidence *services.EvidenceService
	Counter  *utils.TokenCounter
}

// Tools exposes the searcher tool set over one run context.
type Tools struct {
	rc   *workflow.Context
	cfg  *config.ResearchConfig
	svcs Services
}

// NewTools creates the tool set bound to rc's state store.
func NewTools(rc *workflow.Context, cfg *config.ResearchConfig, svcs Services) *Tools {
	return &Tools{rc: rc, cfg: cfg, svcs: svcs}
}

// Registry returns the four searcher tools.
func (t *Tools) Registry() *tools.Registry {
	return tools.NewRegistry().MustRegister(
		tools.NewFuncTool(tools.ToolInfo{
			Name: "plan_search_queries",
			Description: "Decompose the research goal into engine-ready web search queries. " +
				"Include the original goal verbatim; when refining, also include the queries already tried and what is missing.",
			Parameters: []tools.ToolParameter{
				{Name: "query", Type: "string", Description: "The research goal, optionally annotated with tried queries and gaps.", Required: true},
			},
		}, t.planSearchQueries),

		tools.NewFuncTool(tools.ToolInfo{
			Name: "web_search",
			Description: "Run one planned query against the web search provider. " +
				"Returns title, URL and snippet per result; URLs already processed this turn are filtered out.",
			Parameters: []tools.ToolParameter{
				{Name: "query", Type: "string", Description: "One planned query, exactly as produced by plan_search_queries.", Required: true},
			},
		}, t.webSearch),

		tools.NewFuncTool(tools.ToolInfo{
			Name: "generate_evidences",
			Description: "Download, parse and analyze the given URLs, turning them into evidence items. " +
				"Use the exact URLs returned by web_search, up to 5 per call.",
			Parameters: []tools.ToolParameter{
				{Name: "urls", Type: "array", Description: "Source URLs to read.", Required: true, Items: map[string]any{"type": "string"}},
				{Name: "directive", Type: "string", Description: "What to extract and why it matters.", Required: true},
			},
		}, t.generateEvidences),

		tools.NewFuncTool(tools.ToolInfo{
			Name:         "finalize_research",
			Description:  "Finish the research task and report totals. Always end the task with this call.",
			ReturnDirect: true,
		}, t.finalizeResearch),
	)
}

func (t *Tools) planSearchQueries(ctx context.Context, args map[string]any) (string, error) {
	goal := tools.StringArg(args, "query")
	if goal == "" {
		return "", fmt.Errorf("query is required")
	}

	queries, err := t.svcs.Queries.PlanSearchQueries(ctx, goal)
	if err != nil {
		return "", fmt.Errorf("planning queries: %w", err)
	}
	if len(queries) == 0 {
		return "No queries produced. Search with the goal itself.", nil
	}

	var sb strings.Builder
	sb.WriteString("Planned queries:\n")
	for _, q := range queries {
		fmt.Fprintf(&sb, "- %s\n", q)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (t *Tools) webSearch(ctx context.Context, args map[string]any) (string, error) {
	query := tools.StringArg(args, "query")
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	turn := research.GetState(t.rc.Store()).ResearchTurn

	// A third consecutive no-progress search never reaches the provider.
	if turn.NoNewResultsCount >= maxNoNewResults-1 {
		t.bumpNoProgress()
		return MaxNoNewResultsReached +
			"\nYou are stuck. Do not plan new queries and do not search again. " +
			"Generate evidence from URLs you already found, or call finalize_research now.", nil
	}

	results, _, err := t.svcs.Search.Search(ctx, query, t.cfg.Searcher.MaxResultsPerQuery)
	if err != nil {
		return "", fmt.Errorf("web search failed: %w", err)
	}
	if len(results) == 0 {
		t.bumpNoProgress()
		return t.noNewResultsMessage(turn, 0, 0), nil
	}

	var fresh []services.SearchResult
	filtered := 0
	for _, r := range results {
		if r.URL == "" || turn.HasSeen(r.URL) {
			filtered++
			continue
		}
		fresh = append(fresh, r)
	}

	if len(fresh) == 0 {
		t.bumpNoProgress()
		return t.noNewResultsMessage(turn, len(results), filtered), nil
	}

	edit := research.EditState(t.rc.Store())
	edit.State.ResearchTurn.NoNewResultsCount = 0
	edit.Close()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d new results", len(fresh))
	if filtered > 0 {
		fmt.Fprintf(&sb, " (filtered %d already-seen URLs)", filtered)
	}
	sb.WriteString(".\n")
	for i, r := range fresh {
		fmt.Fprintf(&sb, "\n[%d] Title: %s\n    URL: %s\n    Snippet: %s", i+1, r.Title, r.URL, r.Snippet)
	}
	if note := t.hoardingNote(turn); note != "" {
		sb.WriteString("\n\n" + note)
	}
	return sb.String(), nil
}

func (t *Tools) generateEvidences(ctx context.Context, args map[string]any) (string, error) {
	urls := tools.StringSliceArg(args, "urls")
	directive := tools.StringArg(args, "directive")
	if len(urls) == 0 {
		return "No URLs provided.", nil
	}

	turn := research.GetState(t.rc.Store()).ResearchTurn

	var candidates []string
	for _, url := range urls {
		if url == "" || turn.HasSeen(url) {
			continue
		}
		dup := false
		for _, c := range candidates {
			if c == url {
				dup = true
				break
			}
		}
		if !dup {
			candidates = append(candidates, url)
		}
	}
	if len(candidates) == 0 {
		return "All provided URLs have already been processed.", nil
	}

	existing := 0
	for _, item := range turn.Evidence.Items {
		existing += t.svcs.Counter.Count(item.Content)
	}
	budget := services.EvidenceBudget{
		MaxItemTokens:       t.cfg.Settings.MaxEvidenceItemTokens,
		MaxTotalTokens:      t.cfg.Settings.MaxPendingEvidenceTokens,
		ExistingTotalTokens: existing,
	}

	items, failures, exhausted, err := t.svcs.Evidence.Generate(ctx, candidates, directive, budget)
	if err != nil {
		return "", fmt.Errorf("evidence pipeline: %w", err)
	}

	followUps := t.followUpQueries(ctx, items, directive)

	edit := research.EditState(t.rc.Store())
	editTurn := &edit.State.ResearchTurn
	editTurn.AddEvidenceItems(items)
	editTurn.AddFailedURLs(failures)
	editTurn.AddSeenURLs(candidates)
	if len(followUps) > 0 {
		editTurn.FollowUpQueries = followUps
	}
	if len(items) > 0 {
		editTurn.NoNewResultsCount = 0
	}
	edit.Close()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Generated %d evidence items.", len(items))
	for _, item := range items {
		title := item.Title
		if title == "" {
			title = "untitled"
		}
		fmt.Fprintf(&sb, "\n- %s (%s)", item.URL, title)
	}
	if len(failures) > 0 {
		fmt.Fprintf(&sb, "\nFailed to read %d sources: %s", len(failures), strings.Join(failures, ", "))
	}
	if exhausted {
		sb.WriteString("\nEvidence token budget exhausted. Stop gathering and finalize with what you have.")
	}
	if len(followUps) > 0 {
		sb.WriteString("\nPossible follow-up queries:")
		for _, q := range followUps {
			fmt.Fprintf(&sb, "\n- %s", q)
		}
	}
	return sb.String(), nil
}

func (t *Tools) finalizeResearch(ctx context.Context, args map[string]any) (string, error) {
	turn := research.GetState(t.rc.Store()).ResearchTurn
	return fmt.Sprintf(
		"Research complete. Evidence items: %d. URLs seen: %d. URLs failed: %d. Assets: %s.",
		len(turn.Evidence.Items), len(turn.SeenURLs), len(turn.FailedURLs),
		research.FormatAssetCounts(turn.Evidence.AssetCounts()),
	), nil
}

// followUpQueries derives deeper queries from freshly gathered summaries.
// Failures here never fail the tool call.
func (t *Tools) followUpQueries(ctx context.Context, items []research.EvidenceItem, directive string) []string {
	if len(items) == 0 || t.svcs.Queries == nil {
		return nil
	}
	insights := make([]string, 0, len(items))
	for _, item := range items {
		insights = append(insights, item.Summary)
	}
	queries, err := t.svcs.Queries.FollowUpQueries(ctx, insights, directive)
	if err != nil {
		slog.Warn("follow-up query generation failed", "error", err)
		return nil
	}
	return queries
}

func (t *Tools) bumpNoProgress() {
	edit := research.EditState(t.rc.Store())
	edit.State.ResearchTurn.NoNewResultsCount++
	edit.Close()
}

func (t *Tools) noNewResultsMessage(turn research.ResearchTurnState, raw, filtered int) string {
	var sb strings.Builder
	sb.WriteString(NoNewResults)
	if raw == 0 {
		sb.WriteString("\nThe query returned no results at all.")
	} else {
		fmt.Fprintf(&sb, "\nAll %d results were already processed this turn (filtered %d URLs).", raw, filtered)
	}
	sb.WriteString("\nDo not retry the same query. Either: " +
		"(1) call generate_evidences on URLs from your previous web_search outputs, or " +
		"(2) call plan_search_queries again with the original goal, the queries you already tried, and what is missing.")
	if note := t.hoardingNote(turn); note != "" {
		sb.WriteString("\n" + note)
	}
	return sb.String()
}

// hoardingNote nudges the model when it keeps searching without ever
// processing sources.
func (t *Tools) hoardingNote(turn research.ResearchTurnState) string {
	if len(turn.SeenURLs) == 0 || len(turn.Evidence.Items) > 0 {
		return ""
	}
	return fmt.Sprintf(
		"You have encountered %d URLs but generated no evidence yet. Call generate_evidences on your best URLs before searching again.",
		len(turn.SeenURLs),
	)
}
