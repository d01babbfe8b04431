package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fathomresearch/fathom/pkg/llms"
)

const planQueriesSystemPrompt = `You decompose a research goal into focused, engine-ready web search queries. Respect any "already tried" and "what is missing" annotations embedded in the goal: generate new angles, never repeat tried queries. Keep queries short. Do not invent constraints (dates, geography, recency) the goal does not state.`

const followUpSystemPrompt = `You generate targeted follow-up search queries based on insights gathered so far. Queries must dig deeper into gaps, not restate what is already covered.`

// QueryPlan is the structured output of search query planning.
type QueryPlan struct {
	Queries []string `json:"queries"`
}

// QueryService plans search queries and follow-ups with the main LLM.
type QueryService struct {
	llm llms.LLM
}

// NewQueryService creates a query service.
func NewQueryService(llm llms.LLM) *QueryService {
	return &QueryService{llm: llm}
}

// PlanSearchQueries decomposes a research goal (possibly annotated with
// already-tried queries) into engine-ready queries.
func (s *QueryService) PlanSearchQueries(ctx context.Context, goal string) ([]string, error) {
	structured, err := llms.StructuredFor("query_plan", &QueryPlan{})
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Current date: %s\n\nResearch goal:\n%s", time.Now().Format("2006-01-02"), goal)

	resp, err := s.llm.ChatStructured(ctx, []llms.Message{
		llms.SystemMessage(planQueriesSystemPrompt),
		llms.UserMessage(prompt),
	}, structured)
	if err != nil {
		return nil, err
	}

	var plan QueryPlan
	if err := llms.DecodeStructured(resp.Text, &plan); err != nil {
		return nil, err
	}
	return compactQueries(plan.Queries), nil
}

// FollowUpQueries derives new queries from gathered insights. No insights
// yields no queries.
func (s *QueryService) FollowUpQueries(ctx context.Context, insights []string, originalQuery string) ([]string, error) {
	if len(insights) == 0 {
		return nil, nil
	}

	structured, err := llms.StructuredFor("query_plan", &QueryPlan{})
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for _, insight := range insights {
		fmt.Fprintf(&sb, "- %s\n", insight)
	}
	prompt := fmt.Sprintf(
		"Current date: %s\n\nOriginal query: %s\n\nInsights so far:\n%s",
		time.Now().Format("2006-01-02"), originalQuery, sb.String(),
	)

	resp, err := s.llm.ChatStructured(ctx, []llms.Message{
		llms.SystemMessage(followUpSystemPrompt),
		llms.UserMessage(prompt),
	}, structured)
	if err != nil {
		return nil, err
	}

	var plan QueryPlan
	if err := llms.DecodeStructured(resp.Text, &plan); err != nil {
		return nil, err
	}
	return compactQueries(plan.Queries), nil
}

func compactQueries(queries []string) []string {
	var out []string
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q != "" {
			out = append(out, q)
		}
	}
	return out
}
