package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/fathomresearch/fathom/pkg/llms"
	"github.com/fathomresearch/fathom/pkg/utils"
)

const analyzeMaxContentTokens = 8000

const analyzeSystemPrompt = `You are a research analyst. Extract the key insights from the given source that are relevant to the directive. Score each insight's relevance between 0.0 and 1.0. Select the ids of any assets that directly support the directive. Return nothing for sources with no relevant content.`

// Insight is one extracted finding with its relevance score.
type Insight struct {
	Content        string  `json:"content"`
	RelevanceScore float64 `json:"relevance_score"`
}

// AnalysisResult is the weak-LLM output for one parsed document.
type AnalysisResult struct {
	Insights         []Insight `json:"insights"`
	SelectedAssetIDs []string  `json:"selected_asset_ids"`
}

// ContentAnalyzer extracts insights from parsed documents with the weak LLM.
type ContentAnalyzer struct {
	llm     llms.LLM
	counter *utils.TokenCounter
}

// NewContentAnalyzer creates an analyzer over the given model.
func NewContentAnalyzer(llm llms.LLM) (*ContentAnalyzer, error) {
	counter, err := utils.NewTokenCounter(llm.ModelName())
	if err != nil {
		return nil, err
	}
	return &ContentAnalyzer{llm: llm, counter: counter}, nil
}

// AnalyzeParsedDocument runs insight extraction for one document against a
// directive. An empty insight list means the document is irrelevant, not
// failed.
func (a *ContentAnalyzer) AnalyzeParsedDocument(ctx context.Context, doc ParsedDocument, directive string) (*AnalysisResult, error) {
	structured, err := llms.StructuredFor("analysis_result", &AnalysisResult{})
	if err != nil {
		return nil, err
	}

	content := a.counter.Truncate(doc.Markdown, analyzeMaxContentTokens)

	var assets strings.Builder
	for _, asset := range doc.Assets {
		fmt.Fprintf(&assets, "- id=%s type=%s url=%s %s\n", asset.ID, asset.Type, asset.URL, asset.Description)
	}
	assetSection := assets.String()
	if assetSection == "" {
		assetSection = "(none)"
	}

	prompt := fmt.Sprintf(
		"Directive: %s\n\nSource: %s\n\nAssets:\n%s\nContent:\n%s",
		directive, doc.SourceURL, assetSection, content,
	)

	resp, err := a.llm.ChatStructured(ctx, []llms.Message{
		llms.SystemMessage(analyzeSystemPrompt),
		llms.UserMessage(prompt),
	}, structured)
	if err != nil {
		return nil, err
	}

	var result AnalysisResult
	if err := llms.DecodeStructured(resp.Text, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SummaryFromInsights renders the per-item summary lines stored on evidence
// items and shown to the orchestrator.
func SummaryFromInsights(insights []Insight) string {
	lines := make([]string, 0, len(insights))
	for _, insight := range insights {
		lines = append(lines, fmt.Sprintf("- %s (Relevance: %.2f)", insight.Content, insight.RelevanceScore))
	}
	return strings.Join(lines, "\n")
}
