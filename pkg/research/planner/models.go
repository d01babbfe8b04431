// Package planner implements the human-in-the-loop planning workflow: a
// structured-output chat loop that negotiates a research plan with the user
// and persists an idempotent session record on acceptance.
package planner

import (
	"fmt"
	"strings"
)

// Planner decisions. Finalize is terminal.
const (
	DecisionProposePlan = "propose_plan"
	DecisionFinalize    = "finalize"
)

// Session statuses.
const (
	StatusPlanning  = "planning"
	StatusFinalized = "finalized"
	StatusFailed    = "failed"
)

// TextSynthesizerConfig carries the output guidelines the user settled on
// during planning. Downstream agents read it from the rendered plan block.
type TextSynthesizerConfig struct {
	SynthesisType      string `json:"synthesis_type"`
	Tone               string `json:"tone"`
	PointOfView        string `json:"point_of_view"`
	Language           string `json:"language"`
	TargetAudience     string `json:"target_audience"`
	TargetWords        int    `json:"target_words"`
	OutputFormat       string `json:"output_format"`
	CustomInstructions string `json:"custom_instructions,omitempty"`
}

// SetDefaults fills unset fields with the standard report profile.
func (c *TextSynthesizerConfig) SetDefaults() {
	if c.SynthesisType == "" {
		c.SynthesisType = "Report"
	}
	if c.Tone == "" {
		c.Tone = "Objective"
	}
	if c.PointOfView == "" {
		c.PointOfView = "Third person"
	}
	if c.Language == "" {
		c.Language = "English"
	}
	if c.TargetAudience == "" {
		c.TargetAudience = "General audience"
	}
	if c.TargetWords == 0 {
		c.TargetWords = 1200
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "Markdown"
	}
}

// Format renders the config as the OUTPUT CONFIG (GUIDE) block appended to
// plans handed to the orchestrator.
func (c TextSynthesizerConfig) Format() string {
	lines := []string{
		"========================",
		"OUTPUT CONFIG (GUIDE)",
		"========================",
		fmt.Sprintf("- synthesis_type: %s", c.SynthesisType),
		fmt.Sprintf("- tone: %s", c.Tone),
		fmt.Sprintf("- point_of_view: %s", c.PointOfView),
		fmt.Sprintf("- language: %s", c.Language),
		fmt.Sprintf("- target_audience: %s", c.TargetAudience),
		fmt.Sprintf("- target_words: %d", c.TargetWords),
		fmt.Sprintf("- output_format: %s", c.OutputFormat),
	}
	if strings.TrimSpace(c.CustomInstructions) != "" {
		lines = append(lines, fmt.Sprintf("- custom_instructions: %s", strings.TrimSpace(c.CustomInstructions)))
	}
	return strings.Join(lines, "\n")
}

// PlannerAgentOutput is the structured output contract for one planning turn.
type PlannerAgentOutput struct {
	Decision   string                `json:"decision" jsonschema:"enum=propose_plan,enum=finalize,description=propose_plan to present a plan for review; finalize when the user accepts."`
	Response   string                `json:"response" jsonschema:"description=The message to show to the user (question or plan explanation)."`
	Plan       string                `json:"plan" jsonschema:"description=The current research plan as raw text. Always required."`
	TextConfig TextSynthesizerConfig `json:"text_config"`
}

// PlanState is the planning session state kept in the run's store.
type PlanState struct {
	InitialQuery string                `json:"initial_query"`
	ResearchID   string                `json:"research_id"`
	PlanText     string                `json:"plan_text"`
	TextConfig   TextSynthesizerConfig `json:"text_config"`
	Status       string                `json:"status"`
}

// PlanResult is the Stop payload of a finalized planning run.
type PlanResult struct {
	ResearchID   string                `json:"research_id"`
	Status       string                `json:"status"`
	InitialQuery string                `json:"initial_query"`
	Plan         string                `json:"plan"`
	TextConfig   TextSynthesizerConfig `json:"text_config"`
}

// RenderedPlan is the plan text with the output config guide appended, the
// form the orchestrator consumes.
func (r PlanResult) RenderedPlan() string {
	return strings.TrimSpace(r.Plan) + "\n\n" + r.TextConfig.Format()
}
