// Package config defines the deep-research configuration and its loader.
//
// Configuration lives in configs/config.json under the "research" path
// selector. JSON and YAML are both accepted; ${ENV_VAR} references are
// expanded before decoding.
package config

import "fmt"

// DefaultResearchCollection is the session-record collection used when the
// config does not name one.
const DefaultResearchCollection = "research-sessions"

// ReportArtifactPath is the single file the writer is allowed to patch.
const ReportArtifactPath = "artifacts/report.md"

// LLMModelConfig selects a model for one role of one agent.
type LLMModelConfig struct {
	Provider string `json:"provider,omitempty"` // openai-compatible endpoint family
	Model    string `json:"model"`
	// Temperature is a pointer so an unset value is distinguishable from 0.0
	// and omitted from provider requests.
	Temperature *float64 `json:"temperature,omitempty"`
	BaseURL     string   `json:"base_url,omitempty"`
	APIKey      string   `json:"api_key,omitempty"`
	MaxRetries  int      `json:"max_retries,omitempty"`
	Timeout     int      `json:"timeout,omitempty"` // seconds
}

// AgentConfig holds the LLMs one agent runs on. WeakLLM is optional and is
// used for cheap high-volume calls (content analysis).
type AgentConfig struct {
	MainLLM LLMModelConfig  `json:"main_llm"`
	WeakLLM *LLMModelConfig `json:"weak_llm,omitempty"`
}

// SearcherConfig extends AgentConfig with search-specific knobs.
type SearcherConfig struct {
	AgentConfig        `json:",squash"`
	MaxResultsPerQuery int `json:"max_results_per_query"`
}

// Settings holds runtime settings for deep-research execution.
type Settings struct {
	MaxReportUpdateSize      int `json:"max_report_update_size"`
	MaxPendingEvidenceTokens int `json:"max_pending_evidence_tokens"`
	MaxEvidenceItemTokens    int `json:"max_evidence_item_tokens"`
	MinSources               int `json:"min_sources"`
	MaxSources               int `json:"max_sources"`
	TimeoutSeconds           int `json:"timeout_seconds"`
}

// Collections names the persistence collections used by the planner.
type Collections struct {
	ResearchCollection string `json:"research_collection"`
}

// ResearchConfig is the root of the "research" config path.
type ResearchConfig struct {
	Settings     Settings       `json:"settings"`
	Planner      AgentConfig    `json:"planner"`
	Searcher     SearcherConfig `json:"searcher"`
	Writer       AgentConfig    `json:"writer"`
	Orchestrator AgentConfig    `json:"orchestrator"`
	Reviewer     AgentConfig    `json:"reviewer"`
	Collections  Collections    `json:"collections"`
}

// SetDefaults fills unset fields with working defaults.
func (c *ResearchConfig) SetDefaults() {
	if c.Settings.MaxReportUpdateSize == 0 {
		c.Settings.MaxReportUpdateSize = 800
	}
	if c.Settings.MaxPendingEvidenceTokens == 0 {
		c.Settings.MaxPendingEvidenceTokens = 60000
	}
	if c.Settings.MinSources == 0 {
		c.Settings.MinSources = 2
	}
	if c.Settings.MaxSources == 0 {
		c.Settings.MaxSources = 20
	}
	if c.Settings.TimeoutSeconds == 0 {
		c.Settings.TimeoutSeconds = 600
	}
	if c.Searcher.MaxResultsPerQuery == 0 {
		c.Searcher.MaxResultsPerQuery = 5
	}
	if c.Collections.ResearchCollection == "" {
		c.Collections.ResearchCollection = DefaultResearchCollection
	}

	for _, agent := range []*AgentConfig{
		&c.Planner, &c.Searcher.AgentConfig, &c.Writer, &c.Orchestrator, &c.Reviewer,
	} {
		agent.MainLLM.setDefaults()
		if agent.WeakLLM != nil {
			agent.WeakLLM.setDefaults()
		}
	}
}

func (m *LLMModelConfig) setDefaults() {
	if m.Provider == "" {
		m.Provider = "openai"
	}
	if m.Model == "" {
		m.Model = "gpt-4o"
	}
	if m.MaxRetries == 0 {
		m.MaxRetries = 1
	}
	if m.Timeout == 0 {
		m.Timeout = 120
	}
}

// Validate checks constraints the rest of the system relies on.
func (c *ResearchConfig) Validate() error {
	if c.Settings.MaxReportUpdateSize < 0 {
		return fmt.Errorf("settings.max_report_update_size must be >= 0")
	}
	if c.Settings.MaxPendingEvidenceTokens < 0 {
		return fmt.Errorf("settings.max_pending_evidence_tokens must be >= 0")
	}
	if c.Settings.MinSources > c.Settings.MaxSources {
		return fmt.Errorf("settings.min_sources (%d) exceeds settings.max_sources (%d)",
			c.Settings.MinSources, c.Settings.MaxSources)
	}
	if c.Searcher.MaxResultsPerQuery < 1 {
		return fmt.Errorf("searcher.max_results_per_query must be >= 1")
	}
	if c.Settings.TimeoutSeconds < 0 {
		return fmt.Errorf("settings.timeout_seconds must be >= 0")
	}
	return nil
}
