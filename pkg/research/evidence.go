// Package research holds the shared deep-research state model: the per-run
// state record kept under a single store key, the evidence shapes produced by
// the searcher, and the typed accessor that agents and tools go through.
package research

import (
	"fmt"
	"sort"
	"strings"
)

// AssetType classifies an asset discovered while parsing a source.
type AssetType string

const (
	AssetImage    AssetType = "image"
	AssetTableCSV AssetType = "table_csv"
	AssetFile     AssetType = "downloadable_file"
	AssetUnknown  AssetType = "unknown"
)

// Asset is one non-text artifact extracted from a parsed source. IsSelected
// is set only after content analysis marks the asset relevant.
type Asset struct {
	ID          string    `json:"id"`
	Type        AssetType `json:"type"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	IsSelected  bool      `json:"is_selected"`
}

// EvidenceItem is one analyzed source. Content carries the parsed markdown
// (possibly truncated to the per-item token budget); Summary carries the
// weak-LLM insight lines. Density in [0,1] reports how much of the per-item
// budget the source filled; thin sources score low.
type EvidenceItem struct {
	URL      string            `json:"url"`
	Title    string            `json:"title,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Content  string            `json:"content"`
	Summary  string            `json:"summary"`
	Density  float64           `json:"density"`
	Assets   []Asset           `json:"assets,omitempty"`
}

// Clone returns a deep copy.
func (i EvidenceItem) Clone() EvidenceItem {
	out := i
	if i.Metadata != nil {
		out.Metadata = make(map[string]string, len(i.Metadata))
		for k, v := range i.Metadata {
			out.Metadata[k] = v
		}
	}
	out.Assets = append([]Asset(nil), i.Assets...)
	return out
}

// EvidenceBundle is the turn's accumulated evidence, append-only until the
// writer commits.
type EvidenceBundle struct {
	Items []EvidenceItem `json:"items"`
}

// Clone returns a deep copy.
func (b EvidenceBundle) Clone() EvidenceBundle {
	out := EvidenceBundle{}
	for _, item := range b.Items {
		out.Items = append(out.Items, item.Clone())
	}
	return out
}

// Summary renders the compact per-source insight view used by the
// orchestrator's hot system prompt.
func (b EvidenceBundle) Summary() string {
	if len(b.Items) == 0 {
		return "No evidence gathered yet."
	}

	var sb strings.Builder
	for i, item := range b.Items {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		title := item.Title
		if title == "" {
			title = item.URL
		}
		fmt.Fprintf(&sb, "Source: %s (%s) (Density: %.2f)\n%s", title, item.URL, item.Density, item.Summary)
	}
	return sb.String()
}

// ContentForWriting renders the full-content view handed to the writer:
// every source's parsed markdown plus its selected assets.
func (b EvidenceBundle) ContentForWriting() string {
	if len(b.Items) == 0 {
		return "No evidence available."
	}

	var sb strings.Builder
	for i, item := range b.Items {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		title := item.Title
		if title == "" {
			title = item.URL
		}
		fmt.Fprintf(&sb, "## Source: %s\nURL: %s\n\n%s", title, item.URL, item.Content)
		for _, asset := range item.Assets {
			if !asset.IsSelected {
				continue
			}
			fmt.Fprintf(&sb, "\n\nAsset (%s): %s", asset.Type, asset.URL)
			if asset.Description != "" {
				fmt.Fprintf(&sb, " - %s", asset.Description)
			}
		}
	}
	return sb.String()
}

// AssetCounts tallies selected assets per type across all items, in stable
// type order.
func (b EvidenceBundle) AssetCounts() map[AssetType]int {
	counts := make(map[AssetType]int)
	for _, item := range b.Items {
		for _, asset := range item.Assets {
			counts[asset.Type]++
		}
	}
	return counts
}

// FormatAssetCounts renders asset counts as "type=N" pairs sorted by type.
func FormatAssetCounts(counts map[AssetType]int) string {
	if len(counts) == 0 {
		return "none"
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s=%d", t, counts[AssetType(t)]))
	}
	return strings.Join(parts, ", ")
}
