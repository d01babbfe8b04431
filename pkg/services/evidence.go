package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fathomresearch/fathom/pkg/research"
	"github.com/fathomresearch/fathom/pkg/utils"
)

// EvidenceBudget bounds how much content one turn may accumulate. Zero
// fields mean unbounded.
type EvidenceBudget struct {
	// MaxItemTokens truncates each item's content before counting.
	MaxItemTokens int

	// MaxTotalTokens stops accepting items once the running total would
	// exceed it.
	MaxTotalTokens int

	// ExistingTotalTokens seeds the running total with tokens already held
	// in state from earlier calls this turn.
	ExistingTotalTokens int
}

// EvidenceService runs the download, upload, parse, analyze, budget pipeline
// for one generate_evidences call.
type EvidenceService struct {
	search   WebSearch
	store    FileStore
	parser   DocumentParser
	analyzer *ContentAnalyzer
	counter  *utils.TokenCounter
}

// NewEvidenceService wires the pipeline stages together.
func NewEvidenceService(search WebSearch, store FileStore, parser DocumentParser, analyzer *ContentAnalyzer, counter *utils.TokenCounter) *EvidenceService {
	return &EvidenceService{
		search:   search,
		store:    store,
		parser:   parser,
		analyzer: analyzer,
		counter:  counter,
	}
}

// Generate runs the full pipeline over urls. Items come back in
// completion order; failures are the sorted URLs that failed any stage; the
// bool reports budget exhaustion. Callers own URL deduplication.
func (s *EvidenceService) Generate(ctx context.Context, urls []string, directive string, budget EvidenceBudget) ([]research.EvidenceItem, []string, bool, error) {
	var mu sync.Mutex
	failures := make(map[string]bool)
	fail := func(url string) {
		mu.Lock()
		failures[url] = true
		mu.Unlock()
	}

	// Stage 1+2: download then upload, concurrently per URL.
	type uploaded struct {
		fileID string
		url    string
	}
	var uploads []uploaded

	g, gctx := errgroup.WithContext(ctx)
	for _, url := range urls {
		url := url
		g.Go(func() error {
			content, err := s.search.FetchBytes(gctx, url)
			if err != nil {
				slog.Warn("evidence download failed", "url", url, "error", err)
				fail(url)
				return nil
			}

			fileID, err := s.store.Upload(gctx, content, UploadFilename(url))
			if err != nil {
				slog.Warn("evidence upload failed", "url", url, "error", err)
				fail(url)
				return nil
			}

			mu.Lock()
			uploads = append(uploads, uploaded{fileID: fileID, url: url})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, false, err
	}

	// Stage 3: parse the batch.
	refs := make([]FileRef, 0, len(uploads))
	for _, u := range uploads {
		refs = append(refs, FileRef{FileID: u.fileID, URL: u.url})
	}
	docs, parseFailed := s.parser.ParseFiles(ctx, refs)
	for _, url := range parseFailed {
		fail(url)
	}

	// Stage 4: analyze each document concurrently. Zero insights drops the
	// document without failing it.
	type analyzed struct {
		item research.EvidenceItem
		ok   bool
	}
	results := make([]analyzed, len(docs))

	g, gctx = errgroup.WithContext(ctx)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			analysis, err := s.analyzer.AnalyzeParsedDocument(gctx, doc, directive)
			if err != nil {
				slog.Warn("evidence analysis failed", "url", doc.SourceURL, "error", err)
				fail(doc.SourceURL)
				return nil
			}
			if len(analysis.Insights) == 0 {
				return nil
			}

			selected := make(map[string]bool, len(analysis.SelectedAssetIDs))
			for _, id := range analysis.SelectedAssetIDs {
				selected[id] = true
			}
			var assets []research.Asset
			for _, asset := range doc.Assets {
				if selected[asset.ID] {
					asset.IsSelected = true
					assets = append(assets, asset)
				}
			}

			results[i] = analyzed{
				item: research.EvidenceItem{
					URL:      doc.SourceURL,
					Title:    doc.Metadata["title"],
					Metadata: doc.Metadata,
					Content:  doc.Markdown,
					Summary:  SummaryFromInsights(analysis.Insights),
					Assets:   assets,
				},
				ok: true,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, false, err
	}

	// Stage 5: apply the token budget. Per-item truncation happens before
	// counting; the total cutoff stops accepting but keeps what's in.
	var items []research.EvidenceItem
	exhausted := false
	totalTokens := budget.ExistingTotalTokens
	if totalTokens < 0 {
		totalTokens = 0
	}

	for _, r := range results {
		if !r.ok {
			continue
		}
		if exhausted {
			break
		}

		item := r.item
		if budget.MaxItemTokens > 0 {
			item.Content = s.counter.Truncate(item.Content, budget.MaxItemTokens)
		}
		contentTokens := s.counter.Count(item.Content)
		if budget.MaxTotalTokens > 0 && totalTokens+contentTokens > budget.MaxTotalTokens {
			exhausted = true
			break
		}

		item.Density = 1.0
		if budget.MaxItemTokens > 0 {
			item.Density = float64(contentTokens) / float64(budget.MaxItemTokens)
			if item.Density > 1 {
				item.Density = 1
			}
		}

		items = append(items, item)
		totalTokens += contentTokens
	}

	failedList := make([]string, 0, len(failures))
	for url := range failures {
		failedList = append(failedList, url)
	}
	sort.Strings(failedList)

	return items, failedList, exhausted, nil
}
