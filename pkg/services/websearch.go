// Package services provides the external adapters the research core depends
// on (web search, file storage, document parsing, content analysis, session
// persistence) plus the evidence pipeline that composes them.
package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fathomresearch/fathom/pkg/httpclient"
)

// SearchResult is one organic web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearch abstracts the search engine and raw page fetcher.
type WebSearch interface {
	// Search runs one engine query and returns up to maxResults organic
	// results plus the number of upstream requests made.
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, int, error)

	// FetchBytes downloads the raw bytes of a URL.
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// ErrDownloadFailed classifies fetch failures in the evidence pipeline.
var ErrDownloadFailed = errors.New("download failed")

const oxylabsRealtimeURL = "https://realtime.oxylabs.io/v1/queries"

// OxylabsClient implements WebSearch over the Oxylabs realtime API.
type OxylabsClient struct {
	username   string
	password   string
	endpoint   string
	httpClient *httpclient.Client
}

// NewOxylabsClient reads OXYLABS_USERNAME and OXYLABS_PASSWORD from the
// environment. Both are required.
func NewOxylabsClient() (*OxylabsClient, error) {
	username := os.Getenv("OXYLABS_USERNAME")
	password := os.Getenv("OXYLABS_PASSWORD")
	if username == "" || password == "" {
		return nil, errors.New("oxylabs credentials are required: set OXYLABS_USERNAME and OXYLABS_PASSWORD")
	}

	return &OxylabsClient{
		username: username,
		password: password,
		endpoint: oxylabsRealtimeURL,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		),
	}, nil
}

type oxylabsQuery struct {
	Source          string `json:"source"`
	Query           string `json:"query,omitempty"`
	URL             string `json:"url,omitempty"`
	Pages           int    `json:"pages,omitempty"`
	Parse           bool   `json:"parse,omitempty"`
	ContentEncoding string `json:"content_encoding,omitempty"`
}

type oxylabsResponse struct {
	Results []struct {
		Content json.RawMessage `json:"content"`
	} `json:"results"`
}

type oxylabsSearchContent struct {
	Results struct {
		Organic []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Desc    string `json:"desc"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	} `json:"results"`
}

func (c *OxylabsClient) post(ctx context.Context, query oxylabsQuery) (*oxylabsResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oxylabs request failed: status=%d body=%s", resp.StatusCode, payload)
	}

	var parsed oxylabsResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("malformed oxylabs response: %w", err)
	}
	return &parsed, nil
}

// Search implements WebSearch.
func (c *OxylabsClient) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, int, error) {
	resp, err := c.post(ctx, oxylabsQuery{
		Source: "google_search",
		Query:  query,
		Pages:  1,
		Parse:  true,
	})
	if err != nil {
		return nil, 0, err
	}

	var results []SearchResult
	for _, page := range resp.Results {
		var content oxylabsSearchContent
		if err := json.Unmarshal(page.Content, &content); err != nil {
			continue
		}
		for _, hit := range content.Results.Organic {
			snippet := hit.Desc
			if snippet == "" {
				snippet = hit.Snippet
			}
			results = append(results, SearchResult{Title: hit.Title, URL: hit.URL, Snippet: snippet})
		}
	}
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, 1, nil
}

// FetchBytes implements WebSearch.
func (c *OxylabsClient) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrDownloadFailed)
	}

	resp, err := c.post(ctx, oxylabsQuery{
		Source:          "universal",
		URL:             url,
		ContentEncoding: "base64",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: %s: empty response", ErrDownloadFailed, url)
	}

	var encoded string
	if err := json.Unmarshal(resp.Results[0].Content, &encoded); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, url, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s: empty body", ErrDownloadFailed, url)
	}
	return raw, nil
}
