// Package utils provides small shared helpers, most importantly accurate
// token counting used by the evidence budget.
package utils

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// TokenCounter counts and truncates text by token using a tiktoken encoding.
// The zero value is unusable; construct with NewTokenCounter.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
	loaderOnce    sync.Once
)

// NewTokenCounter creates a counter for the given model. Unknown models fall
// back to cl100k_base, a robust general-purpose tokenizer.
func NewTokenCounter(model string) (*TokenCounter, error) {
	// Embedded BPE dictionaries keep encoding construction off the network.
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()

	if exists {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the token count for text.
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(tc.encoding.Encode(text, nil, nil))
}

// Truncate cuts text down to at most maxTokens tokens. Text at or under the
// limit is returned unchanged.
func (tc *TokenCounter) Truncate(text string, maxTokens int) string {
	if text == "" {
		return ""
	}
	tokens := tc.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return tc.encoding.Decode(tokens[:maxTokens])
}

// GetModel returns the model name this counter is configured for.
func (tc *TokenCounter) GetModel() string {
	return tc.model
}

// EstimateTokens provides a rough token estimation for when a TokenCounter
// is unavailable (roughly 4 characters per token).
func EstimateTokens(text string) int {
	return len(text) / 4
}
