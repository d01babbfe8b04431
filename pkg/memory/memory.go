// Package memory holds per-run conversation buffers. The planner appends the
// user/assistant exchange here across human-in-the-loop turns so each planner
// call sees the full negotiation so far.
package memory

import (
	"sync"

	"github.com/fathomresearch/fathom/pkg/llms"
)

// Buffer is an append-only conversation log with an optional window. Safe for
// concurrent use.
type Buffer struct {
	mu         sync.RWMutex
	messages   []llms.Message
	windowSize int
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithWindowSize caps Messages to the most recent n entries. Zero or negative
// means unbounded.
func WithWindowSize(n int) Option {
	return func(b *Buffer) { b.windowSize = n }
}

// NewBuffer creates an empty buffer.
func NewBuffer(opts ...Option) *Buffer {
	b := &Buffer{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add appends messages to the buffer.
func (b *Buffer) Add(messages ...llms.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, messages...)
}

// Messages returns a copy of the retained window.
func (b *Buffer) Messages() []llms.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	msgs := b.messages
	if b.windowSize > 0 && len(msgs) > b.windowSize {
		msgs = msgs[len(msgs)-b.windowSize:]
	}

	out := make([]llms.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Len reports the total number of stored messages, ignoring the window.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// Clear drops all stored messages.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}
