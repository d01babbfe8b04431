package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fathomresearch/fathom/pkg/llms"
)

func TestBufferAddAndMessages(t *testing.T) {
	b := NewBuffer()
	b.Add(llms.UserMessage("hello"), llms.AssistantMessage("hi"))

	msgs := b.Messages()
	assert.Len(t, msgs, 2)
	assert.Equal(t, llms.RoleUser, msgs[0].Role)

	// Returned slice is a copy.
	msgs[0].Content = "mutated"
	assert.Equal(t, "hello", b.Messages()[0].Content)
}

func TestBufferWindow(t *testing.T) {
	b := NewBuffer(WithWindowSize(2))
	b.Add(llms.UserMessage("one"))
	b.Add(llms.UserMessage("two"))
	b.Add(llms.UserMessage("three"))

	msgs := b.Messages()
	assert.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)
	assert.Equal(t, "three", msgs[1].Content)
	assert.Equal(t, 3, b.Len())
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer()
	b.Add(llms.UserMessage("one"))
	b.Clear()
	assert.Empty(t, b.Messages())
}
