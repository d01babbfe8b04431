package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCounterCount(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4")
	require.NoError(t, err)

	assert.Equal(t, 0, tc.Count(""))
	assert.Greater(t, tc.Count("hello world"), 0)

	long := strings.Repeat("research evidence ", 100)
	short := "research evidence"
	assert.Greater(t, tc.Count(long), tc.Count(short))
}

func TestTokenCounterTruncate(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4")
	require.NoError(t, err)

	text := strings.Repeat("solid state battery energy density ", 50)
	truncated := tc.Truncate(text, 10)

	assert.LessOrEqual(t, tc.Count(truncated), 10)
	assert.True(t, strings.HasPrefix(text, truncated))

	// Under the limit text comes back unchanged.
	assert.Equal(t, "short", tc.Truncate("short", 100))
	assert.Equal(t, "", tc.Truncate("", 5))
}

func TestTokenCounterUnknownModelFallsBack(t *testing.T) {
	tc, err := NewTokenCounter("some-unknown-model-v99")
	require.NoError(t, err)
	assert.Greater(t, tc.Count("fallback encoding still counts"), 0)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 5, EstimateTokens(strings.Repeat("a", 20)))
}
