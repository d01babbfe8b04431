package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return NewFuncTool(ToolInfo{
		Name:        name,
		Description: "echoes its input",
		Parameters: []ToolParameter{
			{Name: "text", Type: "string", Description: "text to echo", Required: true},
		},
	}, func(ctx context.Context, args map[string]any) (string, error) {
		return StringArg(args, "text"), nil
	})
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	tool, ok := r.Get("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", tool.GetInfo().Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))
	assert.Error(t, r.Register(echoTool("echo")))
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	r := NewRegistry().MustRegister(echoTool("zeta"), echoTool("alpha"))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "zeta", defs[1].Name)

	params := defs[0].Parameters
	assert.Equal(t, "object", params["type"])
	props := params["properties"].(map[string]any)
	assert.Contains(t, props, "text")
	assert.Equal(t, []string{"text"}, params["required"])
}

func TestFuncToolErrorBecomesFailedResult(t *testing.T) {
	tool := NewFuncTool(ToolInfo{Name: "fail"}, func(ctx context.Context, args map[string]any) (string, error) {
		return "", errors.New("upstream unavailable")
	})

	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "upstream unavailable", result.Error)
	assert.Equal(t, "fail", result.ToolName)
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"s":     "text",
		"list":  []any{"a", "b", 3},
		"typed": []string{"x"},
		"n":     float64(7),
	}

	assert.Equal(t, "text", StringArg(args, "s"))
	assert.Equal(t, "", StringArg(args, "missing"))
	assert.Equal(t, []string{"a", "b"}, StringSliceArg(args, "list"))
	assert.Equal(t, []string{"x"}, StringSliceArg(args, "typed"))
	assert.Nil(t, StringSliceArg(args, "missing"))
	assert.Equal(t, 7, IntArg(args, "n", 0))
	assert.Equal(t, 5, IntArg(args, "missing", 5))
}
