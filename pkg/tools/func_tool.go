package tools

import "context"

// Handler is the body of a function tool. Returned errors become failed
// ToolResults surfaced to the model; only panics escape the loop.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// FuncTool adapts a plain function to the Tool interface.
type FuncTool struct {
	info    ToolInfo
	handler Handler
}

// NewFuncTool wraps handler with the given metadata.
func NewFuncTool(info ToolInfo, handler Handler) *FuncTool {
	return &FuncTool{info: info, handler: handler}
}

// GetInfo implements Tool.
func (t *FuncTool) GetInfo() ToolInfo { return t.info }

// Execute implements Tool.
func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	content, err := t.handler(ctx, args)
	if err != nil {
		return ToolResult{
			Success:  false,
			Error:    err.Error(),
			ToolName: t.info.Name,
		}, nil
	}
	return ToolResult{
		Success:  true,
		Content:  content,
		ToolName: t.info.Name,
	}, nil
}

// StringArg extracts a string argument, empty when absent or mistyped.
func StringArg(args map[string]any, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

// StringSliceArg extracts a list-of-strings argument. JSON decoding yields
// []any, so both shapes are accepted.
func StringSliceArg(args map[string]any, name string) []string {
	switch v := args[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// IntArg extracts an integer argument, def when absent or mistyped.
func IntArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}
