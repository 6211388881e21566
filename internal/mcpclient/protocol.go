package mcpclient

import "github.com/mark3labs/mcp-go/mcp"

// convertSchema turns an mcp-go ToolInputSchema into the plain
// map[string]any shape internal/llm.ToolDefinition expects, so agents never
// import mark3labs/mcp-go directly.
func convertSchema(schema mcp.ToolInputSchema) map[string]any {
	out := map[string]any{
		"type": "object",
	}
	if schema.Properties != nil {
		out["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		out["required"] = schema.Required
	}
	return out
}

// parseToolResult flattens an mcp.CallToolResult into a plain map, folding
// text content blocks into a single "text" field and surfacing the
// protocol-level isError flag as an "error" field.
func parseToolResult(resp *mcp.CallToolResult) (map[string]any, error) {
	result := map[string]any{}

	var text string
	for _, block := range resp.Content {
		if tc, ok := block.(mcp.TextContent); ok {
			text += tc.Text
		}
	}
	if text != "" {
		result["text"] = text
	}
	if resp.IsError {
		result["error"] = text
	}
	return result, nil
}
