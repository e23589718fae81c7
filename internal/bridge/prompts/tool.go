package prompts

import (
	"context"
	"fmt"

	"github.com/bdobrica/markbridge/internal/bridge/mcp"
)

// ConvertToolName is the name the document conversion tool is registered under.
const ConvertToolName = "convert"

// ConvertToolDescription is the tool's public description.
const ConvertToolDescription = "Convert a document or URI to markdown format"

// ConvertToolSchema is the JSON Schema for the convert tool's arguments.
var ConvertToolSchema = []byte(`{
	"type": "object",
	"properties": {
		"file_path": {
			"type": "string",
			"description": "A URI or path to any document or file",
			"minLength": 1
		}
	},
	"required": ["file_path"],
	"additionalProperties": false
}`)

// ConvertTool returns the handler for the convert tool. Conversion failures
// come back as an isError tool result rather than a protocol error, matching
// how MCP tools report domain-level failures.
func ConvertTool(converter Converter) func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
		filePath, _ := args["file_path"].(string)

		title, text, err := converter.Convert(ctx, filePath)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.ContentItem{mcp.TextContent(fmt.Sprintf("Error converting document: %s", err))},
				IsError: true,
			}, nil
		}

		body := text
		if title != "" {
			body = title + "\n" + text
		}
		return &mcp.CallToolResult{
			Content: []mcp.ContentItem{mcp.TextContent(body)},
		}, nil
	}
}
