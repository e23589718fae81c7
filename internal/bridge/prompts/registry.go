// Package prompts implements the bridge's built-in prompt registry: "md"
// converts a document to markdown, "ls" renders a directory listing. The
// registry is a plain collaborator of the engine; it owns the prompt
// catalogue and the rendering of each prompt into MCP messages.
package prompts

import (
	"context"
	"fmt"

	"github.com/bdobrica/markbridge/internal/bridge/mcp"
)

// Converter turns a file path or URI into a document title and text body.
type Converter interface {
	Convert(ctx context.Context, src string) (title, text string, err error)
}

// Registry holds the built-in prompts and their collaborators.
type Registry struct {
	converter Converter
	catalogue []mcp.Prompt
}

// NewRegistry builds the registry of built-in prompts.
func NewRegistry(converter Converter) *Registry {
	return &Registry{
		converter: converter,
		catalogue: []mcp.Prompt{
			{
				Name:        "md",
				Description: "Convert document to markdown format using MarkItDown",
				Arguments: []mcp.PromptArgument{
					{
						Name:        "file_path",
						Description: "A URI to any document or file",
						Required:    true,
					},
				},
			},
			{
				Name:        "ls",
				Description: "list files in a directory",
				Arguments: []mcp.PromptArgument{
					{
						Name:        "directory",
						Description: "directory to list files",
						Required:    true,
					},
				},
			},
		},
	}
}

// List returns the prompt catalogue in declaration order.
func (r *Registry) List() []mcp.Prompt {
	return r.catalogue
}

// Get renders the named prompt with the given arguments.
func (r *Registry) Get(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	switch name {
	case "md":
		return r.getMarkdown(ctx, args)
	case "ls":
		return r.getListing(args)
	default:
		return nil, fmt.Errorf("prompt not found: %s", name)
	}
}

// getMarkdown renders the "md" prompt. Conversion failures surface inside
// the prompt text rather than failing the call, so the client always gets a
// message describing what happened.
func (r *Registry) getMarkdown(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("arguments required")
	}
	filePath := args["file_path"]
	if filePath == "" {
		return nil, fmt.Errorf("file_path is required")
	}

	title, text, err := r.converter.Convert(ctx, filePath)
	if err != nil {
		title, text = "", fmt.Sprintf("Error converting document: %s", err)
	}

	return &mcp.GetPromptResult{
		Messages: []mcp.PromptMessage{
			{
				Role: "user",
				Content: mcp.TextContent(fmt.Sprintf(
					"Here is the converted document in markdown format:\n%s\n%s",
					title, text,
				)),
			},
		},
	}, nil
}

// getListing renders the "ls" prompt.
func (r *Registry) getListing(args map[string]string) (*mcp.GetPromptResult, error) {
	directory := args["directory"]
	if directory == "" {
		return nil, fmt.Errorf("directory is required")
	}

	listing, err := describeDirectory(directory)
	if err != nil {
		return nil, fmt.Errorf("error listing directory: %w", err)
	}

	return &mcp.GetPromptResult{
		Messages: []mcp.PromptMessage{
			{Role: "user", Content: mcp.TextContent(listing)},
		},
	}, nil
}
