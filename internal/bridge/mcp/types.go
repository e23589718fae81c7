// Package mcp provides the JSON-RPC 2.0 and Model Context Protocol (MCP)
// wire types used between the HTTP front door and the in-process engine.
// Messages are newline-delimited JSON, one envelope per line.
package mcp

import "encoding/json"

// ProtocolVersion is the MCP revision the engine negotiates during initialize.
const ProtocolVersion = "2025-06-18"

// JSON-RPC 2.0 error codes used across the bridge. The -32000 and -32001
// codes sit in the implementation-defined server-error range: the first marks
// an engine run that exceeded its per-exchange deadline, the second a request
// shed by the front door's rate limiter.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeEngineTimeout  = -32000
	CodeRateLimited    = -32001
)

// --- JSON-RPC 2.0 wire types ---

// Request is one inbound JSON-RPC 2.0 message. ID and Params stay raw so the
// engine can echo arbitrary id shapes (number or string) untouched. A message
// without an id is a notification and receives no reply.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the message carries no correlation id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is one outbound JSON-RPC 2.0 message. Exactly one of Result and
// Error is populated.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the error member of a JSON-RPC 2.0 response.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string { return e.Message }

// NewResponse builds a success envelope echoing the request id.
func NewResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewError builds an error envelope. A nil id marshals as "id":null, which is
// what JSON-RPC prescribes when the request id could not be recovered.
func NewError(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &ErrorObject{Code: code, Message: message}}
}

// --- MCP method types ---

// InitializeParams is sent by the client as the first call.
type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    ClientCaps `json:"capabilities"`
	ClientInfo      ClientInfo `json:"clientInfo"`
}

// ClientCaps describes client-side MCP capabilities.
type ClientCaps struct{}

// ClientInfo describes the connecting client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the engine's response to initialize.
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    ServerCaps `json:"capabilities"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

// ServerInfo holds the engine's name and version.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCaps describes the engine's declared capabilities.
type ServerCaps struct {
	Prompts *struct{} `json:"prompts,omitempty"`
	Tools   *struct{} `json:"tools,omitempty"`
}

// Prompt describes a single named prompt.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes one argument a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ListPromptsResult is returned by prompts/list.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// GetPromptParams is sent to render a prompt.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// GetPromptResult holds the rendered prompt messages.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptMessage is a single message in a prompt result.
type PromptMessage struct {
	Role    string      `json:"role"`
	Content ContentItem `json:"content"`
}

// Tool describes a single callable MCP tool.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema,omitempty"`
}

// ListToolsResult is returned by tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is sent to invoke a tool.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult holds the tool's output.
type CallToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ContentItem is a single piece of content returned by a prompt or tool.
type ContentItem struct {
	Type string `json:"type"` // "text", "image", etc.
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"` // base64 for images
	MIME string `json:"mimeType,omitempty"`
}

// TextContent builds a plain text content item.
func TextContent(text string) ContentItem {
	return ContentItem{Type: "text", Text: text}
}
