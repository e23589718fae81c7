// Package engine implements the MCP JSON-RPC 2.0 engine the HTTP front door
// drives. The engine speaks newline-delimited JSON over a pair of byte
// streams: it reads framed requests from the input stream until end-of-stream
// and writes zero or more framed responses to the output stream, one line per
// envelope. It holds no per-exchange state; a single Server instance serves
// any number of concurrent exchanges.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/markbridge/internal/bridge/iostream"
	"github.com/bdobrica/markbridge/internal/bridge/mcp"
)

// Descriptor is the engine's static identity, supplied once at construction
// and reported during capability negotiation.
type Descriptor struct {
	Name    string
	Version string
}

// PromptSource is the prompt registry the engine dispatches prompts/* to.
type PromptSource interface {
	List() []mcp.Prompt
	Get(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
}

// ToolHandler executes one tool call with already-validated arguments.
type ToolHandler func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

// toolEntry pairs a tool's public description with its compiled argument
// schema and handler.
type toolEntry struct {
	tool    mcp.Tool
	schema  *jsonschema.Schema
	handler ToolHandler
}

// Server is the MCP engine.
type Server struct {
	desc    Descriptor
	prompts PromptSource
	tools   []toolEntry
}

// New creates an engine with the given identity and prompt registry.
func New(desc Descriptor, prompts PromptSource) *Server {
	return &Server{desc: desc, prompts: prompts}
}

// RegisterTool adds a callable tool. schemaJSON is the tool's JSON Schema for
// its argument object; call arguments are validated against it before the
// handler runs.
func (s *Server) RegisterTool(name, description string, schemaJSON []byte, h ToolHandler) error {
	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("add schema for tool %q: %w", name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("compile schema for tool %q: %w", name, err)
	}
	s.tools = append(s.tools, toolEntry{
		tool: mcp.Tool{
			Name:        name,
			Description: description,
			InputSchema: json.RawMessage(schemaJSON),
		},
		schema:  schema,
		handler: h,
	})
	return nil
}

// Run reads framed messages from in until end-of-stream, dispatching each and
// writing responses to out. It returns nil on clean input exhaustion; the
// caller is expected to have closed the input stream's write side already, so
// the loop terminates once the backlog drains.
func (s *Server) Run(ctx context.Context, in, out *iostream.Buffer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := in.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read request frame: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var req mcp.Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(out, mcp.NewError(nil, mcp.CodeParseError, "parse error: "+err.Error()))
			continue
		}

		if req.IsNotification() {
			s.handleNotification(&req)
			continue
		}

		resp := s.dispatch(ctx, &req)
		s.writeResponse(out, resp)
	}
}

// handleNotification processes messages that carry no id and expect no reply.
func (s *Server) handleNotification(req *mcp.Request) {
	switch req.Method {
	case "notifications/initialized":
		slog.Debug("engine: client initialized")
	default:
		slog.Debug("engine: ignoring notification", "method", req.Method)
	}
}

// dispatch routes one request to its handler and always produces exactly one
// response envelope. Handler panics are recovered into internal-error
// envelopes so a misbehaving handler can never tear down the exchange.
func (s *Server) dispatch(ctx context.Context, req *mcp.Request) (resp *mcp.Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: handler panic", "method", req.Method, "panic", r)
			resp = mcp.NewError(req.ID, mcp.CodeInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return mcp.NewResponse(req.ID, struct{}{})
	case "prompts/list":
		return mcp.NewResponse(req.ID, mcp.ListPromptsResult{Prompts: s.prompts.List()})
	case "prompts/get":
		return s.handleGetPrompt(ctx, req)
	case "tools/list":
		return s.handleListTools(req)
	case "tools/call":
		return s.handleCallTool(ctx, req)
	default:
		return mcp.NewError(req.ID, mcp.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize(req *mcp.Request) *mcp.Response {
	caps := mcp.ServerCaps{Prompts: &struct{}{}}
	if len(s.tools) > 0 {
		caps.Tools = &struct{}{}
	}
	return mcp.NewResponse(req.ID, mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    caps,
		ServerInfo:      mcp.ServerInfo{Name: s.desc.Name, Version: s.desc.Version},
	})
}

func (s *Server) handleGetPrompt(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params mcp.GetPromptParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.NewError(req.ID, mcp.CodeInvalidParams, "invalid params: "+err.Error())
	}
	if params.Name == "" {
		return mcp.NewError(req.ID, mcp.CodeInvalidParams, "invalid params: name is required")
	}
	result, err := s.prompts.Get(ctx, params.Name, params.Arguments)
	if err != nil {
		return mcp.NewError(req.ID, mcp.CodeInternalError, err.Error())
	}
	return mcp.NewResponse(req.ID, result)
}

func (s *Server) handleListTools(req *mcp.Request) *mcp.Response {
	tools := make([]mcp.Tool, 0, len(s.tools))
	for _, entry := range s.tools {
		tools = append(tools, entry.tool)
	}
	return mcp.NewResponse(req.ID, mcp.ListToolsResult{Tools: tools})
}

func (s *Server) handleCallTool(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params mcp.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.NewError(req.ID, mcp.CodeInvalidParams, "invalid params: "+err.Error())
	}

	var entry *toolEntry
	for i := range s.tools {
		if s.tools[i].tool.Name == params.Name {
			entry = &s.tools[i]
			break
		}
	}
	if entry == nil {
		return mcp.NewError(req.ID, mcp.CodeInvalidParams, "unknown tool: "+params.Name)
	}

	// Validate the argument object against the tool's declared schema.
	args := params.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if err := entry.schema.Validate(normalizeForSchema(args)); err != nil {
		msg := strings.TrimSpace(err.Error())
		return mcp.NewError(req.ID, mcp.CodeInvalidParams, "invalid tool arguments: "+msg)
	}

	result, err := entry.handler(ctx, args)
	if err != nil {
		return mcp.NewError(req.ID, mcp.CodeInternalError, err.Error())
	}
	return mcp.NewResponse(req.ID, result)
}

// normalizeForSchema round-trips v through JSON so the validator sees the
// exact generic shapes (map[string]any, float64) it expects.
func normalizeForSchema(v map[string]any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// writeResponse frames one envelope onto the output stream.
func (s *Server) writeResponse(out *iostream.Buffer, resp *mcp.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		// A response we built ourselves failed to marshal; nothing sane to
		// send in its place.
		slog.Error("engine: marshal response", "err", err)
		return
	}
	data = append(data, '\n')
	if _, err := out.Write(data); err != nil {
		slog.Warn("engine: write response", "err", err)
	}
}
