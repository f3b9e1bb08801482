// Package toolserver implements in-process tool servers. They are exposed
// to the agent CLI as if they were remote MCP servers, addressed by name
// through mcp_message control requests.
package toolserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// protocolVersion is the MCP protocol revision advertised to the agent.
const protocolVersion = "2024-11-05"

// Tool pairs an MCP tool definition with its handler.
type Tool struct {
	Def     *mcp.Tool
	Handler mcp.ToolHandler
}

// NewTool builds a Tool from name, description, input schema, and handler.
func NewTool(name, description string, schema *jsonschema.Schema, handler mcp.ToolHandler) *Tool {
	return &Tool{
		Def: &mcp.Tool{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		Handler: handler,
	}
}

// Server is an immutable named collection of tools. The registry is fixed
// at construction; the dispatcher consults it from the engine's background
// goroutines without locking.
type Server struct {
	name    string
	version string
	tools   map[string]*Tool
	order   []string
}

// New creates a server with the given tools. Later tools with duplicate
// names override earlier ones.
func New(name, version string, tools ...*Tool) *Server {
	s := &Server{
		name:    name,
		version: version,
		tools:   make(map[string]*Tool, len(tools)),
	}

	for _, t := range tools {
		if _, seen := s.tools[t.Def.Name]; !seen {
			s.order = append(s.order, t.Def.Name)
		}

		s.tools[t.Def.Name] = t
	}

	return s
}

// Name returns the server name.
func (s *Server) Name() string { return s.name }

// Version returns the server version.
func (s *Server) Version() string { return s.version }

// Handle routes one JSON-RPC message addressed to this server and returns
// the JSON-RPC reply. The id is carried through verbatim so its JSON type
// is preserved. Handle never returns an error document shape other than a
// JSON-RPC error object; transport-level failures are the caller's concern.
func (s *Server) Handle(ctx context.Context, id any, method string, params map[string]any) map[string]any {
	switch method {
	case "initialize":
		return rpcResult(id, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": s.name, "version": s.version},
		})

	case "notifications/initialized":
		return rpcResult(id, map[string]any{})

	case "tools/list":
		return rpcResult(id, map[string]any{"tools": s.listTools()})

	case "tools/call":
		return s.callTool(ctx, id, params)

	default:
		return RPCError(id, -32601, fmt.Sprintf("method not found: %s", method))
	}
}

// listTools renders tool metadata in the shape the control protocol
// expects.
func (s *Server) listTools() []map[string]any {
	out := make([]map[string]any, 0, len(s.order))

	for _, name := range s.order {
		t := s.tools[name]

		entry := map[string]any{
			"name":        t.Def.Name,
			"description": t.Def.Description,
		}

		if t.Def.InputSchema != nil {
			if schema, ok := toMap(t.Def.InputSchema); ok {
				entry["inputSchema"] = schema
			}
		}

		if t.Def.Annotations != nil {
			if annotations, ok := toMap(t.Def.Annotations); ok {
				entry["annotations"] = annotations
			}
		}

		out = append(out, entry)
	}

	return out
}

// callTool invokes a registered tool handler. Handler failures are encoded
// in the tool result rather than as JSON-RPC errors, matching MCP
// semantics for execution errors.
func (s *Server) callTool(ctx context.Context, id any, params map[string]any) map[string]any {
	if params == nil {
		return RPCError(id, -32602, "missing params for tools/call")
	}

	name, _ := params["name"].(string)
	if name == "" {
		return RPCError(id, -32602, "missing tool name")
	}

	tool, ok := s.tools[name]
	if !ok {
		return rpcResult(id, errorContent("tool not found: "+name))
	}

	args, _ := params["arguments"].(map[string]any)

	rawArgs, err := json.Marshal(args)
	if err != nil {
		return rpcResult(id, errorContent("marshal arguments: "+err.Error()))
	}

	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{
			Name:      name,
			Arguments: rawArgs,
		},
	}

	result, err := tool.Handler(ctx, req)
	if err != nil {
		return rpcResult(id, errorContent("tool execution failed: "+err.Error()))
	}

	return rpcResult(id, resultToMap(result))
}

// rpcResult wraps a result payload as a JSON-RPC success reply.
func rpcResult(id any, result map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
}

// RPCError builds a JSON-RPC error reply, echoing the id verbatim.
func RPCError(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}

// errorContent renders a failed tool call in result form.
func errorContent(message string) map[string]any {
	return map[string]any{
		"content":  []map[string]any{{"type": "text", "text": message}},
		"is_error": true,
	}
}

// resultToMap converts an mcp.CallToolResult into the control-protocol
// shape.
func resultToMap(result *mcp.CallToolResult) map[string]any {
	if result == nil {
		return map[string]any{"content": []map[string]any{}}
	}

	content := make([]map[string]any, 0, len(result.Content))

	for _, c := range result.Content {
		switch v := c.(type) {
		case *mcp.TextContent:
			content = append(content, map[string]any{"type": "text", "text": v.Text})

		case *mcp.ImageContent:
			content = append(content, map[string]any{
				"type": "image", "data": v.Data, "mimeType": v.MIMEType,
			})

		case *mcp.AudioContent:
			content = append(content, map[string]any{
				"type": "audio", "data": v.Data, "mimeType": v.MIMEType,
			})

		case *mcp.ResourceLink:
			content = append(content, map[string]any{
				"type": "resource_link", "uri": v.URI, "name": v.Name,
			})

		case *mcp.EmbeddedResource:
			if v.Resource != nil {
				content = append(content, map[string]any{
					"type": "resource",
					"resource": map[string]any{
						"uri":      v.Resource.URI,
						"mimeType": v.Resource.MIMEType,
						"text":     v.Resource.Text,
					},
				})
			}
		}
	}

	out := map[string]any{"content": content}
	if result.IsError {
		out["is_error"] = true
	}

	return out
}

// toMap marshals a value to its map form for embedding in wire payloads.
func toMap(v any) (map[string]any, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}

	return out, true
}
