package agentlink

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentlink/agentlink/internal/toolserver"
)

// ToolServer is an in-process tool server exposed to the agent. The agent
// addresses it by name through the control protocol; tool calls run inside
// the host process, no subprocess or socket involved.
type ToolServer = toolserver.Server

// Tool pairs a tool definition with its handler.
type Tool = toolserver.Tool

// ToolHandler executes one tool call.
type ToolHandler = mcp.ToolHandler

// CallToolRequest is the request passed to a tool handler.
type CallToolRequest = mcp.CallToolRequest

// CallToolResult is a tool handler's result.
type CallToolResult = mcp.CallToolResult

// NewToolServer creates a named tool server.
//
// Example:
//
//	server := agentlink.NewToolServer("calculator", "1.0.0",
//	    agentlink.NewTool("add", "Adds two numbers",
//	        agentlink.SimpleSchema(map[string]string{"a": "float64", "b": "float64"}),
//	        func(ctx context.Context, req *agentlink.CallToolRequest) (*agentlink.CallToolResult, error) {
//	            args, err := agentlink.ParseToolArguments(req)
//	            if err != nil {
//	                return nil, err
//	            }
//	            a, _ := args["a"].(float64)
//	            b, _ := args["b"].(float64)
//	            return agentlink.TextResult(fmt.Sprintf("%g", a+b)), nil
//	        }))
func NewToolServer(name, version string, tools ...*Tool) *ToolServer {
	return toolserver.New(name, version, tools...)
}

// NewTool builds a tool from name, description, input schema, and handler.
func NewTool(name, description string, schema *jsonschema.Schema, handler ToolHandler) *Tool {
	return toolserver.NewTool(name, description, schema, handler)
}

// SimpleSchema builds an object schema from a property-name → Go-type map,
// marking every property required.
var SimpleSchema = toolserver.SimpleSchema

// TextResult builds a successful tool result with one text block.
var TextResult = toolserver.TextResult

// ErrorResult builds a tool result flagged as an error.
var ErrorResult = toolserver.ErrorResult

// ImageResult builds a tool result with one image block.
var ImageResult = toolserver.ImageResult

// ParseToolArguments extracts a tool request's arguments as a map.
var ParseToolArguments = toolserver.ParseArguments
