package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agentlink/agentlink/internal/config"
	"github.com/agentlink/agentlink/internal/hooks"
	"github.com/agentlink/agentlink/internal/perm"
	"github.com/agentlink/agentlink/internal/toolserver"
)

// dispatcher routes inbound control requests to the host-supplied
// handlers: the permission callback, hook callbacks, and embedded tool
// servers.
//
// Every dispatch produces exactly one response payload or error; handler
// failures are contained here and never reach the pump.
type dispatcher struct {
	log     *slog.Logger
	permFn  perm.Callback
	servers map[string]*toolserver.Server

	// hookMu guards the table only during bindHooks; after the initialize
	// handshake the table is read-only.
	hookMu     sync.RWMutex
	hookTable  map[string]hooks.Callback
	nextHookID int
}

func newDispatcher(log *slog.Logger, opts *config.Options) *dispatcher {
	d := &dispatcher{
		log:       log.With("component", "dispatcher"),
		hookTable: make(map[string]hooks.Callback, 16),
	}

	if opts != nil {
		d.permFn = opts.CanUseTool
		d.servers = opts.ToolServers
	}

	return d
}

// bindHooks assigns callback IDs to every configured hook and returns the
// matcher configuration sent with the initialize handshake. The resulting
// table is immutable for the engine's lifetime.
func (d *dispatcher) bindHooks(table hooks.Table) map[string]any {
	wireCfg := make(map[string]any, len(table))

	d.hookMu.Lock()
	defer d.hookMu.Unlock()

	for event, matchers := range table {
		entries := make([]map[string]any, 0, len(matchers))

		for _, m := range matchers {
			ids := make([]string, 0, len(m.Callbacks))

			for _, cb := range m.Callbacks {
				id := fmt.Sprintf("hook_%d", d.nextHookID)
				d.nextHookID++
				d.hookTable[id] = cb
				ids = append(ids, id)
			}

			entry := map[string]any{
				"matcher":         m.Pattern,
				"hookCallbackIds": ids,
			}

			if m.Timeout != nil {
				entry["timeout"] = *m.Timeout
			}

			entries = append(entries, entry)
		}

		wireCfg[string(event)] = entries
	}

	return wireCfg
}

// dispatch handles one inbound control request and returns the success
// payload, or an error that becomes an error response. Unknown subtypes
// yield an empty success payload so newer CLI versions degrade to a no-op.
func (d *dispatcher) dispatch(ctx context.Context, req *ControlRequest) (map[string]any, error) {
	switch req.Subtype() {
	case "can_use_tool":
		return d.canUseTool(ctx, req.Request)

	case "hook_callback":
		return d.hookCallback(ctx, req.Request), nil

	case "mcp_message":
		return d.mcpMessage(ctx, req.Request)

	default:
		d.log.Debug("Unknown control request subtype", "subtype", req.Subtype())

		return map[string]any{}, nil
	}
}

// canUseTool consults the permission callback. With no callback
// configured the answer is allow.
func (d *dispatcher) canUseTool(ctx context.Context, request map[string]any) (payload map[string]any, err error) {
	if d.permFn == nil {
		return map[string]any{"behavior": "allow"}, nil
	}

	defer func() {
		if r := recover(); r != nil {
			payload, err = nil, fmt.Errorf("permission callback panic: %v", r)
		}
	}()

	permReq := &perm.Request{}
	permReq.ToolName, _ = request["tool_name"].(string)
	permReq.Input, _ = request["input"].(map[string]any)

	if blocked, ok := request["blocked_path"].(string); ok {
		permReq.BlockedPath = &blocked
	}

	if raw, ok := request["suggestions"].([]any); ok {
		permReq.Suggestions = decodeSuggestions(raw)
	}

	decision, err := d.permFn(ctx, permReq)
	if err != nil {
		return nil, err
	}

	switch dec := decision.(type) {
	case *perm.Allow:
		payload := map[string]any{"behavior": "allow"}

		if dec.UpdatedInput != nil {
			payload["updatedInput"] = dec.UpdatedInput
		}

		if len(dec.UpdatedPermissions) > 0 {
			updates := make([]map[string]any, len(dec.UpdatedPermissions))
			for i, u := range dec.UpdatedPermissions {
				updates[i] = u.Wire()
			}

			payload["updatedPermissions"] = updates
		}

		return payload, nil

	case *perm.Deny:
		payload := map[string]any{
			"behavior": "deny",
			"message":  dec.Message,
		}

		if dec.Interrupt {
			payload["interrupt"] = true
		}

		return payload, nil

	default:
		return nil, fmt.Errorf("permission callback returned %T, want *Allow or *Deny", decision)
	}
}

// hookCallback invokes the registered hook. An unknown callback ID or a
// failing hook both degrade to the default continue response so a broken
// hook cannot stall the conversation; the failure is logged as the
// diagnostic channel.
func (d *dispatcher) hookCallback(ctx context.Context, request map[string]any) (payload map[string]any) {
	continuePayload := map[string]any{"continue": true}

	callbackID, _ := request["callback_id"].(string)

	d.hookMu.RLock()
	callback, ok := d.hookTable[callbackID]
	d.hookMu.RUnlock()

	if !ok {
		d.log.Warn("Hook callback not registered, continuing", "callback_id", callbackID)

		return continuePayload
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("Hook callback panicked, continuing",
				"callback_id", callbackID, "panic", fmt.Sprint(r))

			payload = continuePayload
		}
	}()

	input, _ := request["input"].(map[string]any)

	var toolUseID *string
	if id, ok := request["tool_use_id"].(string); ok && id != "" {
		toolUseID = &id
	}

	output, err := callback(ctx, hooks.DecodeInput(input), toolUseID)
	if err != nil {
		d.log.Warn("Hook callback failed, continuing", "callback_id", callbackID, "error", err)

		return continuePayload
	}

	return output.Wire()
}

// mcpMessage forwards a JSON-RPC message to the named embedded tool
// server. The original JSON-RPC id is echoed verbatim so its type
// (number, string, or null) is preserved.
func (d *dispatcher) mcpMessage(ctx context.Context, request map[string]any) (map[string]any, error) {
	serverName, _ := request["server_name"].(string)

	message, ok := request["message"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("mcp_message missing message field")
	}

	id := message["id"]

	server, ok := d.servers[serverName]
	if !ok {
		return wrapMCP(toolserver.RPCError(id, -32601, "server not found: "+serverName)), nil
	}

	method, _ := message["method"].(string)
	params, _ := message["params"].(map[string]any)

	reply := func() (reply map[string]any) {
		defer func() {
			if r := recover(); r != nil {
				reply = toolserver.RPCError(id, -32603, fmt.Sprintf("internal error: %v", r))
			}
		}()

		return server.Handle(ctx, id, method, params)
	}()

	return wrapMCP(reply), nil
}

func wrapMCP(reply map[string]any) map[string]any {
	return map[string]any{"mcp_response": reply}
}

func decodeSuggestions(raw []any) []*perm.Update {
	updates := make([]*perm.Update, 0, len(raw))

	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}

		update := &perm.Update{}
		if kind, ok := obj["type"].(string); ok {
			update.Kind = perm.UpdateKind(kind)
		}

		if dirs, ok := obj["directories"].([]any); ok {
			for _, dir := range dirs {
				if s, ok := dir.(string); ok {
					update.Directories = append(update.Directories, s)
				}
			}
		}

		if behavior, ok := obj["behavior"].(string); ok {
			b := perm.RuleBehavior(behavior)
			update.Behavior = &b
		}

		if mode, ok := obj["mode"].(string); ok {
			m := perm.Mode(mode)
			update.Mode = &m
		}

		if dest, ok := obj["destination"].(string); ok {
			update.Destination = &dest
		}

		updates = append(updates, update)
	}

	return updates
}
