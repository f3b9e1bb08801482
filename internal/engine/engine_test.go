package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/agentlink/agentlink/internal/config"
	"github.com/agentlink/agentlink/internal/hooks"
	"github.com/agentlink/agentlink/internal/perm"
	"github.com/agentlink/agentlink/internal/sdkerr"
	"github.com/agentlink/agentlink/internal/toolserver"
	"github.com/agentlink/agentlink/internal/wire"
)

// fakeTransport feeds the engine scripted documents and records every
// write as its decoded map form.
type fakeTransport struct {
	msgCh  chan map[string]any
	errCh  chan error
	writes chan map[string]any

	mu     sync.Mutex
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		msgCh:  make(chan map[string]any, 64),
		errCh:  make(chan error, 8),
		writes: make(chan map[string]any, 64),
	}
}

func (t *fakeTransport) Connect(ctx context.Context) error { return nil }

func (t *fakeTransport) ReadStream(ctx context.Context) (<-chan map[string]any, <-chan error) {
	return t.msgCh, t.errCh
}

func (t *fakeTransport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return sdkerr.ErrTransportClosed
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	t.writes <- doc

	return nil
}

func (t *fakeTransport) EndInput() error { return nil }

func (t *fakeTransport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return !t.closed
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		t.closed = true
		close(t.msgCh)
	}

	return nil
}

var _ config.Transport = (*fakeTransport)(nil)

func startEngine(t *testing.T, opts *config.Options) (*Engine, *fakeTransport) {
	t.Helper()

	if opts == nil {
		opts = &config.Options{}
	}

	transport := newFakeTransport()
	eng := New(nil, transport, opts)
	eng.Start(context.Background())

	t.Cleanup(func() {
		require.NoError(t, eng.Dispose())
	})

	return eng, transport
}

// nextWrite waits for the next outbound document.
func nextWrite(t *testing.T, transport *fakeTransport) map[string]any {
	t.Helper()

	select {
	case doc := <-transport.writes:
		return doc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound write")

		return nil
	}
}

func controlRequest(requestID string, request map[string]any) map[string]any {
	return map[string]any{
		"type":       "control_request",
		"request_id": requestID,
		"request":    request,
	}
}

func responseBody(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()

	require.Equal(t, "control_response", doc["type"])

	body, ok := doc["response"].(map[string]any)
	require.True(t, ok)

	return body
}

func TestEngineDeliversDomainMessages(t *testing.T) {
	eng, transport := startEngine(t, nil)

	transport.msgCh <- map[string]any{
		"type":    "system",
		"subtype": "init",
		"data":    map[string]any{"session_id": "s1"},
	}

	select {
	case msg := <-eng.Messages():
		sys, ok := msg.(*wire.SystemMessage)
		require.True(t, ok)
		require.Equal(t, "init", sys.Subtype)
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}
}

func TestEngineSkipsUnknownTypesAndKeepsGoing(t *testing.T) {
	eng, transport := startEngine(t, nil)

	transport.msgCh <- map[string]any{"type": "bogus", "data": "x"}
	transport.msgCh <- map[string]any{"no_type": true}
	transport.msgCh <- map[string]any{
		"type":        "result",
		"subtype":     "success",
		"duration_ms": float64(10),
		"is_error":    false,
		"num_turns":   float64(1),
		"session_id":  "s1",
	}

	select {
	case msg := <-eng.Messages():
		result, ok := msg.(*wire.ResultMessage)
		require.True(t, ok)
		require.Equal(t, "success", result.Subtype)
	case <-time.After(2 * time.Second):
		t.Fatal("result message not delivered")
	}

	select {
	case msg := <-eng.Messages():
		t.Fatalf("unexpected extra delivery: %#v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngineSkipsDecodeErrors(t *testing.T) {
	eng, transport := startEngine(t, nil)

	transport.errCh <- &sdkerr.DecodeError{Line: "{not json", Err: errors.New("bad")}
	transport.msgCh <- map[string]any{
		"type":    "system",
		"subtype": "init",
	}

	select {
	case msg := <-eng.Messages():
		_, ok := msg.(*wire.SystemMessage)
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("message after decode error not delivered")
	}

	require.NoError(t, eng.FatalError())
}

func TestEngineStopsOnFatalTransportError(t *testing.T) {
	eng, transport := startEngine(t, nil)

	transport.errCh <- errors.New("stdout read failed")

	select {
	case <-eng.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}

	require.Error(t, eng.FatalError())
}

func TestEngineBackpressureBlocksProducer(t *testing.T) {
	eng, transport := startEngine(t, &config.Options{DeliveryBuffer: 2})

	for i := range 3 {
		transport.msgCh <- map[string]any{
			"type":    "system",
			"subtype": fmt.Sprintf("item_%d", i),
		}
	}

	// Queue capacity is 2; the third item sits in the pump until a
	// consumer drains. All three must arrive in order.
	for i := range 3 {
		select {
		case msg := <-eng.Messages():
			sys, ok := msg.(*wire.SystemMessage)
			require.True(t, ok)
			require.Equal(t, fmt.Sprintf("item_%d", i), sys.Subtype)
		case <-time.After(2 * time.Second):
			t.Fatalf("item %d not delivered", i)
		}
	}
}

func TestEngineSendCorrelatesResponse(t *testing.T) {
	eng, transport := startEngine(t, nil)

	type sendResult struct {
		payload map[string]any
		err     error
	}

	resultCh := make(chan sendResult, 1)

	go func() {
		payload, err := eng.Send(context.Background(), "interrupt", nil, time.Second)
		resultCh <- sendResult{payload, err}
	}()

	out := nextWrite(t, transport)
	require.Equal(t, "control_request", out["type"])

	requestID, ok := out["request_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, requestID)

	request, ok := out["request"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "interrupt", request["subtype"])

	transport.msgCh <- map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": requestID,
			"response":   map[string]any{"ok": true},
		},
	}

	result := <-resultCh
	require.NoError(t, result.err)
	require.Equal(t, true, result.payload["ok"])
}

func TestEngineSendErrorResponse(t *testing.T) {
	eng, transport := startEngine(t, nil)

	errCh := make(chan error, 1)

	go func() {
		_, err := eng.Send(context.Background(), "set_model", map[string]any{"model": "x"}, time.Second)
		errCh <- err
	}()

	out := nextWrite(t, transport)
	requestID := out["request_id"].(string)

	transport.msgCh <- map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "error",
			"request_id": requestID,
			"error":      "unknown model",
		},
	}

	err := <-errCh
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown model")
}

func TestEngineSendTimeoutRemovesPending(t *testing.T) {
	eng, transport := startEngine(t, nil)

	_, err := eng.Send(context.Background(), "interrupt", nil, 20*time.Millisecond)
	require.ErrorIs(t, err, sdkerr.ErrRequestTimeout)

	out := nextWrite(t, transport)
	requestID := out["request_id"].(string)
	require.Contains(t, err.Error(), requestID)

	eng.mu.Lock()
	remaining := len(eng.pending)
	eng.mu.Unlock()
	require.Zero(t, remaining)

	// A late response for the timed-out request is discarded.
	transport.msgCh <- map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": requestID,
			"response":   map[string]any{},
		},
	}

	transport.msgCh <- map[string]any{"type": "system", "subtype": "still_alive"}

	select {
	case msg := <-eng.Messages():
		sys, ok := msg.(*wire.SystemMessage)
		require.True(t, ok)
		require.Equal(t, "still_alive", sys.Subtype)
	case <-time.After(2 * time.Second):
		t.Fatal("engine stalled after spurious response")
	}
}

func TestEngineSendAfterDispose(t *testing.T) {
	transport := newFakeTransport()
	eng := New(nil, transport, &config.Options{})
	eng.Start(context.Background())

	require.NoError(t, eng.Dispose())

	_, err := eng.Send(context.Background(), "interrupt", nil, time.Second)
	require.ErrorIs(t, err, sdkerr.ErrEngineStopped)
}

func TestEngineSendFailsFastAfterStreamEOF(t *testing.T) {
	eng, transport := startEngine(t, nil)

	// Clean end of stream: the CLI exited without a transport error.
	require.NoError(t, transport.Close())

	select {
	case <-eng.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after stream EOF")
	}

	start := time.Now()

	_, err := eng.Send(context.Background(), "interrupt", nil, time.Minute)
	require.ErrorIs(t, err, sdkerr.ErrEngineStopped)
	require.Less(t, time.Since(start), time.Second)

	// A clean EOF is not a fatal error.
	require.NoError(t, eng.FatalError())
}

func TestEngineDisposeConcurrent(t *testing.T) {
	transport := newFakeTransport()
	eng := New(nil, transport, &config.Options{})
	eng.Start(context.Background())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			require.NoError(t, eng.Dispose())
		}()
	}

	wg.Wait()

	select {
	case _, open := <-eng.Messages():
		require.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery channel not closed")
	}
}

func TestEngineDisposeFailsPendingRequests(t *testing.T) {
	transport := newFakeTransport()
	eng := New(nil, transport, &config.Options{})
	eng.Start(context.Background())

	errCh := make(chan error, 1)

	go func() {
		_, err := eng.Send(context.Background(), "interrupt", nil, 10*time.Second)
		errCh <- err
	}()

	nextWrite(t, transport)

	require.NoError(t, eng.Dispose())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, sdkerr.ErrEngineStopped)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not failed on dispose")
	}
}

func TestEngineCanUseToolDefaultAllow(t *testing.T) {
	_, transport := startEngine(t, nil)

	transport.msgCh <- controlRequest("cr_1", map[string]any{
		"subtype":   "can_use_tool",
		"tool_name": "Bash",
		"input":     map[string]any{"command": "ls"},
	})

	body := responseBody(t, nextWrite(t, transport))
	require.Equal(t, "success", body["subtype"])
	require.Equal(t, "cr_1", body["request_id"])

	payload := body["response"].(map[string]any)
	require.Equal(t, "allow", payload["behavior"])
}

func TestEngineCanUseToolDeny(t *testing.T) {
	opts := &config.Options{
		CanUseTool: func(ctx context.Context, req *perm.Request) (perm.Decision, error) {
			require.Equal(t, "Bash", req.ToolName)

			return &perm.Deny{Message: "blocked", Interrupt: true}, nil
		},
	}

	_, transport := startEngine(t, opts)

	transport.msgCh <- controlRequest("cr_2", map[string]any{
		"subtype":   "can_use_tool",
		"tool_name": "Bash",
		"input":     map[string]any{"command": "rm -rf /"},
	})

	body := responseBody(t, nextWrite(t, transport))
	require.Equal(t, "success", body["subtype"])

	payload := body["response"].(map[string]any)
	require.Equal(t, "deny", payload["behavior"])
	require.Equal(t, "blocked", payload["message"])
	require.Equal(t, true, payload["interrupt"])
}

func TestEngineCanUseToolCallbackError(t *testing.T) {
	opts := &config.Options{
		CanUseTool: func(ctx context.Context, req *perm.Request) (perm.Decision, error) {
			return nil, errors.New("policy backend down")
		},
	}

	_, transport := startEngine(t, opts)

	transport.msgCh <- controlRequest("cr_3", map[string]any{
		"subtype":   "can_use_tool",
		"tool_name": "Write",
	})

	body := responseBody(t, nextWrite(t, transport))
	require.Equal(t, "error", body["subtype"])
	require.Equal(t, "cr_3", body["request_id"])
	require.Contains(t, body["error"], "policy backend down")
}

func TestEngineHookCallbackUnknownIDContinues(t *testing.T) {
	_, transport := startEngine(t, nil)

	transport.msgCh <- controlRequest("cr_4", map[string]any{
		"subtype":     "hook_callback",
		"callback_id": "hook_99",
		"input":       map[string]any{"hook_event_name": "PreToolUse"},
	})

	body := responseBody(t, nextWrite(t, transport))
	require.Equal(t, "success", body["subtype"])

	payload := body["response"].(map[string]any)
	require.Equal(t, true, payload["continue"])
}

func TestEngineHookCallbackFailureContinues(t *testing.T) {
	pattern := "Bash"
	opts := &config.Options{
		Hooks: hooks.Table{
			hooks.EventPreToolUse: {{
				Pattern: &pattern,
				Callbacks: []hooks.Callback{
					func(ctx context.Context, input hooks.Input, toolUseID *string) (*hooks.Output, error) {
						return nil, errors.New("hook exploded")
					},
				},
			}},
		},
	}

	eng, transport := startEngine(t, opts)

	cfg := eng.dispatch.bindHooks(opts.Hooks)
	entries := cfg["PreToolUse"].([]map[string]any)
	ids := entries[0]["hookCallbackIds"].([]string)
	require.Len(t, ids, 1)

	transport.msgCh <- controlRequest("cr_5", map[string]any{
		"subtype":     "hook_callback",
		"callback_id": ids[0],
		"input":       map[string]any{"hook_event_name": "PreToolUse"},
	})

	body := responseBody(t, nextWrite(t, transport))
	require.Equal(t, "success", body["subtype"])

	payload := body["response"].(map[string]any)
	require.Equal(t, true, payload["continue"])
}

func TestEngineUnknownSubtypeEmptySuccess(t *testing.T) {
	_, transport := startEngine(t, nil)

	transport.msgCh <- controlRequest("cr_6", map[string]any{
		"subtype": "future_feature",
	})

	body := responseBody(t, nextWrite(t, transport))
	require.Equal(t, "success", body["subtype"])
	require.Equal(t, "cr_6", body["request_id"])
	require.Empty(t, body["response"])
}

func TestEngineMCPUnknownServerPreservesIDType(t *testing.T) {
	tests := []struct {
		name string
		id   any
	}{
		{"number", float64(7)},
		{"string", "abc"},
		{"null", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, transport := startEngine(t, nil)

			transport.msgCh <- controlRequest("cr_7", map[string]any{
				"subtype":     "mcp_message",
				"server_name": "nope",
				"message": map[string]any{
					"jsonrpc": "2.0",
					"id":      tc.id,
					"method":  "tools/list",
				},
			})

			body := responseBody(t, nextWrite(t, transport))
			require.Equal(t, "success", body["subtype"])

			payload := body["response"].(map[string]any)
			reply := payload["mcp_response"].(map[string]any)
			require.Equal(t, tc.id, reply["id"])

			rpcErr := reply["error"].(map[string]any)
			require.InDelta(t, -32601, rpcErr["code"], 0)
			require.Contains(t, rpcErr["message"], "nope")
		})
	}
}

func TestEngineMCPRoutesToNamedServer(t *testing.T) {
	echo := toolserver.New("echo", "1.0.0",
		toolserver.NewTool("say", "echoes input",
			toolserver.SimpleSchema(map[string]string{"text": "string"}),
			func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				args, err := toolserver.ParseArguments(req)
				if err != nil {
					return nil, err
				}

				text, _ := args["text"].(string)

				return toolserver.TextResult("echo: " + text), nil
			}))

	calc := toolserver.New("calc", "1.0.0",
		toolserver.NewTool("add", "adds numbers",
			toolserver.SimpleSchema(map[string]string{"a": "float64", "b": "float64"}),
			func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				args, err := toolserver.ParseArguments(req)
				if err != nil {
					return nil, err
				}

				a, _ := args["a"].(float64)
				b, _ := args["b"].(float64)

				return toolserver.TextResult(fmt.Sprintf("%g", a+b)), nil
			}))

	opts := &config.Options{
		ToolServers: map[string]*toolserver.Server{
			"echo": echo,
			"calc": calc,
		},
	}

	_, transport := startEngine(t, opts)

	transport.msgCh <- controlRequest("cr_echo", map[string]any{
		"subtype":     "mcp_message",
		"server_name": "echo",
		"message": map[string]any{
			"jsonrpc": "2.0",
			"id":      float64(1),
			"method":  "tools/call",
			"params": map[string]any{
				"name":      "say",
				"arguments": map[string]any{"text": "hi"},
			},
		},
	})

	transport.msgCh <- controlRequest("cr_calc", map[string]any{
		"subtype":     "mcp_message",
		"server_name": "calc",
		"message": map[string]any{
			"jsonrpc": "2.0",
			"id":      float64(2),
			"method":  "tools/call",
			"params": map[string]any{
				"name":      "add",
				"arguments": map[string]any{"a": float64(2), "b": float64(3)},
			},
		},
	})

	got := map[string]string{}

	for range 2 {
		body := responseBody(t, nextWrite(t, transport))
		require.Equal(t, "success", body["subtype"])

		requestID := body["request_id"].(string)
		payload := body["response"].(map[string]any)
		reply := payload["mcp_response"].(map[string]any)
		result := reply["result"].(map[string]any)
		content := result["content"].([]any)
		first := content[0].(map[string]any)
		got[requestID] = first["text"].(string)
	}

	require.Equal(t, "echo: hi", got["cr_echo"])
	require.Equal(t, "5", got["cr_calc"])
}

func TestEngineInitializeIdempotent(t *testing.T) {
	eng, transport := startEngine(t, nil)

	go func() {
		out := nextWrite(t, transport)
		requestID := out["request_id"].(string)

		transport.msgCh <- map[string]any{
			"type": "control_response",
			"response": map[string]any{
				"subtype":    "success",
				"request_id": requestID,
				"response":   map[string]any{"commands": []any{}},
			},
		}
	}()

	first, err := eng.Initialize(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	// No further write happens; a second handshake would hang here.
	second, err := eng.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
}
