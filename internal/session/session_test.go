package session

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentlink/agentlink/internal/config"
	"github.com/agentlink/agentlink/internal/sdkerr"
	"github.com/agentlink/agentlink/internal/wire"
)

// scriptedTransport answers every outbound control request with a success
// response and records all writes for assertions.
type scriptedTransport struct {
	msgCh  chan map[string]any
	errCh  chan error
	writes chan map[string]any

	mu         sync.Mutex
	closed     bool
	inputEnded bool
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		msgCh:  make(chan map[string]any, 64),
		errCh:  make(chan error, 8),
		writes: make(chan map[string]any, 64),
	}
}

func (t *scriptedTransport) Connect(ctx context.Context) error { return nil }

func (t *scriptedTransport) ReadStream(ctx context.Context) (<-chan map[string]any, <-chan error) {
	return t.msgCh, t.errCh
}

func (t *scriptedTransport) Write(ctx context.Context, data []byte) error {
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

	if doc["type"] == "control_request" {
		t.msgCh <- map[string]any{
			"type": "control_response",
			"response": map[string]any{
				"subtype":    "success",
				"request_id": doc["request_id"],
				"response":   map[string]any{"commands": []any{}},
			},
		}
	}

	return nil
}

func (t *scriptedTransport) EndInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inputEnded = true

	return nil
}

func (t *scriptedTransport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return !t.closed
}

func (t *scriptedTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		t.closed = true
		close(t.msgCh)
	}

	return nil
}

var _ config.Transport = (*scriptedTransport)(nil)

func connectedSession(t *testing.T) (*Session, *scriptedTransport) {
	t.Helper()

	transport := newScriptedTransport()
	sess := New()

	require.NoError(t, sess.Connect(context.Background(), &config.Options{Transport: transport}))

	t.Cleanup(func() {
		require.NoError(t, sess.Close())
	})

	// Drain the initialize request so later assertions see only their own
	// writes.
	<-transport.writes

	return sess, transport
}

func nextWrite(t *testing.T, transport *scriptedTransport) map[string]any {
	t.Helper()

	select {
	case doc := <-transport.writes:
		return doc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound write")

		return nil
	}
}

func TestSessionConnectRunsHandshake(t *testing.T) {
	sess, _ := connectedSession(t)

	info := sess.ServerInfo()
	require.NotNil(t, info)
	require.Contains(t, info, "commands")
}

func TestSessionConnectTwice(t *testing.T) {
	sess, _ := connectedSession(t)

	err := sess.Connect(context.Background(), &config.Options{Transport: newScriptedTransport()})
	require.ErrorIs(t, err, sdkerr.ErrSessionAlreadyConnected)
}

func TestSessionSingleUse(t *testing.T) {
	sess := New()
	require.NoError(t, sess.Close())

	err := sess.Connect(context.Background(), &config.Options{Transport: newScriptedTransport()})
	require.ErrorIs(t, err, sdkerr.ErrSessionClosed)
}

func TestSessionSendBeforeConnect(t *testing.T) {
	sess := New()

	err := sess.Send(context.Background(), "hello")
	require.ErrorIs(t, err, sdkerr.ErrSessionNotConnected)
}

func TestSessionSendWritesUserTurn(t *testing.T) {
	sess, transport := connectedSession(t)

	require.NoError(t, sess.Send(context.Background(), "hello there"))

	doc := nextWrite(t, transport)
	require.Equal(t, "user", doc["type"])
	require.Equal(t, "default", doc["session_id"])

	body := doc["message"].(map[string]any)
	require.Equal(t, "user", body["role"])
	require.Equal(t, "hello there", body["content"])
}

func TestSessionSendNamedConversation(t *testing.T) {
	sess, transport := connectedSession(t)

	require.NoError(t, sess.Send(context.Background(), "hi", "side_chat"))

	doc := nextWrite(t, transport)
	require.Equal(t, "side_chat", doc["session_id"])
}

func TestSessionResponseStopsAtResult(t *testing.T) {
	sess, transport := connectedSession(t)

	transport.msgCh <- map[string]any{
		"type": "assistant",
		"message": map[string]any{
			"content": []any{map[string]any{"type": "text", "text": "hi"}},
			"model":   "m1",
		},
		"session_id": "s1",
	}
	transport.msgCh <- map[string]any{
		"type":        "result",
		"subtype":     "success",
		"duration_ms": float64(5),
		"is_error":    false,
		"num_turns":   float64(1),
		"session_id":  "s1",
	}
	transport.msgCh <- map[string]any{"type": "system", "subtype": "after_result"}

	var kinds []string

	for msg, err := range sess.Response(context.Background()) {
		require.NoError(t, err)
		kinds = append(kinds, msg.Kind())
	}

	require.Equal(t, []string{"assistant", "result"}, kinds)
}

func TestSessionMessagesEndsOnClose(t *testing.T) {
	transport := newScriptedTransport()
	sess := New()
	require.NoError(t, sess.Connect(context.Background(), &config.Options{Transport: transport}))
	<-transport.writes

	collected := make(chan int, 1)

	go func() {
		count := 0

		for _, err := range sess.Messages(context.Background()) {
			if err != nil {
				break
			}

			count++
		}

		collected <- count
	}()

	transport.msgCh <- map[string]any{"type": "system", "subtype": "one"}

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, sess.Close())

	select {
	case count := <-collected:
		require.Equal(t, 1, count)
	case <-time.After(2 * time.Second):
		t.Fatal("message iterator did not end after close")
	}
}

func TestSessionInterrupt(t *testing.T) {
	sess, transport := connectedSession(t)

	require.NoError(t, sess.Interrupt(context.Background()))

	doc := nextWrite(t, transport)
	request := doc["request"].(map[string]any)
	require.Equal(t, "interrupt", request["subtype"])
}

func TestSessionSetPermissionModeNormalizes(t *testing.T) {
	sess, transport := connectedSession(t)

	require.NoError(t, sess.SetPermissionMode(context.Background(), "acceptAll"))

	doc := nextWrite(t, transport)
	request := doc["request"].(map[string]any)
	require.Equal(t, "set_permission_mode", request["subtype"])
	require.Equal(t, "bypassPermissions", request["mode"])
}

func TestSessionSetModel(t *testing.T) {
	sess, transport := connectedSession(t)

	model := "claude-opus-4-5"
	require.NoError(t, sess.SetModel(context.Background(), &model))

	doc := nextWrite(t, transport)
	request := doc["request"].(map[string]any)
	require.Equal(t, "set_model", request["subtype"])
	require.Equal(t, model, request["model"])
}

func TestSessionSetMaxThinkingTokens(t *testing.T) {
	sess, transport := connectedSession(t)

	require.NoError(t, sess.SetMaxThinkingTokens(context.Background(), 8192))

	doc := nextWrite(t, transport)
	request := doc["request"].(map[string]any)
	require.Equal(t, "set_max_thinking_tokens", request["subtype"])
	require.InDelta(t, 8192, request["max_thinking_tokens"], 0)
}

func TestSessionMCPManagement(t *testing.T) {
	sess, transport := connectedSession(t)

	require.NoError(t, sess.ReconnectMCPServer(context.Background(), "db"))
	doc := nextWrite(t, transport)
	request := doc["request"].(map[string]any)
	require.Equal(t, "mcp_reconnect", request["subtype"])
	require.Equal(t, "db", request["serverName"])

	require.NoError(t, sess.ToggleMCPServer(context.Background(), "db", false))
	doc = nextWrite(t, transport)
	request = doc["request"].(map[string]any)
	require.Equal(t, "mcp_toggle", request["subtype"])
	require.Equal(t, false, request["enabled"])
}

func TestSessionCloseIdempotent(t *testing.T) {
	sess, _ := connectedSession(t)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
}

func TestSessionConnectWithStream(t *testing.T) {
	transport := newScriptedTransport()
	sess := New()

	turns := func(yield func(wire.UserTurn) bool) {
		for _, prompt := range []string{"first", "second"} {
			if !yield(wire.NewUserTurn(prompt)) {
				return
			}
		}
	}

	require.NoError(t, sess.ConnectWithStream(context.Background(),
		iter.Seq[wire.UserTurn](turns), &config.Options{Transport: transport}))

	t.Cleanup(func() {
		require.NoError(t, sess.Close())
	})

	<-transport.writes // initialize

	var contents []string

	for range 2 {
		doc := nextWrite(t, transport)
		require.Equal(t, "user", doc["type"])

		body := doc["message"].(map[string]any)
		contents = append(contents, body["content"].(string))
	}

	require.Equal(t, []string{"first", "second"}, contents)

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()

		return transport.inputEnded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionReceiveFatalError(t *testing.T) {
	transport := newScriptedTransport()
	sess := New()
	require.NoError(t, sess.Connect(context.Background(), &config.Options{Transport: transport}))
	<-transport.writes

	t.Cleanup(func() {
		_ = sess.Close()
	})

	transport.errCh <- io.ErrUnexpectedEOF

	var got error

	for _, err := range sess.Messages(context.Background()) {
		if err != nil {
			got = err

			break
		}
	}

	require.ErrorIs(t, got, io.ErrUnexpectedEOF)
}
