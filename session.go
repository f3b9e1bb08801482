package agentlink

import (
	"context"
	"iter"

	"github.com/agentlink/agentlink/internal/session"
)

// Session is an interactive, multi-turn conversation with the agent.
//
// Unlike Query, a session stays connected between prompts: send with Send,
// consume with Response or Messages, and steer the running conversation
// with Interrupt, SetPermissionMode, and SetModel. Sessions are
// single-use; after Close, create a new one with NewSession.
type Session struct {
	inner *session.Session
}

// NewSession creates an unconnected session. Call Connect before use.
func NewSession() *Session {
	return &Session{inner: session.New()}
}

// Connect starts the agent and runs the control protocol handshake.
func (s *Session) Connect(ctx context.Context, opts ...Option) error {
	options := applyOptions(opts)
	if err := validateOptions(options); err != nil {
		return err
	}

	return s.inner.Connect(ctx, options)
}

// ConnectWithPrompt connects and immediately sends the first prompt.
func (s *Session) ConnectWithPrompt(ctx context.Context, prompt string, opts ...Option) error {
	if err := s.Connect(ctx, opts...); err != nil {
		return err
	}

	return s.Send(ctx, prompt)
}

// ConnectWithStream connects and feeds the conversation from a turn
// stream on a background goroutine. Input ends when the stream does.
func (s *Session) ConnectWithStream(ctx context.Context, turns TurnStream, opts ...Option) error {
	options := applyOptions(opts)
	if err := validateOptions(options); err != nil {
		return err
	}

	return s.inner.ConnectWithStream(ctx, turns, options)
}

// Send sends one user prompt. Responses arrive through Response or
// Messages. The optional sessionID targets a named conversation within
// the same process; it defaults to "default".
func (s *Session) Send(ctx context.Context, prompt string, sessionID ...string) error {
	return s.inner.Send(ctx, prompt, sessionID...)
}

// Messages yields messages as they arrive until the conversation ends,
// a fatal error occurs, or the context is cancelled. It does not stop at
// result messages; use Response to consume exactly one turn.
func (s *Session) Messages(ctx context.Context) iter.Seq2[Message, error] {
	return s.inner.Messages(ctx)
}

// Response yields the current turn's messages and stops after the result
// message.
func (s *Session) Response(ctx context.Context) iter.Seq2[Message, error] {
	return s.inner.Response(ctx)
}

// ServerInfo returns the handshake result: available commands, output
// styles, and protocol capabilities. Nil before Connect completes.
func (s *Session) ServerInfo() map[string]any {
	return s.inner.ServerInfo()
}

// Interrupt stops the agent's current turn.
func (s *Session) Interrupt(ctx context.Context) error {
	return s.inner.Interrupt(ctx)
}

// SetPermissionMode switches the permission mode mid-conversation.
// Valid modes: "default", "acceptEdits", "plan", "bypassPermissions".
func (s *Session) SetPermissionMode(ctx context.Context, mode string) error {
	return s.inner.SetPermissionMode(ctx, mode)
}

// SetModel switches the model mid-conversation. Nil selects the default.
func (s *Session) SetModel(ctx context.Context, model *string) error {
	return s.inner.SetModel(ctx, model)
}

// SetMaxThinkingTokens changes the extended-thinking budget.
func (s *Session) SetMaxThinkingTokens(ctx context.Context, tokens int) error {
	return s.inner.SetMaxThinkingTokens(ctx, tokens)
}

// ReconnectMCPServer asks the CLI to reconnect a configured MCP server.
func (s *Session) ReconnectMCPServer(ctx context.Context, name string) error {
	return s.inner.ReconnectMCPServer(ctx, name)
}

// ToggleMCPServer enables or disables a configured MCP server.
func (s *Session) ToggleMCPServer(ctx context.Context, name string, enabled bool) error {
	return s.inner.ToggleMCPServer(ctx, name, enabled)
}

// SetMCPServers replaces the CLI's MCP server configuration. The map uses
// the CLI's mcpServers JSON shape.
func (s *Session) SetMCPServers(ctx context.Context, servers map[string]any) error {
	return s.inner.SetMCPServers(ctx, servers)
}

// EndInput closes the input side of the conversation. The agent finishes
// pending turns and the message stream ends.
func (s *Session) EndInput() error {
	return s.inner.EndInput()
}

// Close disposes the session. Safe to call multiple times.
func (s *Session) Close() error {
	return s.inner.Close()
}
