// Package session implements the interactive bidirectional session on top
// of the protocol engine.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentlink/agentlink/internal/config"
	"github.com/agentlink/agentlink/internal/engine"
	"github.com/agentlink/agentlink/internal/perm"
	"github.com/agentlink/agentlink/internal/proc"
	"github.com/agentlink/agentlink/internal/sdkerr"
	"github.com/agentlink/agentlink/internal/wire"
)

const (
	// interruptTimeout bounds interrupt control requests.
	interruptTimeout = 5 * time.Second

	// settingTimeout bounds the small settings requests (permission mode,
	// model, thinking budget).
	settingTimeout = 5 * time.Second

	// mcpTimeout bounds MCP server management requests, which may involve
	// reconnecting to remote servers.
	mcpTimeout = 10 * time.Second
)

// Session is an interactive conversation with the agent CLI. Create one
// with New, connect with one of the Connect variants, and Close when done.
// Sessions are single-use.
type Session struct {
	log       *slog.Logger
	opts      *config.Options
	transport config.Transport
	engine    *engine.Engine

	eg *errgroup.Group

	mu        sync.Mutex
	connected bool
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// New creates an unconnected session.
func New() *Session {
	return &Session{
		done: make(chan struct{}),
	}
}

// Connect starts the agent subprocess, runs the initialize handshake, and
// leaves the conversation open. Send prompts with Send.
func (s *Session) Connect(ctx context.Context, opts *config.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connect(ctx, opts, nil)
}

// ConnectWithPrompt connects and immediately sends the first prompt.
func (s *Session) ConnectWithPrompt(ctx context.Context, prompt string, opts *config.Options) error {
	if err := s.Connect(ctx, opts); err != nil {
		return err
	}

	return s.Send(ctx, prompt)
}

// ConnectWithStream connects and feeds the conversation from turns. The
// iterator is drained on a background goroutine; input ends when it does.
func (s *Session) ConnectWithStream(ctx context.Context, turns iter.Seq[wire.UserTurn], opts *config.Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connect(ctx, opts, turns)
}

// connect performs the shared connection sequence. Caller holds s.mu.
func (s *Session) connect(ctx context.Context, opts *config.Options, turns iter.Seq[wire.UserTurn]) error {
	if s.closed {
		return sdkerr.ErrSessionClosed
	}

	if s.connected {
		return sdkerr.ErrSessionAlreadyConnected
	}

	if opts == nil {
		opts = &config.Options{}
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s.log = log.With("component", "session")
	s.opts = opts

	if opts.CanUseTool != nil && opts.PermissionPromptToolName != "" {
		return fmt.Errorf("permission callback conflicts with explicit permission prompt tool %q",
			opts.PermissionPromptToolName)
	}

	transport := opts.Transport
	if transport == nil {
		transport = proc.New(log, "", opts, true)
	}

	if err := transport.Connect(ctx); err != nil {
		return err
	}

	s.transport = transport

	// The engine outlives the caller's connect context; the session's done
	// channel and Close drive shutdown.
	s.engine = engine.New(log, transport, opts)
	s.engine.Start(context.Background())

	if _, err := s.engine.Initialize(ctx); err != nil {
		_ = s.engine.Dispose()

		return err
	}

	s.eg, _ = errgroup.WithContext(context.Background())

	if turns != nil {
		s.eg.Go(func() error {
			return s.streamTurns(turns)
		})
	}

	s.connected = true
	s.log.Info("Session connected")

	return nil
}

// streamTurns writes each turn to the agent and ends input when the
// iterator is exhausted.
func (s *Session) streamTurns(turns iter.Seq[wire.UserTurn]) (err error) {
	defer func() {
		if endErr := s.transport.EndInput(); endErr != nil && err == nil {
			err = fmt.Errorf("end input: %w", endErr)
		}
	}()

	ctx := context.Background()

	for turn := range turns {
		select {
		case <-s.done:
			return nil
		default:
		}

		if err := s.engine.WriteTurn(ctx, turn); err != nil {
			// Closing the session mid-stream is not a streaming failure.
			if errors.Is(err, sdkerr.ErrTransportClosed) {
				return nil
			}

			return fmt.Errorf("write turn: %w", err)
		}
	}

	return nil
}

func (s *Session) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connected
}

// Send sends one user prompt. Responses arrive through Messages or
// Response. The optional sessionID targets a named conversation;
// it defaults to "default".
func (s *Session) Send(ctx context.Context, prompt string, sessionID ...string) error {
	if !s.isConnected() {
		return sdkerr.ErrSessionNotConnected
	}

	turn := wire.NewUserTurn(prompt)
	turn.SessionID = "default"

	if len(sessionID) > 0 && sessionID[0] != "" {
		turn.SessionID = sessionID[0]
	}

	s.log.Debug("Sending user turn", "prompt_len", len(prompt), "session_id", turn.SessionID)

	return s.engine.WriteTurn(ctx, turn)
}

// receive returns the next message, io.EOF at end of stream, or the fatal
// error that ended it.
func (s *Session) receive(ctx context.Context) (wire.Message, error) {
	select {
	case msg, ok := <-s.engine.Messages():
		if !ok {
			if err := s.engine.FatalError(); err != nil {
				return nil, err
			}

			return nil, io.EOF
		}

		return msg, nil

	case <-s.done:
		return nil, io.EOF

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Messages yields messages until the stream ends or the context is
// cancelled. io.EOF is not yielded; the iterator just stops.
func (s *Session) Messages(ctx context.Context) iter.Seq2[wire.Message, error] {
	return func(yield func(wire.Message, error) bool) {
		if !s.isConnected() {
			yield(nil, sdkerr.ErrSessionNotConnected)

			return
		}

		for {
			msg, err := s.receive(ctx)
			if errors.Is(err, io.EOF) {
				return
			}

			if err != nil {
				yield(nil, err)

				return
			}

			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Response yields messages for the current turn and stops after the
// result message. Use it after Send to consume one complete response.
func (s *Session) Response(ctx context.Context) iter.Seq2[wire.Message, error] {
	return func(yield func(wire.Message, error) bool) {
		if !s.isConnected() {
			yield(nil, sdkerr.ErrSessionNotConnected)

			return
		}

		for {
			msg, err := s.receive(ctx)
			if err != nil {
				yield(nil, fmt.Errorf("receive response: %w", err))

				return
			}

			if !yield(msg, nil) {
				return
			}

			if _, ok := msg.(*wire.ResultMessage); ok {
				return
			}
		}
	}
}

// ServerInfo returns the initialize handshake result: available commands,
// output styles, and protocol capabilities. Nil before Connect completes.
func (s *Session) ServerInfo() map[string]any {
	s.mu.Lock()
	eng := s.engine
	s.mu.Unlock()

	if eng == nil {
		return nil
	}

	return eng.InitResult()
}

// Interrupt stops the agent's current turn.
func (s *Session) Interrupt(ctx context.Context) error {
	if !s.isConnected() {
		return sdkerr.ErrSessionNotConnected
	}

	_, err := s.engine.Send(ctx, "interrupt", nil, interruptTimeout)
	if err != nil {
		return fmt.Errorf("interrupt: %w", err)
	}

	return nil
}

// SetPermissionMode switches the permission mode mid-conversation.
func (s *Session) SetPermissionMode(ctx context.Context, mode string) error {
	if !s.isConnected() {
		return sdkerr.ErrSessionNotConnected
	}

	normalized := perm.Normalize(mode)

	_, err := s.engine.Send(ctx, "set_permission_mode",
		map[string]any{"mode": normalized}, settingTimeout)
	if err != nil {
		return fmt.Errorf("set permission mode %q: %w", normalized, err)
	}

	return nil
}

// SetModel switches the model mid-conversation. Nil selects the default.
func (s *Session) SetModel(ctx context.Context, model *string) error {
	if !s.isConnected() {
		return sdkerr.ErrSessionNotConnected
	}

	_, err := s.engine.Send(ctx, "set_model",
		map[string]any{"model": model}, settingTimeout)
	if err != nil {
		return fmt.Errorf("set model: %w", err)
	}

	return nil
}

// SetMaxThinkingTokens changes the extended-thinking budget.
func (s *Session) SetMaxThinkingTokens(ctx context.Context, tokens int) error {
	if !s.isConnected() {
		return sdkerr.ErrSessionNotConnected
	}

	_, err := s.engine.Send(ctx, "set_max_thinking_tokens",
		map[string]any{"max_thinking_tokens": tokens}, settingTimeout)
	if err != nil {
		return fmt.Errorf("set max thinking tokens: %w", err)
	}

	return nil
}

// ReconnectMCPServer asks the CLI to reconnect a configured MCP server.
func (s *Session) ReconnectMCPServer(ctx context.Context, name string) error {
	if !s.isConnected() {
		return sdkerr.ErrSessionNotConnected
	}

	_, err := s.engine.Send(ctx, "mcp_reconnect",
		map[string]any{"serverName": name}, mcpTimeout)
	if err != nil {
		return fmt.Errorf("reconnect mcp server %q: %w", name, err)
	}

	return nil
}

// ToggleMCPServer enables or disables a configured MCP server.
func (s *Session) ToggleMCPServer(ctx context.Context, name string, enabled bool) error {
	if !s.isConnected() {
		return sdkerr.ErrSessionNotConnected
	}

	_, err := s.engine.Send(ctx, "mcp_toggle",
		map[string]any{"serverName": name, "enabled": enabled}, mcpTimeout)
	if err != nil {
		return fmt.Errorf("toggle mcp server %q: %w", name, err)
	}

	return nil
}

// SetMCPServers replaces the CLI's MCP server configuration. The servers
// map uses the CLI's mcpServers JSON shape.
func (s *Session) SetMCPServers(ctx context.Context, servers map[string]any) error {
	if !s.isConnected() {
		return sdkerr.ErrSessionNotConnected
	}

	_, err := s.engine.Send(ctx, "set_mcp_servers",
		map[string]any{"servers": servers}, mcpTimeout)
	if err != nil {
		return fmt.Errorf("set mcp servers: %w", err)
	}

	return nil
}

// EndInput closes the input side of the conversation; the agent finishes
// pending turns and the message stream ends.
func (s *Session) EndInput() error {
	if !s.isConnected() {
		return sdkerr.ErrSessionNotConnected
	}

	return s.transport.EndInput()
}

// Close disposes the session. Safe to call multiple times; the session
// cannot be reused afterwards.
func (s *Session) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		wasConnected := s.connected
		s.connected = false
		s.mu.Unlock()

		if !wasConnected {
			return
		}

		s.log.Info("Closing session")

		close(s.done)

		closeErr = s.engine.Dispose()

		if s.eg != nil {
			if err := s.eg.Wait(); err != nil && closeErr == nil {
				closeErr = err
			}
		}
	})

	return closeErr
}
