package agentlink

import "github.com/agentlink/agentlink/internal/sdkerr"

// SDKError is the marker interface implemented by every typed error in
// this SDK. Use errors.As with the concrete types below for details.
type SDKError = sdkerr.SDKError

// AgentNotFoundError indicates the agent CLI binary could not be located.
type AgentNotFoundError = sdkerr.AgentNotFoundError

// ConnectError indicates the agent process could not be started.
type ConnectError = sdkerr.ConnectError

// ExitError indicates the agent process terminated unexpectedly. Stderr
// carries the process's captured error output.
type ExitError = sdkerr.ExitError

// DecodeError indicates one line of agent output was not valid JSON. These
// are skipped internally and logged; they do not end the stream.
type DecodeError = sdkerr.DecodeError

// ParseError indicates a known message type could not be parsed.
type ParseError = sdkerr.ParseError

// Sentinel errors. Match with errors.Is.
var (
	// ErrSessionNotConnected is returned by session operations before
	// Connect.
	ErrSessionNotConnected = sdkerr.ErrSessionNotConnected

	// ErrSessionAlreadyConnected is returned when Connect is called on a
	// connected session.
	ErrSessionAlreadyConnected = sdkerr.ErrSessionAlreadyConnected

	// ErrSessionClosed is returned when a closed session is used. Sessions
	// are single-use.
	ErrSessionClosed = sdkerr.ErrSessionClosed

	// ErrTransportClosed is returned by writes after the transport's input
	// side closed.
	ErrTransportClosed = sdkerr.ErrTransportClosed

	// ErrRequestTimeout is wrapped by control request timeout errors.
	ErrRequestTimeout = sdkerr.ErrRequestTimeout

	// ErrEngineStopped is returned for requests in flight when the
	// protocol engine shuts down.
	ErrEngineStopped = sdkerr.ErrEngineStopped
)
