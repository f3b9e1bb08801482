// Package sdkerr defines the error taxonomy shared across the SDK.
package sdkerr

import (
	"errors"
	"fmt"
)

// SDKError is the marker interface implemented by every typed error in the
// SDK. Callers can use it to distinguish SDK failures from ambient errors.
type SDKError interface {
	error
	IsAgentSDKError() bool
}

// Compile-time verification that all typed errors implement SDKError.
var (
	_ SDKError = (*AgentNotFoundError)(nil)
	_ SDKError = (*ConnectError)(nil)
	_ SDKError = (*ExitError)(nil)
	_ SDKError = (*DecodeError)(nil)
	_ SDKError = (*ParseError)(nil)
)

// Sentinel errors for conditions callers branch on.
var (
	// ErrSessionNotConnected indicates the session has not been connected yet.
	ErrSessionNotConnected = errors.New("session not connected")

	// ErrSessionAlreadyConnected indicates Connect was called twice.
	ErrSessionAlreadyConnected = errors.New("session already connected")

	// ErrSessionClosed indicates the session was disposed. Sessions are
	// single-use; create a new one with NewSession().
	ErrSessionClosed = errors.New("session closed")

	// ErrTransportClosed indicates a write was attempted on a transport
	// whose input side is no longer open.
	ErrTransportClosed = errors.New("transport closed")

	// ErrRequestTimeout indicates a control request timed out waiting for
	// its response.
	ErrRequestTimeout = errors.New("control request timeout")

	// ErrEngineStopped indicates the protocol engine was disposed while a
	// request was in flight.
	ErrEngineStopped = errors.New("protocol engine stopped")

	// ErrUnknownMessage indicates an inbound document had a type the SDK
	// does not recognize. Callers skip these rather than failing.
	ErrUnknownMessage = errors.New("unknown message type")
)

// AgentNotFoundError indicates the agent CLI binary could not be located.
// This surfaces from Connect/Query before any protocol traffic and is
// distinct from generic connection failure so callers can special-case it.
type AgentNotFoundError struct {
	Searched []string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent CLI not found; searched %v", e.Searched)
}

// IsAgentSDKError implements SDKError.
func (e *AgentNotFoundError) IsAgentSDKError() bool { return true }

// ConnectError indicates the agent process was found but could not be
// started or wired up.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to agent CLI: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IsAgentSDKError implements SDKError.
func (e *ConnectError) IsAgentSDKError() bool { return true }

// ExitError indicates the agent process terminated unexpectedly.
type ExitError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("agent process exited (code %d): %s", e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("agent process exited (code %d): %v", e.ExitCode, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// IsAgentSDKError implements SDKError.
func (e *ExitError) IsAgentSDKError() bool { return true }

// DecodeError indicates one line of agent output was not valid JSON.
// The read loop skips the line and continues; the raw data is preserved
// for diagnostics.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode agent output line: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsAgentSDKError implements SDKError.
func (e *DecodeError) IsAgentSDKError() bool { return true }

// ParseError indicates a well-formed JSON document with a known type could
// not be parsed into its message shape.
type ParseError struct {
	Kind string
	Data map[string]any
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q message: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsAgentSDKError implements SDKError.
func (e *ParseError) IsAgentSDKError() bool { return true }
