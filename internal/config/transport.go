// Package config holds the option set shared by the public facade and the
// internal machinery, plus the transport contract.
package config

import "context"

// Transport is a duplex channel of line-oriented JSON documents to the
// agent process. The default implementation spawns the agent CLI; custom
// transports can be injected for tests or remote processes.
type Transport interface {
	// Connect locates and starts the agent process. A missing binary is
	// reported as *sdkerr.AgentNotFoundError, anything else as
	// *sdkerr.ConnectError.
	Connect(ctx context.Context) error

	// ReadStream returns the inbound document stream and an error channel.
	// Malformed lines surface as *sdkerr.DecodeError items and do not end
	// the stream; both channels close when the process output ends.
	ReadStream(ctx context.Context) (<-chan map[string]any, <-chan error)

	// Write sends one JSON document. A newline is appended when missing.
	// Safe for concurrent use; writes never interleave.
	Write(ctx context.Context, data []byte) error

	// EndInput half-closes the connection: no further writes, the process
	// drains pending input and exits.
	EndInput() error

	// Ready reports whether the transport can accept writes.
	Ready() bool

	// Close terminates the process. Idempotent and safe to call
	// concurrently.
	Close() error
}
