package config

import (
	"log/slog"
	"time"

	"github.com/agentlink/agentlink/internal/hooks"
	"github.com/agentlink/agentlink/internal/perm"
	"github.com/agentlink/agentlink/internal/toolserver"
)

// DefaultDeliveryBuffer is the delivery queue capacity when none is set.
const DefaultDeliveryBuffer = 256

// Options configures a query or interactive session.
type Options struct {
	// Logger receives debug output. Nil means silent operation.
	Logger *slog.Logger

	// SystemPrompt replaces the agent's system prompt.
	SystemPrompt string

	// AppendSystemPrompt appends to the agent's default system prompt.
	AppendSystemPrompt string

	// Model selects the model, e.g. "claude-sonnet-4-5".
	Model string

	// FallbackModel is used when the primary model is overloaded.
	FallbackModel string

	// PermissionMode controls tool permission handling. Legacy aliases
	// ("acceptAll", "prompt") are normalized.
	PermissionMode string

	// MaxTurns caps the number of agentic turns per query.
	MaxTurns int

	// MaxThinkingTokens caps the extended-thinking budget. Zero leaves the
	// CLI default in place.
	MaxThinkingTokens int

	// IncludePartialMessages enables stream_event delivery.
	IncludePartialMessages bool

	// Cwd is the working directory for the agent process.
	Cwd string

	// BinPath is an explicit path to the agent CLI binary. Empty means
	// discovery via AGENTLINK_BIN, PATH, and common install locations.
	BinPath string

	// Env adds environment variables for the agent process.
	Env map[string]string

	// AllowedTools are pre-approved tools.
	AllowedTools []string

	// DisallowedTools are blocked tools.
	DisallowedTools []string

	// PermissionPromptToolName routes permission prompts to a tool. Set
	// automatically to "stdio" when CanUseTool is configured.
	PermissionPromptToolName string

	// Settings is a path to a settings file, or raw settings JSON.
	Settings string

	// AddDirs grants the agent access to extra directories.
	AddDirs []string

	// ContinueConversation resumes the most recent conversation.
	ContinueConversation bool

	// Resume is a session ID to resume.
	Resume string

	// ForkSession resumes into a new session ID instead of reusing Resume.
	ForkSession bool

	// ExtraArgs passes arbitrary flags to the CLI. A nil value means a
	// boolean flag with no argument.
	ExtraArgs map[string]*string

	// Hooks registers lifecycle callbacks, keyed by event.
	Hooks hooks.Table

	// CanUseTool is consulted before each tool use. Nil allows everything.
	CanUseTool perm.Callback

	// ToolServers exposes in-process tool servers to the agent, keyed by
	// server name.
	ToolServers map[string]*toolserver.Server

	// Stderr receives agent stderr lines. Nil discards them (they are
	// still buffered for exit-error reporting).
	Stderr func(line string)

	// DeliveryBuffer is the delivery queue capacity. Zero means
	// DefaultDeliveryBuffer. The pump blocks when the queue is full.
	DeliveryBuffer int

	// RequestTimeout bounds each outbound control request. Zero means 60s.
	RequestTimeout time.Duration

	// InitializeTimeout bounds the initialize handshake. Zero falls back
	// to AGENTLINK_INIT_TIMEOUT seconds, then RequestTimeout.
	InitializeTimeout time.Duration

	// Transport overrides the subprocess transport. Used by tests.
	Transport Transport `json:"-"`
}

// QueueCapacity returns the effective delivery queue capacity.
func (o *Options) QueueCapacity() int {
	if o == nil || o.DeliveryBuffer <= 0 {
		return DefaultDeliveryBuffer
	}

	return o.DeliveryBuffer
}

// SendTimeout returns the effective per-request timeout.
func (o *Options) SendTimeout() time.Duration {
	if o == nil || o.RequestTimeout <= 0 {
		return 60 * time.Second
	}

	return o.RequestTimeout
}

// NeedsControlProtocol reports whether the configuration requires the
// initialize handshake and bidirectional stdin: hooks, a permission
// callback, or embedded tool servers.
func (o *Options) NeedsControlProtocol() bool {
	if o == nil {
		return false
	}

	return len(o.Hooks) > 0 || o.CanUseTool != nil || len(o.ToolServers) > 0
}
