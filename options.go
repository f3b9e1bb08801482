package agentlink

import (
	"log/slog"
	"time"

	"github.com/agentlink/agentlink/internal/toolserver"
)

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions builds an Options from functional options.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// ===== Basic configuration =====

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithSystemPrompt replaces the agent's system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) {
		o.SystemPrompt = prompt
	}
}

// WithAppendSystemPrompt appends to the agent's default system prompt.
func WithAppendSystemPrompt(prompt string) Option {
	return func(o *Options) {
		o.AppendSystemPrompt = prompt
	}
}

// WithModel selects the model, e.g. "claude-sonnet-4-5".
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithFallbackModel sets the model used when the primary is overloaded.
func WithFallbackModel(model string) Option {
	return func(o *Options) {
		o.FallbackModel = model
	}
}

// WithPermissionMode controls tool permission handling.
// Valid values: "default", "acceptEdits", "plan", "bypassPermissions".
func WithPermissionMode(mode string) Option {
	return func(o *Options) {
		o.PermissionMode = mode
	}
}

// WithMaxTurns caps the number of agentic turns per query.
func WithMaxTurns(maxTurns int) Option {
	return func(o *Options) {
		o.MaxTurns = maxTurns
	}
}

// WithMaxThinkingTokens caps the extended-thinking budget.
func WithMaxThinkingTokens(tokens int) Option {
	return func(o *Options) {
		o.MaxThinkingTokens = tokens
	}
}

// WithIncludePartialMessages enables StreamEvent delivery.
func WithIncludePartialMessages() Option {
	return func(o *Options) {
		o.IncludePartialMessages = true
	}
}

// WithCwd sets the working directory for the agent process.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// WithBinPath sets an explicit path to the agent CLI binary.
// If not set, the binary is discovered via AGENTLINK_BIN and PATH.
func WithBinPath(path string) Option {
	return func(o *Options) {
		o.BinPath = path
	}
}

// WithEnv adds environment variables for the agent process.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Env = env
	}
}

// ===== Tools and permissions =====

// WithAllowedTools pre-approves tools.
func WithAllowedTools(tools ...string) Option {
	return func(o *Options) {
		o.AllowedTools = tools
	}
}

// WithDisallowedTools blocks tools.
func WithDisallowedTools(tools ...string) Option {
	return func(o *Options) {
		o.DisallowedTools = tools
	}
}

// WithCanUseTool installs a permission callback consulted before each
// tool use. Incompatible with WithPermissionPromptTool.
func WithCanUseTool(callback PermissionCallback) Option {
	return func(o *Options) {
		o.CanUseTool = callback
	}
}

// WithPermissionPromptTool routes permission prompts to a named tool.
func WithPermissionPromptTool(name string) Option {
	return func(o *Options) {
		o.PermissionPromptToolName = name
	}
}

// ===== Hooks =====

// WithHooks registers lifecycle hook callbacks.
func WithHooks(table HookTable) Option {
	return func(o *Options) {
		o.Hooks = table
	}
}

// ===== Tool servers =====

// WithToolServer exposes an in-process tool server to the agent. May be
// given multiple times.
func WithToolServer(server *ToolServer) Option {
	return func(o *Options) {
		if o.ToolServers == nil {
			o.ToolServers = make(map[string]*toolserver.Server)
		}

		o.ToolServers[server.Name()] = server
	}
}

// ===== Conversation control =====

// WithSettings points at a settings file, or passes raw settings JSON.
func WithSettings(settings string) Option {
	return func(o *Options) {
		o.Settings = settings
	}
}

// WithAddDirs grants the agent access to extra directories.
func WithAddDirs(dirs ...string) Option {
	return func(o *Options) {
		o.AddDirs = dirs
	}
}

// WithContinueConversation resumes the most recent conversation.
func WithContinueConversation() Option {
	return func(o *Options) {
		o.ContinueConversation = true
	}
}

// WithResume resumes the conversation with the given session ID.
func WithResume(sessionID string) Option {
	return func(o *Options) {
		o.Resume = sessionID
	}
}

// WithForkSession makes Resume fork into a new session ID instead of
// reusing the original.
func WithForkSession() Option {
	return func(o *Options) {
		o.ForkSession = true
	}
}

// WithExtraArgs passes arbitrary flags to the CLI. A nil value means a
// boolean flag with no argument.
func WithExtraArgs(args map[string]*string) Option {
	return func(o *Options) {
		o.ExtraArgs = args
	}
}

// ===== Plumbing =====

// WithStderr installs a callback receiving agent stderr lines.
func WithStderr(fn func(line string)) Option {
	return func(o *Options) {
		o.Stderr = fn
	}
}

// WithDeliveryBuffer sets the delivery queue capacity. The reader blocks
// when the queue is full, applying backpressure to the agent. Defaults
// to 256.
func WithDeliveryBuffer(capacity int) Option {
	return func(o *Options) {
		o.DeliveryBuffer = capacity
	}
}

// WithRequestTimeout bounds each outbound control request. Defaults to
// 60 seconds.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.RequestTimeout = timeout
	}
}

// WithInitializeTimeout bounds the initialize handshake. Defaults to the
// AGENTLINK_INIT_TIMEOUT environment variable (seconds), then the request
// timeout.
func WithInitializeTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.InitializeTimeout = timeout
	}
}

// WithTransport injects a custom transport instead of spawning the agent
// CLI. Used by tests.
func WithTransport(transport Transport) Option {
	return func(o *Options) {
		o.Transport = transport
	}
}
