package proc

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/agentlink/agentlink/internal/config"
	"github.com/agentlink/agentlink/internal/perm"
)

// BuildArgs renders the CLI argument list for the given configuration.
//
// In streaming mode stdin carries the conversation (--input-format
// stream-json) and no prompt appears on the command line. In one-shot mode
// the prompt is passed after "--" with --print.
func BuildArgs(prompt string, opts *config.Options, streaming bool) []string {
	args := []string{"--output-format", "stream-json", "--verbose"}

	if opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", opts.SystemPrompt)
	}

	if opts.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.AppendSystemPrompt)
	}

	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}

	if opts.FallbackModel != "" {
		args = append(args, "--fallback-model", opts.FallbackModel)
	}

	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", perm.Normalize(opts.PermissionMode))
	}

	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}

	if opts.MaxThinkingTokens > 0 {
		args = append(args, "--max-thinking-tokens", strconv.Itoa(opts.MaxThinkingTokens))
	}

	if opts.IncludePartialMessages {
		args = append(args, "--include-partial-messages")
	}

	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(opts.AllowedTools, ","))
	}

	if len(opts.DisallowedTools) > 0 {
		args = append(args, "--disallowed-tools", strings.Join(opts.DisallowedTools, ","))
	}

	if name := permissionPromptTool(opts); name != "" {
		args = append(args, "--permission-prompt-tool", name)
	}

	if opts.Settings != "" {
		args = append(args, "--settings", opts.Settings)
	}

	for _, dir := range opts.AddDirs {
		args = append(args, "--add-dir", dir)
	}

	if opts.ContinueConversation {
		args = append(args, "--continue")
	}

	if opts.Resume != "" {
		args = append(args, "--resume", opts.Resume)

		if opts.ForkSession {
			args = append(args, "--fork-session")
		}
	}

	if cfg := mcpConfig(opts); cfg != "" {
		args = append(args, "--mcp-config", cfg)
	}

	for flag, value := range opts.ExtraArgs {
		if value == nil {
			args = append(args, "--"+flag)
		} else {
			args = append(args, "--"+flag, *value)
		}
	}

	if streaming {
		args = append(args, "--input-format", "stream-json")
	} else {
		args = append(args, "--print", "--", prompt)
	}

	return args
}

// permissionPromptTool returns the permission prompt routing. Configuring
// a permission callback implies stdio routing so can_use_tool requests
// reach the control protocol.
func permissionPromptTool(opts *config.Options) string {
	if opts.PermissionPromptToolName != "" {
		return opts.PermissionPromptToolName
	}

	if opts.CanUseTool != nil {
		return "stdio"
	}

	return ""
}

// mcpConfig renders the --mcp-config JSON registering each embedded tool
// server as an sdk-type server, addressed back over the control protocol.
func mcpConfig(opts *config.Options) string {
	if len(opts.ToolServers) == 0 {
		return ""
	}

	servers := make(map[string]any, len(opts.ToolServers))
	for name := range opts.ToolServers {
		servers[name] = map[string]any{"type": "sdk", "name": name}
	}

	raw, err := json.Marshal(map[string]any{"mcpServers": servers})
	if err != nil {
		return ""
	}

	return string(raw)
}

// BuildEnv returns the subprocess environment: the parent environment,
// the SDK entrypoint marker, and configured overrides.
func BuildEnv(opts *config.Options) []string {
	env := os.Environ()
	env = append(env, "AGENTLINK_ENTRYPOINT=sdk-go")

	for key, value := range opts.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	return env
}
