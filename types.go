package agentlink

import (
	"iter"

	"github.com/agentlink/agentlink/internal/config"
	"github.com/agentlink/agentlink/internal/hooks"
	"github.com/agentlink/agentlink/internal/perm"
	"github.com/agentlink/agentlink/internal/wire"
)

// Re-exported types from the internal packages.

// ===== Options =====

// Options configures queries and sessions. Build one with the With...
// functional options.
type Options = config.Options

// ===== Messages =====

// Message is any message delivered from the agent.
type Message = wire.Message

// UserMessage is a user message echoed back by the agent.
type UserMessage = wire.UserMessage

// UserContent is user message content: a plain string or content blocks.
type UserContent = wire.UserContent

// NewUserContent wraps a plain string as user content.
var NewUserContent = wire.NewUserContent

// NewUserContentBlocks wraps explicit blocks as user content.
var NewUserContentBlocks = wire.NewUserContentBlocks

// AssistantMessage is a response from the agent.
type AssistantMessage = wire.AssistantMessage

// SystemMessage is an informational message from the agent CLI.
type SystemMessage = wire.SystemMessage

// ResultMessage closes a turn with its outcome, cost, and usage.
type ResultMessage = wire.ResultMessage

// TokenUsage reports token counts for a turn.
type TokenUsage = wire.TokenUsage

// StreamEvent is a partial-message event, delivered when
// WithIncludePartialMessages is set.
type StreamEvent = wire.StreamEvent

// ToolProgress reports progress of a long-running tool invocation.
type ToolProgress = wire.ToolProgress

// ToolUseSummary summarizes completed tool uses.
type ToolUseSummary = wire.ToolUseSummary

// AuthStatus reports a change in the CLI's authentication state.
type AuthStatus = wire.AuthStatus

// ===== Content blocks =====

// ContentBlock is one block inside a message.
type ContentBlock = wire.Block

// TextBlock is plain text content.
type TextBlock = wire.TextBlock

// ThinkingBlock is extended-thinking content.
type ThinkingBlock = wire.ThinkingBlock

// ToolUseBlock is the agent invoking a tool.
type ToolUseBlock = wire.ToolUseBlock

// ToolResultBlock is the outcome of a tool invocation.
type ToolResultBlock = wire.ToolResultBlock

// ===== Streaming input =====

// UserTurn is one user message sent to the agent in streaming mode.
type UserTurn = wire.UserTurn

// NewUserTurn builds a UserTurn for a plain text prompt.
var NewUserTurn = wire.NewUserTurn

// TurnStream yields the user turns of a streaming conversation.
type TurnStream = iter.Seq[UserTurn]

// ===== Hooks =====

// HookEvent names a lifecycle point that can trigger a hook.
type HookEvent = hooks.Event

const (
	// HookEventPreToolUse fires before a tool runs.
	HookEventPreToolUse = hooks.EventPreToolUse
	// HookEventPostToolUse fires after a tool completed.
	HookEventPostToolUse = hooks.EventPostToolUse
	// HookEventPostToolUseFailure fires after a tool failed.
	HookEventPostToolUseFailure = hooks.EventPostToolUseFailure
	// HookEventUserPromptSubmit fires when a user prompt is submitted.
	HookEventUserPromptSubmit = hooks.EventUserPromptSubmit
	// HookEventStop fires when the conversation stops.
	HookEventStop = hooks.EventStop
	// HookEventSubagentStop fires when a subagent stops.
	HookEventSubagentStop = hooks.EventSubagentStop
	// HookEventPreCompact fires before transcript compaction.
	HookEventPreCompact = hooks.EventPreCompact
	// HookEventSessionStart fires when a session begins.
	HookEventSessionStart = hooks.EventSessionStart
	// HookEventNotification fires when the agent emits a notification.
	HookEventNotification = hooks.EventNotification
)

// HookInput is the typed payload delivered to a hook callback.
type HookInput = hooks.Input

// PreToolUseHookInput is the input for PreToolUse hooks.
type PreToolUseHookInput = hooks.PreToolUseInput

// PostToolUseHookInput is the input for PostToolUse hooks.
type PostToolUseHookInput = hooks.PostToolUseInput

// PostToolUseFailureHookInput is the input for PostToolUseFailure hooks.
type PostToolUseFailureHookInput = hooks.PostToolUseFailureInput

// UserPromptSubmitHookInput is the input for UserPromptSubmit hooks.
type UserPromptSubmitHookInput = hooks.UserPromptSubmitInput

// StopHookInput is the input for Stop hooks.
type StopHookInput = hooks.StopInput

// SubagentStopHookInput is the input for SubagentStop hooks.
type SubagentStopHookInput = hooks.SubagentStopInput

// PreCompactHookInput is the input for PreCompact hooks.
type PreCompactHookInput = hooks.PreCompactInput

// SessionStartHookInput is the input for SessionStart hooks.
type SessionStartHookInput = hooks.SessionStartInput

// NotificationHookInput is the input for Notification hooks.
type NotificationHookInput = hooks.NotificationInput

// GenericHookInput is the fallback for hook events this SDK version does
// not model.
type GenericHookInput = hooks.GenericInput

// HookOutput is a hook callback's answer. The zero value means continue.
type HookOutput = hooks.Output

// HookCallback is a host-supplied hook handler.
type HookCallback = hooks.Callback

// HookMatcher binds callbacks to a tool-name pattern for one event.
type HookMatcher = hooks.Matcher

// HookTable maps events to matchers.
type HookTable = hooks.Table

// ===== Permissions =====

// PermissionMode selects how the agent handles tool permissions.
type PermissionMode = perm.Mode

const (
	// PermissionModeDefault prompts per the CLI's standard rules.
	PermissionModeDefault = perm.ModeDefault
	// PermissionModeAcceptEdits auto-accepts file edits.
	PermissionModeAcceptEdits = perm.ModeAcceptEdits
	// PermissionModePlan restricts the agent to planning.
	PermissionModePlan = perm.ModePlan
	// PermissionModeBypass skips all permission checks.
	PermissionModeBypass = perm.ModeBypass
)

// PermissionRequest is what the agent asks before using a tool.
type PermissionRequest = perm.Request

// PermissionDecision is the callback's answer: *PermissionAllow or
// *PermissionDeny.
type PermissionDecision = perm.Decision

// PermissionAllow permits the tool use.
type PermissionAllow = perm.Allow

// PermissionDeny blocks the tool use.
type PermissionDeny = perm.Deny

// PermissionUpdate describes one change to permission configuration.
type PermissionUpdate = perm.Update

// PermissionRule is one permission rule targeting a tool.
type PermissionRule = perm.Rule

// PermissionCallback is consulted before each tool use.
type PermissionCallback = perm.Callback
