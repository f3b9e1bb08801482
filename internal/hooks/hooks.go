// Package hooks defines the lifecycle hook surface the agent CLI can call
// back into through the control protocol.
package hooks

import "context"

// Event names a lifecycle point the agent CLI reports through hook
// callbacks.
type Event string

const (
	// EventPreToolUse fires before the agent runs a tool.
	EventPreToolUse Event = "PreToolUse"
	// EventPostToolUse fires after a tool completed.
	EventPostToolUse Event = "PostToolUse"
	// EventPostToolUseFailure fires after a tool failed.
	EventPostToolUseFailure Event = "PostToolUseFailure"
	// EventUserPromptSubmit fires when a user prompt is submitted.
	EventUserPromptSubmit Event = "UserPromptSubmit"
	// EventStop fires when the conversation stops.
	EventStop Event = "Stop"
	// EventSubagentStop fires when a subagent stops.
	EventSubagentStop Event = "SubagentStop"
	// EventPreCompact fires before transcript compaction.
	EventPreCompact Event = "PreCompact"
	// EventSessionStart fires when a session begins.
	EventSessionStart Event = "SessionStart"
	// EventNotification fires when the agent emits a notification.
	EventNotification Event = "Notification"
)

// Input is implemented by all hook input payloads.
type Input interface {
	Event() Event
}

var (
	_ Input = (*PreToolUseInput)(nil)
	_ Input = (*PostToolUseInput)(nil)
	_ Input = (*PostToolUseFailureInput)(nil)
	_ Input = (*UserPromptSubmitInput)(nil)
	_ Input = (*StopInput)(nil)
	_ Input = (*SubagentStopInput)(nil)
	_ Input = (*PreCompactInput)(nil)
	_ Input = (*SessionStartInput)(nil)
	_ Input = (*NotificationInput)(nil)
	_ Input = (*GenericInput)(nil)
)

// CommonInput carries fields present on every hook payload.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type CommonInput struct {
	SessionID      string  `json:"session_id"`
	TranscriptPath string  `json:"transcript_path"`
	Cwd            string  `json:"cwd"`
	PermissionMode *string `json:"permission_mode,omitempty"`
}

// PreToolUseInput is delivered for PreToolUse events.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type PreToolUseInput struct {
	CommonInput
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	ToolUseID string         `json:"tool_use_id"`
}

// Event implements Input.
func (*PreToolUseInput) Event() Event { return EventPreToolUse }

// PostToolUseInput is delivered for PostToolUse events.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type PostToolUseInput struct {
	CommonInput
	ToolName     string         `json:"tool_name"`
	ToolInput    map[string]any `json:"tool_input"`
	ToolUseID    string         `json:"tool_use_id"`
	ToolResponse any            `json:"tool_response"`
}

// Event implements Input.
func (*PostToolUseInput) Event() Event { return EventPostToolUse }

// PostToolUseFailureInput is delivered for PostToolUseFailure events.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type PostToolUseFailureInput struct {
	CommonInput
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	ToolUseID string         `json:"tool_use_id"`
	Error     string         `json:"error"`
}

// Event implements Input.
func (*PostToolUseFailureInput) Event() Event { return EventPostToolUseFailure }

// UserPromptSubmitInput is delivered for UserPromptSubmit events.
type UserPromptSubmitInput struct {
	CommonInput
	Prompt string `json:"prompt"`
}

// Event implements Input.
func (*UserPromptSubmitInput) Event() Event { return EventUserPromptSubmit }

// StopInput is delivered for Stop events.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type StopInput struct {
	CommonInput
	StopHookActive bool `json:"stop_hook_active"`
}

// Event implements Input.
func (*StopInput) Event() Event { return EventStop }

// SubagentStopInput is delivered for SubagentStop events.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type SubagentStopInput struct {
	CommonInput
	StopHookActive bool   `json:"stop_hook_active"`
	AgentID        string `json:"agent_id"`
	AgentType      string `json:"agent_type"`
}

// Event implements Input.
func (*SubagentStopInput) Event() Event { return EventSubagentStop }

// PreCompactInput is delivered for PreCompact events.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type PreCompactInput struct {
	CommonInput
	Trigger            string  `json:"trigger"` // "manual" or "auto"
	CustomInstructions *string `json:"custom_instructions,omitempty"`
}

// Event implements Input.
func (*PreCompactInput) Event() Event { return EventPreCompact }

// SessionStartInput is delivered for SessionStart events.
type SessionStartInput struct {
	CommonInput
	Source string `json:"source"`
}

// Event implements Input.
func (*SessionStartInput) Event() Event { return EventSessionStart }

// NotificationInput is delivered for Notification events.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type NotificationInput struct {
	CommonInput
	Message          string `json:"message"`
	NotificationType string `json:"notification_type"`
}

// Event implements Input.
func (*NotificationInput) Event() Event { return EventNotification }

// GenericInput is the fallback for hook events this SDK version does not
// model. The raw payload is retained so callbacks can still inspect it.
type GenericInput struct {
	CommonInput
	EventName string
	Raw       map[string]any
}

// Event implements Input.
func (g *GenericInput) Event() Event { return Event(g.EventName) }

// Output is what a hook callback returns. The zero value means "continue".
type Output struct {
	// Continue, when set to false, asks the agent to stop after this hook.
	Continue *bool
	// Decision can be set to "block" to block the hooked action.
	Decision *string
	// StopReason is shown to the user when Continue is false.
	StopReason *string
	// SystemMessage is injected into the conversation as a system note.
	SystemMessage *string
	// SuppressOutput hides the hooked action's output from the transcript.
	SuppressOutput *bool
	// Reason explains a block decision to the model.
	Reason *string
	// SpecificOutput carries event-specific fields (for example an updated
	// tool input for PreToolUse). Marshalled verbatim under
	// "hookSpecificOutput".
	SpecificOutput map[string]any
}

// Wire converts the output to the JSON shape the agent CLI expects.
func (o *Output) Wire() map[string]any {
	result := make(map[string]any, 8)

	if o == nil || o.Continue == nil {
		result["continue"] = true
	} else {
		result["continue"] = *o.Continue
	}

	if o == nil {
		return result
	}

	if o.Decision != nil {
		result["decision"] = *o.Decision
	}

	if o.StopReason != nil {
		result["stopReason"] = *o.StopReason
	}

	if o.SystemMessage != nil {
		result["systemMessage"] = *o.SystemMessage
	}

	if o.SuppressOutput != nil {
		result["suppressOutput"] = *o.SuppressOutput
	}

	if o.Reason != nil {
		result["reason"] = *o.Reason
	}

	if o.SpecificOutput != nil {
		result["hookSpecificOutput"] = o.SpecificOutput
	}

	return result
}

// Callback is a host-supplied hook handler. The toolUseID is non-nil when
// the event relates to a specific tool invocation.
type Callback func(ctx context.Context, input Input, toolUseID *string) (*Output, error)

// Matcher binds callbacks to a tool-name pattern for one event.
type Matcher struct {
	// Pattern is a tool name ("Bash") or pipe-separated list ("Write|Edit").
	// Nil matches every occurrence of the event. This is not a regex.
	Pattern *string
	// Callbacks run in order when the pattern matches.
	Callbacks []Callback
	// Timeout in seconds for the whole matcher; nil uses the CLI default.
	Timeout *float64
}

// Table maps events to their matchers. Built once from configuration and
// treated as immutable after the initialize handshake.
type Table map[Event][]*Matcher

// DecodeInput converts a raw hook payload into its typed Input based on
// the embedded hook_event_name. Unknown events decode to GenericInput.
func DecodeInput(data map[string]any) Input {
	common := CommonInput{}

	if v, ok := data["session_id"].(string); ok {
		common.SessionID = v
	}

	if v, ok := data["transcript_path"].(string); ok {
		common.TranscriptPath = v
	}

	if v, ok := data["cwd"].(string); ok {
		common.Cwd = v
	}

	if v, ok := data["permission_mode"].(string); ok {
		common.PermissionMode = &v
	}

	name, _ := data["hook_event_name"].(string)

	str := func(key string) string {
		v, _ := data[key].(string)

		return v
	}
	obj := func(key string) map[string]any {
		v, _ := data[key].(map[string]any)

		return v
	}

	switch Event(name) {
	case EventPreToolUse:
		return &PreToolUseInput{
			CommonInput: common,
			ToolName:    str("tool_name"),
			ToolInput:   obj("tool_input"),
			ToolUseID:   str("tool_use_id"),
		}

	case EventPostToolUse:
		return &PostToolUseInput{
			CommonInput:  common,
			ToolName:     str("tool_name"),
			ToolInput:    obj("tool_input"),
			ToolUseID:    str("tool_use_id"),
			ToolResponse: data["tool_response"],
		}

	case EventPostToolUseFailure:
		return &PostToolUseFailureInput{
			CommonInput: common,
			ToolName:    str("tool_name"),
			ToolInput:   obj("tool_input"),
			ToolUseID:   str("tool_use_id"),
			Error:       str("error"),
		}

	case EventUserPromptSubmit:
		return &UserPromptSubmitInput{CommonInput: common, Prompt: str("prompt")}

	case EventStop:
		active, _ := data["stop_hook_active"].(bool)

		return &StopInput{CommonInput: common, StopHookActive: active}

	case EventSubagentStop:
		active, _ := data["stop_hook_active"].(bool)

		return &SubagentStopInput{
			CommonInput:    common,
			StopHookActive: active,
			AgentID:        str("agent_id"),
			AgentType:      str("agent_type"),
		}

	case EventPreCompact:
		input := &PreCompactInput{CommonInput: common, Trigger: str("trigger")}
		if ci, ok := data["custom_instructions"].(string); ok && ci != "" {
			input.CustomInstructions = &ci
		}

		return input

	case EventSessionStart:
		return &SessionStartInput{CommonInput: common, Source: str("source")}

	case EventNotification:
		return &NotificationInput{
			CommonInput:      common,
			Message:          str("message"),
			NotificationType: str("notification_type"),
		}

	default:
		return &GenericInput{CommonInput: common, EventName: name, Raw: data}
	}
}
