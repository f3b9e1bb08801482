package wire

import "encoding/json"

// Message is any domain message delivered to the host. It is a closed
// tagged union; use a type switch on the concrete types.
type Message interface {
	Kind() string
}

var (
	_ Message = (*UserMessage)(nil)
	_ Message = (*AssistantMessage)(nil)
	_ Message = (*SystemMessage)(nil)
	_ Message = (*ResultMessage)(nil)
	_ Message = (*StreamEvent)(nil)
	_ Message = (*ToolProgress)(nil)
	_ Message = (*ToolUseSummary)(nil)
	_ Message = (*AuthStatus)(nil)
)

// UserContent is user message content that was either a bare string or a
// list of blocks on the wire.
type UserContent struct {
	text   *string
	blocks []Block
}

// NewUserContent wraps a plain string.
func NewUserContent(text string) UserContent {
	return UserContent{text: &text}
}

// NewUserContentBlocks wraps explicit blocks.
func NewUserContentBlocks(blocks []Block) UserContent {
	return UserContent{blocks: blocks}
}

// Text returns the string form, or "" if the content was blocks.
func (c *UserContent) Text() string {
	if c.text != nil {
		return *c.text
	}

	return ""
}

// Blocks returns block form, normalizing a string to one TextBlock.
func (c *UserContent) Blocks() []Block {
	if c.blocks != nil {
		return c.blocks
	}

	if c.text != nil {
		return []Block{&TextBlock{Type: BlockText, Text: *c.text}}
	}

	return nil
}

// MarshalJSON implements json.Marshaler.
func (c UserContent) MarshalJSON() ([]byte, error) {
	if c.text != nil {
		return json.Marshal(*c.text)
	}

	return json.Marshal(c.blocks)
}

// UnmarshalJSON implements json.Unmarshaler, accepting both forms.
func (c *UserContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.text = &text
		c.blocks = nil

		return nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}

	blocks := make([]Block, 0, len(raws))

	for _, raw := range raws {
		block, err := DecodeBlock(raw)
		if err != nil {
			return err
		}

		blocks = append(blocks, block)
	}

	c.blocks = blocks
	c.text = nil

	return nil
}

// UserMessage is an echo of user input, including tool results fed back to
// the model.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type UserMessage struct {
	Content         UserContent `json:"content"`
	UUID            *string     `json:"uuid,omitempty"`
	ParentToolUseID *string     `json:"parent_tool_use_id,omitempty"`
}

// Kind implements Message.
func (*UserMessage) Kind() string { return "user" }

// AssistantMessage is a model turn.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type AssistantMessage struct {
	Content         []Block `json:"content"`
	Model           string  `json:"model"`
	ParentToolUseID *string `json:"parent_tool_use_id,omitempty"`
	Error           *string `json:"error,omitempty"`
}

// Kind implements Message.
func (*AssistantMessage) Kind() string { return "assistant" }

// SystemMessage carries out-of-band information such as the init banner.
// Fields other than subtype vary by subtype and are kept raw.
type SystemMessage struct {
	Subtype string         `json:"subtype"`
	Data    map[string]any `json:"data,omitempty"`
}

// Kind implements Message.
func (*SystemMessage) Kind() string { return "system" }

// TokenUsage is the token accounting attached to a result.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ResultMessage terminates a turn: success or error, with accounting.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type ResultMessage struct {
	Subtype       string      `json:"subtype"`
	DurationMs    int         `json:"duration_ms"`
	DurationAPIMs int         `json:"duration_api_ms"`
	IsError       bool        `json:"is_error"`
	NumTurns      int         `json:"num_turns"`
	SessionID     string      `json:"session_id"`
	TotalCostUSD  *float64    `json:"total_cost_usd,omitempty"`
	Usage         *TokenUsage `json:"usage,omitempty"`
	Result        *string     `json:"result,omitempty"`
}

// Kind implements Message.
func (*ResultMessage) Kind() string { return "result" }

// StreamEvent is a partial-message event forwarded from the model API.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type StreamEvent struct {
	UUID            string         `json:"uuid"`
	SessionID       string         `json:"session_id"`
	Event           map[string]any `json:"event"`
	ParentToolUseID *string        `json:"parent_tool_use_id,omitempty"`
}

// Kind implements Message.
func (*StreamEvent) Kind() string { return "stream_event" }

// ToolProgress reports incremental progress of a long-running tool.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type ToolProgress struct {
	SessionID          string   `json:"session_id"`
	ToolUseID          string   `json:"tool_use_id"`
	ToolName           string   `json:"tool_name"`
	ElapsedTimeSeconds float64  `json:"elapsed_time_seconds"`
	Progress           *float64 `json:"progress,omitempty"`
	Message            *string  `json:"message,omitempty"`
}

// Kind implements Message.
func (*ToolProgress) Kind() string { return "tool_progress" }

// ToolUseSummary is a short description of a completed tool call.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type ToolUseSummary struct {
	SessionID           string   `json:"session_id"`
	Summary             string   `json:"summary"`
	PrecedingToolUseIDs []string `json:"preceding_tool_use_ids,omitempty"`
}

// Kind implements Message.
func (*ToolUseSummary) Kind() string { return "tool_use_summary" }

// AuthStatus reports a change in the CLI's authentication state.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type AuthStatus struct {
	IsAuthenticated bool    `json:"isAuthenticated"`
	Error           *string `json:"error,omitempty"`
}

// Kind implements Message.
func (*AuthStatus) Kind() string { return "auth_status" }

// TurnContent is the body of an outbound user turn.
type TurnContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserTurn is a user message sent to the agent over stdin in streaming
// mode.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type UserTurn struct {
	Type            string      `json:"type"` // always "user"
	Message         TurnContent `json:"message"`
	ParentToolUseID *string     `json:"parent_tool_use_id,omitempty"`
	SessionID       string      `json:"session_id,omitempty"`
}

// NewUserTurn builds a UserTurn for the given prompt.
func NewUserTurn(content string) UserTurn {
	return UserTurn{
		Type:    "user",
		Message: TurnContent{Role: "user", Content: content},
	}
}
