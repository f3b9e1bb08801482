// Package wire models the line-oriented JSON documents exchanged with the
// agent CLI: domain messages, their content blocks, and outbound turns.
package wire

import "encoding/json"

// Content block discriminators.
const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Block is one element of a message's content. Use a type switch on the
// concrete types to consume it.
type Block interface {
	BlockKind() string
}

var (
	_ Block = (*TextBlock)(nil)
	_ Block = (*ThinkingBlock)(nil)
	_ Block = (*ToolUseBlock)(nil)
	_ Block = (*ToolResultBlock)(nil)
)

// TextBlock is plain text.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// BlockKind implements Block.
func (*TextBlock) BlockKind() string { return BlockText }

// ThinkingBlock is the model's reasoning trace.
type ThinkingBlock struct {
	Type      string `json:"type"`
	Thinking  string `json:"thinking"`
	Signature string `json:"signature"`
}

// BlockKind implements Block.
func (*ThinkingBlock) BlockKind() string { return BlockThinking }

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// BlockKind implements Block.
func (*ToolUseBlock) BlockKind() string { return BlockToolUse }

// ToolResultBlock is the outcome of a tool invocation.
//
//nolint:tagliatelle // agent CLI wire format uses snake_case
type ToolResultBlock struct {
	Type      string  `json:"type"`
	ToolUseID string  `json:"tool_use_id"`
	Content   []Block `json:"content,omitempty"`
	IsError   bool    `json:"is_error,omitempty"`
}

// BlockKind implements Block.
func (*ToolResultBlock) BlockKind() string { return BlockToolResult }

// UnmarshalJSON accepts both string and block-array content, normalizing
// strings to a single TextBlock.
func (b *ToolResultBlock) UnmarshalJSON(data []byte) error {
	type alias ToolResultBlock

	aux := &struct {
		Content json.RawMessage `json:"content,omitempty"`
		*alias
	}{alias: (*alias)(b)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Content) == 0 || string(aux.Content) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(aux.Content, &text); err == nil {
		b.Content = []Block{&TextBlock{Type: BlockText, Text: text}}

		return nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(aux.Content, &raws); err != nil {
		return err
	}

	b.Content = make([]Block, 0, len(raws))

	for _, raw := range raws {
		block, err := DecodeBlock(raw)
		if err != nil {
			return err
		}

		b.Content = append(b.Content, block)
	}

	return nil
}

// DecodeBlock parses one content block from JSON, keyed on its type field.
// Unknown block types decode as TextBlock so newer CLI versions degrade
// gracefully.
func DecodeBlock(data []byte) (Block, error) {
	var probe struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case BlockThinking:
		var block ThinkingBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return nil, err
		}

		return &block, nil

	case BlockToolUse:
		var block ToolUseBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return nil, err
		}

		return &block, nil

	case BlockToolResult:
		var block ToolResultBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return nil, err
		}

		return &block, nil

	default:
		var block TextBlock
		if err := json.Unmarshal(data, &block); err != nil {
			return nil, err
		}

		return &block, nil
	}
}
