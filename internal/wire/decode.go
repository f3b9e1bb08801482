package wire

import (
	"encoding/json"
	"fmt"

	"github.com/agentlink/agentlink/internal/sdkerr"
)

// Decode converts one raw document into its typed Message, keyed on the
// top-level type discriminator.
//
// Unknown types return sdkerr.ErrUnknownMessage so the read loop can skip
// them; a known type with a malformed body returns *sdkerr.ParseError.
func Decode(data map[string]any) (Message, error) {
	kind, ok := data["type"].(string)
	if !ok {
		return nil, &sdkerr.ParseError{
			Kind: "",
			Data: data,
			Err:  fmt.Errorf("missing type discriminator"),
		}
	}

	var (
		msg Message
		err error
	)

	switch kind {
	case "user":
		msg, err = decodeUser(data)
	case "assistant":
		msg, err = decodeAssistant(data)
	case "system":
		msg, err = decodeSystem(data)
	case "result":
		msg, err = decodeResult(data)
	case "stream_event":
		msg, err = decodeStreamEvent(data)
	case "tool_progress":
		msg, err = reencode[ToolProgress](data)
	case "tool_use_summary":
		msg, err = reencode[ToolUseSummary](data)
	case "auth_status":
		msg, err = reencode[AuthStatus](data)
	default:
		return nil, sdkerr.ErrUnknownMessage
	}

	if err != nil {
		return nil, &sdkerr.ParseError{Kind: kind, Data: data, Err: err}
	}

	return msg, nil
}

// reencode round-trips through encoding/json so struct tags drive the
// field mapping.
func reencode[T any](data map[string]any) (*T, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// decodeUser handles the nested wire shape: the content lives under a
// "message" object while uuid and parent_tool_use_id stay at top level.
func decodeUser(data map[string]any) (*UserMessage, error) {
	body, ok := data["message"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing message body")
	}

	rawContent, ok := body["content"]
	if !ok {
		return nil, fmt.Errorf("missing content")
	}

	contentJSON, err := json.Marshal(rawContent)
	if err != nil {
		return nil, err
	}

	msg := &UserMessage{}
	if err := json.Unmarshal(contentJSON, &msg.Content); err != nil {
		return nil, err
	}

	if uuid, ok := data["uuid"].(string); ok {
		msg.UUID = &uuid
	}

	if parent, ok := data["parent_tool_use_id"].(string); ok {
		msg.ParentToolUseID = &parent
	}

	return msg, nil
}

func decodeAssistant(data map[string]any) (*AssistantMessage, error) {
	body, ok := data["message"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing message body")
	}

	msg := &AssistantMessage{}

	if rawBlocks, ok := body["content"].([]any); ok {
		blocks, err := decodeBlocks(rawBlocks)
		if err != nil {
			return nil, err
		}

		msg.Content = blocks
	}

	if model, ok := body["model"].(string); ok {
		msg.Model = model
	}

	// parent_tool_use_id and error ride at the top level, not in the body.
	if parent, ok := data["parent_tool_use_id"].(string); ok {
		msg.ParentToolUseID = &parent
	}

	if errStr, ok := data["error"].(string); ok {
		msg.Error = &errStr
	}

	return msg, nil
}

func decodeSystem(data map[string]any) (*SystemMessage, error) {
	subtype, ok := data["subtype"].(string)
	if !ok {
		return nil, fmt.Errorf("missing subtype")
	}

	msg := &SystemMessage{Subtype: subtype}

	if extra, ok := data["data"].(map[string]any); ok {
		msg.Data = extra

		return msg, nil
	}

	// Init banners put their fields at the root; fold them into Data.
	msg.Data = make(map[string]any, len(data))

	for k, v := range data {
		if k != "type" && k != "subtype" {
			msg.Data[k] = v
		}
	}

	return msg, nil
}

func decodeResult(data map[string]any) (*ResultMessage, error) {
	if _, ok := data["subtype"].(string); !ok {
		return nil, fmt.Errorf("missing subtype")
	}

	return reencode[ResultMessage](data)
}

func decodeStreamEvent(data map[string]any) (*StreamEvent, error) {
	ev := &StreamEvent{}

	uuid, ok := data["uuid"].(string)
	if !ok {
		return nil, fmt.Errorf("missing uuid")
	}

	ev.UUID = uuid

	sessionID, ok := data["session_id"].(string)
	if !ok {
		return nil, fmt.Errorf("missing session_id")
	}

	ev.SessionID = sessionID

	event, ok := data["event"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing event")
	}

	ev.Event = event

	if parent, ok := data["parent_tool_use_id"].(string); ok {
		ev.ParentToolUseID = &parent
	}

	return ev, nil
}

func decodeBlocks(raw []any) ([]Block, error) {
	blocks := make([]Block, 0, len(raw))

	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("content block %d: not an object", i)
		}

		data, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}

		block, err := DecodeBlock(data)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}

		blocks = append(blocks, block)
	}

	return blocks, nil
}
