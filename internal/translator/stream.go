package translator

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Usage is the Anthropic usage block.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func sseFrame(event string, payload any) []byte {
	body, _ := json.Marshal(payload)
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, body))
}

// MessageStartEvent opens the response envelope.
func MessageStartEvent(model string, inputTokens int64) []byte {
	return sseFrame("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":            "msg_" + uuid.New().String()[:24],
			"type":          "message",
			"role":          "assistant",
			"content":       []any{},
			"model":         model,
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         Usage{InputTokens: inputTokens},
		},
	})
}

// ContentBlockStartEvent opens a content block of the given kind
// ("text", "thinking", "tool_use") at index.
func ContentBlockStartEvent(index int, kind, toolUseID, toolName string) []byte {
	var block map[string]any
	switch kind {
	case "tool_use":
		block = map[string]any{"type": "tool_use", "id": toolUseID, "name": toolName, "input": map[string]any{}}
	case "thinking":
		block = map[string]any{"type": "thinking", "thinking": ""}
	default:
		block = map[string]any{"type": "text", "text": ""}
	}
	return sseFrame("content_block_start", map[string]any{
		"type": "content_block_start", "index": index, "content_block": block,
	})
}

// TextDeltaEvent emits a text_delta fragment.
func TextDeltaEvent(index int, text string) []byte {
	return sseFrame("content_block_delta", map[string]any{
		"type": "content_block_delta", "index": index,
		"delta": map[string]any{"type": "text_delta", "text": text},
	})
}

// ThinkingDeltaEvent emits a thinking_delta fragment.
func ThinkingDeltaEvent(index int, text string) []byte {
	return sseFrame("content_block_delta", map[string]any{
		"type": "content_block_delta", "index": index,
		"delta": map[string]any{"type": "thinking_delta", "thinking": text},
	})
}

// InputJSONDeltaEvent emits a raw partial-JSON fragment for a tool_use
// block's accumulating input.
func InputJSONDeltaEvent(index int, partialJSON string) []byte {
	return sseFrame("content_block_delta", map[string]any{
		"type": "content_block_delta", "index": index,
		"delta": map[string]any{"type": "input_json_delta", "partial_json": partialJSON},
	})
}

// ContentBlockStopEvent closes the block at index.
func ContentBlockStopEvent(index int) []byte {
	return sseFrame("content_block_stop", map[string]any{"type": "content_block_stop", "index": index})
}

// MessageDeltaEvent carries the terminal stop_reason and final usage.
func MessageDeltaEvent(stopReason string, usage Usage) []byte {
	return sseFrame("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stopReason, "stop_sequence": nil},
		"usage": usage,
	})
}

// MessageStopEvent closes the response envelope.
func MessageStopEvent() []byte {
	return sseFrame("message_stop", map[string]any{"type": "message_stop"})
}

// ErrorEvent renders an in-band SSE error for a stream that has already
// begun, per spec §7's "errors become in-band SSE error events" rule.
func ErrorEvent(errType, message string) []byte {
	return sseFrame("error", map[string]any{
		"type": "error",
		"error": map[string]any{
			"type":    errType,
			"message": message,
		},
	})
}

// StopReason maps a south-side stop reason onto the Anthropic vocabulary,
// per spec §4.I; anything unrecognized becomes "end_turn".
func StopReason(south string) string {
	switch south {
	case "end_turn", "tool_use", "max_tokens", "stop_sequence":
		return south
	default:
		return "end_turn"
	}
}
