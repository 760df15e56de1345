// Package translator converts between the Anthropic Messages API schema
// and the Kiro conversational schema, in both directions, per spec §4.I.
package translator

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

const (
	// maxToolDescriptionLen truncates an overlong tool description before
	// it is sent south; the south side rejects oversized tool schemas.
	maxToolDescriptionLen = 10237

	// defaultAssistantContentWithTools fills an empty assistant turn that
	// carried only tool_use blocks; the south side requires non-empty
	// content on every history turn.
	defaultAssistantContentWithTools = "I'll help you with that."
	// defaultAssistantContent fills a wholly empty assistant turn.
	defaultAssistantContent = "I understand."
)

// mergeAdjacentMessages collapses runs of consecutive same-role messages
// into one, concatenating their content blocks, so that a caller (or an
// intermediate translation step) that split a conversation into many
// small turns still produces a south-side history the API accepts.
func mergeAdjacentMessages(messages []gjson.Result) []gjson.Result {
	if len(messages) <= 1 {
		return messages
	}

	merged := make([]gjson.Result, 0, len(messages))
	for _, msg := range messages {
		if len(merged) == 0 {
			merged = append(merged, msg)
			continue
		}
		last := merged[len(merged)-1]
		if msg.Get("role").String() != last.Get("role").String() {
			merged = append(merged, msg)
			continue
		}
		merged[len(merged)-1] = gjson.Parse(mergeMessageJSON(last, msg))
	}
	return merged
}

func mergeMessageJSON(a, b gjson.Result) string {
	blocks := append(contentBlocks(a), contentBlocks(b)...)
	out, _ := json.Marshal(map[string]any{
		"role":    a.Get("role").String(),
		"content": blocks,
	})
	return string(out)
}

func contentBlocks(msg gjson.Result) []any {
	content := msg.Get("content")
	if content.IsArray() {
		blocks := make([]any, 0, len(content.Array()))
		for _, b := range content.Array() {
			blocks = append(blocks, b.Value())
		}
		return blocks
	}
	if content.Type == gjson.String {
		return []any{map[string]any{"type": "text", "text": content.String()}}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 { // don't split a UTF-8 rune
		cut--
	}
	return s[:cut] + "... (truncated)"
}
