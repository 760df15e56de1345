package translator

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// ContentBlock is one block of an assembled non-streaming Anthropic
// response message.
type ContentBlock struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`
}

// Response is the non-streaming Anthropic Messages API response body.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason"`
	StopSequence any            `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// ResponseBuilder accumulates decoded south-side events into a single
// buffered response, for callers that did not request `stream: true`. It
// mirrors State's block-kind tracking but collects blocks instead of
// emitting SSE frames.
type ResponseBuilder struct {
	model   string
	usage   Usage
	blocks  []ContentBlock
	curKind blockKind
	curID   string

	toolInputBuf map[string]string
	toolOrder    []string
	seenToolIDs  map[string]bool

	stopReason string
}

// NewResponseBuilder returns a builder for a single non-streaming response.
func NewResponseBuilder(model string, inputTokens int64) *ResponseBuilder {
	return &ResponseBuilder{
		model:        model,
		usage:        Usage{InputTokens: inputTokens},
		curKind:      blockNone,
		toolInputBuf: make(map[string]string),
		seenToolIDs:  make(map[string]bool),
	}
}

// Feed consumes the same south-side event shapes State does, but instead
// of emitting SSE frames it appends completed content blocks.
func (b *ResponseBuilder) Feed(eventType string, payload []byte) {
	switch eventType {
	case "assistantResponseEvent":
		b.feedAssistantResponse(payload)
	case "reasoningContentEvent":
		b.feedReasoning(payload)
	case "toolUseEvent":
		b.feedToolUse(payload)
	case "messageStopEvent", "message_stop":
		var p messageStopPayload
		if err := json.Unmarshal(payload, &p); err == nil && p.StopReason != "" {
			b.stopReason = p.StopReason
		}
	case "usageEvent", "usage":
		var p usageEventPayload
		if err := json.Unmarshal(payload, &p); err == nil {
			if p.InputTokens > 0 {
				b.usage.InputTokens = p.InputTokens
			}
			if p.OutputTokens > 0 {
				b.usage.OutputTokens = p.OutputTokens
			}
		}
	}
}

func (b *ResponseBuilder) feedAssistantResponse(payload []byte) {
	var p assistantResponsePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	content, stopReason, toolUses := p.Content, p.StopReason, p.ToolUses
	if p.Nested != nil {
		content, stopReason, toolUses = p.Nested.Content, p.Nested.StopReason, p.Nested.ToolUses
	}
	if content != "" {
		b.appendText(blockText, content)
	}
	if stopReason != "" {
		b.stopReason = stopReason
	}
	for _, tu := range toolUses {
		b.appendCompleteToolUse(tu)
	}
}

func (b *ResponseBuilder) feedReasoning(payload []byte) {
	var p reasoningContentPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Text == "" {
		return
	}
	b.appendText(blockThinking, p.Text)
}

func (b *ResponseBuilder) appendText(kind blockKind, text string) {
	if b.curKind == kind {
		b.blocks[len(b.blocks)-1].Text += text
		return
	}
	blockType := "text"
	if kind == blockThinking {
		blockType = "thinking"
	}
	b.blocks = append(b.blocks, ContentBlock{Type: blockType, Text: text})
	b.curKind = kind
}

func (b *ResponseBuilder) appendCompleteToolUse(tu southToolUse) {
	if tu.ToolUseID == "" || b.seenToolIDs[tu.ToolUseID] {
		return
	}
	b.seenToolIDs[tu.ToolUseID] = true
	b.blocks = append(b.blocks, ContentBlock{
		Type:  "tool_use",
		ID:    tu.ToolUseID,
		Name:  tu.Name,
		Input: toolInputOrEmpty(tu.Input),
	})
	b.curKind = blockNone
	b.stopReason = "tool_use"
}

func (b *ResponseBuilder) feedToolUse(payload []byte) {
	var p toolUseEventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}
	if b.curID != p.ToolUseID {
		b.toolOrder = append(b.toolOrder, p.ToolUseID)
		b.curID = p.ToolUseID
		b.curKind = blockToolUse
		b.blocks = append(b.blocks, ContentBlock{Type: "tool_use", ID: p.ToolUseID, Name: p.Name})
	}
	b.toolInputBuf[p.ToolUseID] += p.Input
	if p.Stop {
		raw := b.toolInputBuf[p.ToolUseID]
		var input any
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			input = map[string]any{}
		}
		for i := range b.blocks {
			if b.blocks[i].Type == "tool_use" && b.blocks[i].ID == p.ToolUseID {
				b.blocks[i].Input = input
				break
			}
		}
		b.curID = ""
		b.curKind = blockNone
		b.stopReason = "tool_use"
	}
}

func toolInputOrEmpty(input map[string]any) any {
	if input == nil {
		return map[string]any{}
	}
	return input
}

// Build renders the accumulated blocks into a final Response.
func (b *ResponseBuilder) Build() Response {
	stopReason := b.stopReason
	if stopReason == "" {
		stopReason = "end_turn"
	}
	blocks := b.blocks
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return Response{
		ID:         "msg_" + uuid.New().String()[:24],
		Type:       "message",
		Role:       "assistant",
		Model:      b.model,
		Content:    blocks,
		StopReason: StopReason(stopReason),
		Usage:      b.usage,
	}
}

// EstimateTokens computes a local heuristic token count for the
// count_tokens endpoint when no external delegate is configured, per
// spec §6: roughly one token per four characters of the serialized
// message content and system prompt.
func EstimateTokens(anthropicBody []byte) int64 {
	body := gjson.ParseBytes(anthropicBody)
	var chars int64

	if sys := body.Get("system"); sys.Exists() {
		chars += int64(len(sys.String()))
	}
	for _, msg := range body.Get("messages").Array() {
		content := msg.Get("content")
		if content.Type == gjson.String {
			chars += int64(len(content.String()))
			continue
		}
		for _, block := range content.Array() {
			if t := block.Get("text"); t.Exists() {
				chars += int64(len(t.String()))
			}
			if in := block.Get("input"); in.Exists() {
				chars += int64(len(in.Raw))
			}
		}
	}
	for _, tool := range body.Get("tools").Array() {
		chars += int64(len(tool.Get("description").String()))
		chars += int64(len(tool.Get("input_schema").Raw))
	}

	estimate := chars / 4
	if estimate < 1 {
		estimate = 1
	}
	return estimate
}
