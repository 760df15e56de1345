package translator

import (
	"encoding/json"

	"github.com/example/kiro-claude-bridge/internal/eventstream"
)

// south-side event payload shapes. An assistantResponseEvent body may
// carry its fields at the payload's top level or nested under an
// "assistantResponseEvent" key, and both shapes are tried; the other event
// payloads are read at the top level only.
type assistantResponsePayload struct {
	Content    string                   `json:"content"`
	StopReason string                   `json:"stop_reason"`
	ToolUses   []southToolUse           `json:"toolUses"`
	Nested     *assistantResponseNested `json:"assistantResponseEvent"`
}

type assistantResponseNested struct {
	Content    string         `json:"content"`
	StopReason string         `json:"stop_reason"`
	ToolUses   []southToolUse `json:"toolUses"`
}

type southToolUse struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

type reasoningContentPayload struct {
	Text string `json:"text"`
}

type toolUseEventPayload struct {
	ToolUseID string `json:"toolUseId"`
	Name      string `json:"name"`
	Input     string `json:"input"` // accumulating partial-JSON fragment
	Stop      bool   `json:"stop"`
}

type messageStopPayload struct {
	StopReason string `json:"stopReason"`
}

type usageEventPayload struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
}

// blockKind identifies which Anthropic content-block type is currently
// open at a given index.
type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockThinking
	blockToolUse
)

// State drives a sequence of decoded south-side events into the ordered
// Anthropic SSE event stream, tracking which content-block index is open
// and of what kind per spec §4.I's block-kind-inference rules: a text
// delta opens (or continues) a text block, a thinking delta opens (or
// continues) a thinking block, and a tool-use announcement opens its own
// block; any kind change or index advance closes the previously open
// block first.
type State struct {
	model       string
	inputTokens int64

	started     bool
	blockIndex  int
	openKind    blockKind
	openToolID  string
	seenToolIDs map[string]bool

	stopReason   string
	outputTokens int64
}

// NewState returns a state machine ready to translate one response.
func NewState(model string, inputTokens int64) *State {
	return &State{
		model:       model,
		inputTokens: inputTokens,
		blockIndex:  -1,
		seenToolIDs: make(map[string]bool),
	}
}

// Start emits message_start and must be called exactly once before Feed.
func (s *State) Start() []byte {
	s.started = true
	return MessageStartEvent(s.model, s.inputTokens)
}

// Feed translates one decoded south-side event into zero or more Anthropic
// SSE frames, in order.
func (s *State) Feed(ev eventstream.Event) [][]byte {
	switch ev.EventType() {
	case "assistantResponseEvent":
		return s.feedAssistantResponse(ev.Payload)
	case "reasoningContentEvent":
		return s.feedReasoning(ev.Payload)
	case "toolUseEvent":
		return s.feedToolUse(ev.Payload)
	case "messageStopEvent", "message_stop":
		return s.feedMessageStop(ev.Payload)
	case "usageEvent", "usage":
		return s.feedUsage(ev.Payload)
	default:
		return nil
	}
}

func (s *State) feedAssistantResponse(payload []byte) [][]byte {
	var p assistantResponsePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil
	}
	content, stopReason, toolUses := p.Content, p.StopReason, p.ToolUses
	if p.Nested != nil {
		content, stopReason, toolUses = p.Nested.Content, p.Nested.StopReason, p.Nested.ToolUses
	}

	var out [][]byte
	if content != "" {
		out = append(out, s.emitDelta(blockText, TextDeltaEvent, content)...)
	}
	if stopReason != "" {
		s.stopReason = stopReason
	}
	for _, tu := range toolUses {
		out = append(out, s.emitCompleteToolUse(tu)...)
	}
	return out
}

func (s *State) feedReasoning(payload []byte) [][]byte {
	var p reasoningContentPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Text == "" {
		return nil
	}
	return s.emitDelta(blockThinking, ThinkingDeltaEvent, p.Text)
}

// emitDelta ensures a block of kind is open at the current index (closing
// any differently-kinded open block first) and appends a delta frame.
func (s *State) emitDelta(kind blockKind, delta func(index int, text string) []byte, text string) [][]byte {
	var out [][]byte
	if s.openKind != kind {
		if s.openKind != blockNone {
			out = append(out, ContentBlockStopEvent(s.blockIndex))
		}
		s.blockIndex++
		s.openKind = kind
		sseKind := "text"
		if kind == blockThinking {
			sseKind = "thinking"
		}
		out = append(out, ContentBlockStartEvent(s.blockIndex, sseKind, "", ""))
	}
	out = append(out, delta(s.blockIndex, text))
	return out
}

func (s *State) emitCompleteToolUse(tu southToolUse) [][]byte {
	if tu.ToolUseID == "" || s.seenToolIDs[tu.ToolUseID] {
		return nil
	}
	s.seenToolIDs[tu.ToolUseID] = true

	var out [][]byte
	if s.openKind != blockNone {
		out = append(out, ContentBlockStopEvent(s.blockIndex))
	}
	s.blockIndex++
	s.openKind = blockToolUse
	out = append(out, ContentBlockStartEvent(s.blockIndex, "tool_use", tu.ToolUseID, tu.Name))
	if tu.Input != nil {
		if inputJSON, err := json.Marshal(tu.Input); err == nil {
			out = append(out, InputJSONDeltaEvent(s.blockIndex, string(inputJSON)))
		}
	}
	out = append(out, ContentBlockStopEvent(s.blockIndex))
	s.openKind = blockNone
	s.stopReason = "tool_use"
	return out
}

// feedToolUse handles the dedicated streamed tool-use event, whose input
// arrives as successive partial-JSON fragments terminated by Stop.
func (s *State) feedToolUse(payload []byte) [][]byte {
	var p toolUseEventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil
	}

	var out [][]byte
	if s.openKind != blockToolUse || s.openToolID != p.ToolUseID {
		if s.openKind != blockNone {
			out = append(out, ContentBlockStopEvent(s.blockIndex))
		}
		s.blockIndex++
		s.openKind = blockToolUse
		s.openToolID = p.ToolUseID
		out = append(out, ContentBlockStartEvent(s.blockIndex, "tool_use", p.ToolUseID, p.Name))
	}
	if p.Input != "" {
		out = append(out, InputJSONDeltaEvent(s.blockIndex, p.Input))
	}
	if p.Stop {
		out = append(out, ContentBlockStopEvent(s.blockIndex))
		s.openKind = blockNone
		s.openToolID = ""
		s.seenToolIDs[p.ToolUseID] = true
		s.stopReason = "tool_use"
	}
	return out
}

func (s *State) feedMessageStop(payload []byte) [][]byte {
	var p messageStopPayload
	if err := json.Unmarshal(payload, &p); err == nil && p.StopReason != "" {
		s.stopReason = p.StopReason
	}
	return nil
}

func (s *State) feedUsage(payload []byte) [][]byte {
	var p usageEventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil
	}
	if p.InputTokens > 0 {
		s.inputTokens = p.InputTokens
	}
	if p.OutputTokens > 0 {
		s.outputTokens = p.OutputTokens
	}
	return nil
}

// Finish closes any still-open block and emits the terminal message_delta
// and message_stop frames. It must be called exactly once after the last
// Feed call.
func (s *State) Finish() [][]byte {
	var out [][]byte
	if s.openKind != blockNone {
		out = append(out, ContentBlockStopEvent(s.blockIndex))
		s.openKind = blockNone
	}
	stopReason := s.stopReason
	if stopReason == "" {
		stopReason = "end_turn"
	}
	out = append(out, MessageDeltaEvent(StopReason(stopReason), Usage{
		InputTokens:  s.inputTokens,
		OutputTokens: s.outputTokens,
	}))
	out = append(out, MessageStopEvent())
	return out
}
