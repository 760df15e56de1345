package translator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/example/kiro-claude-bridge/internal/eventstream"
)

func ev(t *testing.T, eventType string, payload any) eventstream.Event {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return eventstream.Event{
		Headers: eventstream.Headers{
			":event-type": {Type: eventstream.HeaderTypeString, Bytes: []byte(eventType)},
		},
		Payload: body,
	}
}

func sseEventName(frame []byte) string {
	line := strings.SplitN(string(frame), "\n", 2)[0]
	return strings.TrimPrefix(line, "event: ")
}

func collectEventNames(frames [][]byte) []string {
	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = sseEventName(f)
	}
	return names
}

func TestStateTextThenToolUseThenFinish(t *testing.T) {
	s := NewState(ModelSonnet, 42)
	start := s.Start()
	if sseEventName(start) != "message_start" {
		t.Fatalf("expected message_start, got %s", sseEventName(start))
	}

	deltas := s.Feed(ev(t, "assistantResponseEvent", map[string]any{"content": "Hello"}))
	if got := collectEventNames(deltas); len(got) != 2 || got[0] != "content_block_start" || got[1] != "content_block_delta" {
		t.Fatalf("unexpected frames for first text delta: %v", got)
	}

	more := s.Feed(ev(t, "assistantResponseEvent", map[string]any{"content": " world"}))
	if got := collectEventNames(more); len(got) != 1 || got[0] != "content_block_delta" {
		t.Fatalf("expected a single continuing delta, got %v", got)
	}

	toolFrames := s.Feed(ev(t, "assistantResponseEvent", map[string]any{
		"toolUses": []map[string]any{
			{"toolUseId": "tu_1", "name": "get_weather", "input": map[string]any{"city": "nyc"}},
		},
	}))
	got := collectEventNames(toolFrames)
	want := []string{"content_block_stop", "content_block_start", "content_block_delta", "content_block_stop"}
	if len(got) != len(want) {
		t.Fatalf("unexpected frame count for tool use: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d: got %s want %s", i, got[i], want[i])
		}
	}

	final := s.Finish()
	finalNames := collectEventNames(final)
	if len(finalNames) != 2 || finalNames[0] != "message_delta" || finalNames[1] != "message_stop" {
		t.Fatalf("unexpected finish frames: %v", finalNames)
	}
	if !strings.Contains(string(final[0]), `"stop_reason":"tool_use"`) {
		t.Fatalf("expected tool_use stop reason, got %s", final[0])
	}
}

func TestStateDuplicateToolUseIsIgnored(t *testing.T) {
	s := NewState(ModelSonnet, 1)
	s.Start()

	tu := map[string]any{"toolUses": []map[string]any{
		{"toolUseId": "tu_dup", "name": "f", "input": map[string]any{}},
	}}
	first := s.Feed(ev(t, "assistantResponseEvent", tu))
	if len(first) == 0 {
		t.Fatalf("expected frames for first tool use")
	}
	second := s.Feed(ev(t, "assistantResponseEvent", tu))
	if len(second) != 0 {
		t.Fatalf("expected duplicate tool use to be ignored, got %v", collectEventNames(second))
	}
}

func TestStateThinkingThenTextSwitchesBlockKind(t *testing.T) {
	s := NewState(ModelSonnet, 1)
	s.Start()

	thinking := s.Feed(ev(t, "reasoningContentEvent", map[string]any{"text": "pondering..."}))
	if got := collectEventNames(thinking); len(got) != 2 || got[0] != "content_block_start" || got[1] != "content_block_delta" {
		t.Fatalf("unexpected thinking frames: %v", got)
	}
	if !strings.Contains(string(thinking[0]), `"type":"thinking"`) {
		t.Fatalf("expected thinking block, got %s", thinking[0])
	}

	text := s.Feed(ev(t, "assistantResponseEvent", map[string]any{"content": "answer"}))
	got := collectEventNames(text)
	want := []string{"content_block_stop", "content_block_start", "content_block_delta"}
	if len(got) != len(want) {
		t.Fatalf("unexpected frames switching kind: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestStateStreamedToolUseAccumulatesUntilStop(t *testing.T) {
	s := NewState(ModelSonnet, 1)
	s.Start()

	first := s.Feed(ev(t, "toolUseEvent", toolUseEventPayload{ToolUseID: "tu_9", Name: "search", Input: `{"q":`}))
	if got := collectEventNames(first); len(got) != 2 || got[0] != "content_block_start" || got[1] != "content_block_delta" {
		t.Fatalf("unexpected opening frames: %v", got)
	}

	cont := s.Feed(ev(t, "toolUseEvent", toolUseEventPayload{ToolUseID: "tu_9", Name: "search", Input: `"x"}`}))
	if got := collectEventNames(cont); len(got) != 1 || got[0] != "content_block_delta" {
		t.Fatalf("unexpected continuation frames: %v", got)
	}

	stop := s.Feed(ev(t, "toolUseEvent", toolUseEventPayload{ToolUseID: "tu_9", Stop: true}))
	if got := collectEventNames(stop); len(got) != 1 || got[0] != "content_block_stop" {
		t.Fatalf("unexpected stop frames: %v", got)
	}

	final := s.Finish()
	if !strings.Contains(string(final[0]), `"stop_reason":"tool_use"`) {
		t.Fatalf("expected tool_use stop reason, got %s", final[0])
	}
}

func TestStateUsageEventUpdatesFinishUsage(t *testing.T) {
	s := NewState(ModelSonnet, 10)
	s.Start()
	s.Feed(ev(t, "usageEvent", usageEventPayload{InputTokens: 100, OutputTokens: 55}))
	final := s.Finish()
	if !strings.Contains(string(final[0]), `"input_tokens":100`) || !strings.Contains(string(final[0]), `"output_tokens":55`) {
		t.Fatalf("expected usage override to be reflected, got %s", final[0])
	}
}

func TestStateFinishWithNoBlocksStillClosesEnvelope(t *testing.T) {
	s := NewState(ModelSonnet, 1)
	s.Start()
	final := s.Finish()
	names := collectEventNames(final)
	if len(names) != 2 || names[0] != "message_delta" || names[1] != "message_stop" {
		t.Fatalf("unexpected frames for empty response: %v", names)
	}
	if !strings.Contains(string(final[0]), `"stop_reason":"end_turn"`) {
		t.Fatalf("expected default end_turn, got %s", final[0])
	}
}
