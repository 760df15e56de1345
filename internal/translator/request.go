package translator

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// KiroPayload is the top-level south-side request body. Field order
// matters: chatTriggerType must be the first key the south side sees.
type KiroPayload struct {
	ConversationState KiroConversationState `json:"conversationState"`
	ProfileArn        string                `json:"profileArn,omitempty"`
	InferenceConfig   *KiroInferenceConfig  `json:"inferenceConfig,omitempty"`
}

type KiroInferenceConfig struct {
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"topP,omitempty"`
}

type KiroConversationState struct {
	ChatTriggerType string               `json:"chatTriggerType"`
	ConversationID  string               `json:"conversationId"`
	CurrentMessage  KiroCurrentMessage   `json:"currentMessage"`
	History         []KiroHistoryMessage `json:"history,omitempty"`
}

type KiroCurrentMessage struct {
	UserInputMessage KiroUserInputMessage `json:"userInputMessage"`
}

type KiroHistoryMessage struct {
	UserInputMessage         *KiroUserInputMessage         `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *KiroAssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

type KiroImage struct {
	Format string          `json:"format"`
	Source KiroImageSource `json:"source"`
}

type KiroImageSource struct {
	Bytes string `json:"bytes"`
}

type KiroUserInputMessage struct {
	Content                 string                       `json:"content"`
	ModelID                 string                       `json:"modelId"`
	Origin                  string                       `json:"origin"`
	Images                  []KiroImage                  `json:"images,omitempty"`
	UserInputMessageContext *KiroUserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

type KiroUserInputMessageContext struct {
	ToolResults []KiroToolResult  `json:"toolResults,omitempty"`
	Tools       []KiroToolWrapper `json:"tools,omitempty"`
}

type KiroToolResult struct {
	Content   []KiroTextContent `json:"content"`
	Status    string            `json:"status"`
	ToolUseID string            `json:"toolUseId"`
}

type KiroTextContent struct {
	Text string `json:"text"`
}

type KiroAssistantResponseMessage struct {
	Content  string        `json:"content"`
	ToolUses []KiroToolUse `json:"toolUses,omitempty"`
}

type KiroToolUse struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

// kiroMaxOutputTokens caps the south side's output length; Anthropic's
// max_tokens=-1 ("use maximum") sentinel maps to this.
const kiroMaxOutputTokens = 32000

// BuildKiroRequest translates an Anthropic Messages request body into the
// south-side payload, per spec §4.I. origin selects which south-side
// product quota the request draws from ("CLI" or "AI_EDITOR").
func BuildKiroRequest(anthropicBody []byte, modelID, profileARN, origin string) []byte {
	messages := gjson.GetBytes(anthropicBody, "messages")
	tools := gjson.GetBytes(anthropicBody, "tools")
	systemPrompt := extractSystemPrompt(anthropicBody)

	thinkingEnabled, _ := thinkingConfig(anthropicBody)

	history, currentUserMsg, currentToolResults := processMessages(messages, modelID, origin)
	kiroTools := convertTools(tools)

	if currentUserMsg != nil {
		effectiveSystemPrompt := systemPrompt
		if len(history) > 0 {
			effectiveSystemPrompt = ""
		}
		currentUserMsg.Content = buildFinalContent(currentUserMsg.Content, effectiveSystemPrompt, currentToolResults)
		currentToolResults = deduplicateToolResults(currentToolResults)

		if len(kiroTools) > 0 || len(currentToolResults) > 0 {
			currentUserMsg.UserInputMessageContext = &KiroUserInputMessageContext{
				Tools:       kiroTools,
				ToolResults: currentToolResults,
			}
		}
	}

	var currentMessage KiroCurrentMessage
	if currentUserMsg != nil {
		currentMessage = KiroCurrentMessage{UserInputMessage: *currentUserMsg}
	} else {
		content := ""
		if systemPrompt != "" {
			content = "--- SYSTEM PROMPT ---\n" + systemPrompt + "\n--- END SYSTEM PROMPT ---\n"
		}
		currentMessage = KiroCurrentMessage{UserInputMessage: KiroUserInputMessage{
			Content: content, ModelID: modelID, Origin: origin,
		}}
	}

	inferenceConfig := buildInferenceConfig(anthropicBody, thinkingEnabled)

	payload := KiroPayload{
		ConversationState: KiroConversationState{
			ChatTriggerType: "MANUAL",
			ConversationID:  uuid.New().String(),
			CurrentMessage:  currentMessage,
			History:         history,
		},
		ProfileArn:      profileARN,
		InferenceConfig: inferenceConfig,
	}

	out, _ := json.Marshal(payload)
	return out
}

func buildInferenceConfig(body []byte, thinkingEnabled bool) *KiroInferenceConfig {
	var maxTokens int64
	if mt := gjson.GetBytes(body, "max_tokens"); mt.Exists() {
		maxTokens = mt.Int()
		if maxTokens == -1 {
			maxTokens = kiroMaxOutputTokens
		}
	}

	temperature, hasTemperature := 0.0, false
	if thinkingEnabled {
		// Thinking mode requires temperature 1.0 on the south side.
		temperature, hasTemperature = 1.0, true
	} else if temp := gjson.GetBytes(body, "temperature"); temp.Exists() {
		temperature, hasTemperature = temp.Float(), true
	}

	topP, hasTopP := 0.0, false
	if tp := gjson.GetBytes(body, "top_p"); tp.Exists() {
		topP, hasTopP = tp.Float(), true
	}

	if maxTokens <= 0 && !hasTemperature && !hasTopP {
		return nil
	}
	cfg := &KiroInferenceConfig{}
	if maxTokens > 0 {
		cfg.MaxTokens = int(maxTokens)
	}
	if hasTemperature {
		cfg.Temperature = temperature
	}
	if hasTopP {
		cfg.TopP = topP
	}
	return cfg
}

// thinkingConfig reports whether extended thinking is requested and its
// budget, from Anthropic's `thinking: {type, budget_tokens}` field.
func thinkingConfig(body []byte) (enabled bool, budgetTokens int64) {
	budgetTokens = 24000
	thinking := gjson.GetBytes(body, "thinking")
	if !thinking.Exists() || thinking.Get("type").String() != "enabled" {
		return false, budgetTokens
	}
	if bt := thinking.Get("budget_tokens"); bt.Exists() {
		budgetTokens = bt.Int()
		if budgetTokens <= 0 {
			return false, budgetTokens
		}
	}
	return true, budgetTokens
}

func extractSystemPrompt(body []byte) string {
	system := gjson.GetBytes(body, "system")
	if system.IsArray() {
		var sb strings.Builder
		for _, block := range system.Array() {
			if block.Get("type").String() == "text" {
				sb.WriteString(block.Get("text").String())
			} else if block.Type == gjson.String {
				sb.WriteString(block.String())
			}
		}
		return sb.String()
	}
	return system.String()
}

func processMessages(messages gjson.Result, modelID, origin string) ([]KiroHistoryMessage, *KiroUserInputMessage, []KiroToolResult) {
	var history []KiroHistoryMessage
	var currentUserMsg *KiroUserInputMessage
	var currentToolResults []KiroToolResult

	merged := mergeAdjacentMessages(messages.Array())
	for i, msg := range merged {
		isLast := i == len(merged)-1
		switch msg.Get("role").String() {
		case "user":
			userMsg, toolResults := buildUserMessage(msg, modelID, origin)
			if isLast {
				currentUserMsg = &userMsg
				currentToolResults = toolResults
				continue
			}
			if strings.TrimSpace(userMsg.Content) == "" {
				if len(toolResults) > 0 {
					userMsg.Content = "Tool results provided."
				} else {
					userMsg.Content = "Continue"
				}
			}
			if len(toolResults) > 0 {
				userMsg.UserInputMessageContext = &KiroUserInputMessageContext{ToolResults: toolResults}
			}
			history = append(history, KiroHistoryMessage{UserInputMessage: &userMsg})
		case "assistant":
			assistantMsg := buildAssistantMessage(msg)
			history = append(history, KiroHistoryMessage{AssistantResponseMessage: &assistantMsg})
			if isLast {
				currentUserMsg = &KiroUserInputMessage{Content: "Continue", ModelID: modelID, Origin: origin}
			}
		}
	}

	return history, currentUserMsg, currentToolResults
}

func buildFinalContent(content, systemPrompt string, toolResults []KiroToolResult) string {
	var sb strings.Builder
	if systemPrompt != "" {
		sb.WriteString("--- SYSTEM PROMPT ---\n")
		sb.WriteString(systemPrompt)
		sb.WriteString("\n--- END SYSTEM PROMPT ---\n\n")
	}
	sb.WriteString(content)
	final := sb.String()

	if strings.TrimSpace(final) == "" {
		if len(toolResults) > 0 {
			return "Tool results provided."
		}
		return "Continue"
	}
	return final
}

func deduplicateToolResults(results []KiroToolResult) []KiroToolResult {
	if len(results) == 0 {
		return results
	}
	seen := make(map[string]bool, len(results))
	out := make([]KiroToolResult, 0, len(results))
	for _, r := range results {
		if seen[r.ToolUseID] {
			continue
		}
		seen[r.ToolUseID] = true
		out = append(out, r)
	}
	return out
}

func buildUserMessage(msg gjson.Result, modelID, origin string) (KiroUserInputMessage, []KiroToolResult) {
	content := msg.Get("content")
	var sb strings.Builder
	var toolResults []KiroToolResult
	var images []KiroImage
	seenToolUseIDs := make(map[string]bool)

	if content.IsArray() {
		for _, part := range content.Array() {
			switch part.Get("type").String() {
			case "text":
				sb.WriteString(part.Get("text").String())
			case "image":
				mediaType := part.Get("source.media_type").String()
				data := part.Get("source.data").String()
				format := ""
				if idx := strings.LastIndex(mediaType, "/"); idx != -1 {
					format = mediaType[idx+1:]
				}
				if format != "" && data != "" {
					images = append(images, KiroImage{Format: format, Source: KiroImageSource{Bytes: data}})
				}
			case "tool_result":
				toolUseID := part.Get("tool_use_id").String()
				if seenToolUseIDs[toolUseID] {
					continue
				}
				seenToolUseIDs[toolUseID] = true
				toolResults = append(toolResults, buildToolResult(toolUseID, part))
			}
		}
	} else {
		sb.WriteString(content.String())
	}

	userMsg := KiroUserInputMessage{Content: sb.String(), ModelID: modelID, Origin: origin}
	if len(images) > 0 {
		userMsg.Images = images
	}
	return userMsg, toolResults
}

func buildToolResult(toolUseID string, part gjson.Result) KiroToolResult {
	isError := part.Get("is_error").Bool()
	resultContent := part.Get("content")

	var texts []KiroTextContent
	switch {
	case resultContent.IsArray():
		for _, item := range resultContent.Array() {
			if item.Get("type").String() == "text" {
				texts = append(texts, KiroTextContent{Text: item.Get("text").String()})
			} else if item.Type == gjson.String {
				texts = append(texts, KiroTextContent{Text: item.String()})
			}
		}
	case resultContent.Type == gjson.String:
		texts = append(texts, KiroTextContent{Text: resultContent.String()})
	}
	if len(texts) == 0 {
		texts = append(texts, KiroTextContent{Text: "Tool use was cancelled by the user"})
	}

	status := "success"
	if isError {
		status = "error"
	}
	return KiroToolResult{ToolUseID: toolUseID, Content: texts, Status: status}
}

func buildAssistantMessage(msg gjson.Result) KiroAssistantResponseMessage {
	content := msg.Get("content")
	var sb strings.Builder
	var toolUses []KiroToolUse

	if content.IsArray() {
		for _, part := range content.Array() {
			switch part.Get("type").String() {
			case "text":
				sb.WriteString(part.Get("text").String())
			case "tool_use":
				input := part.Get("input")
				var inputMap map[string]any
				if input.IsObject() {
					inputMap = make(map[string]any)
					input.ForEach(func(key, value gjson.Result) bool {
						inputMap[key.String()] = value.Value()
						return true
					})
				}
				toolUses = append(toolUses, KiroToolUse{
					ToolUseID: part.Get("id").String(),
					Name:      part.Get("name").String(),
					Input:     inputMap,
				})
			}
		}
	} else {
		sb.WriteString(content.String())
	}

	final := sb.String()
	if strings.TrimSpace(final) == "" {
		if len(toolUses) > 0 {
			final = defaultAssistantContentWithTools
		} else {
			final = defaultAssistantContent
		}
	}

	return KiroAssistantResponseMessage{Content: final, ToolUses: toolUses}
}
