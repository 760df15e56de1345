package translator

import (
	"strings"

	"github.com/tidwall/gjson"
)

// KiroToolWrapper is the south-side tool envelope.
type KiroToolWrapper struct {
	ToolSpecification KiroToolSpecification `json:"toolSpecification"`
}

// KiroToolSpecification is one tool's south-side schema.
type KiroToolSpecification struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema KiroInputSchema `json:"inputSchema"`
}

// KiroInputSchema wraps the tool's JSON schema under the "json" key the
// south side expects.
type KiroInputSchema struct {
	JSON any `json:"json"`
}

// convertTools translates the Anthropic `tools` array into south-side
// tool wrappers, silently dropping web_search/websearch entries per
// spec §4.I.
func convertTools(tools gjson.Result) []KiroToolWrapper {
	if !tools.IsArray() {
		return nil
	}

	var out []KiroToolWrapper
	for _, tool := range tools.Array() {
		name := tool.Get("name").String()
		if isWebSearchTool(name) {
			continue
		}

		description := tool.Get("description").String()
		if strings.TrimSpace(description) == "" {
			description = "Tool: " + name
		}
		description = truncate(description, maxToolDescriptionLen)

		schema := tool.Get("input_schema")
		var schemaValue any
		if schema.Exists() && schema.Type != gjson.Null {
			schemaValue = schema.Value()
		} else {
			schemaValue = map[string]any{"type": "object", "properties": map[string]any{}}
		}

		out = append(out, KiroToolWrapper{
			ToolSpecification: KiroToolSpecification{
				Name:        name,
				Description: description,
				InputSchema: KiroInputSchema{JSON: schemaValue},
			},
		})
	}
	return out
}

func isWebSearchTool(name string) bool {
	lower := strings.ToLower(name)
	return lower == "web_search" || lower == "websearch"
}
