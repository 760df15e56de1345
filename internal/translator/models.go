package translator

import "strings"

const (
	ModelSonnet = "claude-sonnet-4.5"
	ModelOpus   = "claude-opus-4.5"
	ModelHaiku  = "claude-haiku-4.5"
)

// SupportedModels lists the three models the north side advertises via
// GET /v1/models.
var SupportedModels = []string{ModelSonnet, ModelOpus, ModelHaiku}

// NormalizeModel maps an arbitrary client-supplied model name onto one of
// the three supported identifiers by substring match, defaulting to
// sonnet when nothing matches, per spec §4.I.
func NormalizeModel(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "opus"):
		return ModelOpus
	case strings.Contains(lower, "haiku"):
		return ModelHaiku
	case strings.Contains(lower, "sonnet"):
		return ModelSonnet
	default:
		return ModelSonnet
	}
}
