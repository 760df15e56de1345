package kiroclient

import "fmt"

// DefaultRegion is used when no region is configured, and always for the
// IdC token endpoint.
const DefaultRegion = "us-east-1"

// RequestKind selects which south-side path a request targets.
type RequestKind int

const (
	// KindConverseStream is the streaming conversational turn endpoint.
	KindConverseStream RequestKind = iota
	// KindGenerateAssistantResponse is the non-streaming conversational
	// turn endpoint.
	KindGenerateAssistantResponse
	// KindBalance reports subscription usage for the credential.
	KindBalance
)

// endpoint describes one south-side URL and the identity header shape it
// expects.
type endpoint struct {
	URL    string
	Origin string
}

// Endpoints returns the base URL to use for kind in region, in priority
// order: callers try the first and fail over to the rest on
// CredentialTransient per spec §4.H.
func Endpoints(region string, kind RequestKind) []endpoint {
	if region == "" {
		region = DefaultRegion
	}
	switch kind {
	case KindBalance:
		return []endpoint{{URL: fmt.Sprintf("https://q.%s.amazonaws.com/getUsageLimits", region), Origin: "AI_EDITOR"}}
	default:
		// Both streaming and non-streaming conversational turns ride the
		// same Q endpoint; the request body's own shape distinguishes them.
		return []endpoint{
			{URL: fmt.Sprintf("https://q.%s.amazonaws.com/generateAssistantResponse", region), Origin: "AI_EDITOR"},
			{URL: fmt.Sprintf("https://codewhisperer.%s.amazonaws.com/generateAssistantResponse", region), Origin: "AI_EDITOR"},
		}
	}
}
