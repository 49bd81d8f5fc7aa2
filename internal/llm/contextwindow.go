package llm

import "strings"

// contextWindows is a static per-model table seeded from each provider's
// documented context window, consulted by ResolveContextWindow. New models
// ship faster than this table does; a model missing here is looked up in
// contextWindowPrefixes, then falls back to a default rather than erroring,
// since undercounting the budget only makes compaction trigger earlier.
var contextWindows = map[string]int{
	"claude-opus-4-20250514":      200_000,
	"claude-sonnet-4-20250514":    200_000,
	"claude-3-7-sonnet-20250219":  200_000,
	"claude-3-5-sonnet-20241022":  200_000,
	"claude-3-5-haiku-20241022":   200_000,
	"gpt-4o":                      128_000,
	"gpt-4o-mini":                 128_000,
	"gpt-4-turbo":                 128_000,
	"gpt-4.1":                     1_047_576,
	"o1":                          200_000,
	"o3-mini":                     200_000,
	"gemini-2.0-flash":            1_048_576,
	"gemini-2.5-pro":              1_048_576,
	"gemini-1.5-pro":              2_097_152,
	"gemini-1.5-flash":            1_048_576,
}

// ResolveContextWindow returns model's documented context window in tokens:
// an exact match in contextWindows, else a prefix match in
// contextWindowPrefixes (which covers Bedrock "anthropic.claude..." ids).
// Any other model, Bedrock-hosted or not, gets bedrockDefault
// (config.BedrockConfig.DefaultContextWindow) when it is positive, else
// 32,000, since Bedrock's own catalog of per-model windows isn't mirrored
// here; see DESIGN.md.
func ResolveContextWindow(model string, bedrockDefault int) int {
	if w, ok := contextWindows[model]; ok {
		return w
	}
	for prefix, w := range contextWindowPrefixes {
		if strings.HasPrefix(model, prefix) {
			return w
		}
	}
	if bedrockDefault > 0 {
		return bedrockDefault
	}
	return 32_000
}

// contextWindowPrefixes covers model-family name variants the exact table
// misses (dated suffixes, minor versions) by matching a stable prefix.
var contextWindowPrefixes = map[string]int{
	"claude-opus-4":     200_000,
	"claude-sonnet-4":   200_000,
	"claude-3":          200_000,
	"gpt-4o":            128_000,
	"gpt-4.1":           1_047_576,
	"gpt-4":             128_000,
	"o1":                200_000,
	"o3":                200_000,
	"gemini-2":          1_048_576,
	"gemini-1.5":        2_097_152,
	"anthropic.claude":  200_000,
}
