package constants

import "strings"

// ProviderType identifies an LLM backend family.
type ProviderType string

const (
	ProviderGroq      ProviderType = "groq"
	ProviderBedrock   ProviderType = "bedrock"
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOllama    ProviderType = "ollama"
)

// DefaultProviderOrder is the priority used when providers come from
// credential env vars rather than an explicit descriptor file.
var DefaultProviderOrder = []ProviderType{
	ProviderGroq,
	ProviderBedrock,
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderOllama,
}

// Default models per provider.
var DefaultModels = map[ProviderType]string{
	ProviderGroq:      "llama-3.1-8b-instant",
	ProviderBedrock:   "anthropic.claude-3-5-sonnet-20241022-v2:0",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-haiku-latest",
	ProviderOllama:    "llama3.1",
}

// CanonicalProvider maps user input (and a few aliases) onto a ProviderType.
func CanonicalProvider(input string) (ProviderType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	synonyms := map[string]ProviderType{
		"aws":    ProviderBedrock,
		"claude": ProviderAnthropic,
		"gpt":    ProviderOpenAI,
	}
	if p, ok := synonyms[normalized]; ok {
		return p, true
	}
	for _, p := range DefaultProviderOrder {
		if normalized == string(p) {
			return p, true
		}
	}
	return "", false
}
