package llm

import (
	"fmt"
	"log/slog"
)

// NewFromProvider builds a Client for the named provider.
// Supported providers: "openai" (any OpenAI-compatible endpoint) and
// "ollama".
func NewFromProvider(provider, baseURL, apiKey string, logger *slog.Logger) (Client, error) {
	switch provider {
	case "openai":
		return NewOpenAIClient(baseURL, apiKey, logger), nil
	case "ollama", "":
		return NewOllamaClient(baseURL, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q (valid: openai, ollama)", provider)
	}
}
