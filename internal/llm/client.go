// Package llm provides language-model backends behind the types.LLMClient
// contract. The same client is called with independent prompt/parameter sets
// for query refinement, product-term extraction and full reply synthesis.
package llm

import (
	"fmt"
	"time"

	"aikun/internal/config"
	"aikun/internal/types"
)

// NewClient builds the backend selected by cfg.Provider.
func NewClient(cfg config.LLMConfig) (types.LLMClient, error) {
	timeout := config.ParseDuration(cfg.Timeout, 30*time.Second)

	switch cfg.Provider {
	case "", "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return NewGeminiClient(GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}), nil
	case "genai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("genai provider requires an API key")
		}
		return NewGenAIClient(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
