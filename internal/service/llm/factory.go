package llm

import (
	"chatly/internal/config"
	"context"
	"fmt"
)

// NewProvider creates the provider selected by cfg.Provider
func NewProvider(ctx context.Context, cfg *config.LLMConfig, modelsConfig *config.ModelsConfig) (LLMProvider, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaProvider(cfg), nil
	case "genkit":
		return NewGenkitProvider(ctx, cfg, modelsConfig)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}
