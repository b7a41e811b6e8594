package config

import (
	"encoding/json"
	"os"
)

// DefaultModelAlias is the alias assigned to new users.
const DefaultModelAlias = "gemma"

// fallbackModelTag is used when an alias cannot be resolved.
const fallbackModelTag = "gemma3:1b"

// Model represents an available LLM model.
// ID is the alias users select in their settings, Tag the name the provider knows.
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Tag      string `json:"tag"`
	Provider string `json:"provider"`
}

// ModelsConfig holds the available models configuration
type ModelsConfig struct {
	models []Model
}

// NewModelsConfig creates a new models configuration from a file
func NewModelsConfig(configPath string) (*ModelsConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var models []Model
	err = json.Unmarshal(data, &models)
	if err != nil {
		return nil, err
	}

	return &ModelsConfig{models: models}, nil
}

// NewModelsConfigFromList builds a models configuration from an in-memory list.
func NewModelsConfigFromList(models []Model) *ModelsConfig {
	return &ModelsConfig{models: append([]Model(nil), models...)}
}

// DefaultModelsConfig returns the built-in alias table served by a local Ollama.
func DefaultModelsConfig() *ModelsConfig {
	return NewModelsConfigFromList([]Model{
		{ID: "gemma", Name: "Gemma", Tag: "gemma3:1b", Provider: "ollama"},
		{ID: "mistral", Name: "Mistral", Tag: "mistral:latest", Provider: "ollama"},
		{ID: "tinyllama", Name: "TinyLlama", Tag: "tinyllama:latest", Provider: "ollama"},
		{ID: "phi3", Name: "Phi3", Tag: "phi3:3.8b", Provider: "ollama"},
		{ID: "phi", Name: "Phi2", Tag: "phi:latest", Provider: "ollama"},
		{ID: "deepseek-coder", Name: "DeepSeek Coder", Tag: "deepseek-coder:latest", Provider: "ollama"},
		{ID: "deepseek-r1", Name: "DeepSeek", Tag: "deepseek-r1:8b", Provider: "ollama"},
		{ID: "tinystories", Name: "TinyStories", Tag: "gurubot/tinystories-656k-q8:latest", Provider: "ollama"},
		{ID: "llama2-uncensored", Name: "Llama2 Uncensored", Tag: "llama2-uncensored:latest", Provider: "ollama"},
		{ID: "llava", Name: "LLava", Tag: "llava:7b", Provider: "ollama"},
		{ID: "phi4-mini", Name: "Phi4 Mini", Tag: "phi4-mini:latest", Provider: "ollama"},
		{ID: "phi4", Name: "Phi4", Tag: "phi4:latest", Provider: "ollama"},
		{ID: "codellama", Name: "CodeLlama", Tag: "codellama:latest", Provider: "ollama"},
		{ID: "smollm-1.7b", Name: "Smollm 1.7B", Tag: "smollm:1.7b", Provider: "ollama"},
		{ID: "smollm-135m", Name: "Smollm 135M", Tag: "smollm:135m", Provider: "ollama"},
		{ID: "qwen3-8b", Name: "Qwen3 8B", Tag: "qwen3:8b", Provider: "ollama"},
		{ID: "qwen3-0.6b", Name: "Qwen3 0.6B", Tag: "qwen3:0.6b", Provider: "ollama"},
		{ID: "deepscaler", Name: "Deepscaler", Tag: "deepscaler:latest", Provider: "ollama"},
		{ID: "dolphin-mistral", Name: "Dolphin Mistral", Tag: "dolphin-mistral:latest", Provider: "ollama"},
		{ID: "dolphin-phi", Name: "Dolphin Phi", Tag: "dolphin-phi:latest", Provider: "ollama"},
	})
}

// GetAvailableModels returns the list of available models
func (mc *ModelsConfig) GetAvailableModels() []Model {
	return mc.models
}

// IsValidModel checks if a model alias is in the list of available models
func (mc *ModelsConfig) IsValidModel(modelID string) bool {
	for _, model := range mc.models {
		if model.ID == modelID {
			return true
		}
	}
	return false
}

// GetDefaultModel returns the tag of the first model as the default
func (mc *ModelsConfig) GetDefaultModel() string {
	if len(mc.models) > 0 {
		return mc.models[0].Tag
	}
	return fallbackModelTag
}

// Resolve maps a user-facing alias to the provider tag.
// Unknown aliases resolve to the default model.
func (mc *ModelsConfig) Resolve(alias string) string {
	for _, model := range mc.models {
		if model.ID == alias && model.Tag != "" {
			return model.Tag
		}
	}
	return mc.GetDefaultModel()
}
