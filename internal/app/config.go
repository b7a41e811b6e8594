package app

import (
	"chatly/internal/config"
	"chatly/internal/repository/db"
	"chatly/internal/service/llm"
)

// Config holds all application dependencies and configuration
type Config struct {
	// Database interface for data persistence
	DB db.Database
	// LLM provider answering chat messages
	LLM llm.LLMProvider
	// Centralized application configuration
	AppConfig *config.AppConfig
}

// NewConfig creates a new application configuration
func NewConfig(database db.Database, provider llm.LLMProvider, appConfig *config.AppConfig) *Config {
	return &Config{
		DB:        database,
		LLM:       provider,
		AppConfig: appConfig,
	}
}

// ModelsConfig returns the model alias table, falling back to the built-in one
func (c *Config) ModelsConfig() *config.ModelsConfig {
	if c.AppConfig == nil || c.AppConfig.Models == nil {
		return config.DefaultModelsConfig()
	}
	return c.AppConfig.Models
}
