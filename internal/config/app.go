package config

import (
	"chatly/internal/logger"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Server    ServerConfig
	Database  DatabaseConfig
	LLM       LLMConfig
	Auth      AuthConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Models    *ModelsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider      string
	OllamaURL     string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	SystemPrompt  string
	Timeout       time.Duration
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret       []byte
	TokenExpiration time.Duration
	CookieName      string
	CookieSecure    bool
}

// StorageConfig holds at-rest encryption configuration
type StorageConfig struct {
	EncryptionKeyFile string
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// CORSConfig holds cross-origin settings for browser clients
type CORSConfig struct {
	AllowedOrigins []string
}

// ClientConfig holds configuration of the chatly command line client
type ClientConfig struct {
	BaseURL     string
	Timeout     time.Duration
	CookieFile  string
	HistoryFile string
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"server.port":             "SERVER_PORT",
	"server.read_timeout":     "SERVER_READ_TIMEOUT",
	"server.write_timeout":    "SERVER_WRITE_TIMEOUT",
	"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",
	"database.host":           "DB_HOST",
	"database.port":           "DB_PORT",
	"database.user":           "DB_USER",
	"database.password":       "DB_PASSWORD",
	"database.name":           "DB_NAME",
	"database.sslmode":        "DB_SSLMODE",
	"llm.provider":            "LLM_PROVIDER",
	"llm.ollama_url":          "OLLAMA_URL",
	"llm.openai_base_url":     "OPENAI_BASE_URL",
	"llm.openai_api_key":      "OPENAI_API_KEY",
	"llm.system_prompt":       "LLM_SYSTEM_PROMPT",
	"llm.timeout":             "LLM_TIMEOUT",
	"auth.jwt_secret":         "JWT_SECRET",
	"auth.token_expiration":   "JWT_TOKEN_EXPIRATION",
	"auth.cookie_name":        "SESSION_COOKIE_NAME",
	"auth.cookie_secure":      "SESSION_COOKIE_SECURE",
	"storage.encryption_key":  "ENCRYPTION_KEY_FILE",
	"rate_limit.enabled":      "RATE_LIMIT_ENABLED",
	"rate_limit.per_minute":   "RATE_LIMIT_PER_MINUTE",
	"rate_limit.burst":        "RATE_LIMIT_BURST",
	"cors.allowed_origins":    "CORS_ALLOWED_ORIGINS",
	"models.config_path":      "MODELS_CONFIG_PATH",
	"client.base_url":         "CHATLY_URL",
	"client.timeout":          "CHATLY_TIMEOUT",
	"client.cookie_file":      "CHATLY_COOKIE_FILE",
	"client.history_file":     "CHATLY_HISTORY_FILE",
}

func newViper() (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("server.port", "5000")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.host", "postgres")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "chatly")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.ollama_url", "http://127.0.0.1:11434")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("llm.timeout", 5*time.Minute)

	v.SetDefault("auth.token_expiration", 24*time.Hour)
	v.SetDefault("auth.cookie_name", "chatly_session")
	v.SetDefault("auth.cookie_secure", false)

	v.SetDefault("storage.encryption_key", filepath.Join("Key", "encryption.key"))

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.per_minute", 120)
	v.SetDefault("rate_limit.burst", 30)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5000"})

	v.SetDefault("client.base_url", "http://127.0.0.1:5000")
	v.SetDefault("client.timeout", 30*time.Second)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	// Optional YAML file; environment variables still take precedence
	if path := os.Getenv("CHATLY_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		logger.Log.WithField("path", path).Info("Loaded config file")
	}

	return v, nil
}

// LoadConfig loads and validates the server configuration from environment and config file
func LoadConfig() (*AppConfig, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	config := &AppConfig{}

	config.Server = ServerConfig{
		Port:            v.GetString("server.port"),
		ReadTimeout:     v.GetDuration("server.read_timeout"),
		WriteTimeout:    v.GetDuration("server.write_timeout"),
		ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
	}

	config.Database = DatabaseConfig{
		Host:     v.GetString("database.host"),
		Port:     v.GetString("database.port"),
		User:     v.GetString("database.user"),
		Password: v.GetString("database.password"),
		Name:     v.GetString("database.name"),
		SSLMode:  v.GetString("database.sslmode"),
	}

	config.LLM = LLMConfig{
		Provider:      v.GetString("llm.provider"),
		OllamaURL:     strings.TrimRight(v.GetString("llm.ollama_url"), "/"),
		OpenAIBaseURL: v.GetString("llm.openai_base_url"),
		OpenAIAPIKey:  v.GetString("llm.openai_api_key"),
		SystemPrompt:  v.GetString("llm.system_prompt"),
		Timeout:       v.GetDuration("llm.timeout"),
	}
	if config.LLM.Provider == "genkit" && config.LLM.OpenAIAPIKey == "" {
		logger.Log.Warn("OPENAI_API_KEY environment variable not set")
	}

	jwtSecret := v.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable must be set")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters (current length: %d)", len(jwtSecret))
	}

	config.Auth = AuthConfig{
		JWTSecret:       []byte(jwtSecret),
		TokenExpiration: v.GetDuration("auth.token_expiration"),
		CookieName:      v.GetString("auth.cookie_name"),
		CookieSecure:    v.GetBool("auth.cookie_secure"),
	}

	config.Storage = StorageConfig{
		EncryptionKeyFile: v.GetString("storage.encryption_key"),
	}

	config.RateLimit = RateLimitConfig{
		Enabled:           v.GetBool("rate_limit.enabled"),
		RequestsPerMinute: v.GetInt("rate_limit.per_minute"),
		Burst:             v.GetInt("rate_limit.burst"),
	}
	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMinute <= 0 {
		logger.Log.WithFields(logrus.Fields{"per_minute": config.RateLimit.RequestsPerMinute}).Warn("Invalid rate limit, disabling")
		config.RateLimit.Enabled = false
	}

	config.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetStringSlice("cors.allowed_origins")),
	}

	modelsPath := v.GetString("models.config_path")
	if modelsPath == "" {
		config.Models = DefaultModelsConfig()
	} else {
		modelsConfig, err := NewModelsConfig(modelsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load models config: %w", err)
		}
		config.Models = modelsConfig
	}

	return config, nil
}

// LoadClientConfig loads the command line client configuration
func LoadClientConfig() (*ClientConfig, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	config := &ClientConfig{
		BaseURL:     strings.TrimRight(v.GetString("client.base_url"), "/"),
		Timeout:     v.GetDuration("client.timeout"),
		CookieFile:  v.GetString("client.cookie_file"),
		HistoryFile: v.GetString("client.history_file"),
	}
	if config.Timeout <= 0 {
		logger.Log.WithField("timeout", config.Timeout).Warn("Invalid client timeout, using default")
		config.Timeout = 30 * time.Second
	}

	if config.CookieFile == "" || config.HistoryFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		if config.CookieFile == "" {
			config.CookieFile = filepath.Join(home, ".chatly", "cookies.json")
		}
		if config.HistoryFile == "" {
			config.HistoryFile = filepath.Join(home, ".chatly", "history")
		}
	}

	return config, nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// splitList accepts both YAML lists and comma separated environment values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
