package config

import (
	"fmt"
	"os"

	"github.com/0-uddeshya-0/klarbill/internal/logger"
)

type Config struct {
	// OpenAI Configuration
	OpenAIAPIKey string
	OpenAIModel  string

	// Invoice Store Configuration
	InvoiceDBPath   string
	InvoiceSeedPath string

	// Knowledge Base Configuration
	KnowledgeBasePath string

	// Server Configuration
	ListenAddr      string
	DefaultLanguage string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", ""),
		InvoiceDBPath:     getEnv("INVOICE_DB_PATH", "data/invoices.db"),
		InvoiceSeedPath:   getEnv("INVOICE_SEED_PATH", ""),
		KnowledgeBasePath: getEnv("KNOWLEDGE_BASE_PATH", "data/knowledge_base.json"),
		ListenAddr:        getEnv("LISTEN_ADDR", ":8000"),
		DefaultLanguage:   getEnv("DEFAULT_LANGUAGE", "en"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:     getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:         getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.DefaultLanguage != "en" && c.DefaultLanguage != "de" {
		return fmt.Errorf("DEFAULT_LANGUAGE must be en or de, got %q", c.DefaultLanguage)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
