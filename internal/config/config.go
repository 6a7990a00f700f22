package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config is the environment-driven configuration, processed with envconfig.
// Lookup tables (landmarks, synonyms, zip rings) live in config.yaml and are
// loaded separately via LoadTables.
type Config struct {
	Log     LogConfig     `envconfig:"LOG"`
	LLM     LLMConfig     `envconfig:"LLM"`
	Neo4j   Neo4jConfig   `envconfig:"NEO4J"`
	Redis   RedisConfig   `envconfig:"REDIS"`
	Session SessionConfig `envconfig:"SESSION"`
}

// LogConfig mirrors the logger setup knobs.
type LogConfig struct {
	Level      string `envconfig:"LEVEL" default:"info"`
	Format     string `envconfig:"FORMAT" default:"console"`
	Output     string `envconfig:"OUTPUT" default:"stderr"`
	FilePath   string `envconfig:"FILE_PATH" default:"logs/orgfinder.log"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"rfc3339"`
}

// LLMConfig selects and configures the chat-model provider used for both
// intent extraction and summarization.
type LLMConfig struct {
	Provider    string  `envconfig:"PROVIDER" default:"openai"`
	Model       string  `envconfig:"MODEL" default:"openai/gpt-4o-mini"`
	APIKey      string  `envconfig:"API_KEY"`
	BaseURL     string  `envconfig:"BASE_URL" default:"https://openrouter.ai/api/v1"`
	MaxTokens   int     `envconfig:"MAX_TOKENS" default:"1500"`
	Temperature float64 `envconfig:"TEMPERATURE" default:"0.0"`
}

// Neo4jConfig is the graph store connection.
type Neo4jConfig struct {
	URI      string `envconfig:"URI" default:"neo4j://localhost:7687"`
	Username string `envconfig:"USERNAME" default:"neo4j"`
	Password string `envconfig:"PASSWORD"`
	Database string `envconfig:"DATABASE" default:"neo4j"`
}

// RedisConfig is the session-state store connection. An empty URL makes the
// host fall back to in-process session state.
type RedisConfig struct {
	URL        string `envconfig:"URL"`
	TTLSeconds int    `envconfig:"TTL_SECONDS" default:"3600"`
}

// SessionConfig controls the session-log side channel.
type SessionConfig struct {
	LogDir string `envconfig:"LOG_DIR" default:"logs/sessions"`
}

// Load processes the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("ORGFINDER", &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings that have no safe default.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("ORGFINDER_LLM_API_KEY is required")
	}
	if c.Neo4j.Password == "" {
		return fmt.Errorf("ORGFINDER_NEO4J_PASSWORD is required")
	}
	return nil
}
