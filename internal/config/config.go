package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderType identifies an AI provider backend.
type ProviderType string

// Supported AI providers. An empty provider means the assistant is unconfigured.
const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderOllama    ProviderType = "ollama"
	ProviderBedrock   ProviderType = "bedrock"
)

// Store backends.
const (
	StoreSurrealDB = "surrealdb"
	StoreMemory    = "memory"
)

// DefaultMonthlyTokenLimit applies when a workspace has no explicit limit.
const DefaultMonthlyTokenLimit int64 = 1_000_000

// Config holds all configuration values.
type Config struct {
	// Storage
	Store       string `yaml:"store"`
	FixturePath string `yaml:"fixture"`

	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// AI provider
	AIProvider      ProviderType `yaml:"ai_provider"`
	AIModel         string       `yaml:"ai_model"`
	OpenAIAPIKey    string       `yaml:"-"`
	AnthropicAPIKey string       `yaml:"-"`
	OllamaHost      string       `yaml:"ollama_host"`
	AWSRegion       string       `yaml:"aws_region"`

	// Usage
	MonthlyTokenLimit int64 `yaml:"monthly_token_limit"`

	// Shared-component detection in project context: "suffix" or "camelcase".
	PatternDetector string `yaml:"pattern_detector"`

	// Server
	ServerPort string `yaml:"server_port"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from an optional YAML file named by
// SPRINTPILOT_CONFIG, then applies environment variable overrides.
func Load() (Config, error) {
	var file Config
	if path := os.Getenv("SPRINTPILOT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	return fromEnv(file), nil
}

// fromEnv resolves each value as env var > file value > default.
func fromEnv(file Config) Config {
	str := func(key, fileVal, def string) string {
		if fileVal != "" {
			def = fileVal
		}
		return getEnv(key, def)
	}

	limit := DefaultMonthlyTokenLimit
	if file.MonthlyTokenLimit > 0 {
		limit = file.MonthlyTokenLimit
	}

	return Config{
		Store:       str("SPRINTPILOT_STORE", file.Store, StoreSurrealDB),
		FixturePath: str("SPRINTPILOT_FIXTURE", file.FixturePath, ""),

		SurrealDBURL:       str("SURREALDB_URL", file.SurrealDBURL, "ws://localhost:8000/rpc"),
		SurrealDBNamespace: str("SURREALDB_NAMESPACE", file.SurrealDBNamespace, "sprintpilot"),
		SurrealDBDatabase:  str("SURREALDB_DATABASE", file.SurrealDBDatabase, "assistant"),
		SurrealDBUser:      str("SURREALDB_USER", file.SurrealDBUser, "root"),
		SurrealDBPass:      str("SURREALDB_PASS", file.SurrealDBPass, "root"),
		SurrealDBAuthLevel: str("SURREALDB_AUTH_LEVEL", file.SurrealDBAuthLevel, "root"),

		AIProvider:      ProviderType(strings.ToLower(str("SPRINTPILOT_AI_PROVIDER", string(file.AIProvider), ""))),
		AIModel:         str("SPRINTPILOT_AI_MODEL", file.AIModel, ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaHost:      str("OLLAMA_HOST", file.OllamaHost, "http://localhost:11434"),
		AWSRegion:       str("AWS_REGION", file.AWSRegion, "us-east-1"),

		MonthlyTokenLimit: parseInt64(getEnv("SPRINTPILOT_MONTHLY_TOKEN_LIMIT", ""), limit),

		PatternDetector: strings.ToLower(str("SPRINTPILOT_PATTERN_DETECTOR", file.PatternDetector, "suffix")),

		ServerPort: str("SPRINTPILOT_SERVER_PORT", file.ServerPort, "8585"),

		LogFile:  str("SPRINTPILOT_LOG_FILE", file.LogFile, "/tmp/sprintpilot.log"),
		LogLevel: parseLogLevel(getEnv("SPRINTPILOT_LOG_LEVEL", "INFO")),
	}
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(p ProviderType) string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderOllama:
		return "llama3.1"
	case ProviderBedrock:
		return "anthropic.claude-3-haiku-20240307-v1:0"
	default:
		return ""
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
