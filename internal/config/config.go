package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port int
	Env  string

	// Storage sinks
	DatabaseURL string
	SQLitePath  string
	Neo4j       Neo4jConfig

	// Analysis
	Analysis AnalysisConfig

	// LLM
	LLM LLMConfig

	// Remote checkouts
	GitToken string
	CloneDir string

	// AllowedRoot confines API analyses of local paths to this directory.
	// Unset in production, only repo_url analyses are accepted.
	AllowedRoot string
}

// Neo4jConfig holds graph database connection settings
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// AnalysisConfig holds engine defaults
type AnalysisConfig struct {
	MaxDepth       int
	MaxContextSize int
	Concurrency    int
	TraceMode      string
	MaxFileSize    int64
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	// Default provider: ollama, anthropic, openai
	DefaultProvider string

	// Ollama settings
	OllamaURL   string
	OllamaTier1 string
	OllamaTier2 string

	// Anthropic settings
	AnthropicKey   string
	AnthropicTier3 string

	// OpenAI settings
	OpenAIKey   string
	OpenAIURL   string
	OpenAIModel string
}

// IsProduction reports whether ENV is production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("CODESWORTH_SQLITE_PATH", ""),
		GitToken:    getEnv("GIT_TOKEN", getEnv("GITHUB_TOKEN", "")),
		CloneDir:    getEnv("CODESWORTH_CLONE_DIR", os.TempDir()),
		AllowedRoot: getEnv("CODESWORTH_ALLOWED_ROOT", ""),

		Neo4j: Neo4jConfig{
			URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
			Username: getEnv("NEO4J_USERNAME", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", ""),
			Database: getEnv("NEO4J_DATABASE", "neo4j"),
		},

		Analysis: AnalysisConfig{
			MaxDepth:       getEnvInt("CODESWORTH_MAX_DEPTH", 6),
			MaxContextSize: getEnvInt("CODESWORTH_MAX_CONTEXT_SIZE", 1_000_000),
			Concurrency:    getEnvInt("CODESWORTH_CONCURRENCY", 4),
			TraceMode:      getEnv("CODESWORTH_TRACE_MODE", "tree"),
			MaxFileSize:    int64(getEnvInt("CODESWORTH_MAX_FILE_SIZE", 1<<20)),
		},

		LLM: LLMConfig{
			DefaultProvider: getEnv("LLM_DEFAULT_PROVIDER", "ollama"),
			OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434"),
			OllamaTier1:     getEnv("OLLAMA_TIER1_MODEL", "qwen2.5-coder:7b"),
			OllamaTier2:     getEnv("OLLAMA_TIER2_MODEL", "deepseek-coder-v2:16b"),
			AnthropicKey:    getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicTier3:  getEnv("ANTHROPIC_TIER3_MODEL", "claude-3-5-sonnet-20241022"),
			OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
			OpenAIURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Analysis.MaxDepth <= 0 {
		return fmt.Errorf("CODESWORTH_MAX_DEPTH must be positive, got %d", c.Analysis.MaxDepth)
	}
	if c.Analysis.TraceMode != "tree" && c.Analysis.TraceMode != "paths" {
		return fmt.Errorf("CODESWORTH_TRACE_MODE must be tree or paths, got %q", c.Analysis.TraceMode)
	}

	switch c.LLM.DefaultProvider {
	case "ollama":
		// Ollama is local, just need URL
		if c.LLM.OllamaURL == "" {
			return fmt.Errorf("OLLAMA_URL required when using ollama provider")
		}
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY required when using anthropic provider")
		}
	case "openai":
		if c.LLM.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY required when using openai provider")
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
