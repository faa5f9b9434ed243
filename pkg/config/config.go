package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values. Secrets (API keys,
// database passwords) must only come from environment variables.
type Config struct {
	Env string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`

	// AI holds text generation provider settings.
	AI AIConfig `yaml:"ai"`

	// Database selects and configures the query target.
	Database DatabaseConfig `yaml:"database"`

	// Pipeline holds guarded-execution settings.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Schema holds context-loading settings.
	Schema SchemaConfig `yaml:"schema"`

	// History configures the query history store.
	History HistoryConfig `yaml:"history"`
}

// AIConfig holds text generation provider settings.
type AIConfig struct {
	// Provider selects the generation backend: "openai", "anthropic" or
	// "ollama". Ollama is reached through its OpenAI-compatible endpoint.
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`

	// BaseURL is the API base URL. For Ollama this is typically
	// "http://localhost:11434/v1".
	BaseURL string `yaml:"base_url" env:"AI_BASE_URL" env-default:"https://api.openai.com/v1"`

	Model  string `yaml:"model" env:"AI_MODEL" env-default:"gpt-4o-mini"`
	APIKey string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML

	// TimeoutSeconds bounds a single generation call.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"AI_TIMEOUT_SECONDS" env-default:"120"`
}

// Timeout returns the generation timeout as a duration.
func (c *AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DatabaseConfig holds the query target configuration.
// Type selects the backend; only the matching sub-config is used.
type DatabaseConfig struct {
	// Type is one of "sqlite", "postgres", "mssql".
	Type string `yaml:"type" env:"DB_TYPE" env-default:"sqlite"`

	// Path is the SQLite database file (sqlite only).
	Path string `yaml:"path" env:"DB_PATH" env-default:"data/app.db"`

	Host     string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"DB_USER" env-default:""`
	Password string `yaml:"-" env:"DB_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"DB_NAME" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSLMODE" env-default:"disable"`

	// StatementTimeoutSeconds is the hard per-statement deadline. The
	// default depends on the backend: embedded files get a longer
	// allowance than networked servers (Load fills it in when zero).
	StatementTimeoutSeconds int `yaml:"statement_timeout_seconds" env:"DB_STATEMENT_TIMEOUT_SECONDS" env-default:"0"`
}

// StatementTimeout returns the per-statement deadline as a duration.
func (c *DatabaseConfig) StatementTimeout() time.Duration {
	return time.Duration(c.StatementTimeoutSeconds) * time.Second
}

// PipelineConfig holds guarded-execution settings.
type PipelineConfig struct {
	// MaxAttempts bounds generate-validate-execute cycles per request.
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS" env-default:"3"`

	// MaxRows caps the number of rows any query may return.
	MaxRows int `yaml:"max_rows" env:"MAX_ROWS" env-default:"1000"`

	// RetryOnSecurityRejection controls whether a rejected statement gets
	// a corrective regeneration attempt (still within MaxAttempts) or
	// fails the request immediately.
	RetryOnSecurityRejection bool `yaml:"retry_on_security_rejection" env:"RETRY_ON_SECURITY_REJECTION" env-default:"true"`

	// PromptBudgetChars bounds the assembled prompt size.
	PromptBudgetChars int `yaml:"prompt_budget_chars" env:"PROMPT_BUDGET_CHARS" env-default:"32000"`
}

// SchemaConfig holds context-loading settings.
type SchemaConfig struct {
	// LogicalNamesPath is an optional two-column CSV mapping physical
	// identifiers to business-friendly names.
	LogicalNamesPath string `yaml:"logical_names_path" env:"LOGICAL_NAMES_PATH" env-default:""`

	// GlossaryPath is an optional business-term glossary file
	// (JSON Lines or YAML).
	GlossaryPath string `yaml:"glossary_path" env:"GLOSSARY_PATH" env-default:""`
}

// HistoryConfig configures the query history store.
type HistoryConfig struct {
	// Path is the SQLite file backing the history store.
	Path string `yaml:"path" env:"HISTORY_PATH" env-default:"data/history.db"`
}

// Backend timeout defaults. Embedded files get a longer allowance since
// there is no connection setup cost to amortize; networked backends get a
// shorter one so a stuck statement does not pin a server connection.
const (
	defaultEmbeddedTimeoutSeconds  = 30
	defaultNetworkedTimeoutSeconds = 10
)

// Load reads configuration from config.yaml with environment variable
// overrides. A missing config.yaml is not an error; env vars and defaults
// apply on their own.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints and fills backend-dependent
// defaults.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("unsupported AI provider: %q", c.AI.Provider)
	}

	if c.AI.Provider != "ollama" && c.AI.APIKey == "" {
		return fmt.Errorf("AI_API_KEY is required for provider %q", c.AI.Provider)
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for sqlite")
		}
		if c.Database.StatementTimeoutSeconds == 0 {
			c.Database.StatementTimeoutSeconds = defaultEmbeddedTimeoutSeconds
		}
	case "postgres", "mssql":
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for %s", c.Database.Type)
		}
		if c.Database.StatementTimeoutSeconds == 0 {
			c.Database.StatementTimeoutSeconds = defaultNetworkedTimeoutSeconds
		}
	default:
		return fmt.Errorf("unsupported database type: %q", c.Database.Type)
	}

	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.MaxRows < 1 {
		return fmt.Errorf("max_rows must be at least 1, got %d", c.Pipeline.MaxRows)
	}
	if c.Pipeline.PromptBudgetChars < 1 {
		return fmt.Errorf("prompt_budget_chars must be positive, got %d", c.Pipeline.PromptBudgetChars)
	}

	return nil
}
