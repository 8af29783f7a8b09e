// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (DASH_* runtime override)
//  2. Config file (~/.dash/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: generation model, grading model, embedder model and dimension
//   - Storage: PostgreSQL connection for the knowledge spaces
//   - Target: the analytical database dash answers questions against
//   - Retrieval: top-k and search timeout
//   - Recovery: diagnose-fix cycle budget and execution timeout
//
// Error Handling:
//   - Sentinel errors for errors.Is() checks
//   - Wrapped with fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimension indicates the embedder dimension is out of range.
	ErrInvalidEmbedderDimension = errors.New("invalid embedder dimension")

	// ErrInvalidStorageURL indicates the knowledge storage URL is invalid.
	ErrInvalidStorageURL = errors.New("invalid storage URL")

	// ErrInvalidTargetDSN indicates the target database DSN is missing or malformed.
	ErrInvalidTargetDSN = errors.New("invalid target DSN")

	// ErrInvalidTargetDriver indicates an unsupported target database driver.
	ErrInvalidTargetDriver = errors.New("invalid target driver")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidCycleBudget indicates the recovery cycle budget is out of range.
	ErrInvalidCycleBudget = errors.New("invalid recovery cycle budget")
)

// Config holds the complete dash configuration.
type Config struct {
	AI        AIConfig        `mapstructure:"ai"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Target    TargetConfig    `mapstructure:"target"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Recovery  RecoveryConfig  `mapstructure:"recovery"`
	LogLevel  string          `mapstructure:"log_level"`
}

// AIConfig configures the external model capabilities.
type AIConfig struct {
	// Model generates SQL and answers (e.g. "googleai/gemini-2.5-flash").
	Model string `mapstructure:"model"`

	// GraderModel scores eval responses. Defaults to Model when empty.
	GraderModel string `mapstructure:"grader_model"`

	// EmbedderModel produces document and query embeddings.
	EmbedderModel string `mapstructure:"embedder_model"`

	// EmbedderDimension is the fixed output dimension the embedder is
	// configured for. Every stored embedding must have this dimension;
	// dimension 0 marks a failed embedding. Must equal
	// SchemaEmbeddingDimension, the width of the stored vector columns.
	EmbedderDimension int `mapstructure:"embedder_dimension"`

	// GenerateTimeout bounds a single model call.
	GenerateTimeout time.Duration `mapstructure:"generate_timeout"`
}

// StorageConfig configures the PostgreSQL instance holding both
// knowledge spaces.
type StorageConfig struct {
	// URL is a postgres:// connection URL.
	URL string `mapstructure:"url"`
}

// TargetConfig configures the analytical database queried by dash.
// This is the database users ask questions about, not the knowledge store.
type TargetConfig struct {
	// Driver is a database/sql driver name: "pgx" or "sqlite".
	Driver string `mapstructure:"driver"`

	// DSN is the driver-specific connection string.
	DSN string `mapstructure:"dsn"`
}

// RetrievalConfig configures hybrid search behavior.
type RetrievalConfig struct {
	// TopK is the number of results per knowledge space per question.
	TopK int `mapstructure:"top_k"`

	// SearchTimeout bounds a single hybrid search (embedding + queries).
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
}

// RecoveryConfig configures the error-diagnose-fix loop.
type RecoveryConfig struct {
	// MaxCycles is the diagnose-fix cycle budget before giving up.
	MaxCycles int `mapstructure:"max_cycles"`

	// ExecTimeout bounds a single SQL execution against the target.
	ExecTimeout time.Duration `mapstructure:"exec_timeout"`
}

// SchemaEmbeddingDimension is the vector column width declared by the
// knowledge-space migrations (vector(768) in db/migrations). pgvector
// rejects inserts of any other length, so the configured embedder
// dimension must match it exactly.
const SchemaEmbeddingDimension = 768

// Defaults applied when neither file nor environment provides a value.
const (
	defaultModel             = "googleai/gemini-2.5-flash"
	defaultEmbedderModel     = "text-embedding-004"
	defaultEmbedderDimension = SchemaEmbeddingDimension
	defaultTopK              = 5
	defaultMaxCycles         = 2
	defaultSearchTimeout     = 10 * time.Second
	defaultGenerateTimeout   = 60 * time.Second
	defaultExecTimeout       = 30 * time.Second
)

// Load reads configuration from file and environment.
//
// The config file is optional; defaults plus environment variables are
// enough for a working setup. File location: ~/.dash/config.yaml, or
// $DASH_CONFIG_DIR/config.yaml when set.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dir, err := configDir()
	if err != nil {
		return nil, fmt.Errorf("resolving config directory: %w", err)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Missing file is fine; defaults + env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.AI.GraderModel == "" {
		cfg.AI.GraderModel = cfg.AI.Model
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ai.model", defaultModel)
	v.SetDefault("ai.embedder_model", defaultEmbedderModel)
	v.SetDefault("ai.embedder_dimension", defaultEmbedderDimension)
	v.SetDefault("ai.generate_timeout", defaultGenerateTimeout)
	v.SetDefault("retrieval.top_k", defaultTopK)
	v.SetDefault("retrieval.search_timeout", defaultSearchTimeout)
	v.SetDefault("recovery.max_cycles", defaultMaxCycles)
	v.SetDefault("recovery.exec_timeout", defaultExecTimeout)
	v.SetDefault("target.driver", "sqlite")
	v.SetDefault("log_level", "info")
}

// configDir returns the dash configuration directory, creating it if needed.
func configDir() (string, error) {
	if dir := os.Getenv("DASH_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}

	dir := filepath.Join(home, ".dash")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.AI.Model == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidModelName)
	}
	if c.AI.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}
	if c.AI.EmbedderDimension != SchemaEmbeddingDimension {
		return fmt.Errorf("%w: dimension %d does not match the vector(%d) storage schema",
			ErrInvalidEmbedderDimension, c.AI.EmbedderDimension, SchemaEmbeddingDimension)
	}
	if c.AI.GenerateTimeout <= 0 {
		return fmt.Errorf("%w: generate_timeout must be positive", ErrInvalidTimeout)
	}

	if c.Storage.URL != "" &&
		!strings.HasPrefix(c.Storage.URL, "postgres://") &&
		!strings.HasPrefix(c.Storage.URL, "postgresql://") {
		return fmt.Errorf("%w: expected postgres:// URL", ErrInvalidStorageURL)
	}

	switch c.Target.Driver {
	case "pgx", "sqlite":
	default:
		return fmt.Errorf("%w: %q (expected pgx or sqlite)", ErrInvalidTargetDriver, c.Target.Driver)
	}

	if c.Retrieval.TopK < 1 || c.Retrieval.TopK > 50 {
		return fmt.Errorf("%w: %d not in [1, 50]", ErrInvalidTopK, c.Retrieval.TopK)
	}
	if c.Retrieval.SearchTimeout <= 0 {
		return fmt.Errorf("%w: search_timeout must be positive", ErrInvalidTimeout)
	}

	if c.Recovery.MaxCycles < 1 || c.Recovery.MaxCycles > 5 {
		return fmt.Errorf("%w: %d not in [1, 5]", ErrInvalidCycleBudget, c.Recovery.MaxCycles)
	}
	if c.Recovery.ExecTimeout <= 0 {
		return fmt.Errorf("%w: exec_timeout must be positive", ErrInvalidTimeout)
	}

	return nil
}
