package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort            = 8080
	DefaultStorageBackend      = "sqlite"
	DefaultStoragePath         = "assetmanage.db"
	DefaultBatchSize           = 500
	DefaultProgressMinDelta    = 0.01
	DefaultProgressMinInterval = 100 * time.Millisecond
	DefaultTimerInterval       = 250 * time.Millisecond
)

// Config is the top-level service configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
	Task    TaskConfig    `yaml:"task"`
}

// HTTPConfig holds the REST API and WebSocket listener settings.
type HTTPConfig struct {
	// Port is the port the HTTP server (REST API + WebSocket hub) listens on.
	Port int `yaml:"port"`
}

// StorageConfig configures the relational backend holding the configuration
// tables, the asset source table and the result catalog.
type StorageConfig struct {
	// Backend selects the storage implementation: sqlite | postgres.
	Backend string `yaml:"backend"`

	// Path is the filesystem path for the SQLite database file.
	// Used when Backend == "sqlite".
	Path string `yaml:"path"`

	// DSNEnv is the name of the environment variable holding the Postgres
	// connection string. Used when Backend == "postgres".
	DSNEnv string `yaml:"dsn_env"`
}

// DSN returns the Postgres connection string resolved from the environment.
// Returns empty string if DSNEnv is unset or the variable is not found.
func (s StorageConfig) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return os.Getenv(s.DSNEnv)
}

// EngineConfig holds the scoring engine's batching and progress settings.
type EngineConfig struct {
	// BatchSize is the number of assets scored between cancellation checks.
	// It bounds cancellation latency.
	BatchSize int `yaml:"batch_size"`

	// ProgressMinDelta is the minimum fraction advance (0–1) between two
	// progress notifications. Prevents per-asset notification storms on
	// large asset sets.
	ProgressMinDelta float64 `yaml:"progress_min_delta"`

	// ProgressMinInterval is the minimum wall-clock gap between two progress
	// notifications that advance less than ProgressMinDelta.
	ProgressMinInterval time.Duration `yaml:"progress_min_interval"`
}

// TaskConfig holds the background task runner settings.
type TaskConfig struct {
	// TimerInterval controls how often the runner emits elapsed-time ticks
	// while a task is running. Purely cosmetic, independent of engine
	// progress.
	TimerInterval time.Duration `yaml:"timer_interval"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port: DefaultHTTPPort,
		},
		Storage: StorageConfig{
			Backend: DefaultStorageBackend,
			Path:    DefaultStoragePath,
		},
		Engine: EngineConfig{
			BatchSize:           DefaultBatchSize,
			ProgressMinDelta:    DefaultProgressMinDelta,
			ProgressMinInterval: DefaultProgressMinInterval,
		},
		Task: TaskConfig{
			TimerInterval: DefaultTimerInterval,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be in 1–65535")
	}
	switch cfg.Storage.Backend {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	case "postgres":
		if cfg.Storage.DSNEnv == "" {
			return fmt.Errorf("storage.dsn_env is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Engine.BatchSize <= 0 {
		return fmt.Errorf("engine.batch_size must be positive")
	}
	if cfg.Engine.ProgressMinDelta < 0 || cfg.Engine.ProgressMinDelta > 1 {
		return fmt.Errorf("engine.progress_min_delta must be in 0–1")
	}
	if cfg.Engine.ProgressMinInterval < 0 {
		return fmt.Errorf("engine.progress_min_interval must not be negative")
	}
	if cfg.Task.TimerInterval <= 0 {
		return fmt.Errorf("task.timer_interval must be positive")
	}
	return nil
}
