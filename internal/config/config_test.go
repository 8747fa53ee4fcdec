package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// loadFromString writes yaml to a temp file and loads it.
func loadFromString(t *testing.T, yaml string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestLoad_Valid(t *testing.T) {
	yaml := `
http:
  port: 9090
storage:
  backend: sqlite
  path: /tmp/assets.db
engine:
  batch_size: 100
  progress_min_delta: 0.05
  progress_min_interval: 250ms
task:
  timer_interval: 500ms
`
	cfg := loadFromString(t, yaml)

	if cfg.HTTP.Port != 9090 {
		t.Errorf("http.port: got %d", cfg.HTTP.Port)
	}
	if cfg.Storage.Path != "/tmp/assets.db" {
		t.Errorf("storage.path: got %q", cfg.Storage.Path)
	}
	if cfg.Engine.BatchSize != 100 {
		t.Errorf("engine.batch_size: got %d", cfg.Engine.BatchSize)
	}
	if cfg.Engine.ProgressMinInterval != 250*time.Millisecond {
		t.Errorf("engine.progress_min_interval: got %v", cfg.Engine.ProgressMinInterval)
	}
	if cfg.Task.TimerInterval != 500*time.Millisecond {
		t.Errorf("task.timer_interval: got %v", cfg.Task.TimerInterval)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "http:\n  port: 8081\n")

	if cfg.Storage.Backend != DefaultStorageBackend {
		t.Errorf("default backend: got %q, want %q", cfg.Storage.Backend, DefaultStorageBackend)
	}
	if cfg.Engine.BatchSize != DefaultBatchSize {
		t.Errorf("default batch_size: got %d, want %d", cfg.Engine.BatchSize, DefaultBatchSize)
	}
	if cfg.Engine.ProgressMinDelta != DefaultProgressMinDelta {
		t.Errorf("default progress_min_delta: got %v, want %v", cfg.Engine.ProgressMinDelta, DefaultProgressMinDelta)
	}
	if cfg.Task.TimerInterval != DefaultTimerInterval {
		t.Errorf("default timer_interval: got %v, want %v", cfg.Task.TimerInterval, DefaultTimerInterval)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"bad port", "http:\n  port: -1\n"},
		{"unknown backend", "storage:\n  backend: oracle\n"},
		{"postgres without dsn_env", "storage:\n  backend: postgres\n"},
		{"zero batch size", "engine:\n  batch_size: 0\n"},
		{"delta above one", "engine:\n  progress_min_delta: 1.5\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.yaml), 0o600); err != nil {
				t.Fatalf("write temp config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("Load: expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load on missing file: expected error, got nil")
	}
}
