package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(yaml string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write("http:\n  port: 8081\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	go Watch(ctx, path, func(cfg *Config) { changes <- cfg }) //nolint:errcheck

	// Give the watcher a moment to register the file.
	time.Sleep(50 * time.Millisecond)

	write("http:\n  port: 9090\nengine:\n  batch_size: 100\n")
	select {
	case cfg := <-changes:
		if cfg.HTTP.Port != 9090 {
			t.Errorf("http.port: got %d, want 9090", cfg.HTTP.Port)
		}
		if cfg.Engine.BatchSize != 100 {
			t.Errorf("engine.batch_size: got %d, want 100", cfg.Engine.BatchSize)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onChange not called after valid rewrite")
	}
}

func TestWatch_KeepsPreviousConfigOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(yaml string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	write("http:\n  port: 8081\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	go Watch(ctx, path, func(cfg *Config) { changes <- cfg }) //nolint:errcheck

	time.Sleep(50 * time.Millisecond)

	// Broken YAML, then a value that fails validation: neither may reach
	// onChange.
	write("http:\n  port: [broken\n")
	write("http:\n  port: -1\n")
	select {
	case cfg := <-changes:
		t.Fatalf("onChange called for a bad reload: %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}

	// A later good write still comes through.
	write("http:\n  port: 9191\n")
	select {
	case cfg := <-changes:
		if cfg.HTTP.Port != 9191 {
			t.Errorf("http.port: got %d, want 9191", cfg.HTTP.Port)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onChange not called after recovery")
	}
}

func TestWatch_StopsOnContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 8081\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(*Config) {}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
