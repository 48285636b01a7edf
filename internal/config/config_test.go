package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("FOCUSGATE_DB", "")
	t.Setenv("FOCUSGATE_LISTEN", "")
	t.Setenv("FOCUSGATE_DEBUG", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Session.ReduceFloorSeconds != 10 {
		t.Errorf("ReduceFloorSeconds = %d, want 10", cfg.Session.ReduceFloorSeconds)
	}
	if cfg.ReduceFloor() != 10*time.Second {
		t.Errorf("ReduceFloor() = %v, want 10s", cfg.ReduceFloor())
	}
	if cfg.Server.ListenAddr != "127.0.0.1:7878" {
		t.Errorf("ListenAddr = %q, want 127.0.0.1:7878", cfg.Server.ListenAddr)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	t.Setenv("FOCUSGATE_DB", "")
	t.Setenv("FOCUSGATE_LISTEN", "")
	t.Setenv("FOCUSGATE_DEBUG", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("session:\n  history_limit: 5\n  default_minutes: 50\nbridge:\n  close_timeout_ms: 250\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Session.HistoryLimit != 5 {
		t.Errorf("HistoryLimit = %d, want 5", cfg.Session.HistoryLimit)
	}
	if cfg.Session.DefaultMinutes != 50 {
		t.Errorf("DefaultMinutes = %d, want 50", cfg.Session.DefaultMinutes)
	}
	if cfg.CloseTimeout() != 250*time.Millisecond {
		t.Errorf("CloseTimeout() = %v, want 250ms", cfg.CloseTimeout())
	}
	// Untouched sections keep their defaults.
	if cfg.Session.ReduceFloorSeconds != 10 {
		t.Errorf("ReduceFloorSeconds = %d, want 10", cfg.Session.ReduceFloorSeconds)
	}
}

func TestReduceFloorMinimum(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{30, 30 * time.Second},
		{10, 10 * time.Second},
		{1, 10 * time.Second},
		{0, 10 * time.Second},
		{-5, 10 * time.Second},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.Session.ReduceFloorSeconds = tt.seconds
		if got := cfg.ReduceFloor(); got != tt.want {
			t.Errorf("ReduceFloor() with %d seconds = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FOCUSGATE_DB", "/tmp/x.db")
	t.Setenv("FOCUSGATE_LISTEN", "127.0.0.1:9999")
	t.Setenv("FOCUSGATE_DEBUG", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Path != "/tmp/x.db" {
		t.Errorf("Store.Path = %q, want /tmp/x.db", cfg.Store.Path)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if !cfg.Log.Debug {
		t.Error("Log.Debug = false, want true")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("session: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want yaml error")
	}
}
