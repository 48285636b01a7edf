package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type SessionConfig struct {
	ReduceFloorSeconds int  `yaml:"reduce_floor_seconds"`
	HistoryLimit       int  `yaml:"history_limit"`
	DefaultMinutes     int  `yaml:"default_minutes"`
	NotifyOnComplete   bool `yaml:"notify_on_complete"`
}

type ScheduleConfig struct {
	WeeklyCheckHours int `yaml:"weekly_check_hours"`
}

type BridgeConfig struct {
	CloseTimeoutMs int `yaml:"close_timeout_ms"`
}

type LogConfig struct {
	Debug bool `yaml:"debug"`
}

type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Log      LogConfig      `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path: filepath.Join(configDir(), "focusgate.db"),
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:7878",
		},
		Session: SessionConfig{
			ReduceFloorSeconds: 10,
			HistoryLimit:       100,
			DefaultMinutes:     25,
			NotifyOnComplete:   true,
		},
		Schedule: ScheduleConfig{
			WeeklyCheckHours: 24,
		},
		Bridge: BridgeConfig{
			CloseTimeoutMs: 2000,
		},
	}
}

func configDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "focusgate")
}

func DefaultPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// Load reads the YAML file at path over the defaults, then applies
// FOCUSGATE_* environment overrides (a .env file in the working directory
// is honoured when present).
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FOCUSGATE_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("FOCUSGATE_LISTEN"); v != "" {
		c.Server.ListenAddr = v
	}
	if os.Getenv("FOCUSGATE_DEBUG") == "1" {
		c.Log.Debug = true
	}
}

// MinReduceFloorSeconds is the least time a reduced session keeps
const MinReduceFloorSeconds = 10

// ReduceFloor returns the configured floor, never below MinReduceFloorSeconds
func (c *Config) ReduceFloor() time.Duration {
	secs := c.Session.ReduceFloorSeconds
	if secs < MinReduceFloorSeconds {
		secs = MinReduceFloorSeconds
	}
	return time.Duration(secs) * time.Second
}

func (c *Config) WeeklyCheckInterval() time.Duration {
	return time.Duration(c.Schedule.WeeklyCheckHours) * time.Hour
}

func (c *Config) CloseTimeout() time.Duration {
	return time.Duration(c.Bridge.CloseTimeoutMs) * time.Millisecond
}
