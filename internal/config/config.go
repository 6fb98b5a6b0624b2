// Package config handles configuration loading for quorum.
// It supports XDG config paths, project-level overrides, environment
// variables, and hot reload of the active config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for quorum.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Claim     ClaimConfig     `mapstructure:"claim"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Events    EventsConfig    `mapstructure:"events"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DBConfig holds persistence settings.
type DBConfig struct {
	// Path is the sqlite database file. The literal value "memory" keeps
	// all state in process memory.
	Path string `mapstructure:"path"`
}

// SchedulerConfig holds auto-assignment settings.
type SchedulerConfig struct {
	MaxTasksPerAgent int `mapstructure:"max_tasks_per_agent"`
}

// ClaimConfig holds claim settings.
type ClaimConfig struct {
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// ConsensusConfig holds consensus builder settings.
type ConsensusConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	// Comparator selects the conclusion similarity strategy: "exact" or
	// "token".
	Comparator string `mapstructure:"comparator"`
}

// RegistryConfig holds agent registry settings.
type RegistryConfig struct {
	// StaleHorizon is how long since last_seen an agent stays schedulable.
	// Zero disables staleness checks.
	StaleHorizon time.Duration `mapstructure:"stale_horizon"`
}

// EventsConfig holds event stream settings.
type EventsConfig struct {
	Buffer int `mapstructure:"buffer"`
}

// LogConfig holds debug logging settings.
type LogConfig struct {
	// DebugPath is the debug log file; empty disables debug logging.
	DebugPath string `mapstructure:"debug_path"`
}

// Load loads configuration with the following precedence (highest first):
// 1. Environment variables (QUORUM_*)
// 2. Project config (.quorum.yaml in current directory or a parent)
// 3. User config (~/.config/quorum/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	return load("")
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(getUserConfigDir())
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("reading user config: %w", err)
			}
		}

		if projectConfig := findProjectConfig(); projectConfig != "" {
			projectViper := viper.New()
			projectViper.SetConfigFile(projectConfig)
			if err := projectViper.ReadInConfig(); err == nil {
				if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
					return nil, fmt.Errorf("merging project config: %w", err)
				}
			}
		}
	}

	v.SetEnvPrefix("QUORUM")
	v.AutomaticEnv()
	v.BindEnv("server.addr", "QUORUM_SERVER_ADDR")
	v.BindEnv("db.path", "QUORUM_DB_PATH")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Watch reloads the config file at path whenever it changes and calls
// onChange with the fresh config. Reload errors leave the previous config
// in effect and are reported through onError (which may be nil).
func Watch(path string, onChange func(*Config), onError func(error)) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config from %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reloading config after %s: %w", e.Op, err))
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("db.path", "")
	v.SetDefault("scheduler.max_tasks_per_agent", 3)
	v.SetDefault("claim.lock_timeout", "2s")
	v.SetDefault("consensus.threshold", 0.7)
	v.SetDefault("consensus.comparator", "exact")
	v.SetDefault("registry.stale_horizon", "0s")
	v.SetDefault("events.buffer", 128)
	v.SetDefault("log.debug_path", "")
}

// getUserConfigDir returns the XDG config directory for quorum.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "quorum")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "quorum")
	}
	return filepath.Join(home, ".config", "quorum")
}

// findProjectConfig searches for .quorum.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".quorum.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Addr: ":8080"},
		DB:        DBConfig{Path: ""},
		Scheduler: SchedulerConfig{MaxTasksPerAgent: 3},
		Claim:     ClaimConfig{LockTimeout: 2 * time.Second},
		Consensus: ConsensusConfig{Threshold: 0.7, Comparator: "exact"},
		Registry:  RegistryConfig{StaleHorizon: 0},
		Events:    EventsConfig{Buffer: 128},
		Log:       LogConfig{DebugPath: ""},
	}
}
