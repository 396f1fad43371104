// Package config handles configuration loading for atelier. It supports XDG
// config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/atelier-ai/atelier/internal/orchestrator"
	"github.com/atelier-ai/atelier/internal/tools"
)

// Config holds all configuration for atelier.
type Config struct {
	Anthropic AnthropicConfig        `mapstructure:"anthropic"`
	Defaults  DefaultsConfig         `mapstructure:"defaults"`
	Memory    MemoryConfig           `mapstructure:"memory"`
	Providers []tools.ProviderServer `mapstructure:"providers"`
	Roles     []orchestrator.Role    `mapstructure:"roles"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// DefaultsConfig holds default run settings.
type DefaultsConfig struct {
	// Template is the default decomposition template.
	Template string `mapstructure:"template"`
	// MaxConcurrency bounds the parallel scheduler's pool.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// ItemTimeout is the per-work-item timeout under the parallel scheduler.
	ItemTimeout time.Duration `mapstructure:"item_timeout"`
}

// MemoryConfig holds episodic memory settings.
type MemoryConfig struct {
	// Enabled toggles episode persistence and recall.
	Enabled bool `mapstructure:"enabled"`
	// Path is the episode database location. Empty uses the XDG default.
	Path string `mapstructure:"path"`
	// RecallRecent is how many recent episodes seed the planning prompt.
	RecallRecent int `mapstructure:"recall_recent"`
	// RecallRelevant is how many keyword-relevant episodes to add.
	RecallRelevant int `mapstructure:"recall_relevant"`
}

// Load loads configuration with precedence (highest to lowest):
//  1. Environment variables (ATELIER_*, ANTHROPIC_API_KEY)
//  2. Project config (.atelier.yaml in current directory or a parent)
//  3. User config (~/.config/atelier/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

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

	v.AutomaticEnv()
	v.SetEnvPrefix("ATELIER")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.model", "ATELIER_MODEL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Save writes the scalar configuration values to the user config file.
// Providers and roles are list-valued and edited by hand; Save leaves any
// existing entries for them in place.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("defaults.template", cfg.Defaults.Template)
	v.Set("defaults.max_concurrency", cfg.Defaults.MaxConcurrency)
	v.Set("defaults.item_timeout", cfg.Defaults.ItemTimeout.String())
	v.Set("memory.enabled", cfg.Memory.Enabled)
	v.Set("memory.path", cfg.Memory.Path)
	v.Set("memory.recall_recent", cfg.Memory.RecallRecent)
	v.Set("memory.recall_relevant", cfg.Memory.RecallRelevant)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the project config file path if one exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")

	v.SetDefault("defaults.template", "single")
	v.SetDefault("defaults.max_concurrency", 2)
	v.SetDefault("defaults.item_timeout", "5m")

	v.SetDefault("memory.enabled", true)
	v.SetDefault("memory.path", "")
	v.SetDefault("memory.recall_recent", 3)
	v.SetDefault("memory.recall_relevant", 2)
}

// getUserConfigDir returns the XDG config directory for atelier.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "atelier")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "atelier")
	}
	return filepath.Join(home, ".config", "atelier")
}

// findProjectConfig searches for .atelier.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".atelier.yaml")
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
		Defaults: DefaultsConfig{
			Template:       "single",
			MaxConcurrency: 2,
			ItemTimeout:    5 * time.Minute,
		},
		Memory: MemoryConfig{
			Enabled:        true,
			RecallRecent:   3,
			RecallRelevant: 2,
		},
	}
}
