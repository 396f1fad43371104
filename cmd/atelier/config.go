package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify atelier configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/atelier/config.yaml
Project-specific overrides can be placed in .atelier.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	// Mask API key if set
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("defaults.template: %s\n", cfg.Defaults.Template)
	fmt.Printf("defaults.max_concurrency: %d\n", cfg.Defaults.MaxConcurrency)
	fmt.Printf("defaults.item_timeout: %s\n", cfg.Defaults.ItemTimeout)
	fmt.Printf("memory.enabled: %t\n", cfg.Memory.Enabled)
	fmt.Printf("memory.path: %s\n", cfg.Memory.Path)
	fmt.Printf("memory.recall_recent: %d\n", cfg.Memory.RecallRecent)
	fmt.Printf("memory.recall_relevant: %d\n", cfg.Memory.RecallRelevant)
	for _, p := range cfg.Providers {
		fmt.Printf("provider %s: %s (timeout %dms)\n", p.Alias, p.Endpoint, p.TimeoutMS)
	}
	for _, r := range cfg.Roles {
		fmt.Printf("role %s: %s\n", r.Name, r.InstructionPrefix)
	}
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey == "" {
			return "(not set)", nil
		}
		return "****", nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "defaults.template":
		return cfg.Defaults.Template, nil
	case "defaults.max_concurrency":
		return strconv.Itoa(cfg.Defaults.MaxConcurrency), nil
	case "defaults.item_timeout":
		return cfg.Defaults.ItemTimeout.String(), nil
	case "memory.enabled":
		return strconv.FormatBool(cfg.Memory.Enabled), nil
	case "memory.path":
		return cfg.Memory.Path, nil
	case "memory.recall_recent":
		return strconv.Itoa(cfg.Memory.RecallRecent), nil
	case "memory.recall_relevant":
		return strconv.Itoa(cfg.Memory.RecallRelevant), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "defaults.template":
		cfg.Defaults.Template = value
	case "defaults.max_concurrency":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_concurrency: %w", err)
		}
		cfg.Defaults.MaxConcurrency = n
	case "defaults.item_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for item_timeout: %w", err)
		}
		cfg.Defaults.ItemTimeout = d
	case "memory.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for memory.enabled: %w", err)
		}
		cfg.Memory.Enabled = b
	case "memory.path":
		cfg.Memory.Path = value
	case "memory.recall_recent":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for recall_recent: %w", err)
		}
		cfg.Memory.RecallRecent = n
	case "memory.recall_relevant":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for recall_relevant: %w", err)
		}
		cfg.Memory.RecallRelevant = n
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
