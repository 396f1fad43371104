package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/atelier-ai/atelier/internal/agent"
	"github.com/atelier-ai/atelier/internal/config"
	"github.com/atelier-ai/atelier/internal/llm"
	"github.com/atelier-ai/atelier/internal/memory"
	"github.com/atelier-ai/atelier/internal/orchestrator"
	"github.com/atelier-ai/atelier/internal/tools"
)

// loadConfig loads configuration, honoring the --config flag.
func loadConfig() (*config.Config, error) {
	if rootConfigPath != "" {
		return config.LoadFromPath(rootConfigPath)
	}
	return config.Load()
}

// debugf writes to stderr when ATELIER_DEBUG is set.
func debugf(format string, args ...any) {
	if os.Getenv("ATELIER_DEBUG") != "" {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// buildRegistry creates a tool registry with the builtins and any tools
// discovered from configured provider servers. Unreachable providers are
// skipped so a dead endpoint never blocks a run.
func buildRegistry(ctx context.Context, cfg *config.Config) (*tools.Registry, *tools.ProviderClient, error) {
	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, http.DefaultClient); err != nil {
		return nil, nil, fmt.Errorf("registering builtin tools: %w", err)
	}

	client := tools.NewProviderClient(http.DefaultClient)
	if len(cfg.Providers) > 0 {
		if err := tools.DiscoverProviders(ctx, registry, client, cfg.Providers, debugf); err != nil {
			return nil, nil, fmt.Errorf("discovering provider tools: %w", err)
		}
	}
	return registry, client, nil
}

// watchProviders re-discovers provider tools whenever the project config file
// changes. Returns nil when there is nothing to watch.
func watchProviders(ctx context.Context, registry *tools.Registry, client *tools.ProviderClient) *tools.ConfigWatcher {
	projectConfig := config.GetProjectConfigPath()
	if projectConfig == "" {
		return nil
	}

	reload := func() error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		for _, server := range cfg.Providers {
			if err := tools.RefreshProvider(ctx, registry, client, server, debugf); err != nil {
				debugf("refresh provider %s: %v", server.Alias, err)
			}
		}
		return nil
	}

	watcher, err := tools.WatchProviderConfig(projectConfig, reload, debugf)
	if err != nil {
		debugf("provider config watch unavailable: %v", err)
		return nil
	}
	return watcher
}

// buildRoleRegistry merges configured roles over the defaults.
func buildRoleRegistry(cfg *config.Config) *orchestrator.RoleRegistry {
	return orchestrator.NewRoleRegistry(append(orchestrator.DefaultRoles(), cfg.Roles...)...)
}

// openMemory opens the episode store when memory is enabled. Returns nil when
// memory is disabled; a store open failure degrades to memoryless operation
// rather than aborting the run.
func openMemory(cfg *config.Config) *memory.Store {
	if !cfg.Memory.Enabled {
		return nil
	}
	path := cfg.Memory.Path
	if path == "" {
		path = memory.DefaultPath()
	}
	store, err := memory.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: episodic memory unavailable: %v\n", err)
		return nil
	}
	if err := store.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: episodic memory unavailable: %v\n", err)
		store.Close()
		return nil
	}
	return store
}

// agentOptions assembles the per-role agent configuration.
func agentOptions(cfg *config.Config, role orchestrator.Role, store *memory.Store) []agent.Option {
	opts := []agent.Option{
		agent.WithLogf(debugf),
	}
	if role.InstructionPrefix != "" {
		opts = append(opts, agent.WithInstructionPrefix(role.InstructionPrefix))
	}
	if role.MaxReplans > 0 {
		opts = append(opts, agent.WithMaxReplans(role.MaxReplans))
	}
	if store != nil {
		opts = append(opts, agent.WithEpisodeSink(store))
		opts = append(opts, agent.WithRecall(func(goal string) string {
			episodes, err := store.Recall(goal, cfg.Memory.RecallRecent, cfg.Memory.RecallRelevant)
			if err != nil {
				debugf("memory recall failed: %v", err)
				return ""
			}
			return memory.RenderContext(episodes)
		}))
	}
	return opts
}

// newGenerator creates a model client, preferring the role model override.
func newGenerator(cfg *config.Config, roleModel string) (*llm.Client, error) {
	model := cfg.Anthropic.Model
	if roleModel != "" {
		model = roleModel
	}
	return llm.NewClient(llm.ClientConfig{
		Model:  anthropic.Model(model),
		APIKey: cfg.Anthropic.APIKey,
	})
}
