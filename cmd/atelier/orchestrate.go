package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/atelier-ai/atelier/internal/agent"
	"github.com/atelier-ai/atelier/internal/config"
	"github.com/atelier-ai/atelier/internal/orchestrator"
	"github.com/atelier-ai/atelier/pkg/models"
)

var (
	orchTemplate       string
	orchItemsFile      string
	orchParallel       bool
	orchMaxConcurrency int
	orchItemTimeout    time.Duration
	orchTrace          bool
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate [goal]",
	Short: "Run a goal across multiple role-configured agents",
	Long: `Orchestrate a goal across multiple agents and merge their answers.

Work items come from a decomposition template applied to the goal, or from a
work-items file (--items). Each item is routed to an agent configured by its
assigned role; results from items an item depends on are passed into its goal
as context.

Templates (--template):
  - single:              one generalist item (default)
  - design_review:       design, then a reviewer critiques the design
  - draft_review_revise: draft, review, then revise with both in hand

Items run sequentially in dependency waves by default. With --parallel a
bounded worker pool runs independent items concurrently under a per-item
timeout; dependent items are rejected in that mode.`,
	RunE: runOrchestrate,
}

func init() {
	orchestrateCmd.Flags().StringVar(&orchTemplate, "template", "", "Decomposition template to apply to the goal")
	orchestrateCmd.Flags().StringVar(&orchItemsFile, "items", "", "YAML file of work items (overrides --template)")
	orchestrateCmd.Flags().BoolVar(&orchParallel, "parallel", false, "Run independent items concurrently")
	orchestrateCmd.Flags().IntVar(&orchMaxConcurrency, "max-concurrency", 0, "Worker pool size under --parallel")
	orchestrateCmd.Flags().DurationVar(&orchItemTimeout, "item-timeout", 0, "Per-item timeout under --parallel")
	orchestrateCmd.Flags().BoolVar(&orchTrace, "trace", false, "Print trace events to stderr")
}

func runOrchestrate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	items, err := resolveWorkItems(cfg, args)
	if err != nil {
		return err
	}

	registry, providerClient, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	if watcher := watchProviders(ctx, registry, providerClient); watcher != nil {
		defer watcher.Close()
	}

	store := openMemory(cfg)
	if store != nil {
		defer store.Close()
	}

	factory := func(role orchestrator.Role) (orchestrator.GoalRunner, error) {
		gen, err := newGenerator(cfg, role.Model)
		if err != nil {
			return nil, err
		}
		return agent.New(gen, registry, agentOptions(cfg, role, store)...), nil
	}

	opts := []orchestrator.Option{
		orchestrator.WithRoles(buildRoleRegistry(cfg)),
	}
	if orchParallel {
		concurrency := orchMaxConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Defaults.MaxConcurrency
		}
		timeout := orchItemTimeout
		if timeout <= 0 {
			timeout = cfg.Defaults.ItemTimeout
		}
		opts = append(opts, orchestrator.WithScheduler(orchestrator.NewPoolScheduler(concurrency, timeout)))
	}

	if rootDebugLog != "" {
		logger, err := orchestrator.NewDebugLogger(rootDebugLog)
		if err != nil {
			return fmt.Errorf("opening debug log: %w", err)
		}
		defer logger.Close()
		opts = append(opts, orchestrator.WithDebugLogger(logger))
	}

	var emitter *orchestrator.EventEmitter
	traceDone := make(chan struct{})
	if orchTrace {
		emitter = orchestrator.NewEventEmitter(64)
		opts = append(opts, orchestrator.WithEmitter(emitter))
		go func() {
			defer close(traceDone)
			for ev := range emitter.Events() {
				fmt.Fprintf(os.Stderr, "[%s] %-16s %s %s\n",
					ev.Timestamp.Format("15:04:05.000"), ev.Type, ev.WorkItemID, ev.Message)
			}
		}()
	}

	orch := orchestrator.New(factory, opts...)
	if err := orch.Submit(items...); err != nil {
		return err
	}

	answer, err := orch.Run(ctx)
	if emitter != nil {
		emitter.Close()
		<-traceDone
	}
	if err != nil {
		return err
	}

	fmt.Println(answer)
	return nil
}

// resolveWorkItems builds the work queue from --items, or from the template
// applied to the goal arguments.
func resolveWorkItems(cfg *config.Config, args []string) ([]models.WorkItem, error) {
	if orchItemsFile != "" {
		return loadWorkItems(orchItemsFile)
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("a goal argument or --items file is required")
	}
	goal := strings.Join(args, " ")

	template := orchTemplate
	if template == "" {
		template = cfg.Defaults.Template
	}
	return orchestrator.Decompose(template, goal)
}

// workItemsFile is the on-disk shape of a work-items file.
type workItemsFile struct {
	Items []models.WorkItem `yaml:"items"`
}

// loadWorkItems reads work items from a YAML file. Accepts either a top-level
// "items:" list or a bare list of items.
func loadWorkItems(path string) ([]models.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading work items from %s: %w", path, err)
	}

	var file workItemsFile
	if err := yaml.Unmarshal(data, &file); err == nil && len(file.Items) > 0 {
		return file.Items, nil
	}

	var bare []models.WorkItem
	if err := yaml.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("parsing work items from %s: %w", path, err)
	}
	if len(bare) == 0 {
		return nil, fmt.Errorf("no work items found in %s", path)
	}
	return bare, nil
}
