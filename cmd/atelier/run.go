package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atelier-ai/atelier/internal/agent"
	"github.com/atelier-ai/atelier/pkg/models"
)

var (
	runRole       string
	runNoMemory   bool
	runMaxReplans int
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Run a single goal through the agent loop",
	Long: `Run a natural-language goal through the plan, execute, observe,
replan, compose loop.

The agent plans the goal into tool steps, validates the plan against the
registered tools, executes steps in dependency order, replans at most once
around a hard tool failure, and composes a final answer from the recorded
observations. When no tool plan survives, the agent answers directly and the
run completes with a degraded status.

Role selection (--role):
  - generalist: balanced planning (default)
  - researcher: favors information-gathering tools
  - reviewer:   favors critique over new tool calls

Past episodes are recalled from local memory to inform planning unless
--no-memory is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

func init() {
	runCmd.Flags().StringVar(&runRole, "role", "", "Role configuration to run under")
	runCmd.Flags().BoolVar(&runNoMemory, "no-memory", false, "Disable episodic memory for this run")
	runCmd.Flags().IntVar(&runMaxReplans, "max-replans", 0, "Override the replan budget (default 1)")
}

func runGoal(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if runNoMemory {
		cfg.Memory.Enabled = false
	}

	roles := buildRoleRegistry(cfg)
	role, err := roles.Resolve(runRole)
	if err != nil {
		return err
	}
	if runMaxReplans > 0 {
		role.MaxReplans = runMaxReplans
	}

	registry, providerClient, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	debugf("registry ready with %d tools", registry.Len())

	if watcher := watchProviders(ctx, registry, providerClient); watcher != nil {
		defer watcher.Close()
	}

	store := openMemory(cfg)
	if store != nil {
		defer store.Close()
	}

	gen, err := newGenerator(cfg, role.Model)
	if err != nil {
		return err
	}

	a := agent.New(gen, registry, agentOptions(cfg, role, store)...)
	debugf("agent %s running as %s", a.ID(), role.Name)

	result := a.Run(ctx, goal)

	fmt.Println(result.FinalAnswer)
	if result.Status == models.ResultDegraded {
		fmt.Fprintln(os.Stderr, "Note: completed via fallback; some planned actions did not run.")
	}

	in, out := gen.Tracker().Total()
	debugf("tokens: %d in, %d out over %d calls", in, out, gen.Tracker().Calls())
	return nil
}
