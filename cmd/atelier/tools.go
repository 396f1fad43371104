package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List registered tools",
	Long: `List the tools available to agents: the builtins plus any tools
discovered from configured provider servers.

Remote tools carry their provider alias as a name prefix, e.g. "idx.search".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		registry, _, err := buildRegistry(ctx, cfg)
		if err != nil {
			return err
		}

		name := color.New(color.FgCyan, color.Bold)
		marker := color.New(color.FgYellow)

		for _, spec := range registry.List() {
			tags := []string{}
			if strings.Contains(spec.Name, ".") {
				tags = append(tags, "remote")
			}
			if spec.Transient {
				tags = append(tags, "transient")
			}
			suffix := ""
			if len(tags) > 0 {
				suffix = " " + marker.Sprintf("(%s)", strings.Join(tags, ", "))
			}
			fmt.Printf("%s%s\n    %s\n", name.Sprint(spec.Name), suffix, spec.Description)
		}

		fmt.Printf("\n%d tools registered\n", registry.Len())
		return nil
	},
}
