package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/moolen/bdcraft/internal/config"
	"github.com/moolen/bdcraft/internal/kernel"
	"github.com/spf13/cobra"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Print the activation order of the configured components",
	Long: `Resolve the dependency graph of the components declared in the config file
and print the order they would be activated in. Fails on a dependency cycle.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		if err := setupLog(cfg, logLevelFlags, cmd.Flags().Changed("log-level")); err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		return printOrder(cmd.OutOrStdout(), cfg)
	},
}

func printOrder(w io.Writer, cfg *config.Config) error {
	k, err := kernel.New(kernel.Config{
		SweepInterval:       cfg.SweepInterval,
		MinComponentVersion: cfg.MinComponentVersion,
	})
	if err != nil {
		return err
	}
	defer k.Stop(context.Background())

	if err := registerComponents(k, nil, cfg); err != nil {
		return err
	}
	if err := k.Manager().Initialize(); err != nil {
		return err
	}

	for i, name := range k.Manager().Order() {
		c, _ := k.Manager().Component(name)
		deps := c.Dependencies()
		if len(deps) == 0 {
			fmt.Fprintf(w, "%d. %s\n", i+1, name)
			continue
		}
		fmt.Fprintf(w, "%d. %s (after %s)\n", i+1, name, strings.Join(deps, ", "))
	}
	return nil
}
