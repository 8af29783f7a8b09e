// Package cmd implements the dash CLI.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koopa0/dash/internal/app"
	"github.com/koopa0/dash/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "dash",
	Short: "dash - a self-learning SQL data agent",
	Long: `dash answers natural-language questions against a SQL database,
grounding every answer in curated knowledge and in learnings it
discovered from its own past mistakes.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads configuration and wires a full App. Subcommands call it
// inside RunE so flag parsing errors surface before any connection is
// attempted.
func setup(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	return app.Setup(ctx, cfg)
}
