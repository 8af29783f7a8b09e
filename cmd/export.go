package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	exportTitle string
	exportSheet string
)

var exportCmd = &cobra.Command{
	Use:   "export [query]",
	Short: "Run a read-only query and export the result to Excel",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportTitle, "title", "", "title block written above the data")
	exportCmd.Flags().StringVar(&exportSheet, "sheet", "", "worksheet name (default Data)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	query := strings.Join(args, " ")
	path, err := a.Exporter.Export(ctx, query, exportTitle, exportSheet)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
