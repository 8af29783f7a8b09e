package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/koopa0/dash/internal/loader"
)

var loadCmd = &cobra.Command{
	Use:   "load [path]",
	Short: "Load curated knowledge files into the knowledge space",
	Long: `load reads curated YAML files describing tables, business rules, and
query patterns, retires any entries they supersede, and appends the new
versions to the knowledge space. Pass a file or a directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	var res *loader.Result
	if info.IsDir() {
		res, err = a.Loader.LoadDir(ctx, path)
	} else {
		res, err = a.Loader.LoadFile(ctx, path)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, f := range res.Files {
		fmt.Fprintf(out, "loaded %s\n", f)
	}
	fmt.Fprintf(out, "%d entries loaded, %d superseded\n", res.Loaded, res.Retired)
	return nil
}
