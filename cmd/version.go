package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "dash %s\n", AppVersion)
	fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)

	// Check API key from environment (never print the full value)
	key := os.Getenv("GEMINI_API_KEY")
	if key != "" && len(key) > 8 {
		fmt.Fprintf(out, "GEMINI_API_KEY: %s...%s (configured)\n", key[:4], key[len(key)-4:])
	} else if key != "" {
		fmt.Fprintln(out, "GEMINI_API_KEY: configured")
	} else {
		fmt.Fprintln(out, "GEMINI_API_KEY: not set")
		fmt.Fprintln(out, "Hint: export GEMINI_API_KEY=your-api-key")
	}
	return nil
}
