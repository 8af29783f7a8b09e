package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koopa0/dash/internal/target"
)

var askShowSQL bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the target database",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askShowSQL, "sql", false, "print the executed SQL")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	question := strings.Join(args, " ")
	answer, err := a.Pipeline.Ask(ctx, question)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), answer.Text)

	if askShowSQL && answer.SQL != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\nSQL: %s\n", answer.SQL)
	}
	if answer.Recovered {
		fmt.Fprintln(cmd.OutOrStdout(), "\n(recovered from a failed query)")
	}
	for _, w := range answer.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	if answer.Result != nil && !answer.Result.Empty() {
		printResult(cmd, answer.Result)
	}
	return nil
}

// printResult renders a result set as an aligned text table, truncating
// long output so terminal sessions stay readable.
func printResult(cmd *cobra.Command, rs *target.ResultSet) {
	const maxPrintRows = 50
	out := cmd.OutOrStdout()

	widths := make([]int, len(rs.Columns))
	for i, col := range rs.Columns {
		widths[i] = len(col)
	}
	rows := rs.Rows
	truncated := 0
	if len(rows) > maxPrintRows {
		truncated = len(rows) - maxPrintRows
		rows = rows[:maxPrintRows]
	}
	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			s := formatCell(v)
			cells[i][j] = s
			if j < len(widths) && len(s) > widths[j] {
				widths[j] = len(s)
			}
		}
	}

	fmt.Fprintln(out)
	for i, col := range rs.Columns {
		fmt.Fprintf(out, "%-*s  ", widths[i], col)
	}
	fmt.Fprintln(out)
	for i := range rs.Columns {
		fmt.Fprintf(out, "%s  ", strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(out)
	for _, row := range cells {
		for j, s := range row {
			fmt.Fprintf(out, "%-*s  ", widths[j], s)
		}
		fmt.Fprintln(out)
	}
	if truncated > 0 {
		fmt.Fprintf(out, "... %d more rows\n", truncated)
	}
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}
