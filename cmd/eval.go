package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/koopa0/dash/internal/eval"
)

var (
	evalCategory string
	evalModes    []string
	evalVerbose  bool
	evalReport   string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run the evaluation battery against the full pipeline",
	Long: `eval runs the fixed TPC-H test battery through the pipeline and
scores responses using the selected modes. Exit status is non-zero if
any case fails under the selected modes.`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalCategory, "category", "", "run only one category (basic, aggregation, data_quality, complex, edge_case)")
	evalCmd.Flags().StringSliceVar(&evalModes, "modes", []string{"string_match"}, "scoring modes: string_match, llm_grade, golden_compare")
	evalCmd.Flags().BoolVarP(&evalVerbose, "verbose", "v", false, "print failing responses")
	evalCmd.Flags().StringVar(&evalReport, "report", "", "write the JSON report to this file")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	modes, err := eval.ParseModes(evalModes)
	if err != nil {
		return err
	}
	cases := eval.FilterCategory(eval.Battery(), evalCategory)
	if len(cases) == 0 {
		return fmt.Errorf("unknown category %q", evalCategory)
	}

	ctx := cmd.Context()
	a, cleanup, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := a.Eval.Run(ctx, cases, modes)
	if err != nil {
		return err
	}

	printReport(cmd, report)

	if evalReport != "" {
		f, err := os.Create(evalReport)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		if err := report.WriteJSON(f); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}

	if report.Failed() {
		return fmt.Errorf("%d of %d cases failed",
			report.Overall.Total-report.Overall.Passed, report.Overall.Total)
	}
	return nil
}

func printReport(cmd *cobra.Command, report *eval.Report) {
	out := cmd.OutOrStdout()

	for _, cr := range report.Cases {
		status := "PASS"
		if !cr.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(out, "[%s] %-12s %s\n", status, cr.Category, cr.Question)
		if cr.Passed && !evalVerbose {
			continue
		}
		if cr.Error != "" {
			fmt.Fprintf(out, "       error: %s\n", cr.Error)
		}
		for _, mr := range cr.Modes {
			switch {
			case mr.Skipped:
				fmt.Fprintf(out, "       %s: skipped (%s)\n", mr.Mode, mr.Detail)
			case mr.Detail != "":
				fmt.Fprintf(out, "       %s: passed=%v score=%.2f %s\n", mr.Mode, mr.Passed, mr.Score, mr.Detail)
			default:
				fmt.Fprintf(out, "       %s: passed=%v score=%.2f\n", mr.Mode, mr.Passed, mr.Score)
			}
		}
		if !cr.Passed && evalVerbose && cr.Response != "" {
			fmt.Fprintf(out, "       response: %s\n", cr.Response)
		}
	}

	categories := make([]string, 0, len(report.Categories))
	for cat := range report.Categories {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	fmt.Fprintln(out)
	for _, cat := range categories {
		tally := report.Categories[cat]
		fmt.Fprintf(out, "%-12s %d/%d\n", cat, tally.Passed, tally.Total)
	}
	fmt.Fprintf(out, "%-12s %d/%d\n", "overall", report.Overall.Passed, report.Overall.Total)
}
