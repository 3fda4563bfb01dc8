package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/a11y-audit/internal/model"
	"github.com/sells-group/a11y-audit/internal/resilience"
)

var (
	analyzeProvider string
	analyzeModel    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "Analyze source files for accessibility violations",
	Long:  "Sends each file to the selected LLM provider, validates every claimed finding against the real source, and prints the reports as JSON.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAudit("analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		reports := make([]*model.Report, 0, len(args))
		for _, path := range args {
			// One file's failure never aborts the rest of the batch.
			reports = append(reports, analyzeFile(ctx, env, path))

			if ctx.Err() != nil {
				zap.L().Warn("analysis interrupted",
					zap.Int("remaining", len(args)-len(reports)),
				)
				break
			}
		}

		env.Analyzer.Costs().Log()
		formatAnalyzeSummary(os.Stderr, reports)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeProvider, "provider", "anthropic", "LLM provider (openai, anthropic, deepseek, replicate)")
	analyzeCmd.Flags().StringVar(&analyzeModel, "model", "", "model hint passed to the provider")
	rootCmd.AddCommand(analyzeCmd)
}

// analyzeFile runs one file through the analyzer, folding read and
// dispatch errors into a failure-shaped report.
func analyzeFile(ctx context.Context, env *auditEnv, path string) *model.Report {
	data, err := os.ReadFile(path)
	if err != nil {
		zap.L().Error("read file failed", zap.String("file", path), zap.Error(err))
		return failureReport(path, err)
	}

	report, err := env.Analyzer.Analyze(ctx, model.AnalysisRequest{
		SourceText: string(data),
		Filename:   path,
		Provider:   analyzeProvider,
		ModelHint:  analyzeModel,
	})
	if err != nil {
		zap.L().Error("analysis failed", zap.String("file", path), zap.Error(err))
		return failureReport(path, err)
	}
	return report
}

// failureReport shapes an error as a report so batch output stays
// uniform.
func failureReport(path string, err error) *model.Report {
	return &model.Report{
		Filename:  path,
		Provider:  analyzeProvider,
		Model:     analyzeModel,
		Outcome:   model.OutcomeFailure,
		ErrorKind: resilience.Classify(err),
		ErrorMsg:  err.Error(),
	}
}

// formatAnalyzeSummary writes a per-file results table to w.
func formatAnalyzeSummary(out io.Writer, reports []*model.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tOUTCOME\tFINDINGS\tDROPPED\tCOMPLIANCE\tCOST")
	_, _ = fmt.Fprintln(w, "----\t-------\t--------\t-------\t----------\t----")

	var totalFindings int
	var totalCost float64
	for _, r := range reports {
		totalFindings += len(r.Findings)
		totalCost += r.Usage.Cost

		detail := ""
		if r.Outcome == model.OutcomeFailure {
			detail = r.ErrorKind
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t$%.4f\n",
			r.Filename,
			outcomeLabel(r.Outcome, detail),
			len(r.Findings),
			r.Dropped,
			r.Metrics.ComplianceScore,
			r.Usage.Cost,
		)
	}

	_, _ = fmt.Fprintf(w, "TOTAL\t%d files\t%d\t\t\t$%.4f\n", len(reports), totalFindings, totalCost)
	_ = w.Flush()
}

// outcomeLabel renders the outcome column, appending the error kind for
// failures.
func outcomeLabel(outcome model.Outcome, detail string) string {
	if detail == "" {
		return string(outcome)
	}
	return fmt.Sprintf("%s (%s)", outcome, detail)
}
