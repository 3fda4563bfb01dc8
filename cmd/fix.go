package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/a11y-audit/internal/analyzer"
	"github.com/sells-group/a11y-audit/internal/model"
)

var (
	fixIssueID  string
	fixProvider string
	fixModel    string
	fixForce    bool
	fixWrite    bool
)

var fixCmd = &cobra.Command{
	Use:   "fix <file>",
	Short: "Generate and apply a fix for one accessibility finding",
	Long:  "Analyzes the file, picks the requested (or first fix-eligible) finding, asks the provider for a remediation, and applies it when the fix clears the quality gate.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAudit("fix")
		if err != nil {
			return err
		}
		defer env.Close()

		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "fix: read %s", path)
		}
		source := string(data)

		report, err := env.Analyzer.Analyze(ctx, model.AnalysisRequest{
			SourceText: source,
			Filename:   path,
			Provider:   fixProvider,
			ModelHint:  fixModel,
		})
		if err != nil {
			return eris.Wrap(err, "fix: analyze")
		}

		finding, err := selectFinding(report.Findings, fixIssueID, cfg.Validation.ValidThreshold)
		if err != nil {
			return err
		}

		zap.L().Info("fixing finding",
			zap.String("file", path),
			zap.String("issue_id", finding.IssueID),
			zap.String("guideline", finding.Guideline),
		)

		fixReport, err := env.Analyzer.Fix(ctx, analyzer.FixRequest{
			SourceText: source,
			Filename:   path,
			Provider:   fixProvider,
			ModelHint:  fixModel,
			Finding:    finding,
			Force:      fixForce,
		})
		if err != nil {
			return eris.Wrap(err, "fix: remediate")
		}

		if fixReport.Applied && fixWrite {
			if err := writeFixed(path, fixReport); err != nil {
				return err
			}
			zap.L().Info("fix written",
				zap.String("file", path),
				zap.String("backup", path+".bak"),
			)
		}

		env.Analyzer.Costs().Log()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(fixReport)
	},
}

func init() {
	fixCmd.Flags().StringVar(&fixIssueID, "issue", "", "issue ID to fix (default: first fix-eligible finding)")
	fixCmd.Flags().StringVar(&fixProvider, "provider", "anthropic", "LLM provider (openai, anthropic, deepseek, replicate)")
	fixCmd.Flags().StringVar(&fixModel, "model", "", "model hint passed to the provider")
	fixCmd.Flags().BoolVar(&fixForce, "force", false, "apply the fix even below the quality threshold")
	fixCmd.Flags().BoolVar(&fixWrite, "write", false, "write the fixed file in place (original saved as <file>.bak)")
	rootCmd.AddCommand(fixCmd)
}

// selectFinding picks the finding to fix: by issue ID when given,
// otherwise the first finding whose confidence clears the
// fix-eligibility threshold.
func selectFinding(findings []model.Finding, issueID string, threshold float64) (model.Finding, error) {
	if issueID != "" {
		for _, f := range findings {
			if f.IssueID == issueID {
				return f, nil
			}
		}
		return model.Finding{}, eris.Errorf("fix: issue %q not found in analysis results", issueID)
	}

	for _, f := range findings {
		if f.FixEligible(threshold) {
			return f, nil
		}
	}
	return model.Finding{}, eris.New("fix: no fix-eligible findings (try a lower validation.valid_threshold or --issue)")
}

// writeFixed saves the original as <path>.bak, then replaces the file
// with the fixed text.
func writeFixed(path string, report *model.FixReport) error {
	info, err := os.Stat(path)
	if err != nil {
		return eris.Wrapf(err, "fix: stat %s", path)
	}
	mode := info.Mode().Perm()

	if err := os.WriteFile(path+".bak", []byte(report.Backup), mode); err != nil {
		return eris.Wrapf(err, "fix: write backup %s.bak", path)
	}
	if err := os.WriteFile(path, []byte(report.FixedText), mode); err != nil {
		return eris.Wrapf(err, "fix: write %s", path)
	}
	return nil
}
