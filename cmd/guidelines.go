package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/a11y-audit/internal/wcag"
)

var (
	guidelinesLevel    string
	guidelinesCategory string
)

var guidelinesCmd = &cobra.Command{
	Use:   "guidelines [id]",
	Short: "List the WCAG success criteria the auditor knows",
	Long:  "Without arguments, lists every registered WCAG 2.2 success criterion. With an ID (e.g. 1.1.1), shows that criterion and the validation patterns behind it.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("guidelines"); err != nil {
			return err
		}

		table := wcag.DefaultPatternTable()
		if cfg.Validation.PatternFile != "" {
			t, err := wcag.LoadPatternTable(cfg.Validation.PatternFile)
			if err != nil {
				return eris.Wrap(err, "guidelines: load pattern table")
			}
			table = t
		}

		if len(args) == 1 {
			g, ok := wcag.Lookup(args[0])
			if !ok {
				return eris.Errorf("guidelines: unknown criterion %q", args[0])
			}
			formatGuidelineDetail(os.Stdout, g, table)
			return nil
		}

		formatGuidelines(os.Stdout, filterGuidelines(wcag.All(), guidelinesLevel, guidelinesCategory))
		return nil
	},
}

func init() {
	guidelinesCmd.Flags().StringVar(&guidelinesLevel, "level", "", "filter by conformance level (A, AA, AAA)")
	guidelinesCmd.Flags().StringVar(&guidelinesCategory, "category", "", "filter by category (perceivable, operable, understandable, robust)")
	rootCmd.AddCommand(guidelinesCmd)
}

// filterGuidelines keeps criteria matching the given level and category;
// empty filters match everything.
func filterGuidelines(all []wcag.Guideline, level, category string) []wcag.Guideline {
	out := make([]wcag.Guideline, 0, len(all))
	for _, g := range all {
		if level != "" && g.Level != level {
			continue
		}
		if category != "" && g.Category != category {
			continue
		}
		out = append(out, g)
	}
	return out
}

// formatGuidelines writes a tabular criterion list to w.
func formatGuidelines(out io.Writer, guidelines []wcag.Guideline) {
	if len(guidelines) == 0 {
		_, _ = fmt.Fprintln(out, "No matching criteria.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLEVEL\tCATEGORY\tNAME")
	_, _ = fmt.Fprintln(w, "--\t-----\t--------\t----")
	for _, g := range guidelines {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.ID, g.Level, g.Category, g.Name)
	}
	_, _ = fmt.Fprintf(w, "\n%d criteria\n", len(guidelines))
	_ = w.Flush()
}

// formatGuidelineDetail writes one criterion with its validation and
// resolution patterns to w.
func formatGuidelineDetail(out io.Writer, g wcag.Guideline, table *wcag.PatternTable) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID:\t%s\n", g.ID)
	_, _ = fmt.Fprintf(w, "Name:\t%s\n", g.Name)
	_, _ = fmt.Fprintf(w, "Level:\t%s\n", g.Level)
	_, _ = fmt.Fprintf(w, "Category:\t%s\n", g.Category)
	_ = w.Flush()

	if pats := table.Presence(g.ID); len(pats) > 0 {
		_, _ = fmt.Fprintln(out, "\nValidation patterns:")
		for _, re := range pats {
			_, _ = fmt.Fprintf(out, "  %s\n", re.String())
		}
	}

	if pats, desc, ok := table.Resolution(g.ID); ok {
		_, _ = fmt.Fprintf(out, "\nResolution (%s):\n", desc)
		for _, re := range pats {
			_, _ = fmt.Fprintf(out, "  %s\n", re.String())
		}
	}
}
