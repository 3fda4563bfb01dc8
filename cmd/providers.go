package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/a11y-audit/internal/config"
	"github.com/sells-group/a11y-audit/pkg/llm"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect and configure LLM providers",
	Long:  "Commands for listing provider configuration and managing API keys in the OS keyring.",
}

// -- providers list --

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers and their configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("providers"); err != nil {
			return err
		}
		formatProviders(os.Stdout, providerRows(cfg))
		return nil
	},
}

// -- providers set-key --

var providersSetKeyCmd = &cobra.Command{
	Use:   "set-key <provider> <key>",
	Short: "Store a provider API key in the OS keyring",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := llm.ParseProvider(args[0])
		if err != nil {
			return err
		}
		if err := config.StoreKey(string(provider), args[1]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Stored %s API key in the keyring.\n", provider)
		return nil
	},
}

// -- providers delete-key --

var providersDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key <provider>",
	Short: "Remove a provider API key from the OS keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := llm.ParseProvider(args[0])
		if err != nil {
			return err
		}
		if err := config.DeleteKey(string(provider)); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Removed %s API key from the keyring.\n", provider)
		return nil
	},
}

func init() {
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersSetKeyCmd)
	providersCmd.AddCommand(providersDeleteKeyCmd)
	rootCmd.AddCommand(providersCmd)
}

// providerRow is one provider's display state.
type providerRow struct {
	Name        string
	Model       string
	HasKey      bool
	PromptLimit int
}

// providerRows resolves each provider's key and configured model for
// display. A zero prompt limit means the adapter default applies.
func providerRows(c *config.Config) []providerRow {
	return []providerRow{
		{
			Name:        "openai",
			Model:       c.OpenAI.Model,
			HasKey:      config.ResolveKey("openai", c.OpenAI.Key) != "",
			PromptLimit: c.OpenAI.PromptLimit,
		},
		{
			Name:        "anthropic",
			Model:       c.Anthropic.Model,
			HasKey:      config.ResolveKey("anthropic", c.Anthropic.Key) != "",
			PromptLimit: c.Anthropic.PromptLimit,
		},
		{
			Name:        "deepseek",
			Model:       c.DeepSeek.Model,
			HasKey:      config.ResolveKey("deepseek", c.DeepSeek.Key) != "",
			PromptLimit: c.DeepSeek.PromptLimit,
		},
		{
			Name:        "replicate",
			Model:       c.Replicate.Version,
			HasKey:      config.ResolveKey("replicate", c.Replicate.Key) != "",
			PromptLimit: c.Replicate.PromptLimit,
		},
	}
}

// formatProviders writes the provider table to w.
func formatProviders(out io.Writer, rows []providerRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tMODEL\tKEY\tPROMPT_LIMIT")
	_, _ = fmt.Fprintln(w, "--------\t-----\t---\t------------")

	for _, r := range rows {
		model := r.Model
		if model == "" {
			model = "(adapter default)"
		}
		key := "missing"
		if r.HasKey {
			key = "configured"
		}
		limit := "(adapter default)"
		if r.PromptLimit > 0 {
			limit = fmt.Sprintf("%d", r.PromptLimit)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, model, key, limit)
	}
	_ = w.Flush()
}
