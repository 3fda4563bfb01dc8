package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/a11y-audit/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "a11y-audit",
	Short: "LLM-driven accessibility auditing for infotainment code",
	Long:  "Analyzes source files for WCAG 2.2 violations via LLM providers, verifies every claimed finding against the real source, and applies quality-gated fixes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
