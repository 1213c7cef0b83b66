package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mandi-labs/onboard-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Conversational producer onboarding",
	Long:  "Collects and validates Indian business-registration data over multi-turn exchanges, scores completed profiles for risk, and routes each producer to auto-acceptance or manual verification.",
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
