package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amruthm-ignitec/mtf-backend/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mtf-backend",
	Short: "Medical donor document audit pipeline",
	Long:  "Extracts structured clinical parameters from donor documents via an LLM pipeline, merges them into a master record, evaluates eligibility, and predicts outcomes against the historical anchor corpus.",
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
