package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/amruthm-ignitec/mtf-backend/internal/audit"
	"github.com/amruthm-ignitec/mtf-backend/internal/compliance"
)

var predictThreshold float64

var predictCmd = &cobra.Command{
	Use:   "predict <donor-id>",
	Short: "Predict a donor's outcome from the anchor corpus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		donorID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close()

		predictor, err := initPredictor(st)
		if err != nil {
			return err
		}
		svc := audit.NewService(st, compliance.NewEngine(cfg.Compliance), predictor, nil)

		pred, err := svc.PredictOutcome(ctx, donorID, predictThreshold)
		if err != nil {
			return eris.Wrapf(err, "predict outcome for %s", donorID)
		}

		out, err := json.MarshalIndent(pred, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal prediction")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	predictCmd.Flags().Float64Var(&predictThreshold, "threshold", 0, "similarity threshold (0 uses the configured default)")
	rootCmd.AddCommand(predictCmd)
}
