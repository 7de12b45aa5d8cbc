package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amruthm-ignitec/mtf-backend/internal/audit"
	"github.com/amruthm-ignitec/mtf-backend/internal/compliance"
	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

var approveOutcome string

var approveCmd = &cobra.Command{
	Use:   "approve <donor-id>",
	Short: "Record a manual outcome decision for a donor",
	Long:  "Stores the human decision as ground truth in the anchor corpus. A prior predicted entry for the donor is superseded but kept for audit.",
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

		a, err := svc.RecordManualOutcome(ctx, donorID, model.Outcome(approveOutcome))
		if err != nil {
			return eris.Wrapf(err, "record outcome for %s", donorID)
		}

		zap.L().Info("outcome recorded",
			zap.String("donor_id", donorID),
			zap.String("outcome", string(a.Outcome)),
			zap.String("anchor_id", a.ID))
		return nil
	},
}

func init() {
	approveCmd.Flags().StringVar(&approveOutcome, "outcome", "", "accepted or rejected (required)")
	_ = approveCmd.MarkFlagRequired("outcome")
	rootCmd.AddCommand(approveCmd)
}
