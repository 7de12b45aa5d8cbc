package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

var (
	processDonorID string
	processTimeout time.Duration
)

var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "Ingest donor documents and run the audit pipeline",
	Long:  "Stages each file's extracted text, queues it for chunked extraction, and waits for the donor's merge, compliance, and prediction cycle to finish.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.close()

		for _, path := range args {
			text, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read %s", path)
			}
			docID, err := e.service.IngestDocument(ctx, processDonorID, filepath.Base(path))
			if err != nil {
				return eris.Wrapf(err, "ingest %s", path)
			}
			if err := e.blobs.Put(ctx, docID, text); err != nil {
				return eris.Wrapf(err, "stage %s", path)
			}
		}

		e.coordinator.Start(ctx)
		defer e.coordinator.Stop()

		donor, err := waitForDone(cmd, e, processDonorID, processTimeout)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(map[string]any{
			"donor_id":           donor.ID,
			"eligibility_status": donor.EligibilityStatus,
			"flags":              donor.Flags,
			"master_record":      donor.MasterRecord,
		}, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal result")
		}
		fmt.Println(string(out))
		return nil
	},
}

func waitForDone(cmd *cobra.Command, e *env, donorID string, timeout time.Duration) (*model.Donor, error) {
	ctx := cmd.Context()
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		donor, err := e.store.GetDonor(ctx, donorID)
		if err != nil {
			return nil, eris.Wrapf(err, "load donor %s", donorID)
		}
		if donor.AggregationState == model.AggregationDone {
			return donor, nil
		}
		if time.Now().After(deadline) {
			return nil, eris.Errorf("donor %s did not finish within %s (state %s)", donorID, timeout, donor.AggregationState)
		}
		zap.L().Debug("waiting for aggregation", zap.String("state", string(donor.AggregationState)))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func init() {
	processCmd.Flags().StringVar(&processDonorID, "donor", "", "external donor ID (required)")
	processCmd.Flags().DurationVar(&processTimeout, "timeout", 15*time.Minute, "how long to wait for the aggregation cycle")
	_ = processCmd.MarkFlagRequired("donor")
	rootCmd.AddCommand(processCmd)
}
