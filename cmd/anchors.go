package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amruthm-ignitec/mtf-backend/internal/anchor"
	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

var anchorsImportPath string

var anchorsCmd = &cobra.Command{
	Use:   "anchors",
	Short: "Manage the historical anchor decision corpus",
}

// anchorImportRow is one historical decision in the import file. Embeddings
// are generated for rows that do not carry one.
type anchorImportRow struct {
	DonorID   string                  `json:"donor_id"`
	Outcome   model.Outcome           `json:"outcome"`
	Snapshot  model.ParameterSnapshot `json:"parameter_snapshot"`
	Embedding []float32               `json:"embedding,omitempty"`
}

var anchorsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load historical decisions into the anchor corpus",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(anchorsImportPath)
		if err != nil {
			return eris.Wrapf(err, "read %s", anchorsImportPath)
		}
		var rows []anchorImportRow
		if err := json.Unmarshal(data, &rows); err != nil {
			return eris.Wrapf(err, "parse %s", anchorsImportPath)
		}

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close()

		embedder, err := initEmbedder()
		if err != nil {
			return eris.Wrap(err, "init embedder")
		}

		anchors := make([]model.AnchorDecision, 0, len(rows))
		for _, row := range rows {
			if row.Outcome != model.OutcomeAccepted && row.Outcome != model.OutcomeRejected {
				return eris.Errorf("donor %s: unknown outcome %q", row.DonorID, row.Outcome)
			}
			vec := row.Embedding
			if vec == nil {
				vec, err = embedder.Embed(ctx, anchor.SnapshotText(row.Snapshot))
				if err != nil {
					return eris.Wrapf(err, "embed snapshot for donor %s", row.DonorID)
				}
			}
			if len(vec) != embedder.Dimensions() {
				return eris.Errorf("donor %s: embedding has %d dimensions, corpus requires %d",
					row.DonorID, len(vec), embedder.Dimensions())
			}
			anchors = append(anchors, model.AnchorDecision{
				ID:            uuid.NewString(),
				DonorID:       row.DonorID,
				Outcome:       row.Outcome,
				OutcomeSource: model.SourceManualApproval,
				Snapshot:      row.Snapshot,
				Embedding:     vec,
			})
		}

		inserted, err := st.BulkInsertAnchors(ctx, anchors)
		if err != nil {
			return eris.Wrap(err, "bulk insert anchors")
		}

		zap.L().Info("anchor import complete",
			zap.Int64("inserted", inserted),
			zap.String("file", anchorsImportPath))
		return nil
	},
}

func init() {
	anchorsImportCmd.Flags().StringVar(&anchorsImportPath, "json", "", "path to the decisions file (required)")
	_ = anchorsImportCmd.MarkFlagRequired("json")
	anchorsCmd.AddCommand(anchorsImportCmd)
	rootCmd.AddCommand(anchorsCmd)
}
