package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/amruthm-ignitec/mtf-backend/internal/compliance"
)

var donorCmd = &cobra.Command{
	Use:   "donor <donor-id>",
	Short: "Show a donor's master record and compliance verdict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		donorID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer st.Close()

		donor, err := st.GetDonor(ctx, donorID)
		if err != nil {
			return eris.Wrapf(err, "load donor %s", donorID)
		}

		var verdict *compliance.Result
		if donor.MasterRecord != nil {
			res := compliance.NewEngine(cfg.Compliance).Evaluate(donor.MasterRecord)
			verdict = &res
		}

		out, err := json.MarshalIndent(map[string]any{
			"donor_id":          donor.ID,
			"external_id":       donor.ExternalID,
			"aggregation_state": donor.AggregationState,
			"compliance":        verdict,
			"master_record":     donor.MasterRecord,
		}, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal donor")
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(donorCmd)
}
