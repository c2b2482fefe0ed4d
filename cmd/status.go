package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sells-group/usecase-cli/internal/model"
	"github.com/sells-group/usecase-cli/internal/store"
)

var statusVersion string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a version's requirement model and pipeline state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		version, err := st.GetVersion(ctx, statusVersion)
		if err != nil {
			return err
		}
		units, err := st.ListUnits(ctx, statusVersion, store.UnitFilter{})
		if err != nil {
			return err
		}

		byStatus := map[model.ProcessingStatus]int{}
		for _, u := range units {
			byStatus[u.Status]++
		}

		out := struct {
			VersionID        string                         `json:"version_id"`
			Status           model.VersionStatus            `json:"status"`
			Usecases         int                            `json:"usecases"`
			PendingConflicts []model.Conflict               `json:"pending_conflicts,omitempty"`
			ProcessingErrors []string                       `json:"processing_errors,omitempty"`
			Units            map[model.ProcessingStatus]int `json:"units"`
		}{
			VersionID:        version.ID,
			Status:           version.Status(),
			Usecases:         len(version.RequirementModel),
			PendingConflicts: version.PendingConflicts,
			ProcessingErrors: version.ProcessingErrors,
			Units:            byStatus,
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusVersion, "version", "", "version id")
	_ = statusCmd.MarkFlagRequired("version")
	rootCmd.AddCommand(statusCmd)
}
