package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sells-group/usecase-cli/internal/pipeline"
)

var (
	resolveVersion  string
	resolveConflict string
	resolveKeep     string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a pending duplicate conflict",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		summary, err := pipeline.ResolveDuplicate(ctx, st, resolveVersion, resolveConflict, resolveKeep)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveVersion, "version", "", "version id")
	resolveCmd.Flags().StringVar(&resolveConflict, "conflict", "", "conflict id")
	resolveCmd.Flags().StringVar(&resolveKeep, "keep", pipeline.KeepOld, "which item to keep: old or new")
	_ = resolveCmd.MarkFlagRequired("version")
	_ = resolveCmd.MarkFlagRequired("conflict")
	rootCmd.AddCommand(resolveCmd)
}
