package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/usecase-cli/internal/extract"
	"github.com/sells-group/usecase-cli/internal/model"
	"github.com/sells-group/usecase-cli/internal/pipeline"
)

var (
	runVersion string
	runProject string
	runMode    string
	runFiles   []string
	runText    string
	runForce   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the extraction pipeline against a version",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		versionID := runVersion
		if versionID == "" {
			if runProject == "" {
				return eris.New("either --version or --project is required")
			}
			v, err := env.Store.CreateVersion(ctx, runProject)
			if err != nil {
				return err
			}
			versionID = v.ID
		}

		files := make([]extract.File, 0, len(runFiles))
		for _, path := range runFiles {
			content, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read file %s", path)
			}
			files = append(files, extract.File{Name: path, Content: content})
		}

		summary, err := env.Orchestrator.Run(ctx, pipeline.RunRequest{
			VersionID:  versionID,
			Files:      files,
			RawText:    runText,
			Mode:       model.RunMode(runMode),
			ForceRetry: runForce,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	runCmd.Flags().StringVar(&runVersion, "version", "", "version id to run against")
	runCmd.Flags().StringVar(&runProject, "project", "", "project id; creates a new version when --version is not set")
	runCmd.Flags().StringVar(&runMode, "mode", string(model.ModeIncremental), "run mode: full or incremental")
	runCmd.Flags().StringArrayVar(&runFiles, "file", nil, "file to ingest (repeatable)")
	runCmd.Flags().StringVar(&runText, "text", "", "raw requirement text to ingest")
	runCmd.Flags().BoolVar(&runForce, "force", false, "reprocess even when nothing new was accepted")
	rootCmd.AddCommand(runCmd)
}
