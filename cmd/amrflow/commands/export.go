package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amrlab/amrflow/internal/amr"
	"github.com/amrlab/amrflow/internal/export"
)

var (
	exportProjectID   int64
	exportLevel       string
	exportFormat      string
	exportPiiStrategy string
	exportOutDir      string
	exportNoManifest  bool
	exportFailed      bool
	exportRejected    bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Materialize a project export to disk",
	Long: `Runs the export pipeline directly against the database and writes
the result file, bypassing the HTTP API and the job queue.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportProjectID == 0 {
			return fmt.Errorf("--project is required")
		}

		level, err := amr.ParseExportLevel(exportLevel)
		if err != nil {
			return err
		}
		format, err := amr.ParseExportFormat(exportFormat)
		if err != nil {
			return err
		}
		pii, err := amr.ParsePiiStrategy(exportPiiStrategy)
		if err != nil {
			return err
		}

		log := newLogger()
		db, err := openStore(log)
		if err != nil {
			return err
		}
		defer db.Close()

		req := export.Request{
			ProjectID:       exportProjectID,
			Level:           level,
			Format:          format,
			PiiStrategy:     pii,
			IncludeManifest: !exportNoManifest,
			IncludeFailed:   exportFailed,
			IncludeRejected: exportRejected,
		}

		svc := export.NewService(db, log)
		payload, err := svc.Export(cmd.Context(), amr.RoleAdmin, req)
		if err != nil {
			return err
		}

		path, err := export.WriteFile(payload, req, exportOutDir, nil)
		if err != nil {
			return err
		}

		fmt.Printf("Wrote %s (%d records)\n", path,
			len(payload.Records))
		return nil
	},
}

func init() {
	exportCmd.Flags().Int64Var(
		&exportProjectID, "project", 0, "Project id to export",
	)
	exportCmd.Flags().StringVar(
		&exportLevel, "level", string(amr.LevelGold),
		"Export level: gold, silver, all, failed, rejected",
	)
	exportCmd.Flags().StringVar(
		&exportFormat, "format", string(amr.FormatJSON),
		"Export format: json or manifest+json",
	)
	exportCmd.Flags().StringVar(
		&exportPiiStrategy, "pii", string(amr.PiiInclude),
		"PII strategy: include, strip, anonymize",
	)
	exportCmd.Flags().StringVar(
		&exportOutDir, "out", ".", "Output directory",
	)
	exportCmd.Flags().BoolVar(
		&exportNoManifest, "no-manifest", false,
		"Skip the manifest block",
	)
	exportCmd.Flags().BoolVar(
		&exportFailed, "include-failed", false,
		"Include failed validation submissions",
	)
	exportCmd.Flags().BoolVar(
		&exportRejected, "include-rejected", false,
		"Include review-rejected submissions",
	)
}
