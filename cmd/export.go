package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cardcapture/internal/export"
	"github.com/sells-group/cardcapture/internal/requirements"
)

var (
	exportTenant string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a tenant's reviewed records to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		records, err := st.ListReviewedRecords(ctx, exportTenant)
		if err != nil {
			return err
		}
		cat, err := requirements.NewManager(st).Get(ctx, exportTenant)
		if err != nil {
			return err
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return eris.Wrapf(err, "create %s", exportOut)
		}
		defer f.Close() //nolint:errcheck

		if err := export.WriteXLSX(records, cat, f); err != nil {
			return err
		}
		zap.L().Info("export complete",
			zap.String("tenant_id", exportTenant),
			zap.Int("records", len(records)),
			zap.String("out", exportOut),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportTenant, "tenant", "", "tenant id to export")
	exportCmd.Flags().StringVar(&exportOut, "out", "reviewed.xlsx", "output file path")
	exportCmd.MarkFlagRequired("tenant") //nolint:errcheck
	rootCmd.AddCommand(exportCmd)
}
