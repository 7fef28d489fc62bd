package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgerline/docaudit/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report <out.xlsx>",
	Short: "Export processed documents, anomalies, and the review queue to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := report.Write(ctx, st, args[0]); err != nil {
			return eris.Wrap(err, "write report")
		}

		zap.L().Info("report written", zap.String("path", args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
