package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ledgerline/docaudit/internal/model"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the human review queue",
	Long:  "Commands for listing and viewing documents escalated for human review.",
}

// -- queue list --

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review queue items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")

		items, err := st.ListQueue(ctx, model.QueueStatus(status))
		if err != nil {
			return eris.Wrap(err, "queue list")
		}

		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "Review queue is empty.")
			return nil
		}

		formatQueueList(os.Stdout, items)
		return nil
	},
}

// -- queue show --

var queueShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show full details of a queue item and its document's anomalies",
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

		items, err := st.ListQueue(ctx, "")
		if err != nil {
			return eris.Wrap(err, "queue show")
		}
		for _, item := range items {
			if item.SessionID != args[0] {
				continue
			}
			anomalies, err := st.ListAnomalies(ctx, item.DocumentID)
			if err != nil {
				return eris.Wrap(err, "list anomalies")
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Item      model.HitlQueueItem `json:"item"`
				Anomalies []model.Anomaly     `json:"anomalies"`
			}{item, anomalies})
		}
		return eris.Errorf("unknown session %q", args[0])
	},
}

// formatQueueList writes a tabular list of queue items to w.
func formatQueueList(out io.Writer, items []model.HitlQueueItem) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SESSION\tDOCUMENT\tPRIORITY\tSTATUS\tQUEUED")
	_, _ = fmt.Fprintln(w, "-------\t--------\t--------\t------\t------")

	for _, item := range items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			item.SessionID,
			item.DocumentID,
			item.Priority,
			item.Status,
			item.QueuedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func init() {
	queueListCmd.Flags().String("status", string(model.QueuePending), "filter by status (PENDING, REVIEWED, empty for all)")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueShowCmd)
	rootCmd.AddCommand(queueCmd)
}
