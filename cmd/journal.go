package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/httprunner/depsync/pkg/storage"
	"github.com/spf13/cobra"
)

func newJournalCmd() *cobra.Command {
	var (
		limit  int
		serial string
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show journaled sync pages or the history of one device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := storage.OpenJournal(journalPath())
			if err != nil {
				return err
			}
			defer journal.Close()

			tw := tabwriter.NewWriter(stdout(), 0, 0, 2, ' ', 0)
			if serial != "" {
				events, err := journal.DeviceHistory(cmd.Context(), serial, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "PAGE\tKIND\tOP\tOUTCOME\tRECORDED AT")
				for _, ev := range events {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
						ev.PageID, ev.Kind, ev.OpType, ev.Outcome, ev.RecordedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			}

			entries, err := journal.Entries(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "PAGE\tKIND\tREQUEST CURSOR\tCURSOR\tMORE\tOPS\tRECORDED AT")
			for _, e := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%d\t%s\n",
					e.ID, e.Kind, e.RequestCursor, e.Cursor, e.MoreToFollow, e.OpCount, e.RecordedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to print")
	cmd.Flags().StringVar(&serial, "serial", "", "Show the history of this serial number")
	return cmd
}
