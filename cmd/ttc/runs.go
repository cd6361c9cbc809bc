package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/collision.report/internal/fusion/storage/sqlite"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := sqlite.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := sqlite.NewRunStore(db.DB, nil).List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tCREATED\tFRAMES\tRATE\tINPUT")
			for _, r := range runs {
				created := time.Unix(0, r.CreatedAt).UTC().Format(time.RFC3339)
				fmt.Fprintf(tw, "%s\t%s\t%d\t%.1f Hz\t%s\n", r.RunID, created, r.FrameCount, r.FrameRate, r.Input)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
