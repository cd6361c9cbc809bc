package main

import (
	"fmt"
	"os"

	"github.com/banshee-data/collision.report/internal/fusion/storage/sqlite"
	"github.com/banshee-data/collision.report/internal/fusion/visualiser"
	"github.com/banshee-data/collision.report/internal/units"
	"github.com/spf13/cobra"
)

type reportOptions struct {
	dbPath string
	runID  string
	out    string
	units  string
}

func newReportCmd() *cobra.Command {
	o := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a TTC chart and closing speed summary for a stored run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !units.IsValid(o.units) {
				return fmt.Errorf("invalid units %q, must be one of: %s", o.units, units.ValidUnitsString())
			}
			db, err := sqlite.Open(o.dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runs := sqlite.NewRunStore(db.DB, nil)
			var run *sqlite.Run
			if o.runID == "" {
				all, err := runs.List()
				if err != nil {
					return err
				}
				if len(all) == 0 {
					return fmt.Errorf("no runs in %s", o.dbPath)
				}
				run = all[0]
			} else if run, err = runs.Get(o.runID); err != nil {
				return fmt.Errorf("run %s: %w", o.runID, err)
			}

			estimates := sqlite.NewEstimateStore(db.DB, nil)
			rows, err := estimates.ListByRun(run.RunID)
			if err != nil {
				return err
			}

			f, err := os.Create(o.out)
			if err != nil {
				return fmt.Errorf("failed to create report: %w", err)
			}
			title := fmt.Sprintf("TTC %s", run.Input)
			if err := visualiser.RenderTTCChart(f, title, rows); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			mean, n, err := estimates.ClosingSpeedStats(run.RunID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d estimates, chart written to %s\n", run.RunID, len(rows), o.out)
			if n == 0 {
				fmt.Fprintln(out, "mean closing speed: n/a")
				return nil
			}
			fmt.Fprintf(out, "mean closing speed: %.2f %s over %d estimates\n",
				units.ConvertSpeed(mean, o.units), units.Label(o.units), n)
			return nil
		},
	}
	cmd.Flags().StringVar(&o.dbPath, "db", "", "sqlite database")
	cmd.Flags().StringVar(&o.runID, "run", "", "run ID (default: most recent)")
	cmd.Flags().StringVarP(&o.out, "out", "o", "ttc_report.html", "HTML chart output path")
	cmd.Flags().StringVar(&o.units, "units", units.MPS, "closing speed units ("+units.ValidUnitsString()+")")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
