package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/banshee-data/collision.report/internal/fusion/history"
	"github.com/banshee-data/collision.report/internal/fusion/pipeline"
	"github.com/banshee-data/collision.report/internal/fusion/replay"
	"github.com/banshee-data/collision.report/internal/fusion/storage/sqlite"
	"github.com/banshee-data/collision.report/internal/fusion/visualiser"
	"github.com/banshee-data/collision.report/internal/units"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type runOptions struct {
	input      string
	dbPath     string
	topviewDir string
	workers    int
	noProgress bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Estimate TTC for every consecutive frame pair of a sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			workers := -1
			if cmd.Flags().Changed("workers") {
				workers = o.workers
			}
			return runSequence(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), root, o, workers)
		},
	}
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "sequence JSON file")
	cmd.Flags().StringVar(&o.dbPath, "db", "", "sqlite database to store the run in")
	cmd.Flags().StringVar(&o.topviewDir, "topview-dir", "", "write a lidar top view PNG per frame to this directory")
	cmd.Flags().IntVar(&o.workers, "workers", 0, "per-box workers (0 = one per box; default from config)")
	cmd.Flags().BoolVar(&o.noProgress, "no-progress", false, "disable the progress bar")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// runSequence drives the pipeline over a sequence. workers < 0 keeps the
// configured value.
func runSequence(ctx context.Context, out, errOut io.Writer, root *rootOptions, o *runOptions, workers int) error {
	fc, err := root.loadConfig()
	if err != nil {
		return err
	}
	seq, err := replay.Load(o.input, replay.Options{})
	if err != nil {
		return err
	}
	cfg, err := pipeline.ConfigFromFusion(fc, seq.FrameRate)
	if err != nil {
		return err
	}
	if workers >= 0 {
		cfg.Workers = workers
	}
	proc, err := pipeline.New(cfg, seq.Calibration)
	if err != nil {
		return err
	}

	var (
		runStore      *sqlite.RunStore
		estimateStore *sqlite.EstimateStore
		run           *sqlite.Run
	)
	if o.dbPath != "" {
		db, err := sqlite.Open(o.dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		cfgJSON, err := json.Marshal(fc)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		runStore = sqlite.NewRunStore(db.DB, nil)
		estimateStore = sqlite.NewEstimateStore(db.DB, nil)
		run = &sqlite.Run{Input: seq.Path, FrameRate: seq.FrameRate, ConfigJSON: cfgJSON}
		if err := runStore.Create(run); err != nil {
			return fmt.Errorf("failed to create run: %w", err)
		}
	}
	if o.topviewDir != "" {
		if err := os.MkdirAll(o.topviewDir, 0o755); err != nil {
			return fmt.Errorf("failed to create top view dir: %w", err)
		}
	}

	barOut := errOut
	if o.noProgress {
		barOut = io.Discard
	}
	bar := progressbar.NewOptions(len(seq.Frames),
		progressbar.OptionSetDescription("Estimating TTC"),
		progressbar.OptionSetWriter(barOut),
		progressbar.OptionShowCount(),
	)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FRAME\tPREV\tCURR\tVOTES\tLIDAR TTC\tCAMERA TTC\tNOTE")

	hist := history.New(fc.GetHistorySize())
	processed := 0
	for _, frame := range seq.Frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := proc.Prepare(frame); err != nil {
			return err
		}
		hist.Push(frame)

		if o.topviewDir != "" {
			path := filepath.Join(o.topviewDir, fmt.Sprintf("topview_%04d.png", frame.Index))
			opts := visualiser.TopViewOptions{Title: fmt.Sprintf("frame %d", frame.Index)}
			if err := visualiser.RenderTopView(frame.BoundingBoxes, opts, path); err != nil {
				return err
			}
		}

		if prev, curr, ok := hist.Pair(); ok {
			res, err := proc.ProcessPair(ctx, prev, curr)
			if err != nil {
				return err
			}
			for _, r := range res.Results {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
					res.CurrIndex, r.PrevBoxID, r.CurrBoxID, r.Votes,
					units.FormatSeconds(r.Lidar.Seconds), units.FormatSeconds(r.Camera.Seconds), note(r))
			}
			if estimateStore != nil {
				if err := estimateStore.InsertPair(run.RunID, res.CurrIndex, res.Results); err != nil {
					return fmt.Errorf("failed to store frame %d: %w", res.CurrIndex, err)
				}
			}
		}
		processed++
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Fprintln(errOut)
	if err := tw.Flush(); err != nil {
		return err
	}

	if runStore != nil {
		if err := runStore.SetFrameCount(run.RunID, processed); err != nil {
			return err
		}
		fmt.Fprintf(out, "run %s stored in %s\n", run.RunID, o.dbPath)
	}
	return nil
}

func note(r pipeline.BoxResult) string {
	switch {
	case r.LowConfidence:
		return "low confidence"
	case !r.Lidar.Valid && !r.Camera.Valid:
		return "no estimate"
	case !r.Lidar.Valid:
		return "lidar: " + r.Lidar.Reason
	case !r.Camera.Valid:
		return "camera: " + r.Camera.Reason
	}
	return ""
}
