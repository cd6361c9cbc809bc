package main

import (
	"fmt"

	"github.com/banshee-data/collision.report/internal/fusion/pipeline"
	"github.com/banshee-data/collision.report/internal/fusion/replay"
	"github.com/banshee-data/collision.report/internal/fusion/visualiser"
	"github.com/spf13/cobra"
)

type topViewOptions struct {
	input string
	frame int
	out   string
}

func newTopViewCmd(root *rootOptions) *cobra.Command {
	o := &topViewOptions{}
	cmd := &cobra.Command{
		Use:   "topview",
		Short: "Render the clustered lidar top view of one frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := root.loadConfig()
			if err != nil {
				return err
			}
			seq, err := replay.Load(o.input, replay.Options{})
			if err != nil {
				return err
			}
			if o.frame < 0 || o.frame >= len(seq.Frames) {
				return fmt.Errorf("frame %d out of range [0, %d)", o.frame, len(seq.Frames))
			}
			cfg, err := pipeline.ConfigFromFusion(fc, seq.FrameRate)
			if err != nil {
				return err
			}
			proc, err := pipeline.New(cfg, seq.Calibration)
			if err != nil {
				return err
			}
			frame := seq.Frames[o.frame]
			stats, err := proc.Prepare(frame)
			if err != nil {
				return err
			}
			opts := visualiser.TopViewOptions{Title: fmt.Sprintf("frame %d", frame.Index)}
			if err := visualiser.RenderTopView(frame.BoundingBoxes, opts, o.out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "frame %d: %d boxes, %d points assigned, written to %s\n",
				frame.Index, len(frame.BoundingBoxes), stats.Assigned, o.out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "sequence JSON file")
	cmd.Flags().IntVar(&o.frame, "frame", 0, "frame index")
	cmd.Flags().StringVarP(&o.out, "out", "o", "topview.png", "PNG output path")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
