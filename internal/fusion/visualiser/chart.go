package visualiser

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/banshee-data/collision.report/internal/fusion/storage/sqlite"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// missing is how echarts marks a gap in a line series.
const missing = "-"

func ttcValue(v float64) opts.LineData {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return opts.LineData{Value: missing}
	}
	return opts.LineData{Value: v}
}

// RenderTTCChart writes an HTML line chart of lidar and camera TTC per frame,
// one pair of series per previous-frame box ID.
func RenderTTCChart(w io.Writer, title string, rows []*sqlite.Estimate) error {
	frameSet := map[int]struct{}{}
	byBox := map[int]map[int]*sqlite.Estimate{}
	for _, r := range rows {
		frameSet[r.FrameIndex] = struct{}{}
		if byBox[r.PrevBoxID] == nil {
			byBox[r.PrevBoxID] = map[int]*sqlite.Estimate{}
		}
		byBox[r.PrevBoxID][r.FrameIndex] = r
	}

	frames := make([]int, 0, len(frameSet))
	for f := range frameSet {
		frames = append(frames, f)
	}
	sort.Ints(frames)
	boxIDs := make([]int, 0, len(byBox))
	for id := range byBox {
		boxIDs = append(boxIDs, id)
	}
	sort.Ints(boxIDs)

	labels := make([]string, len(frames))
	for i, f := range frames {
		labels[i] = strconv.Itoa(f)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("frames=%d boxes=%d", len(frames), len(boxIDs))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "TTC (s)", NameLocation: "middle", NameGap: 35}),
	)
	line.SetXAxis(labels)

	for _, id := range boxIDs {
		lidar := make([]opts.LineData, len(frames))
		camera := make([]opts.LineData, len(frames))
		for i, f := range frames {
			r, ok := byBox[id][f]
			if !ok {
				lidar[i] = opts.LineData{Value: missing}
				camera[i] = opts.LineData{Value: missing}
				continue
			}
			lidar[i] = ttcValue(r.LidarTTC)
			camera[i] = ttcValue(r.CameraTTC)
		}
		c := BoxColorHex(id)
		line.AddSeries(fmt.Sprintf("lidar box %d", id), lidar,
			charts.WithLineStyleOpts(opts.LineStyle{Color: c}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: c}),
		)
		line.AddSeries(fmt.Sprintf("camera box %d", id), camera,
			charts.WithLineStyleOpts(opts.LineStyle{Color: c, Type: "dashed"}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: c}),
		)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render ttc chart: %w", err)
	}
	return nil
}
