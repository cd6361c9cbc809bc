package visualiser

import (
	"fmt"
	"image/color"
	"math"

	"github.com/banshee-data/collision.report/internal/fusion"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// TopViewOptions sizes the top-down view. Zero fields take defaults.
type TopViewOptions struct {
	Title       string
	WorldWidth  float64   // lateral extent in metres (default 4)
	WorldDepth  float64   // forward extent in metres (default 20)
	LineSpacing float64   // distance marker spacing in metres (default 2)
	Width       vg.Length // image width (default 6in)
	Height      vg.Length // image height (default 9in)
}

func (o TopViewOptions) withDefaults() TopViewOptions {
	if !(o.WorldWidth > 0) {
		o.WorldWidth = 4
	}
	if !(o.WorldDepth > 0) {
		o.WorldDepth = 20
	}
	if !(o.LineSpacing > 0) {
		o.LineSpacing = 2
	}
	if o.Width <= 0 {
		o.Width = 6 * vg.Inch
	}
	if o.Height <= 0 {
		o.Height = 9 * vg.Inch
	}
	if o.Title == "" {
		o.Title = "Lidar top view"
	}
	return o
}

// ClusterLabel is the legend text for a box's lidar cluster: its ID, point
// count, closest forward distance and lateral width.
func ClusterLabel(b fusion.BoundingBox) string {
	xmin := math.Inf(1)
	ymin, ymax := math.Inf(1), math.Inf(-1)
	for _, p := range b.LidarPoints {
		xmin = math.Min(xmin, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	return fmt.Sprintf("id=%d, #pts=%d, xmin=%.2f m, yw=%.2f m", b.ID, len(b.LidarPoints), xmin, ymax-ymin)
}

// TopViewPlot builds the top-down plot: lateral offset on the horizontal
// axis (left of the vehicle to the left) and forward distance upwards.
// Boxes without lidar points are skipped.
func TopViewPlot(boxes []fusion.BoundingBox, opts TopViewOptions) (*plot.Plot, error) {
	opts = opts.withDefaults()

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "lateral (m)"
	p.Y.Label.Text = "forward (m)"
	p.X.Min, p.X.Max = -opts.WorldWidth/2, opts.WorldWidth/2
	p.Y.Min, p.Y.Max = 0, opts.WorldDepth

	for d := opts.LineSpacing; d <= opts.WorldDepth; d += opts.LineSpacing {
		marker, err := plotter.NewLine(plotter.XYs{{X: p.X.Min, Y: d}, {X: p.X.Max, Y: d}})
		if err != nil {
			return nil, fmt.Errorf("failed to create distance marker: %w", err)
		}
		marker.Color = color.Gray{Y: 200}
		marker.Width = vg.Points(0.5)
		p.Add(marker)
	}

	for _, b := range boxes {
		if len(b.LidarPoints) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(b.LidarPoints))
		for i, lp := range b.LidarPoints {
			pts[i] = plotter.XY{X: -lp.Y, Y: lp.X}
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter for box %d: %w", b.ID, err)
		}
		s.GlyphStyle.Color = BoxColor(b.ID)
		s.GlyphStyle.Radius = vg.Points(2)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(ClusterLabel(b), s)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// RenderTopView saves the top view to path. The format follows the file
// extension (.png, .svg, .pdf).
func RenderTopView(boxes []fusion.BoundingBox, opts TopViewOptions, path string) error {
	p, err := TopViewPlot(boxes, opts)
	if err != nil {
		return err
	}
	opts = opts.withDefaults()
	if err := p.Save(opts.Width, opts.Height, path); err != nil {
		return fmt.Errorf("failed to save top view: %w", err)
	}
	return nil
}
