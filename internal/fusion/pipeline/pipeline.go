package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/collision.report/internal/fusion"
	"github.com/banshee-data/collision.report/internal/fusion/boxmatch"
	"github.com/banshee-data/collision.report/internal/fusion/projection"
	"github.com/banshee-data/collision.report/internal/fusion/roi"
	"github.com/banshee-data/collision.report/internal/fusion/ttc"
	"github.com/banshee-data/collision.report/internal/monitoring"
	"golang.org/x/sync/errgroup"
)

// Estimate is one TTC value. Seconds is NaN when Valid is false, and Reason
// then says why no estimate was produced.
type Estimate struct {
	Seconds float64
	Valid   bool
	Reason  string
}

func estimateFrom(seconds float64, err error) (Estimate, error) {
	if err == nil {
		return Estimate{Seconds: seconds, Valid: true}, nil
	}
	if errors.Is(err, ttc.ErrNoEstimate) {
		return Estimate{Seconds: math.NaN(), Reason: err.Error()}, nil
	}
	return Estimate{Seconds: math.NaN(), Reason: err.Error()}, err
}

// BoxResult is the outcome for one matched object.
type BoxResult struct {
	PrevBoxID     int
	CurrBoxID     int
	Votes         int
	LowConfidence bool

	Lidar  Estimate
	Camera Estimate

	CameraMatches int // correspondences attached to the current box
	LidarPoints   int // current box points after filtering
	ClosingSpeed  float64
}

// PairResult is the outcome of one frame pair.
type PairResult struct {
	PrevIndex int
	CurrIndex int
	Matches   []fusion.BoxMatch // every previous box, by PrevID
	Results   []BoxResult       // estimated boxes, by PrevBoxID
}

// Processor runs the pipeline with a fixed configuration and calibration.
// A Processor is safe for sequential reuse across frame pairs.
type Processor struct {
	cfg Config
	cal *projection.Calibration
}

// New returns a Processor. The calibration is required.
func New(cfg Config, cal *projection.Calibration) (*Processor, error) {
	if cal == nil {
		return nil, fmt.Errorf("%w: nil calibration", projection.ErrMalformedCalibration)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Processor{cfg: cfg, cal: cal}, nil
}

// Config returns the processor configuration.
func (p *Processor) Config() Config { return p.cfg }

// Prepare validates frame and clusters its lidar points into its bounding
// boxes, replacing any previous assignment. Calling it twice gives the same
// boxes.
func (p *Processor) Prepare(frame *fusion.Frame) (projection.ClusterStats, error) {
	if err := validateFrame(frame); err != nil {
		return projection.ClusterStats{}, err
	}

	for i := range frame.BoundingBoxes {
		frame.BoundingBoxes[i].ResetAssignments()
	}
	points := frame.LidarPoints
	if p.cfg.Crop != nil {
		points = projection.CropLidarPoints(points, *p.cfg.Crop)
	}
	stats := projection.ClusterLidarWithROI(frame.BoundingBoxes, points, p.cfg.ShrinkFactor, p.cal)

	monitoring.Logf("[pipeline] frame %d: %d boxes, %d/%d lidar points kept, assigned=%d ambiguous=%d",
		frame.Index, len(frame.BoundingBoxes), len(points), len(frame.LidarPoints), stats.Assigned, stats.Ambiguous)
	return stats, nil
}

func validateFrame(frame *fusion.Frame) error {
	if frame == nil {
		return fmt.Errorf("%w: nil frame", fusion.ErrEmptyInput)
	}
	if len(frame.BoundingBoxes) == 0 {
		return fmt.Errorf("%w: frame %d has no bounding boxes", fusion.ErrEmptyInput, frame.Index)
	}
	if len(frame.LidarPoints) == 0 {
		return fmt.Errorf("%w: frame %d has no lidar points", fusion.ErrEmptyInput, frame.Index)
	}
	seen := make(map[int]struct{}, len(frame.BoundingBoxes))
	for _, b := range frame.BoundingBoxes {
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("frame %d: %w: %d", frame.Index, fusion.ErrDuplicateBoxID, b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	for _, m := range frame.KptMatches {
		if _, err := fusion.KeypointAt(frame.Keypoints, m.TrainIdx); err != nil {
			return fmt.Errorf("frame %d: %w", frame.Index, err)
		}
	}
	return nil
}

// boxTask is the work for one current box: every selected match that ends
// in it.
type boxTask struct {
	currID  int
	matches []fusion.BoxMatch
	slots   []int // result index for each match
}

// ProcessPair matches the boxes of prev and curr, stores the matches on curr
// and estimates TTC for every selected match. Both frames must have been
// prepared. Per-box work runs concurrently; results do not depend on
// scheduling.
func (p *Processor) ProcessPair(ctx context.Context, prev, curr *fusion.Frame) (*PairResult, error) {
	if prev == nil || curr == nil {
		return nil, fmt.Errorf("%w: nil frame", fusion.ErrEmptyInput)
	}

	res, err := boxmatch.Match(curr.KptMatches, prev, curr, p.cfg.MinMatchVotes)
	if err != nil {
		return nil, fmt.Errorf("frame %d->%d: %w", prev.Index, curr.Index, err)
	}
	curr.BoxMatches = res.Matches

	selected := res.Confident()
	if p.cfg.IncludeLowConfidence {
		selected = res.Sorted()
	}

	out := &PairResult{
		PrevIndex: prev.Index,
		CurrIndex: curr.Index,
		Matches:   res.Sorted(),
		Results:   make([]BoxResult, len(selected)),
	}

	// Group by current box so that each task owns its box exclusively.
	byCurr := make(map[int]*boxTask)
	var tasks []*boxTask
	for i, m := range selected {
		t, ok := byCurr[m.CurrID]
		if !ok {
			t = &boxTask{currID: m.CurrID}
			byCurr[m.CurrID] = t
			tasks = append(tasks, t)
		}
		t.matches = append(t.matches, m)
		t.slots = append(t.slots, i)
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.cfg.Workers > 0 {
		g.SetLimit(p.cfg.Workers)
	}
	for _, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return p.processBox(prev, curr, t, out.Results)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("frame %d->%d: %w", prev.Index, curr.Index, err)
	}

	sort.SliceStable(out.Results, func(i, j int) bool { return out.Results[i].PrevBoxID < out.Results[j].PrevBoxID })

	valid := 0
	for _, r := range out.Results {
		if r.Lidar.Valid || r.Camera.Valid {
			valid++
		}
	}
	monitoring.Logf("[pipeline] frame %d->%d: %d boxes matched, %d estimated, %d with a valid ttc",
		prev.Index, curr.Index, len(out.Matches), len(out.Results), valid)
	return out, nil
}

func (p *Processor) processBox(prev, curr *fusion.Frame, t *boxTask, results []BoxResult) error {
	currBox := curr.BoxByID(t.currID)
	currBox.Keypoints = nil
	currBox.KptMatches = nil
	if err := roi.ClusterKptMatchesWithROI(currBox, prev.Keypoints, curr.Keypoints, curr.KptMatches, p.cfg.CameraFilter); err != nil {
		return err
	}

	cam, err := ttc.ComputeTTCCamera(prev.Keypoints, curr.Keypoints, currBox.KptMatches, p.cfg.FrameRate, p.cfg.Camera)
	camera, err := estimateFrom(cam.TTC, err)
	if err != nil {
		return fmt.Errorf("box %d camera ttc: %w", t.currID, err)
	}

	for i, m := range t.matches {
		prevBox := prev.BoxByID(m.PrevID)
		lid, err := ttc.ComputeTTCLidarFeature(prevBox.LidarPoints, currBox.LidarPoints, p.cfg.FrameRate, p.cfg.LidarFilter, p.cfg.LidarFeature)
		lidar, err := estimateFrom(lid.TTC, err)
		if err != nil {
			return fmt.Errorf("box %d lidar ttc: %w", m.PrevID, err)
		}

		results[t.slots[i]] = BoxResult{
			PrevBoxID:     m.PrevID,
			CurrBoxID:     m.CurrID,
			Votes:         m.Votes,
			LowConfidence: m.LowConfidence,
			Lidar:         lidar,
			Camera:        camera,
			CameraMatches: len(currBox.KptMatches),
			LidarPoints:   lid.PointsCurr,
			ClosingSpeed:  lid.ClosingSpeed,
		}
		monitoring.Debugf("[pipeline] box %d->%d lidar=%v camera=%v matches=%d",
			m.PrevID, m.CurrID, lidar.Seconds, camera.Seconds, len(currBox.KptMatches))
	}
	return nil
}
