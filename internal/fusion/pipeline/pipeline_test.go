package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/collision.report/internal/config"
	"github.com/banshee-data/collision.report/internal/fusion"
	"github.com/banshee-data/collision.report/internal/fusion/projection"
	"github.com/banshee-data/collision.report/internal/fusion/ttc"
	"github.com/banshee-data/collision.report/internal/monitoring"
	"github.com/banshee-data/collision.report/internal/testutil"
	"github.com/golang/geo/r2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	monitoring.SetLogger(nil)
}

// lidarCamera maps the lidar frame (X forward, Y left, Z up) onto a 1000px
// focal length camera centred on (320, 240).
func lidarCamera(t *testing.T) *projection.Calibration {
	t.Helper()
	cal, err := projection.NewCalibrationFromSlices(
		[]float64{
			1000, 0, 320, 0,
			0, 1000, 240, 0,
			0, 0, 1, 0,
		},
		[]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		[]float64{
			0, -1, 0, 0,
			0, 0, -1, 0,
			1, 0, 0, 0,
		},
	)
	require.NoError(t, err)
	return cal
}

// object is a vehicle ahead at lateral offset y. It approaches from 10 m to
// 8 m between the two frames, so both estimators should report 0.4 s at
// 10 Hz.
type object struct {
	prevID, currID int
	y              float64
	noKeypoints    bool
	kptOffset      float64 // previous frame keypoint half-spread in px
}

const (
	xPrev     = 10.0
	xCurr     = 8.0
	frameRate = 10.0
	wantTTC   = 0.4
)

func scene(t *testing.T, cal *projection.Calibration, objects ...object) (*fusion.Frame, *fusion.Frame) {
	t.Helper()
	prev := &fusion.Frame{Index: 0}
	curr := &fusion.Frame{Index: 1}

	add := func(f *fusion.Frame, id int, o object, x, spread float64) {
		centre, ok := cal.Project(fusion.LidarPoint{X: x, Y: o.y, Z: -1.1})
		require.True(t, ok)
		f.BoundingBoxes = append(f.BoundingBoxes, fusion.BoundingBox{
			ID:  id,
			ROI: fusion.Rect{X: centre.X - 60, Y: centre.Y - 60, Width: 120, Height: 120},
		})
		for _, dy := range []float64{-0.2, -0.1, 0, 0.1, 0.2} {
			for _, z := range []float64{-1.2, -1.0} {
				f.LidarPoints = append(f.LidarPoints, fusion.LidarPoint{X: x, Y: o.y + dy, Z: z, R: 0.5})
			}
		}
		if o.noKeypoints {
			return
		}
		for _, d := range []r2.Point{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: -1, Y: 1}, {X: 1, Y: 1}} {
			f.Keypoints = append(f.Keypoints, fusion.Keypoint{Pt: centre.Add(d.Mul(spread))})
		}
	}

	for _, o := range objects {
		spread := o.kptOffset
		if spread == 0 {
			spread = 40
		}
		base := len(curr.Keypoints)
		add(prev, o.prevID, o, xPrev, spread)
		add(curr, o.currID, o, xCurr, spread*xPrev/xCurr)
		for i := base; i < len(curr.Keypoints); i++ {
			curr.KptMatches = append(curr.KptMatches, fusion.Correspondence{QueryIdx: i, TrainIdx: i})
		}
	}
	return prev, curr
}

func twoObjects() []object {
	return []object{
		{prevID: 0, currID: 0, y: 0},
		{prevID: 5, currID: 3, y: 1.5},
	}
}

func newProcessor(t *testing.T, cfg Config) *Processor {
	t.Helper()
	p, err := New(cfg, lidarCamera(t))
	require.NoError(t, err)
	return p
}

func prepareBoth(t *testing.T, p *Processor, prev, curr *fusion.Frame) {
	t.Helper()
	_, err := p.Prepare(prev)
	require.NoError(t, err)
	_, err = p.Prepare(curr)
	require.NoError(t, err)
}

func TestProcessPair_TwoApproachingObjects(t *testing.T) {
	p := newProcessor(t, DefaultConfig(frameRate))
	prev, curr := scene(t, lidarCamera(t), twoObjects()...)

	stats, err := p.Prepare(prev)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.Assigned)
	_, err = p.Prepare(curr)
	require.NoError(t, err)

	res, err := p.ProcessPair(context.Background(), prev, curr)
	require.NoError(t, err)

	require.Len(t, res.Results, 2)
	assert.Equal(t, 0, res.Results[0].PrevBoxID)
	assert.Equal(t, 0, res.Results[0].CurrBoxID)
	assert.Equal(t, 5, res.Results[1].PrevBoxID)
	assert.Equal(t, 3, res.Results[1].CurrBoxID)

	for _, r := range res.Results {
		assert.True(t, r.Lidar.Valid, "box %d lidar: %s", r.PrevBoxID, r.Lidar.Reason)
		assert.True(t, r.Camera.Valid, "box %d camera: %s", r.PrevBoxID, r.Camera.Reason)
		testutil.AssertClose(t, "lidar ttc", r.Lidar.Seconds, wantTTC, 1e-9)
		testutil.AssertClose(t, "camera ttc", r.Camera.Seconds, wantTTC, 1e-9)
		testutil.AssertClose(t, "closing speed", r.ClosingSpeed, 20, 1e-9)
		assert.Equal(t, 4, r.Votes)
		assert.Equal(t, 4, r.CameraMatches)
		assert.Equal(t, 10, r.LidarPoints)
	}

	assert.Len(t, curr.BoxMatches, 2)
	assert.Equal(t, 3, curr.BoxMatches[5].CurrID)
	assert.Len(t, curr.BoxByID(3).KptMatches, 4)
}

func TestProcessPair_DeterministicAcrossWorkerCounts(t *testing.T) {
	objects := []object{
		{prevID: 0, currID: 0, y: 0},
		{prevID: 5, currID: 3, y: 1.5},
		{prevID: 2, currID: 9, y: -1.5},
	}

	var baseline *PairResult
	for _, workers := range []int{1, 2, 3, 0} {
		cfg := DefaultConfig(frameRate)
		cfg.Workers = workers
		p := newProcessor(t, cfg)
		prev, curr := scene(t, lidarCamera(t), objects...)
		prepareBoth(t, p, prev, curr)

		res, err := p.ProcessPair(context.Background(), prev, curr)
		require.NoError(t, err)
		require.Len(t, res.Results, 3)

		if baseline == nil {
			baseline = res
			continue
		}
		if diff := cmp.Diff(baseline, res, cmpopts.EquateNaNs()); diff != "" {
			t.Errorf("workers=%d differs from workers=1 (-want +got):\n%s", workers, diff)
		}
	}
}

func TestProcessPair_LowConfidenceMatches(t *testing.T) {
	objects := []object{
		{prevID: 0, currID: 0, y: 0},
		{prevID: 5, currID: 3, y: 1.5, noKeypoints: true},
	}

	p := newProcessor(t, DefaultConfig(frameRate))
	prev, curr := scene(t, lidarCamera(t), objects...)
	prepareBoth(t, p, prev, curr)

	res, err := p.ProcessPair(context.Background(), prev, curr)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, 0, res.Results[0].PrevBoxID)

	// Box 5 has no keypoint support; it still appears in the match list.
	require.Len(t, res.Matches, 2)
	assert.True(t, res.Matches[1].LowConfidence)
	assert.Equal(t, 0, res.Matches[1].CurrID)

	cfg := DefaultConfig(frameRate)
	cfg.IncludeLowConfidence = true
	p = newProcessor(t, cfg)
	prev, curr = scene(t, lidarCamera(t), objects...)
	prepareBoth(t, p, prev, curr)

	res, err = p.ProcessPair(context.Background(), prev, curr)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.True(t, res.Results[1].LowConfidence)
	assert.Equal(t, 0, res.Results[1].Votes)
}

func TestProcessPair_CameraWithoutEstimate(t *testing.T) {
	// Keypoints 10px apart never reach the 100px distance guard.
	p := newProcessor(t, DefaultConfig(frameRate))
	prev, curr := scene(t, lidarCamera(t), object{prevID: 1, currID: 1, kptOffset: 5})
	prepareBoth(t, p, prev, curr)

	res, err := p.ProcessPair(context.Background(), prev, curr)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	r := res.Results[0]
	assert.True(t, r.Lidar.Valid)
	assert.False(t, r.Camera.Valid)
	assert.True(t, math.IsNaN(r.Camera.Seconds))
	assert.Contains(t, r.Camera.Reason, ttc.ErrNoDistanceRatios.Error())
}

func TestProcessPair_Cancelled(t *testing.T) {
	p := newProcessor(t, DefaultConfig(frameRate))
	prev, curr := scene(t, lidarCamera(t), twoObjects()...)
	prepareBoth(t, p, prev, curr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ProcessPair(ctx, prev, curr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessPair_BadCorrespondence(t *testing.T) {
	p := newProcessor(t, DefaultConfig(frameRate))
	prev, curr := scene(t, lidarCamera(t), twoObjects()...)
	prepareBoth(t, p, prev, curr)

	curr.KptMatches = append(curr.KptMatches, fusion.Correspondence{QueryIdx: 500, TrainIdx: 0})
	_, err := p.ProcessPair(context.Background(), prev, curr)
	assert.ErrorIs(t, err, fusion.ErrIndexOutOfRange)
}

func TestPrepare_Idempotent(t *testing.T) {
	p := newProcessor(t, DefaultConfig(frameRate))
	_, curr := scene(t, lidarCamera(t), twoObjects()...)

	first, err := p.Prepare(curr)
	require.NoError(t, err)
	boxes := append([]fusion.BoundingBox(nil), curr.BoundingBoxes...)

	second, err := p.Prepare(curr)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	if diff := cmp.Diff(boxes, curr.BoundingBoxes); diff != "" {
		t.Errorf("second Prepare changed boxes (-first +second):\n%s", diff)
	}
}

func TestPrepare_Crop(t *testing.T) {
	p := newProcessor(t, DefaultConfig(frameRate))
	_, curr := scene(t, lidarCamera(t), object{prevID: 0, currID: 0})
	// Road surface return below the crop band.
	curr.LidarPoints = append(curr.LidarPoints, fusion.LidarPoint{X: xCurr, Y: 0, Z: -1.8, R: 0.5})

	stats, err := p.Prepare(curr)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Total())

	cfg := DefaultConfig(frameRate)
	cfg.Crop = nil
	p = newProcessor(t, cfg)
	stats, err = p.Prepare(curr)
	require.NoError(t, err)
	assert.Equal(t, 11, stats.Total())
}

func TestPrepare_Validation(t *testing.T) {
	p := newProcessor(t, DefaultConfig(frameRate))

	tests := []struct {
		name   string
		mutate func(f *fusion.Frame)
		want   error
	}{
		{"no boxes", func(f *fusion.Frame) { f.BoundingBoxes = nil }, fusion.ErrEmptyInput},
		{"no lidar", func(f *fusion.Frame) { f.LidarPoints = nil }, fusion.ErrEmptyInput},
		{"duplicate id", func(f *fusion.Frame) { f.BoundingBoxes[1].ID = f.BoundingBoxes[0].ID }, fusion.ErrDuplicateBoxID},
		{"keypoint index", func(f *fusion.Frame) {
			f.KptMatches = append(f.KptMatches, fusion.Correspondence{TrainIdx: len(f.Keypoints)})
		}, fusion.ErrIndexOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, curr := scene(t, lidarCamera(t), twoObjects()...)
			tt.mutate(curr)
			_, err := p.Prepare(curr)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}

	_, err := p.Prepare(nil)
	assert.ErrorIs(t, err, fusion.ErrEmptyInput)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(DefaultConfig(frameRate), nil)
	assert.ErrorIs(t, err, projection.ErrMalformedCalibration)

	_, err = New(DefaultConfig(0), lidarCamera(t))
	assert.ErrorIs(t, err, ttc.ErrInvalidFrameRate)

	cfg := DefaultConfig(frameRate)
	cfg.Workers = -1
	_, err = New(cfg, lidarCamera(t))
	assert.Error(t, err)
}

func TestConfigFromFusion_Defaults(t *testing.T) {
	cfg, err := ConfigFromFusion(config.MustLoadDefaultConfig(), frameRate)
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(frameRate), cfg); diff != "" {
		t.Errorf("defaults file disagrees with DefaultConfig (-want +got):\n%s", diff)
	}

	cfg, err = ConfigFromFusion(nil, frameRate)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
}

func TestConfigFromFusion_Overrides(t *testing.T) {
	fc := config.EmptyFusionConfig()
	off := false
	feature := config.FeatureZ
	workers := 0
	fc.CropEnabled = &off
	fc.LidarOutlierFeature = &feature
	fc.Workers = &workers

	cfg, err := ConfigFromFusion(fc, frameRate)
	require.NoError(t, err)
	assert.Nil(t, cfg.Crop)
	assert.Equal(t, "z", cfg.LidarFeature.String())
	assert.Equal(t, 0, cfg.Workers)

	bad := "w"
	fc.LidarOutlierFeature = &bad
	_, err = ConfigFromFusion(fc, frameRate)
	assert.Error(t, err)

	_, err = ConfigFromFusion(nil, -5)
	assert.ErrorIs(t, err, ttc.ErrInvalidFrameRate)
}
