package projection

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/collision.report/internal/fusion"
	"github.com/banshee-data/collision.report/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const (
	testFocal = 100.0
	testCx    = 320.0
	testCy    = 240.0
	testDepth = 10.0
)

// pinholeCalibration projects camera-frame points through a simple pinhole
// with identity rectification and extrinsics.
func pinholeCalibration(t *testing.T) *Calibration {
	t.Helper()
	p := mat.NewDense(3, 4, []float64{
		testFocal, 0, testCx, 0,
		0, testFocal, testCy, 0,
		0, 0, 1, 0,
	})
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	rt := mat.NewDense(3, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	})
	cal, err := NewCalibration(p, r, rt)
	require.NoError(t, err)
	return cal
}

// pointAt returns a point that projects to pixel (u, v) under pinholeCalibration.
func pointAt(u, v float64) fusion.LidarPoint {
	return fusion.LidarPoint{
		X: (u - testCx) * testDepth / testFocal,
		Y: (v - testCy) * testDepth / testFocal,
		Z: testDepth,
		R: 0.5,
	}
}

func TestProject_Pinhole(t *testing.T) {
	cal := pinholeCalibration(t)

	px, ok := cal.Project(fusion.LidarPoint{X: 1, Y: 2, Z: 10})
	require.True(t, ok)
	testutil.AssertClose(t, "u", px.X, 330, 1e-9)
	testutil.AssertClose(t, "v", px.Y, 260, 1e-9)
}

func TestProject_LidarToCameraAxes(t *testing.T) {
	// Lidar frame (x fwd, y left, z up) to camera frame (x right, y down, z fwd).
	p := mat.NewDense(3, 4, []float64{
		testFocal, 0, testCx, 0,
		0, testFocal, testCy, 0,
		0, 0, 1, 0,
	})
	r := mat.NewDense(4, 4, []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1})
	rt := mat.NewDense(4, 4, []float64{
		0, -1, 0, 0,
		0, 0, -1, 0,
		1, 0, 0, 0,
		0, 0, 0, 1,
	})
	cal, err := NewCalibration(p, r, rt)
	require.NoError(t, err)

	px, ok := cal.Project(fusion.LidarPoint{X: 10})
	require.True(t, ok)
	testutil.AssertClose(t, "u", px.X, testCx, 1e-9)
	testutil.AssertClose(t, "v", px.Y, testCy, 1e-9)

	// One metre to the left and above appears left of and above centre.
	px, ok = cal.Project(fusion.LidarPoint{X: 10, Y: 1, Z: 1})
	require.True(t, ok)
	testutil.AssertClose(t, "u", px.X, testCx-10, 1e-9)
	testutil.AssertClose(t, "v", px.Y, testCy-10, 1e-9)
}

func TestProject_DegenerateScale(t *testing.T) {
	cal := pinholeCalibration(t)
	_, ok := cal.Project(fusion.LidarPoint{X: 1, Y: 1, Z: 0})
	assert.False(t, ok, "w'=0 has no pixel position")

	_, ok = cal.Project(fusion.LidarPoint{X: math.NaN(), Y: 1, Z: 10})
	assert.False(t, ok)
}

func TestNewCalibration_Malformed(t *testing.T) {
	good := func() (*mat.Dense, *mat.Dense, *mat.Dense) {
		return mat.NewDense(3, 4, []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0}),
			mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
			mat.NewDense(4, 4, []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1})
	}

	p, r, rt := good()
	_, err := NewCalibration(p, r, rt)
	require.NoError(t, err)

	tests := []struct {
		name string
		mod  func(p, r, rt *mat.Dense) (*mat.Dense, *mat.Dense, *mat.Dense)
	}{
		{"nil", func(p, r, rt *mat.Dense) (*mat.Dense, *mat.Dense, *mat.Dense) { return nil, r, rt }},
		{"P wrong shape", func(p, r, rt *mat.Dense) (*mat.Dense, *mat.Dense, *mat.Dense) {
			return mat.NewDense(3, 3, nil), r, rt
		}},
		{"R wrong shape", func(p, r, rt *mat.Dense) (*mat.Dense, *mat.Dense, *mat.Dense) {
			return p, mat.NewDense(2, 2, nil), rt
		}},
		{"NaN entry", func(p, r, rt *mat.Dense) (*mat.Dense, *mat.Dense, *mat.Dense) {
			rt.Set(0, 3, math.NaN())
			return p, r, rt
		}},
		{"all zero", func(p, r, rt *mat.Dense) (*mat.Dense, *mat.Dense, *mat.Dense) {
			return mat.NewDense(3, 4, nil), r, rt
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCalibration(tt.mod(good()))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedCalibration), "got %v", err)
		})
	}
}

func TestNewCalibrationFromSlices(t *testing.T) {
	cal, err := NewCalibrationFromSlices(
		[]float64{testFocal, 0, testCx, 0, 0, testFocal, testCy, 0, 0, 0, 1, 0},
		[]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		[]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0},
	)
	require.NoError(t, err)
	r, c := cal.Combined().Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 4, c)

	_, err = NewCalibrationFromSlices(make([]float64, 11), make([]float64, 9), make([]float64, 12))
	assert.ErrorIs(t, err, ErrMalformedCalibration)
}

func TestClusterLidarWithROI_UniqueAssignment(t *testing.T) {
	cal := pinholeCalibration(t)
	boxes := []fusion.BoundingBox{
		{ID: 0, ROI: fusion.Rect{X: 0, Y: 0, Width: 400, Height: 400}},
		{ID: 1, ROI: fusion.Rect{X: 300, Y: 200, Width: 300, Height: 200}},
	}
	points := []fusion.LidarPoint{
		pointAt(350, 250), // overlap of both boxes
		pointAt(100, 100), // box 0 only
		pointAt(500, 300), // box 1 only
		pointAt(700, 50),  // outside both
	}

	stats := ClusterLidarWithROI(boxes, points, 0, cal)

	assert.Equal(t, ClusterStats{Assigned: 2, Ambiguous: 1, Unassigned: 1}, stats)
	assert.Equal(t, 4, stats.Total())
	require.Len(t, boxes[0].LidarPoints, 1)
	require.Len(t, boxes[1].LidarPoints, 1)
	assert.Equal(t, points[1], boxes[0].LidarPoints[0])
	assert.Equal(t, points[2], boxes[1].LidarPoints[0])
}

func TestClusterLidarWithROI_ShrinkExcludesEdges(t *testing.T) {
	cal := pinholeCalibration(t)
	boxes := []fusion.BoundingBox{{ID: 0, ROI: fusion.Rect{X: 100, Y: 100, Width: 200, Height: 100}}}
	// Shrink 0.2 -> inset 20px horizontally, 10px vertically.
	points := []fusion.LidarPoint{pointAt(110, 150), pointAt(200, 150), pointAt(200, 105)}

	stats := ClusterLidarWithROI(boxes, points, 0.2, cal)
	assert.Equal(t, 1, stats.Assigned)
	assert.Equal(t, 2, stats.Unassigned)
	assert.Equal(t, points[1], boxes[0].LidarPoints[0])
}

func TestClusterLidarWithROI_ShrinkMonotonic(t *testing.T) {
	cal := pinholeCalibration(t)
	var points []fusion.LidarPoint
	for u := 5.0; u < 640; u += 10 {
		for v := 5.0; v < 480; v += 10 {
			points = append(points, pointAt(u, v))
		}
	}
	newBoxes := func() []fusion.BoundingBox {
		return []fusion.BoundingBox{
			{ID: 0, ROI: fusion.Rect{X: 20, Y: 40, Width: 250, Height: 300}},
			{ID: 1, ROI: fusion.Rect{X: 300, Y: 100, Width: 200, Height: 150}},
		}
	}

	prev := []int{math.MaxInt, math.MaxInt}
	for _, f := range []float64{0, 0.05, 0.1, 0.25, 0.5, 0.75, 0.99} {
		boxes := newBoxes()
		ClusterLidarWithROI(boxes, points, f, cal)
		for i := range boxes {
			n := len(boxes[i].LidarPoints)
			if n > prev[i] {
				t.Errorf("box %d: shrink %.2f assigned %d points, more than %d at smaller shrink", i, f, n, prev[i])
			}
			prev[i] = n
		}
	}
}

func TestClusterLidarWithROI_Idempotent(t *testing.T) {
	cal := pinholeCalibration(t)
	points := []fusion.LidarPoint{pointAt(50, 50), pointAt(150, 60), pointAt(420, 300), pointAt(330, 210)}
	newBoxes := func() []fusion.BoundingBox {
		return []fusion.BoundingBox{
			{ID: 0, ROI: fusion.Rect{X: 0, Y: 0, Width: 340, Height: 240}},
			{ID: 1, ROI: fusion.Rect{X: 320, Y: 200, Width: 200, Height: 200}},
		}
	}

	a, b := newBoxes(), newBoxes()
	statsA := ClusterLidarWithROI(a, points, 0.1, cal)
	statsB := ClusterLidarWithROI(b, points, 0.1, cal)

	assert.Equal(t, statsA, statsB)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}
}

func TestClusterLidarWithROI_Degenerate(t *testing.T) {
	boxes := []fusion.BoundingBox{{ID: 0, ROI: fusion.Rect{Width: 100, Height: 100}}}
	points := []fusion.LidarPoint{{X: 1, Y: 1, Z: 0}}

	stats := ClusterLidarWithROI(boxes, points, 0, pinholeCalibration(t))
	assert.Equal(t, 1, stats.Unprojectable)

	stats = ClusterLidarWithROI(boxes, points, 0, nil)
	assert.Equal(t, 1, stats.Unprojectable)
	assert.Empty(t, boxes[0].LidarPoints)
}

func TestCropLidarPoints(t *testing.T) {
	points := []fusion.LidarPoint{
		{X: 8, Y: 0.5, Z: -1.2, R: 0.3},  // kept
		{X: 1, Y: 0, Z: -1.2, R: 0.3},    // too close
		{X: 25, Y: 0, Z: -1.2, R: 0.3},   // too far
		{X: 8, Y: -2.5, Z: -1.2, R: 0.3}, // adjacent lane
		{X: 8, Y: 0, Z: -1.8, R: 0.3},    // road surface
		{X: 8, Y: 0, Z: -1.0, R: 0.05},   // weak return
		{X: 12, Y: -1.9, Z: -0.9, R: 0.1},
	}
	got := CropLidarPoints(points, DefaultCropBounds())
	assert.Equal(t, []fusion.LidarPoint{points[0], points[6]}, got)
}
