package ttc

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/collision.report/internal/fusion"
	"github.com/banshee-data/collision.report/internal/fusion/outlier"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrNoEstimate is wrapped by every "could not estimate" failure.
	ErrNoEstimate = errors.New("no ttc estimate")

	// ErrNoDistanceRatios means no keypoint pair passed the distance guards.
	ErrNoDistanceRatios = errors.New("no usable keypoint distance ratios")

	// ErrNoLidarPoints means a lidar set was empty.
	ErrNoLidarPoints = errors.New("no lidar points")

	// ErrDegenerateBaseline means the change between frames was too small
	// to divide by.
	ErrDegenerateBaseline = errors.New("degenerate baseline")

	// ErrInvalidFrameRate is returned for a frame rate that is not a
	// positive finite number.
	ErrInvalidFrameRate = errors.New("invalid frame rate")
)

const (
	// DefaultMinDist is the smallest current-frame pixel distance a keypoint
	// pair must span to contribute a ratio.
	DefaultMinDist = 100.0

	// baselineEpsilon bounds |1-r| for the camera and |Δmean| for the lidar.
	baselineEpsilon = 1e-9
)

func noEstimate(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrNoEstimate, cause, fmt.Sprintf(format, args...))
}

func frameInterval(frameRate float64) (float64, error) {
	if !(frameRate > 0) || math.IsInf(frameRate, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFrameRate, frameRate)
	}
	return 1 / frameRate, nil
}

// CameraParams tunes the camera estimator.
type CameraParams struct {
	MinDist float64 // pixels; pairs closer than this in the current frame are ignored
}

// DefaultCameraParams returns CameraParams{MinDist: DefaultMinDist}.
func DefaultCameraParams() CameraParams {
	return CameraParams{MinDist: DefaultMinDist}
}

// CameraResult is the outcome of ComputeTTCCamera.
type CameraResult struct {
	TTC         float64 // seconds; NaN when no estimate
	MedianRatio float64 // distCurr/distPrev
	Ratios      int     // number of pairs that contributed
}

// ComputeTTCCamera estimates TTC from the keypoints of matches in two frames.
// Every unordered pair of correspondences contributes distCurr/distPrev when
// distPrev exceeds machine epsilon and distCurr is at least p.MinDist. With
// r the median ratio and dt the frame interval, TTC = -dt/(1-r).
func ComputeTTCCamera(kptsPrev, kptsCurr []fusion.Keypoint, matches []fusion.Correspondence, frameRate float64, p CameraParams) (CameraResult, error) {
	res := CameraResult{TTC: math.NaN(), MedianRatio: math.NaN()}
	dt, err := frameInterval(frameRate)
	if err != nil {
		return res, err
	}

	type pair struct{ prev, curr fusion.Keypoint }
	pts := make([]pair, len(matches))
	for i, m := range matches {
		prev, err := fusion.KeypointAt(kptsPrev, m.QueryIdx)
		if err != nil {
			return res, fmt.Errorf("previous keypoint: %w", err)
		}
		curr, err := fusion.KeypointAt(kptsCurr, m.TrainIdx)
		if err != nil {
			return res, fmt.Errorf("current keypoint: %w", err)
		}
		pts[i] = pair{prev, curr}
	}

	var ratios []float64
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			distCurr := pts[i].curr.Pt.Sub(pts[j].curr.Pt).Norm()
			distPrev := pts[i].prev.Pt.Sub(pts[j].prev.Pt).Norm()
			if distPrev > epsilon && distCurr >= p.MinDist {
				ratios = append(ratios, distCurr/distPrev)
			}
		}
	}
	res.Ratios = len(ratios)

	r, ok := Median(ratios)
	if !ok {
		return res, noEstimate(ErrNoDistanceRatios, "%d correspondences", len(matches))
	}
	res.MedianRatio = r
	if math.Abs(1-r) < baselineEpsilon {
		return res, noEstimate(ErrDegenerateBaseline, "median distance ratio %v", r)
	}
	res.TTC = -dt / (1 - r)
	return res, nil
}

// epsilon is the double precision machine epsilon.
var epsilon = math.Nextafter(1, 2) - 1

// LidarResult is the outcome of ComputeTTCLidar.
type LidarResult struct {
	TTC          float64 // seconds; NaN when no estimate
	MeanPrev     float64 // metres
	MeanCurr     float64 // metres
	ClosingSpeed float64 // m/s, positive when approaching
	PointsPrev   int     // points used after filtering
	PointsCurr   int
}

// ComputeTTCLidar estimates TTC from the forward distance of two lidar sets,
// each trimmed on X by filter.
func ComputeTTCLidar(prev, curr []fusion.LidarPoint, frameRate float64, filter outlier.Filter) (LidarResult, error) {
	return ComputeTTCLidarFeature(prev, curr, frameRate, filter, outlier.FeatureX)
}

// ComputeTTCLidarFeature is ComputeTTCLidar with the filter applied to the
// given feature. The estimate itself always uses mean X.
func ComputeTTCLidarFeature(prev, curr []fusion.LidarPoint, frameRate float64, filter outlier.Filter, feature outlier.Feature) (LidarResult, error) {
	res := LidarResult{TTC: math.NaN(), MeanPrev: math.NaN(), MeanCurr: math.NaN(), ClosingSpeed: math.NaN()}
	dt, err := frameInterval(frameRate)
	if err != nil {
		return res, err
	}

	prev = filter.FilterLidar(prev, feature)
	curr = filter.FilterLidar(curr, feature)
	res.PointsPrev, res.PointsCurr = len(prev), len(curr)
	if len(prev) == 0 || len(curr) == 0 {
		return res, noEstimate(ErrNoLidarPoints, "prev=%d curr=%d", len(prev), len(curr))
	}

	res.MeanPrev = meanX(prev)
	res.MeanCurr = meanX(curr)
	delta := res.MeanPrev - res.MeanCurr
	res.ClosingSpeed = delta / dt
	if math.Abs(delta) < baselineEpsilon {
		return res, noEstimate(ErrDegenerateBaseline, "mean distance change %v m", delta)
	}
	res.TTC = res.MeanCurr * dt / delta
	return res, nil
}

func meanX(points []fusion.LidarPoint) float64 {
	xs := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
	}
	return stat.Mean(xs, nil)
}

// Median returns the median of values, averaging the two middle elements for
// an even count. ok is false for an empty input. values is not modified.
func Median(values []float64) (m float64, ok bool) {
	n := len(values)
	if n == 0 {
		return math.NaN(), false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, true
}
