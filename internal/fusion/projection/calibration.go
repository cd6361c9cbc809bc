package projection

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/collision.report/internal/fusion"
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// ErrMalformedCalibration is returned for matrices of the wrong shape or
// with non-finite entries.
var ErrMalformedCalibration = errors.New("malformed calibration")

// minScale is the smallest homogeneous scale Project will divide by.
const minScale = 1e-12

// Calibration is the camera projection chain P_rect * R_rect * RT.
type Calibration struct {
	PRect *mat.Dense // 3x4 rectified camera projection
	RRect *mat.Dense // 4x4 rectifying rotation
	RT    *mat.Dense // 4x4 lidar -> camera rigid transform

	combined *mat.Dense // 3x4
}

// NewCalibration validates the three matrices and precomputes their product.
// rRect may be 3x3 and rt may be 3x4; both are padded to homogeneous 4x4 form.
func NewCalibration(pRect, rRect, rt *mat.Dense) (*Calibration, error) {
	if pRect == nil || rRect == nil || rt == nil {
		return nil, fmt.Errorf("%w: nil matrix", ErrMalformedCalibration)
	}
	if r, c := pRect.Dims(); r != 3 || c != 4 {
		return nil, fmt.Errorf("%w: P_rect must be 3x4, got %dx%d", ErrMalformedCalibration, r, c)
	}
	rr, err := homogeneous("R_rect", rRect)
	if err != nil {
		return nil, err
	}
	rtH, err := homogeneous("RT", rt)
	if err != nil {
		return nil, err
	}
	for _, m := range []struct {
		name string
		m    *mat.Dense
	}{{"P_rect", pRect}, {"R_rect", rr}, {"RT", rtH}} {
		if !finite(m.m) {
			return nil, fmt.Errorf("%w: %s has non-finite entries", ErrMalformedCalibration, m.name)
		}
	}

	combined := mat.NewDense(3, 4, nil)
	combined.Product(pRect, rr, rtH)
	if mat.Norm(combined, 1) == 0 {
		return nil, fmt.Errorf("%w: projection chain is all zero", ErrMalformedCalibration)
	}

	return &Calibration{PRect: pRect, RRect: rr, RT: rtH, combined: combined}, nil
}

// NewCalibrationFromSlices builds a Calibration from row-major slices:
// pRect has 12 values, rRect 9 or 16, rt 12 or 16.
func NewCalibrationFromSlices(pRect, rRect, rt []float64) (*Calibration, error) {
	p, err := denseFromRowMajor("P_rect", pRect, map[int][2]int{12: {3, 4}})
	if err != nil {
		return nil, err
	}
	r, err := denseFromRowMajor("R_rect", rRect, map[int][2]int{9: {3, 3}, 16: {4, 4}})
	if err != nil {
		return nil, err
	}
	t, err := denseFromRowMajor("RT", rt, map[int][2]int{12: {3, 4}, 16: {4, 4}})
	if err != nil {
		return nil, err
	}
	return NewCalibration(p, r, t)
}

// Combined returns a copy of the 3x4 projection chain.
func (c *Calibration) Combined() *mat.Dense {
	return mat.DenseCopyOf(c.combined)
}

// Project maps a lidar point to pixel coordinates. Both axes are divided by
// the homogeneous scale w'. ok is false when w' is (near) zero or the result
// is not finite; such points have no pixel position.
func (c *Calibration) Project(p fusion.LidarPoint) (r2.Point, bool) {
	x := mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1})
	var y mat.VecDense
	y.MulVec(c.combined, x)

	w := y.AtVec(2)
	if math.IsNaN(w) || math.Abs(w) < minScale {
		return r2.Point{}, false
	}
	px := r2.Point{X: y.AtVec(0) / w, Y: y.AtVec(1) / w}
	if math.IsNaN(px.X) || math.IsNaN(px.Y) || math.IsInf(px.X, 0) || math.IsInf(px.Y, 0) {
		return r2.Point{}, false
	}
	return px, true
}

func homogeneous(name string, m *mat.Dense) (*mat.Dense, error) {
	r, c := m.Dims()
	switch {
	case r == 4 && c == 4:
		return m, nil
	case (r == 3 && c == 3) || (r == 3 && c == 4):
		h := mat.NewDense(4, 4, nil)
		h.Slice(0, r, 0, c).(*mat.Dense).Copy(m)
		h.Set(3, 3, 1)
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s must be 4x4 (or 3x3/3x4), got %dx%d", ErrMalformedCalibration, name, r, c)
}

func denseFromRowMajor(name string, data []float64, shapes map[int][2]int) (*mat.Dense, error) {
	shape, ok := shapes[len(data)]
	if !ok {
		return nil, fmt.Errorf("%w: %s has %d values", ErrMalformedCalibration, name, len(data))
	}
	cp := make([]float64, len(data))
	copy(cp, data)
	return mat.NewDense(shape[0], shape[1], cp), nil
}

func finite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
