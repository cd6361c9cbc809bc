package fusion

import (
	"github.com/golang/geo/r2"
)

// Rect is an axis-aligned pixel rectangle anchored at its top-left corner.
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// Contains reports whether p lies inside r. The left and top edges are
// inclusive, the right and bottom edges exclusive, so adjacent rectangles
// never both contain a point on their shared edge.
func (r Rect) Contains(p r2.Point) bool {
	return r.X <= p.X && p.X < r.X+r.Width &&
		r.Y <= p.Y && p.Y < r.Y+r.Height
}

// Shrink insets every side by f/2 of the corresponding dimension. f is
// clamped to [0, 1]; the result is always a subset of r.
func (r Rect) Shrink(f float64) Rect {
	if !(f > 0) {
		return r
	}
	if f > 1 {
		f = 1
	}
	return Rect{
		X:      r.X + f*r.Width/2,
		Y:      r.Y + f*r.Height/2,
		Width:  r.Width * (1 - f),
		Height: r.Height * (1 - f),
	}
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return !(r.Width > 0) || !(r.Height > 0)
}

// Center returns the centre point of r.
func (r Rect) Center() r2.Point {
	return r2.Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}
