package projection

import (
	"math"

	"github.com/banshee-data/collision.report/internal/fusion"
)

// CropBounds restricts lidar points to the ego lane ahead of the vehicle and
// to a height band that excludes the road surface.
type CropBounds struct {
	MinX, MaxX float64 // forward distance (m)
	MaxY       float64 // absolute lateral offset (m)
	MinZ, MaxZ float64 // height (m), sensor frame
	MinR       float64 // minimum reflectivity
}

// DefaultCropBounds returns bounds for a roof-mounted sensor following a
// vehicle in the same lane.
func DefaultCropBounds() CropBounds {
	return CropBounds{MinX: 2.0, MaxX: 20.0, MaxY: 2.0, MinZ: -1.5, MaxZ: -0.9, MinR: 0.1}
}

// Contains reports whether p lies within the bounds (all inclusive).
func (b CropBounds) Contains(p fusion.LidarPoint) bool {
	return p.X >= b.MinX && p.X <= b.MaxX &&
		math.Abs(p.Y) <= b.MaxY &&
		p.Z >= b.MinZ && p.Z <= b.MaxZ &&
		p.R >= b.MinR
}

// CropLidarPoints returns the points inside b, preserving order.
func CropLidarPoints(points []fusion.LidarPoint, b CropBounds) []fusion.LidarPoint {
	out := make([]fusion.LidarPoint, 0, len(points))
	for _, p := range points {
		if b.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}
