package projection

import (
	"github.com/banshee-data/collision.report/internal/fusion"
	"github.com/banshee-data/collision.report/internal/monitoring"
)

// ClusterStats counts where each lidar point ended up.
type ClusterStats struct {
	Assigned      int // inside exactly one shrunk box
	Ambiguous     int // inside two or more shrunk boxes; dropped
	Unassigned    int // inside no box
	Unprojectable int // no pixel position (degenerate homogeneous scale)
}

// Total returns the number of points examined.
func (s ClusterStats) Total() int {
	return s.Assigned + s.Ambiguous + s.Unassigned + s.Unprojectable
}

// ClusterLidarWithROI appends each lidar point to the one bounding box whose
// shrunk ROI contains the point's projection. Points enclosed by several
// boxes are dropped rather than duplicated. shrinkFactor is clamped to [0, 1).
//
// Boxes are mutated in place; points are copied by value.
func ClusterLidarWithROI(boxes []fusion.BoundingBox, points []fusion.LidarPoint, shrinkFactor float64, cal *Calibration) ClusterStats {
	var stats ClusterStats
	if cal == nil {
		stats.Unprojectable = len(points)
		return stats
	}

	shrunk := make([]fusion.Rect, len(boxes))
	for i := range boxes {
		shrunk[i] = boxes[i].ROI.Shrink(clampShrink(shrinkFactor))
	}

	for _, pt := range points {
		px, ok := cal.Project(pt)
		if !ok {
			stats.Unprojectable++
			continue
		}

		enclosing := -1
		count := 0
		for i := range shrunk {
			if shrunk[i].Contains(px) {
				count++
				enclosing = i
				if count > 1 {
					break
				}
			}
		}

		switch count {
		case 0:
			stats.Unassigned++
		case 1:
			boxes[enclosing].LidarPoints = append(boxes[enclosing].LidarPoints, pt)
			stats.Assigned++
		default:
			stats.Ambiguous++
		}
	}

	monitoring.Debugf("[projection] clustered %d points into %d boxes: assigned=%d ambiguous=%d unassigned=%d unprojectable=%d",
		len(points), len(boxes), stats.Assigned, stats.Ambiguous, stats.Unassigned, stats.Unprojectable)
	return stats
}

func clampShrink(f float64) float64 {
	switch {
	case !(f > 0):
		return 0
	case f >= 1:
		// Largest value below 1: the shrunk box degenerates but stays a subset.
		return 1 - 1e-9
	}
	return f
}
