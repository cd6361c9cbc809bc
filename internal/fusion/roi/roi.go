// Package roi attaches keypoint correspondences to the bounding box whose
// region contains their current keypoint, after removing correspondences
// whose image displacement is inconsistent with the rest of the box.
package roi

import (
	"fmt"

	"github.com/banshee-data/collision.report/internal/fusion"
	"github.com/banshee-data/collision.report/internal/fusion/outlier"
	"github.com/banshee-data/collision.report/internal/monitoring"
)

// ClusterKptMatchesWithROI appends to box.KptMatches every correspondence
// whose current keypoint lies in box.ROI and whose displacement survives
// filter. Each correspondence is attached at most once, in input order, and
// its current keypoint is appended to box.Keypoints.
func ClusterKptMatchesWithROI(box *fusion.BoundingBox, kptsPrev, kptsCurr []fusion.Keypoint, matches []fusion.Correspondence, filter outlier.Filter) error {
	if box == nil {
		return fmt.Errorf("roi: nil bounding box")
	}

	// Index is the position in matches, not a keypoint index, so two
	// correspondences sharing a TrainIdx are filtered independently.
	var inside []outlier.IndexedValue
	for i, m := range matches {
		prev, err := fusion.KeypointAt(kptsPrev, m.QueryIdx)
		if err != nil {
			return fmt.Errorf("roi: previous keypoint: %w", err)
		}
		curr, err := fusion.KeypointAt(kptsCurr, m.TrainIdx)
		if err != nil {
			return fmt.Errorf("roi: current keypoint: %w", err)
		}
		if !box.ROI.Contains(curr.Pt) {
			continue
		}
		inside = append(inside, outlier.IndexedValue{Index: i, Value: curr.Pt.Sub(prev.Pt).Norm()})
	}

	kept := filter.FilterIndexed(inside)
	for _, iv := range kept {
		m := matches[iv.Index]
		box.KptMatches = append(box.KptMatches, m)
		box.Keypoints = append(box.Keypoints, kptsCurr[m.TrainIdx])
	}

	monitoring.Debugf("[roi] box=%d inside=%d attached=%d", box.ID, len(inside), len(kept))
	return nil
}
