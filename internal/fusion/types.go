package fusion

import (
	"image"
	"time"

	"github.com/golang/geo/r2"
)

// LidarPoint is a single lidar return in the sensor frame.
type LidarPoint struct {
	X, Y, Z float64 // metres; X forward, Y left, Z up
	R       float64 // reflectivity
}

// Keypoint is a tracked image feature.
type Keypoint struct {
	Pt r2.Point // pixel position
}

// Correspondence pairs a keypoint in the previous frame with one in the
// current frame.
type Correspondence struct {
	QueryIdx int     // index into the previous frame's keypoints
	TrainIdx int     // index into the current frame's keypoints
	Distance float64 // descriptor distance reported by the matcher; informational
}

// BoundingBox is a detected object region together with the sensor data the
// pipeline assigns to it for one frame.
type BoundingBox struct {
	ID         int
	ROI        Rect
	ClassID    int
	Confidence float64

	LidarPoints []LidarPoint     // written by projection.ClusterLidarWithROI
	Keypoints   []Keypoint       // written by roi.ClusterKptMatchesWithROI
	KptMatches  []Correspondence // written by roi.ClusterKptMatchesWithROI
}

// ResetAssignments clears the collections the pipeline writes so the box can
// be clustered again from scratch.
func (b *BoundingBox) ResetAssignments() {
	b.LidarPoints = nil
	b.Keypoints = nil
	b.KptMatches = nil
}

// BoxMatch is the best current-frame box for one previous-frame box.
type BoxMatch struct {
	PrevID        int
	CurrID        int
	Votes         int
	LowConfidence bool
}

// Frame is the sensor information available at one time instance.
type Frame struct {
	Index     int
	Timestamp time.Time

	Image       image.Image // carried for downstream consumers, unused by estimation
	Keypoints   []Keypoint
	Descriptors []byte           // opaque
	KptMatches  []Correspondence // previous frame -> this frame
	LidarPoints []LidarPoint

	BoundingBoxes []BoundingBox
	BoxMatches    map[int]BoxMatch // previous box ID -> match in this frame
}

// BoxByID returns a pointer to the box with the given ID, or nil.
func (f *Frame) BoxByID(id int) *BoundingBox {
	for i := range f.BoundingBoxes {
		if f.BoundingBoxes[i].ID == id {
			return &f.BoundingBoxes[i]
		}
	}
	return nil
}

// KeypointAt returns kpts[idx] or ErrIndexOutOfRange.
func KeypointAt(kpts []Keypoint, idx int) (Keypoint, error) {
	if idx < 0 || idx >= len(kpts) {
		return Keypoint{}, &IndexError{Index: idx, Len: len(kpts)}
	}
	return kpts[idx], nil
}
