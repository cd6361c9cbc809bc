// Package pipeline runs the fusion stages over consecutive frames.
//
// Responsibilities: validate a frame at the boundary, cluster its lidar
// points into bounding boxes, match boxes to the previous frame, attach
// keypoint correspondences and produce a lidar and a camera TTC for every
// matched object.
//
// Key types: Processor, Config, PairResult, BoxResult, Estimate.
//
// Dependency rule: pipeline composes the estimation packages (projection,
// boxmatch, roi, ttc, outlier) and must not import storage, replay or
// visualiser.
package pipeline
