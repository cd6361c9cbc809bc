// Package fusion owns the data model shared by the lidar/camera
// time-to-collision pipeline.
//
// Responsibilities: sensor value types (LidarPoint, Keypoint,
// Correspondence), detector output (BoundingBox, Rect) and the per-timestep
// Frame that carries them between stages.
// Key types: Frame, BoundingBox, BoxMatch.
//
// Dependency rule: subpackages (outlier, projection, boxmatch, roi, ttc)
// depend on this package; this package depends on none of them.
// No SQL/database code is allowed in this package.
package fusion
