// Package projection maps lidar points into the camera image and groups them
// by the detected bounding box they fall in.
//
// Responsibilities: calibration chain validation, 3D -> pixel projection,
// lidar crop to the ego lane, point-to-box clustering.
// Key types: Calibration, ClusterStats, CropBounds.
package projection
