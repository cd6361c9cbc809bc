// Package ttc estimates time-to-collision for one tracked object from two
// consecutive frames.
//
// Two independent estimators are provided:
//
//   - ComputeTTCCamera uses the scale change of the object's keypoint
//     constellation: the median ratio of pairwise pixel distances between the
//     current and previous frame.
//   - ComputeTTCLidar uses the change in mean forward distance of the
//     object's lidar returns under a constant velocity model.
//
// Neither estimator divides by a near-zero baseline. A degenerate input
// returns an error wrapping ErrNoEstimate and a NaN TTC; a finite TTC is
// always the result of a well-conditioned computation.
package ttc
