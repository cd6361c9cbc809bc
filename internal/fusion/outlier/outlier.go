// Package outlier trims spurious measurements before the TTC estimators
// aggregate them. Both filters use Tukey fences over the interquartile range
// of a scalar feature.
package outlier

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/collision.report/internal/fusion"
	"gonum.org/v1/gonum/stat"
)

// Filter holds the Tukey fence parameters.
type Filter struct {
	// K scales the IQR to place the fences at [Q1-K*IQR, Q3+K*IQR].
	// K <= 0 disables filtering.
	K float64

	// MinSamples is the smallest input the filter will trim. Shorter inputs
	// are returned unchanged since quartiles of two or three values say
	// nothing about outliers.
	MinSamples int
}

// DefaultFilter returns the production filter (K=1.5, four samples).
func DefaultFilter() Filter {
	return Filter{K: 1.5, MinSamples: 4}
}

// Fences returns the inclusive acceptance interval for values. ok is false
// when the filter is disabled or there are too few finite samples.
func (f Filter) Fences(values []float64) (lo, hi float64, ok bool) {
	if !(f.K > 0) {
		return 0, 0, false
	}
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) < f.MinSamples || len(sorted) < 2 {
		return 0, 0, false
	}
	sort.Float64s(sorted)

	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1
	return q1 - f.K*iqr, q3 + f.K*iqr, true
}

// keep returns the indices of values inside the fences, in input order.
// It never returns an empty set for two or more inputs.
func (f Filter) keep(values []float64) []int {
	idx := make([]int, 0, len(values))
	lo, hi, ok := f.Fences(values)
	if !ok {
		for i := range values {
			idx = append(idx, i)
		}
		return idx
	}
	for i, v := range values {
		if v >= lo && v <= hi {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		// Never empty for two or more inputs.
		for i := range values {
			idx = append(idx, i)
		}
	}
	return idx
}

// IndexedValue is a scalar measurement keyed by a keypoint index.
type IndexedValue struct {
	Index int
	Value float64
}

// FilterIndexed drops pairs whose Value lies outside the fences. The input is
// not modified; survivors keep their input order.
func (f Filter) FilterIndexed(pairs []IndexedValue) []IndexedValue {
	values := make([]float64, len(pairs))
	for i, p := range pairs {
		values[i] = p.Value
	}
	kept := f.keep(values)
	out := make([]IndexedValue, len(kept))
	for i, k := range kept {
		out[i] = pairs[k]
	}
	return out
}

// Feature selects the lidar coordinate the filter trims on.
type Feature int

const (
	FeatureX Feature = iota // forward distance
	FeatureY                // lateral offset
	FeatureZ                // height
)

// ParseFeature maps "x", "y" or "z" to a Feature.
func ParseFeature(s string) (Feature, error) {
	switch s {
	case "x", "X", "":
		return FeatureX, nil
	case "y", "Y":
		return FeatureY, nil
	case "z", "Z":
		return FeatureZ, nil
	}
	return FeatureX, fmt.Errorf("unknown lidar outlier feature %q", s)
}

func (ft Feature) String() string {
	switch ft {
	case FeatureY:
		return "y"
	case FeatureZ:
		return "z"
	default:
		return "x"
	}
}

func (ft Feature) of(p fusion.LidarPoint) float64 {
	switch ft {
	case FeatureY:
		return p.Y
	case FeatureZ:
		return p.Z
	default:
		return p.X
	}
}

// FilterLidar drops points whose selected feature lies outside the fences.
// The input is not modified; survivors keep their input order.
func (f Filter) FilterLidar(points []fusion.LidarPoint, feature Feature) []fusion.LidarPoint {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = feature.of(p)
	}
	kept := f.keep(values)
	out := make([]fusion.LidarPoint, len(kept))
	for i, k := range kept {
		out[i] = points[k]
	}
	return out
}
