// Package stats summarizes the per-plane difference between two exposures.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"calibcompare/exposure"
)

// ErrShapeMismatch is returned when the two exposures differ in size.
var ErrShapeMismatch = errors.New("exposure shapes differ")

// Positions within a statistics sequence.
const (
	Mean = iota
	Median
	StdDev
	Min
	Max

	numStats
)

// Names labels each position of a statistics sequence.
var Names = [numStats]string{"mean", "median", "stddev", "min", "max"}

// Options tunes CompareExposures.
type Options struct {
	// IgnoreMaskPlanes excludes pixels flagged with any of these planes in either
	// exposure from the image and variance statistics.
	IgnoreMaskPlanes []string
}

// Result carries the difference statistics and the exposures they came from.
// Each statistics slice is ordered Mean, Median, StdDev, Min, Max and is NaN
// throughout when no pixel contributed.
type Result struct {
	ImageStats    []float64
	MaskStats     []float64
	VarianceStats []float64

	Exposure1 *exposure.Exposure
	Exposure2 *exposure.Exposure

	// Used counts the pixels that contributed to the image and variance statistics.
	Used int
}

// CompareExposures computes statistics of exp1 - exp2 for the image, mask and
// variance planes. Non-finite differences are skipped.
func CompareExposures(exp1, exp2 *exposure.Exposure, opts Options) (*Result, error) {
	if exp1 == nil || exp2 == nil {
		return nil, errors.New("nil exposure")
	}
	if exp1.Width != exp2.Width || exp1.Height != exp2.Height {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, exp1.Width, exp1.Height, exp2.Width, exp2.Height)
	}
	n := exp1.Len()
	for _, e := range []*exposure.Exposure{exp1, exp2} {
		if len(e.Image) != n || len(e.Mask) != n || len(e.Variance) != n {
			return nil, fmt.Errorf("%w: plane lengths do not match %dx%d", ErrShapeMismatch, e.Width, e.Height)
		}
	}

	ignore := exp1.MaskBits(opts.IgnoreMaskPlanes...) | exp2.MaskBits(opts.IgnoreMaskPlanes...)

	image := make([]float64, 0, n)
	mask := make([]float64, 0, n)
	variance := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		mask = append(mask, float64(exp1.Mask[i])-float64(exp2.Mask[i]))
		if ignore != 0 && (exp1.Mask[i]|exp2.Mask[i])&ignore != 0 {
			continue
		}
		if d := float64(exp1.Image[i]) - float64(exp2.Image[i]); !math.IsNaN(d) && !math.IsInf(d, 0) {
			image = append(image, d)
		}
		if d := float64(exp1.Variance[i]) - float64(exp2.Variance[i]); !math.IsNaN(d) && !math.IsInf(d, 0) {
			variance = append(variance, d)
		}
	}

	return &Result{
		ImageStats:    Summarize(image),
		MaskStats:     Summarize(mask),
		VarianceStats: Summarize(variance),
		Exposure1:     exp1,
		Exposure2:     exp2,
		Used:          len(image),
	}, nil
}

// Summarize returns Mean, Median, StdDev, Min, Max of x. x is sorted in place.
func Summarize(x []float64) []float64 {
	out := make([]float64, numStats)
	if len(x) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	sort.Float64s(x)
	out[Mean] = stat.Mean(x, nil)
	out[Median] = stat.Quantile(0.5, stat.Empirical, x, nil)
	if len(x) > 1 {
		out[StdDev] = stat.StdDev(x, nil)
	}
	out[Min] = floats.Min(x)
	out[Max] = floats.Max(x)
	return out
}

// MasksEqual reports whether the two mask planes match pixel for pixel, and the
// number of pixels that differ.
func MasksEqual(m1, m2 []int32) (bool, int) {
	if len(m1) != len(m2) {
		longer := len(m1)
		if len(m2) > longer {
			longer = len(m2)
		}
		return false, longer
	}
	diff := 0
	for i := range m1 {
		if m1[i] != m2[i] {
			diff++
		}
	}
	return diff == 0, diff
}

// Labeled pairs each value of a statistics sequence with its name.
func Labeled(values []float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for i, v := range values {
		if i < len(Names) {
			out[Names[i]] = v
		}
	}
	return out
}
