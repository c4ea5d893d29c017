package calibcompare

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats/scalar"

	"calibcompare/stats"
)

// ErrNoComparison is returned for products that have a descriptor but no comparison.
var ErrNoComparison = errors.New("no comparison defined for product")

// Epsilon is the float64 machine epsilon, the default tolerance of FloatsAlmostEqual.
const Epsilon = 0x1p-52

// FloatsAlmostEqual reports whether a and b agree within either the relative
// tolerance rtol or the absolute tolerance atol. NaN never agrees.
func FloatsAlmostEqual(a, b, rtol, atol float64) bool {
	return scalar.EqualWithinAbsOrRel(a, b, atol, rtol)
}

// Check is one assertion on a comparison result. A disabled check is listed in
// reports but never run.
type Check struct {
	Name     string
	Disabled bool
	Run      func(*stats.Result) error
}

// Policy is the set of checks applied to one product.
type Policy struct {
	Product Product
	Checks  []Check
}

// PolicyFor returns the checks for product p.
//
// Only bias is asserted. Its variance check and the dark and flat mask/image
// checks are disabled until the two generations are expected to agree there.
func PolicyFor(p Product) (Policy, error) {
	switch p {
	case Bias:
		return Policy{Product: p, Checks: []Check{
			MasksEqual(),
			statNear("image_mean_zero", imagePlane, stats.Mean, 0),
			disable(statNear("variance_min_zero", variancePlane, stats.Min, 0)),
		}}, nil
	case Dark, Flat:
		return Policy{Product: p, Checks: []Check{
			disable(MasksEqual()),
			disable(statNear("image_mean_zero", imagePlane, stats.Mean, 0)),
		}}, nil
	case Crosstalk:
		return Policy{}, fmt.Errorf("%w: %s", ErrNoComparison, p)
	default:
		return Policy{}, fmt.Errorf("%w: %q", ErrUnknownProduct, p)
	}
}

// Enforced reports whether any check of the policy runs.
func (p Policy) Enforced() bool {
	for _, c := range p.Checks {
		if !c.Disabled {
			return true
		}
	}
	return false
}

// Evaluate runs the enabled checks against res.
func (p Policy) Evaluate(res *stats.Result) Report {
	r := Report{
		Product:       p.Product,
		ImageStats:    res.ImageStats,
		MaskStats:     res.MaskStats,
		VarianceStats: res.VarianceStats,
		Enforced:      p.Enforced(),
	}
	for _, c := range p.Checks {
		if c.Disabled {
			r.Disabled = append(r.Disabled, c.Name)
			continue
		}
		if err := c.Run(res); err != nil {
			r.Failures = append(r.Failures, fmt.Sprintf("%s: %v", c.Name, err))
		}
	}
	r.Pass = len(r.Failures) == 0
	return r
}

// MasksEqual checks that both exposures carry identical mask planes.
func MasksEqual() Check {
	return Check{
		Name: "masks_equal",
		Run: func(res *stats.Result) error {
			if ok, diff := stats.MasksEqual(res.Exposure1.Mask, res.Exposure2.Mask); !ok {
				return fmt.Errorf("%d mask pixels differ", diff)
			}
			return nil
		},
	}
}

type plane struct {
	name string
	get  func(*stats.Result) []float64
}

var (
	imagePlane    = plane{"image", func(r *stats.Result) []float64 { return r.ImageStats }}
	variancePlane = plane{"variance", func(r *stats.Result) []float64 { return r.VarianceStats }}
)

// statNear checks that statistic index of plane pl is want within machine epsilon.
func statNear(name string, pl plane, index int, want float64) Check {
	return Check{
		Name: name,
		Run: func(res *stats.Result) error {
			seq := pl.get(res)
			if index >= len(seq) {
				return fmt.Errorf("%s statistics have %d entries, want index %d", pl.name, len(seq), index)
			}
			if got := seq[index]; !FloatsAlmostEqual(got, want, Epsilon, Epsilon) {
				return fmt.Errorf("%s %s = %g, want %g", pl.name, stats.Names[index], got, want)
			}
			return nil
		},
	}
}

func disable(c Check) Check {
	c.Disabled = true
	return c
}

// Report is the outcome of evaluating a policy.
type Report struct {
	Product       Product
	ImageStats    []float64
	MaskStats     []float64
	VarianceStats []float64

	Failures []string
	Disabled []string
	Enforced bool
	Pass     bool
}

// String prints the three statistics sequences.
func (r Report) String() string {
	return fmt.Sprintf("%s image=%v mask=%v variance=%v", r.Product, r.ImageStats, r.MaskStats, r.VarianceStats)
}

// ToMap renders the report for DoCommand responses and sensor readings.
func (r Report) ToMap() map[string]interface{} {
	failures := make([]interface{}, len(r.Failures))
	for i, f := range r.Failures {
		failures[i] = f
	}
	disabled := make([]interface{}, len(r.Disabled))
	for i, d := range r.Disabled {
		disabled[i] = d
	}
	return map[string]interface{}{
		"product":        string(r.Product),
		"pass":           r.Pass,
		"enforced":       r.Enforced,
		"failures":       failures,
		"disabled":       disabled,
		"image_stats":    labeled(r.ImageStats),
		"mask_stats":     labeled(r.MaskStats),
		"variance_stats": labeled(r.VarianceStats),
	}
}

func labeled(values []float64) map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range stats.Labeled(values) {
		out[k] = v
	}
	return out
}
