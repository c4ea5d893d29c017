package calibcompare

import (
	"errors"
	"math"
	"testing"

	"go.viam.com/test"

	"calibcompare/exposure/exposuretest"
	"calibcompare/stats"
)

func TestFloatsAlmostEqual(t *testing.T) {
	test.That(t, Epsilon, test.ShouldEqual, math.Nextafter(1, 2)-1)
	test.That(t, FloatsAlmostEqual(0, 0, Epsilon, Epsilon), test.ShouldBeTrue)
	test.That(t, FloatsAlmostEqual(Epsilon/2, 0, Epsilon, Epsilon), test.ShouldBeTrue)
	test.That(t, FloatsAlmostEqual(1e-6, 0, Epsilon, Epsilon), test.ShouldBeFalse)
	test.That(t, FloatsAlmostEqual(1e6, 1e6+1e-12, Epsilon, Epsilon), test.ShouldBeTrue)
	test.That(t, FloatsAlmostEqual(1, 1.01, 0.05, 0), test.ShouldBeTrue)
	test.That(t, FloatsAlmostEqual(math.NaN(), 0, 1, 1), test.ShouldBeFalse)
	test.That(t, FloatsAlmostEqual(math.NaN(), math.NaN(), 1, 1), test.ShouldBeFalse)
}

func compareFilled(t *testing.T, offset float32, maskBit int32) *stats.Result {
	t.Helper()
	a := exposuretest.Filled(4, 4, 100+offset, 2)
	b := exposuretest.Filled(4, 4, 100, 2)
	a.Mask[5] = maskBit
	res, err := stats.CompareExposures(a, b, stats.Options{})
	test.That(t, err, test.ShouldBeNil)
	return res
}

func TestPolicyFor(t *testing.T) {
	t.Run("bias asserts masks and leading image statistic", func(t *testing.T) {
		policy, err := PolicyFor(Bias)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, policy.Enforced(), test.ShouldBeTrue)

		report := policy.Evaluate(compareFilled(t, 0, 0))
		test.That(t, report.Pass, test.ShouldBeTrue)
		test.That(t, report.Failures, test.ShouldBeEmpty)
		test.That(t, report.Disabled, test.ShouldResemble, []string{"variance_min_zero"})
	})

	t.Run("bias fails on an image offset", func(t *testing.T) {
		policy, _ := PolicyFor(Bias)
		report := policy.Evaluate(compareFilled(t, 0.5, 0))
		test.That(t, report.Pass, test.ShouldBeFalse)
		test.That(t, len(report.Failures), test.ShouldEqual, 1)
		test.That(t, report.Failures[0], test.ShouldContainSubstring, "image_mean_zero")
	})

	t.Run("bias fails on a mask difference", func(t *testing.T) {
		policy, _ := PolicyFor(Bias)
		report := policy.Evaluate(compareFilled(t, 0, 1))
		test.That(t, report.Pass, test.ShouldBeFalse)
		test.That(t, len(report.Failures), test.ShouldEqual, 1)
		test.That(t, report.Failures[0], test.ShouldContainSubstring, "1 mask pixels differ")
	})

	for _, p := range []Product{Dark, Flat} {
		t.Run(string(p)+" only reports", func(t *testing.T) {
			policy, err := PolicyFor(p)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, policy.Enforced(), test.ShouldBeFalse)

			report := policy.Evaluate(compareFilled(t, 3, 1))
			test.That(t, report.Pass, test.ShouldBeTrue)
			test.That(t, report.Enforced, test.ShouldBeFalse)
			test.That(t, report.Disabled, test.ShouldResemble, []string{"masks_equal", "image_mean_zero"})
			test.That(t, report.ImageStats[stats.Mean], test.ShouldAlmostEqual, 3)
		})
	}

	t.Run("crosstalk has no comparison", func(t *testing.T) {
		_, err := PolicyFor(Crosstalk)
		test.That(t, errors.Is(err, ErrNoComparison), test.ShouldBeTrue)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := PolicyFor("fringe")
		test.That(t, errors.Is(err, ErrUnknownProduct), test.ShouldBeTrue)
	})
}

func TestReport(t *testing.T) {
	policy, _ := PolicyFor(Bias)
	report := policy.Evaluate(compareFilled(t, 0, 0))

	test.That(t, report.String(), test.ShouldStartWith, "bias image=[0 0 0 0 0]")

	m := report.ToMap()
	test.That(t, m["product"], test.ShouldEqual, "bias")
	test.That(t, m["pass"], test.ShouldEqual, true)
	test.That(t, m["enforced"], test.ShouldEqual, true)
	test.That(t, m["disabled"], test.ShouldResemble, []interface{}{"variance_min_zero"})
	imageStats := m["image_stats"].(map[string]interface{})
	test.That(t, imageStats["mean"], test.ShouldEqual, 0.0)
	test.That(t, len(imageStats), test.ShouldEqual, 5)
}
