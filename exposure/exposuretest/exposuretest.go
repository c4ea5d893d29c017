// Package exposuretest writes synthetic exposures for tests.
package exposuretest

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/astrogo/fitsio"
	"go.viam.com/test"

	"calibcompare/exposure"
)

// DefaultMaskPlanes is the low end of the pipeline's default mask dictionary.
// Names are kept short enough that MP_<NAME> fits a plain 8-character keyword.
var DefaultMaskPlanes = map[string]int{
	"BAD":   0,
	"SAT":   1,
	"INTRP": 2,
	"CR":    3,
	"EDGE":  4,
}

// Filled returns a width x height exposure with every image pixel set to value and
// every variance pixel set to variance.
func Filled(width, height int, value, variance float32) *exposure.Exposure {
	exp := exposure.New(width, height)
	for i := range exp.Image {
		exp.Image[i] = value
		exp.Variance[i] = variance
	}
	for name, bit := range DefaultMaskPlanes {
		exp.MaskPlanes[name] = bit
	}
	return exp
}

// Ramp returns an exposure whose image pixel i holds offset + i*step.
func Ramp(width, height int, offset, step float32) *exposure.Exposure {
	exp := Filled(width, height, 0, 1)
	for i := range exp.Image {
		exp.Image[i] = offset + float32(i)*step
	}
	return exp
}

// Write stores exp at path in the on-disk exposure layout, creating parent
// directories as needed.
func Write(t testing.TB, path string, exp *exposure.Exposure) {
	t.Helper()
	test.That(t, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)

	w, err := os.Create(path)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, w.Close(), test.ShouldBeNil)
	}()

	f, err := fitsio.Create(w)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, f.Close(), test.ShouldBeNil)
	}()

	phdu, err := fitsio.NewPrimaryHDU(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f.Write(phdu), test.ShouldBeNil)

	axes := []int{exp.Width, exp.Height}

	img := fitsio.NewImage(-32, axes)
	defer img.Close()
	test.That(t, img.Header().Append(fitsio.Card{Name: "EXTNAME", Value: exposure.ImageExt}), test.ShouldBeNil)
	test.That(t, img.Write(exp.Image), test.ShouldBeNil)
	test.That(t, f.Write(img), test.ShouldBeNil)

	mask := fitsio.NewImage(32, axes)
	defer mask.Close()
	test.That(t, mask.Header().Append(fitsio.Card{Name: "EXTNAME", Value: exposure.MaskExt}), test.ShouldBeNil)
	names := make([]string, 0, len(exp.MaskPlanes))
	for name := range exp.MaskPlanes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		card := fitsio.Card{Name: exposure.MaskPlanePrefix + name, Value: exp.MaskPlanes[name]}
		test.That(t, mask.Header().Append(card), test.ShouldBeNil)
	}
	test.That(t, mask.Write(exp.Mask), test.ShouldBeNil)
	test.That(t, f.Write(mask), test.ShouldBeNil)

	variance := fitsio.NewImage(-32, axes)
	defer variance.Close()
	test.That(t, variance.Header().Append(fitsio.Card{Name: "EXTNAME", Value: exposure.VarianceExt}), test.ShouldBeNil)
	test.That(t, variance.Write(exp.Variance), test.ShouldBeNil)
	test.That(t, f.Write(variance), test.ShouldBeNil)
}
