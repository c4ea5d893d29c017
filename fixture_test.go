package calibcompare

import (
	"path/filepath"
	"testing"

	"calibcompare/exposure"
	"calibcompare/exposure/exposuretest"
	"calibcompare/pkgdir"
)

// packageRoots is a pair of temporary gen2/gen3 package roots laid out like the
// installed data packages.
type packageRoots struct {
	gen2, gen3 string
}

func newPackageRoots(t *testing.T) *packageRoots {
	t.Helper()
	return &packageRoots{gen2: t.TempDir(), gen3: t.TempDir()}
}

func (r *packageRoots) registry() pkgdir.Registry {
	return pkgdir.Registry{
		DefaultGen2Package: r.gen2,
		DefaultGen3Package: r.gen3,
	}
}

// write stores the gen2 and gen3 exposures of p at their descriptor paths.
func (r *packageRoots) write(t *testing.T, p Product, gen2, gen3 *exposure.Exposure) {
	t.Helper()
	rel2, err := Filename(p, Gen2)
	if err != nil {
		t.Fatalf("Filename(%s, gen2): %v", p, err)
	}
	rel3, err := Filename(p, Gen3)
	if err != nil {
		t.Fatalf("Filename(%s, gen3): %v", p, err)
	}
	exposuretest.Write(t, filepath.Join(r.gen2, filepath.FromSlash(rel2)), gen2)
	exposuretest.Write(t, filepath.Join(r.gen3, filepath.FromSlash(rel3)), gen3)
}

// writeMatching stores identical exposures for p in both generations.
func (r *packageRoots) writeMatching(t *testing.T, p Product) {
	t.Helper()
	r.write(t, p, exposuretest.Filled(8, 6, 1000, 5), exposuretest.Filled(8, 6, 1000, 5))
}
