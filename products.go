package calibcompare

import (
	"errors"
	"fmt"
	"strings"
)

// Product is a calibration product type.
type Product string

const (
	Bias      Product = "bias"
	Dark      Product = "dark"
	Flat      Product = "flat"
	Crosstalk Product = "crosstalk"
)

// Generation identifies the pipeline revision that wrote a product.
type Generation int

const (
	Gen2 Generation = 2
	Gen3 Generation = 3
)

// Default package roots holding each generation's products.
const (
	DefaultGen2Package = "ci_cpp_gen2"
	DefaultGen3Package = "ci_cpp_gen3"
)

var ErrUnknownProduct = errors.New("unknown calibration product")

// filenames maps each product and generation to its path below the package root.
var filenames = map[Product]map[Generation]string{
	Bias: {
		Gen2: "DATA/biasGen/bias/2020-01-28/bias-det000_2020-01-28.fits",
		Gen3: "DATA/calib/v00/bias/bias_bias_ci_cpp_bias_0_LATISS_calib_v00.fits",
	},
	Dark: {
		Gen2: "DATA/darkGen/dark/2020-01-28/dark-det000_2020-01-28.fits",
		Gen3: "DATA/calib/v00/dark/dark_dark_ci_cpp_dark_0_LATISS_calib_v00.fits",
	},
	Flat: {
		Gen2: "DATA/calibs/flat/KPNO_406_828nm~EMPTY/2020-01-28/flat_KPNO_406_828nm~EMPTY-det000_2020-01-28.fits",
		Gen3: "DATA/calib/v00/flat/KPNO_406_828nm~EMPTY/KPNO_406_828nm~EMPTY/flat_KPNO_406_828nm~EMPTY_KPNO_406_828nm~EMPTY_flat_ci_cpp_flat_0_LATISS_calib_v00.fits",
	},
	Crosstalk: {
		Gen2: "DATA/crosstalkGen/calibrations/crosstalk/crosstalk-det000.fits",
		Gen3: "DATA/ci_cpp_crosstalk/20200730T16h50m46s/crosstalkProposal/crosstalkProposal_0_LATISS_ci_cpp_crosstalk_20200730T16h50m46s.fits",
	},
}

// Products lists every product with a descriptor, in a fixed order.
func Products() []Product {
	return []Product{Bias, Dark, Flat, Crosstalk}
}

// ParseProduct accepts a product name in any case.
func ParseProduct(s string) (Product, error) {
	p := Product(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := filenames[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProduct, s)
	}
	return p, nil
}

// Filename returns the relative path of product p as written by generation g.
func Filename(p Product, g Generation) (string, error) {
	byGen, ok := filenames[p]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProduct, p)
	}
	name, ok := byGen[g]
	if !ok {
		return "", fmt.Errorf("no gen%d path for %s", g, p)
	}
	return name, nil
}
