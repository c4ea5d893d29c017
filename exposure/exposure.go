// Package exposure reads calibration exposures from FITS files.
//
// An exposure on disk is a primary HDU carrying metadata followed by three image
// extensions: IMAGE, MASK and VARIANCE. Extensions are located by EXTNAME and fall
// back to HDU indices 1, 2 and 3 for files written without names. Mask plane
// definitions are read from MP_<NAME> cards of the MASK header.
package exposure

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/astrogo/fitsio"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// Extension names of the three planes.
const (
	ImageExt    = "IMAGE"
	MaskExt     = "MASK"
	VarianceExt = "VARIANCE"
)

// MaskPlanePrefix prefixes the header cards that map a mask plane name to its bit.
const MaskPlanePrefix = "MP_"

// ErrLoad is returned for exposures that are missing, unreadable or malformed.
var ErrLoad = errors.New("exposure load failed")

// Exposure is an in-memory image with mask and variance planes of the same shape.
// Pixels are stored row-major, x varying fastest.
type Exposure struct {
	Width, Height int

	Image    []float32
	Mask     []int32
	Variance []float32

	// MaskPlanes maps a plane name (e.g. "BAD") to its bit index.
	MaskPlanes map[string]int
	// Metadata holds the primary header cards.
	Metadata map[string]interface{}
}

// New allocates an exposure of the given shape with zeroed planes.
func New(width, height int) *Exposure {
	n := width * height
	return &Exposure{
		Width:      width,
		Height:     height,
		Image:      make([]float32, n),
		Mask:       make([]int32, n),
		Variance:   make([]float32, n),
		MaskPlanes: map[string]int{},
		Metadata:   map[string]interface{}{},
	}
}

// Len is the number of pixels per plane.
func (e *Exposure) Len() int {
	return e.Width * e.Height
}

// Index returns the offset of pixel (x, y) in each plane.
func (e *Exposure) Index(x, y int) int {
	return y*e.Width + x
}

// MaskBits returns the OR of the bits of the named planes. Names this exposure
// does not define contribute nothing.
func (e *Exposure) MaskBits(names ...string) int32 {
	var bits int32
	for _, name := range names {
		if bit, ok := e.MaskPlanes[strings.ToUpper(name)]; ok {
			bits |= 1 << uint(bit)
		}
	}
	return bits
}

// ReadFits loads the exposure stored at path. The file is read fully and closed
// before returning. All failures satisfy errors.Is(err, ErrLoad).
func ReadFits(path string) (*Exposure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	return readAndClose(f, path)
}

// readAndClose decodes rc and closes it. A failed close discards the exposure.
func readAndClose(rc io.ReadCloser, path string) (exp *Exposure, err error) {
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			exp = nil
			err = multierr.Combine(err, fmt.Errorf("%w: closing %s: %w", ErrLoad, path, cerr))
		}
	}()

	exp, err = Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return exp, nil
}

// Decode reads an exposure from a FITS stream.
func Decode(r io.Reader) (*Exposure, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	hdus := f.HDUs()
	if len(hdus) == 0 {
		return nil, fmt.Errorf("%w: no HDUs", ErrLoad)
	}

	imageHDU, err := findImage(hdus, ImageExt, 1)
	if err != nil {
		return nil, err
	}
	maskHDU, err := findImage(hdus, MaskExt, 2)
	if err != nil {
		return nil, err
	}
	varianceHDU, err := findImage(hdus, VarianceExt, 3)
	if err != nil {
		return nil, err
	}

	width, height, err := shape(imageHDU)
	if err != nil {
		return nil, err
	}
	for _, hdu := range []fitsio.Image{maskHDU, varianceHDU} {
		w, h, err := shape(hdu)
		if err != nil {
			return nil, err
		}
		if w != width || h != height {
			return nil, fmt.Errorf("%w: %s is %dx%d, image is %dx%d", ErrLoad, extName(hdu), w, h, width, height)
		}
	}

	exp := &Exposure{
		Width:      width,
		Height:     height,
		MaskPlanes: maskPlanes(maskHDU.Header()),
		Metadata:   cards(hdus[0].Header()),
	}
	if exp.Image, err = readFloat(imageHDU, exp.Len()); err != nil {
		return nil, err
	}
	if exp.Mask, err = readInt(maskHDU, exp.Len()); err != nil {
		return nil, err
	}
	if exp.Variance, err = readFloat(varianceHDU, exp.Len()); err != nil {
		return nil, err
	}
	return exp, nil
}

func findImage(hdus []fitsio.HDU, name string, index int) (fitsio.Image, error) {
	var found fitsio.HDU
	for _, hdu := range hdus {
		if strings.EqualFold(strings.TrimSpace(hdu.Name()), name) {
			found = hdu
			break
		}
	}
	if found == nil {
		if index >= len(hdus) {
			return nil, fmt.Errorf("%w: no %s extension", ErrLoad, name)
		}
		found = hdus[index]
	}
	img, ok := found.(fitsio.Image)
	if !ok {
		// tile-compressed planes are stored as binary tables
		return nil, fmt.Errorf("%w: %s extension is a %v HDU, not an image", ErrLoad, name, found.Type())
	}
	return img, nil
}

func shape(img fitsio.Image) (int, int, error) {
	axes := img.Header().Axes()
	if len(axes) != 2 {
		return 0, 0, fmt.Errorf("%w: %s has %d axes, want 2", ErrLoad, extName(img), len(axes))
	}
	return axes[0], axes[1], nil
}

func extName(hdu fitsio.HDU) string {
	if name := strings.TrimSpace(hdu.Name()); name != "" {
		return name
	}
	return "unnamed HDU"
}

func readFloat(img fitsio.Image, n int) ([]float32, error) {
	switch bitpix := img.Header().Bitpix(); bitpix {
	case -32:
		data := make([]float32, n)
		if err := img.Read(&data); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrLoad, extName(img), err)
		}
		return data, nil
	case -64:
		wide := make([]float64, n)
		if err := img.Read(&wide); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrLoad, extName(img), err)
		}
		data := make([]float32, n)
		for i, v := range wide {
			data[i] = float32(v)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s has BITPIX %d, want -32 or -64", ErrLoad, extName(img), bitpix)
	}
}

func readInt(img fitsio.Image, n int) ([]int32, error) {
	switch bitpix := img.Header().Bitpix(); bitpix {
	case 32:
		data := make([]int32, n)
		if err := img.Read(&data); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrLoad, extName(img), err)
		}
		return data, nil
	case 16:
		narrow := make([]int16, n)
		if err := img.Read(&narrow); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", ErrLoad, extName(img), err)
		}
		data := make([]int32, n)
		for i, v := range narrow {
			data[i] = int32(v)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s has BITPIX %d, want 32 or 16", ErrLoad, extName(img), bitpix)
	}
}

func maskPlanes(hdr *fitsio.Header) map[string]int {
	planes := map[string]int{}
	for _, key := range hdr.Keys() {
		if !strings.HasPrefix(key, MaskPlanePrefix) {
			continue
		}
		card := hdr.Get(key)
		if card == nil {
			continue
		}
		if bit, ok := toInt(card.Value); ok {
			planes[strings.TrimPrefix(key, MaskPlanePrefix)] = bit
		}
	}
	return planes
}

func cards(hdr *fitsio.Header) map[string]interface{} {
	md := map[string]interface{}{}
	for _, key := range hdr.Keys() {
		switch key {
		case "", "COMMENT", "HISTORY", "END":
			continue
		}
		if card := hdr.Get(key); card != nil {
			md[key] = card.Value
		}
	}
	return md
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
