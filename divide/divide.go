// Package divide partitions an image into the geometry of its work units.
//
// Every Divider produces a strict tiling: each pixel of the image belongs to
// exactly one unit.
package divide

import (
	"fmt"
	"strconv"
	"strings"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/chunk"
)

// DefaultBlockSize is used when a configured block size is not positive.
const DefaultBlockSize = 64

type Divider interface {
	// Divide splits a width×height image whose top-left pixel sits at origin
	// and which spans axis in the complex plane.
	Divide(width, height int, origin, axis complex128) []chunk.Geometry
	String() string
}

// geometry places a unit of w×h pixels at (x0, y0). All units of one image
// share its origin and step.
func geometry(width, height int, origin, axis complex128, x0, y0, w, h int) chunk.Geometry {
	return chunk.Geometry{
		Tile:        mandel.Tile{X0: x0, Y0: y0, W: w, H: h},
		ImageOrigin: origin,
		Step:        complex(real(axis)/float64(width), imag(axis)/float64(height)),
	}
}

// Single puts the whole image into one unit.
type Single struct{}

func (Single) Divide(width, height int, origin, axis complex128) []chunk.Geometry {
	if width <= 0 || height <= 0 {
		return nil
	}
	return []chunk.Geometry{geometry(width, height, origin, axis, 0, 0, width, height)}
}

func (Single) String() string {
	return "single"
}

// Rows cuts the image into horizontal bands of N rows, bottom band first.
type Rows struct {
	N int
}

func (r Rows) Divide(width, height int, origin, axis complex128) []chunk.Geometry {
	if width <= 0 || height <= 0 {
		return nil
	}
	n := max(r.N, 1)
	bands := (height + n - 1) / n
	out := make([]chunk.Geometry, 0, bands)
	for i := bands - 1; i >= 0; i-- {
		y0 := i * n
		h := min(n, height-y0)
		out = append(out, geometry(width, height, origin, axis, 0, y0, width, h))
	}
	return out
}

func (r Rows) String() string {
	return fmt.Sprintf("rows:%d", r.N)
}

// Columns cuts the image into vertical bands of N columns, rightmost first.
type Columns struct {
	N int
}

func (c Columns) Divide(width, height int, origin, axis complex128) []chunk.Geometry {
	if width <= 0 || height <= 0 {
		return nil
	}
	n := max(c.N, 1)
	bands := (width + n - 1) / n
	out := make([]chunk.Geometry, 0, bands)
	for i := bands - 1; i >= 0; i-- {
		x0 := i * n
		w := min(n, width-x0)
		out = append(out, geometry(width, height, origin, axis, x0, 0, w, height))
	}
	return out
}

func (c Columns) String() string {
	return fmt.Sprintf("columns:%d", c.N)
}

// Blocks cuts the image into square blocks. The size is read from Size each
// time the image is divided.
type Blocks struct {
	Size func() int
}

// FixedBlocks divides into s×s blocks.
func FixedBlocks(s int) Blocks {
	return Blocks{Size: func() int { return s }}
}

// ConfiguredBlocks reads the block size from size at division time.
func ConfiguredBlocks(size func() int) Blocks {
	return Blocks{Size: size}
}

func (b Blocks) size() int {
	if b.Size == nil {
		return DefaultBlockSize
	}
	if s := b.Size(); s > 0 {
		return s
	}
	return DefaultBlockSize
}

// Divide emits the full blocks row by row, then the undersized blocks of the
// right edge, then those of the bottom edge including the corner.
func (b Blocks) Divide(width, height int, origin, axis complex128) []chunk.Geometry {
	if width <= 0 || height <= 0 {
		return nil
	}
	s := b.size()
	nx, ny := width/s, height/s
	rw, rh := width-nx*s, height-ny*s

	out := make([]chunk.Geometry, 0, (nx+1)*(ny+1))
	for by := 0; by < ny; by++ {
		for bx := 0; bx < nx; bx++ {
			out = append(out, geometry(width, height, origin, axis, bx*s, by*s, s, s))
		}
	}
	if rw > 0 {
		for by := 0; by < ny; by++ {
			out = append(out, geometry(width, height, origin, axis, nx*s, by*s, rw, s))
		}
	}
	if rh > 0 {
		for bx := 0; bx < nx; bx++ {
			out = append(out, geometry(width, height, origin, axis, bx*s, ny*s, s, rh))
		}
		if rw > 0 {
			out = append(out, geometry(width, height, origin, axis, nx*s, ny*s, rw, rh))
		}
	}
	return out
}

func (b Blocks) String() string {
	return fmt.Sprintf("blocks:%d", b.size())
}

// Parse builds a divider from its textual form: "single", "rows:N",
// "columns:N", "blocks:N" or plain "blocks", which reads its size from
// blockSize whenever it divides.
func Parse(text string, blockSize func() int) (Divider, error) {
	kind, arg, hasArg := strings.Cut(strings.TrimSpace(text), ":")

	n := 0
	if hasArg {
		var err error
		n, err = strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("divider %q: size must be a positive integer", text)
		}
	}

	switch kind {
	case "single":
		if hasArg {
			return nil, fmt.Errorf("divider %q: single takes no size", text)
		}
		return Single{}, nil
	case "rows":
		if !hasArg {
			return nil, fmt.Errorf("divider %q: rows needs a size", text)
		}
		return Rows{N: n}, nil
	case "columns":
		if !hasArg {
			return nil, fmt.Errorf("divider %q: columns needs a size", text)
		}
		return Columns{N: n}, nil
	case "blocks":
		if hasArg {
			return FixedBlocks(n), nil
		}
		return ConfiguredBlocks(blockSize), nil
	default:
		return nil, fmt.Errorf("unknown divider %q", text)
	}
}
