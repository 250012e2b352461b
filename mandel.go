package mandel

import (
	"fmt"
	"image"
	"math"
	"math/cmplx"
	"sort"
)

// Region within the complex plane. Xmin/Ymin map to pixel (0,0).
type Region struct {
	Xmin, Xmax float64
	Ymin, Ymax float64
}

// Origin is the fractal coordinate of the top-left pixel.
func (r Region) Origin() complex128 {
	return complex(r.Xmin, r.Ymin)
}

// Axis is the extent of the region: real part is the width, imaginary part the height.
func (r Region) Axis() complex128 {
	return complex(r.Xmax-r.Xmin, r.Ymax-r.Ymin)
}

func (r Region) Center() complex128 {
	return complex((r.Xmin+r.Xmax)/2, (r.Ymin+r.Ymax)/2)
}

func (r Region) String() string {
	return fmt.Sprintf("[%g,%g]x[%g,%g]", r.Xmin, r.Xmax, r.Ymin, r.Ymax)
}

// RegionAround builds a region from its centre and axis lengths.
func RegionAround(center, size complex128) Region {
	hw, hh := real(size)/2, imag(size)/2
	return Region{
		Xmin: real(center) - hw,
		Xmax: real(center) + hw,
		Ymin: imag(center) - hh,
		Ymax: imag(center) + hh,
	}
}

// Classic regions / landmarks in the Mandelbrot set
var (
	// Whole set – the full cardioid with its bulbs
	WholeSet = Region{
		Xmin: -2.2,
		Xmax: 0.8,
		Ymin: -1.2,
		Ymax: 1.2,
	}

	// Seahorse Valley – dense filaments and repeating “seahorse” curls
	SeahorseValley = Region{
		Xmin: -0.8,
		Xmax: -0.7,
		Ymin: 0.05,
		Ymax: 0.15,
	}

	// Elephant Valley – large bulb with trunk-like tendrils
	ElephantValley = Region{
		Xmin: 0.25,
		Xmax: 0.35,
		Ymin: -0.05,
		Ymax: 0.05,
	}

	// Spiral Minibrot – small Mandelbrot copy with tight spiral arms
	SpiralMinibrot = Region{
		Xmin: -0.7435,
		Xmax: -0.7420,
		Ymin: 0.1310,
		Ymax: 0.1325,
	}

	// Triple Spiral – threefold symmetric spiral structure
	TripleSpiral = Region{
		Xmin: -0.7480,
		Xmax: -0.7450,
		Ymin: 0.0950,
		Ymax: 0.0980,
	}

	// Valley of the Dragon – deep, highly detailed spiral filaments
	ValleyOfTheDragon = Region{
		Xmin: -0.7400,
		Xmax: -0.7350,
		Ymin: 0.1800,
		Ymax: 0.1850,
	}

	// Minibrot in a Mini-Spiral – self-similar Mandelbrot copy inside a spiral arm
	MinibrotInMiniSpiral = Region{
		Xmin: -1.7390,
		Xmax: -1.7375,
		Ymin: -0.0235,
		Ymax: -0.0220,
	}
)

// Regions are the named presets selectable from configuration.
var Regions = map[string]Region{
	"whole":           WholeSet,
	"seahorse":        SeahorseValley,
	"elephant":        ElephantValley,
	"spiral-minibrot": SpiralMinibrot,
	"triple-spiral":   TripleSpiral,
	"dragon":          ValleyOfTheDragon,
	"mini-spiral":     MinibrotInMiniSpiral,
}

// LookupRegion returns the preset with the given name.
func LookupRegion(name string) (Region, error) {
	r, ok := Regions[name]
	if !ok {
		return Region{}, fmt.Errorf("unknown region %q (known: %v)", name, RegionNames())
	}
	return r, nil
}

func RegionNames() []string {
	names := make([]string, 0, len(Regions))
	for n := range Regions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Tile is the pixel footprint of a work unit within the whole image.
type Tile struct {
	X0, Y0 int // top-left pixel in global image
	W, H   int // tile width & height
}

func (t Tile) Rect() image.Rectangle {
	return image.Rect(t.X0, t.Y0, t.X0+t.W, t.Y0+t.H)
}

func (t Tile) Pixels() int {
	return t.W * t.H
}

// Infinite is the iteration count of a pixel deemed never to escape.
const Infinite int64 = -1

// SmoothUnknown marks the smooth iteration of a pixel that is still live.
const SmoothUnknown float32 = -1

// Pixel is the per-pixel iteration state owned by a work unit.
//
// Once Escaped is set the pixel is frozen for the rest of the run; Smooth and
// Angle are only meaningful from then on. Interior shortcuts mark a pixel
// escaped with Iterations == Infinite.
type Pixel struct {
	Iterations int64
	Origin     complex128
	Z          complex128
	Escaped    bool
	Smooth     float32
	Angle      float32
}

// Precision selects the arithmetic a fractal iterates with.
type Precision int

const (
	PrecisionDouble Precision = iota
	PrecisionSingle
)

func (p Precision) String() string {
	switch p {
	case PrecisionDouble:
		return "double"
	case PrecisionSingle:
		return "single"
	default:
		return "unknown"
	}
}

// ParsePrecision accepts "single", "double" and "auto". Auto yields ok == false
// so the caller can pick with PrecisionFor.
func ParsePrecision(s string) (p Precision, ok bool, err error) {
	switch s {
	case "double":
		return PrecisionDouble, true, nil
	case "single":
		return PrecisionSingle, true, nil
	case "", "auto":
		return PrecisionDouble, false, nil
	default:
		return PrecisionDouble, false, fmt.Errorf("unknown precision %q", s)
	}
}

// float32 carries 24 bits of mantissa; keep a few spare bits per pixel step.
const singleStepLimit = 1.0 / (1 << 18)

// PrecisionFor picks the cheapest precision that still resolves neighbouring
// pixels of a w×h image over axis at origin.
func PrecisionFor(origin, axis complex128, w, h int) Precision {
	if w <= 0 || h <= 0 {
		return PrecisionDouble
	}
	step := math.Min(math.Abs(real(axis))/float64(w), math.Abs(imag(axis))/float64(h))
	magnitude := math.Max(1, cmplx.Abs(origin)+cmplx.Abs(axis))
	if step/magnitude > singleStepLimit {
		return PrecisionSingle
	}
	return PrecisionDouble
}
