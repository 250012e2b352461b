// Package chunk holds the rectangular work units a plot is split into.
package chunk

import (
	"fmt"

	mandel "github.com/marben/adaptive_mandel"
)

// Geometry is the immutable part of a work unit.
//
// Pixel coordinates are computed from the whole image's origin and per-pixel
// step, so a pixel maps to the same point whichever unit it falls into.
type Geometry struct {
	mandel.Tile
	ImageOrigin complex128 // fractal coordinate of the image's top-left pixel
	Step        complex128 // real part is the x step, imaginary part the y step
	Precision   mandel.Precision
}

// Coordinate maps a pixel local to the unit into the complex plane.
func (g Geometry) Coordinate(x, y int) complex128 {
	re := real(g.ImageOrigin) + float64(g.X0+x)*real(g.Step)
	im := imag(g.ImageOrigin) + float64(g.Y0+y)*imag(g.Step)
	return complex(re, im)
}

// Origin is the fractal coordinate of the unit's top-left pixel.
func (g Geometry) Origin() complex128 {
	return g.Coordinate(0, 0)
}

// Axis is the unit's extent in the complex plane.
func (g Geometry) Axis() complex128 {
	return complex(float64(g.W)*real(g.Step), float64(g.H)*imag(g.Step))
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", g.W, g.H, g.X0, g.Y0)
}

// StrategyError reports a fractal failing while a unit was being iterated.
// Pixels iterated before the failure keep their new state.
type StrategyError struct {
	Tile    mandel.Tile
	Fractal string
	Err     error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("fractal %s failed in tile %v: %v", e.Fractal, e.Tile.Rect(), e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// Chunk is a work unit. It owns the pixel state of its tile and is iterated
// once per pass up to the ceiling set before the pass.
//
// A Chunk is not safe for concurrent use; the scheduler runs each chunk on at
// most one goroutine at a time.
type Chunk struct {
	geom    Geometry
	fractal mandel.Fractal
	sink    mandel.Sink

	pixels   []mandel.Pixel
	prepared bool
	live     int
	ceiling  int64
}

var _ mandel.Unit = (*Chunk)(nil)

// New creates an unprepared chunk. sink may be nil.
func New(g Geometry, f mandel.Fractal, sink mandel.Sink) *Chunk {
	return &Chunk{
		geom:    g,
		fractal: f,
		sink:    sink,
		live:    g.Pixels(),
	}
}

func (c *Chunk) Geometry() Geometry {
	return c.geom
}

func (c *Chunk) Fractal() mandel.Fractal {
	return c.fractal
}

func (c *Chunk) Tile() mandel.Tile {
	return c.geom.Tile
}

// Data returns the pixel buffer in row-major order, nil before preparation.
func (c *Chunk) Data() []mandel.Pixel {
	return c.pixels
}

// LivePixels is the number of pixels that have not escaped yet.
func (c *Chunk) LivePixels() int {
	return c.live
}

func (c *Chunk) Ceiling() int64 {
	return c.ceiling
}

func (c *Chunk) SetCeiling(ceiling int64) {
	c.ceiling = ceiling
}

func (c *Chunk) Prepared() bool {
	return c.prepared
}

// Prepare allocates the pixel buffer and lets the fractal initialise every
// pixel. Only the first call has an effect.
func (c *Chunk) Prepare() {
	if c.prepared {
		return
	}

	c.pixels = make([]mandel.Pixel, c.geom.Pixels())
	live := 0
	i := 0
	for y := 0; y < c.geom.H; y++ {
		for x := 0; x < c.geom.W; x++ {
			px := &c.pixels[i]
			px.Origin = c.geom.Coordinate(x, y)
			px.Smooth = mandel.SmoothUnknown
			c.fractal.Init(px)
			if !px.Escaped {
				live++
			}
			i++
		}
	}

	c.live = live
	c.prepared = true
}

// Run iterates every live pixel up to the current ceiling and then reports
// the chunk to the sink. A fractal error aborts the sweep.
func (c *Chunk) Run() error {
	c.Prepare()

	for i := range c.pixels {
		px := &c.pixels[i]
		if px.Escaped {
			continue
		}

		if err := c.fractal.Advance(c.ceiling, px, c.geom.Precision); err != nil {
			return &StrategyError{Tile: c.geom.Tile, Fractal: c.fractal.Name(), Err: err}
		}

		if px.Escaped {
			c.live--
		} else {
			px.Smooth = mandel.SmoothUnknown
		}
	}

	if c.sink != nil {
		c.sink.UnitComplete(c)
	}
	return nil
}
