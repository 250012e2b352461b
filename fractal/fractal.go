// Package fractal implements the escape-time formulas the plotter can draw
// and the registry they are looked up in.
package fractal

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	mandel "github.com/marben/adaptive_mandel"
)

// ErrNonFinite is returned when a pixel's coordinate is not a finite number.
var ErrNonFinite = errors.New("non-finite coordinate")

const bailout = 4 // squared escape radius

// formula is an escape-time fractal z(n+1) = step(z(n), c), z(0) = 0.
type formula struct {
	name   string
	degree float64 // exponent of z, drives the smooth count
	step   func(z, c complex128) complex128
	step64 func(z, c complex64) complex64
	// interior reports coordinates known never to escape. Optional.
	interior func(c complex128) bool
}

var _ mandel.Fractal = (*formula)(nil)

func (f *formula) Name() string {
	return f.name
}

func (f *formula) Init(px *mandel.Pixel) {
	if f.interior != nil && f.interior(px.Origin) {
		px.Escaped = true
		px.Iterations = mandel.Infinite
	}
}

func (f *formula) Advance(ceiling int64, px *mandel.Pixel, prec mandel.Precision) error {
	if cmplx.IsNaN(px.Origin) || cmplx.IsInf(px.Origin) {
		return fmt.Errorf("%w: %v", ErrNonFinite, px.Origin)
	}

	switch prec {
	case mandel.PrecisionDouble:
		f.advance128(ceiling, px)
	case mandel.PrecisionSingle:
		f.advance64(ceiling, px)
	default:
		return fmt.Errorf("unsupported precision %v", prec)
	}
	return nil
}

func (f *formula) advance128(ceiling int64, px *mandel.Pixel) {
	z, c := px.Z, px.Origin
	n := px.Iterations
	for n < ceiling {
		z = f.step(z, c)
		n++
		if real(z)*real(z)+imag(z)*imag(z) > bailout {
			f.escape(px, n, z)
			return
		}
	}
	px.Z, px.Iterations = z, n
}

func (f *formula) advance64(ceiling int64, px *mandel.Pixel) {
	z, c := complex64(px.Z), complex64(px.Origin)
	n := px.Iterations
	for n < ceiling {
		z = f.step64(z, c)
		n++
		if real(z)*real(z)+imag(z)*imag(z) > bailout {
			f.escape(px, n, complex128(z))
			return
		}
	}
	px.Z, px.Iterations = complex128(z), n
}

func (f *formula) escape(px *mandel.Pixel, n int64, z complex128) {
	px.Z = z
	px.Iterations = n
	px.Escaped = true
	// n counts iterations, so this is i + 1 for the zero based escape index i
	px.Smooth = float32(float64(n) - math.Log(math.Log(cmplx.Abs(z)))/math.Log(f.degree))
	px.Angle = float32(cmplx.Phase(z))
}

// Mandelbrot is z² + c. The main cardioid and the period-2 bulb are detected
// in Init and never iterated.
func Mandelbrot() mandel.Fractal {
	return &formula{
		name:   "mandelbrot",
		degree: 2,
		step: func(z, c complex128) complex128 {
			return z*z + c
		},
		step64: func(z, c complex64) complex64 {
			return z*z + c
		},
		interior: inCardioidOrBulb,
	}
}

// Mandel3 is the cubic multibrot z³ + c.
func Mandel3() mandel.Fractal {
	return &formula{
		name:   "mandel3",
		degree: 3,
		step: func(z, c complex128) complex128 {
			return z*z*z + c
		},
		step64: func(z, c complex64) complex64 {
			return z*z*z + c
		},
	}
}

// Mandelbar, the tricorn: conj(z)² + c.
func Mandelbar() mandel.Fractal {
	return &formula{
		name:   "mandelbar",
		degree: 2,
		step: func(z, c complex128) complex128 {
			z = cmplx.Conj(z)
			return z*z + c
		},
		step64: func(z, c complex64) complex64 {
			z = complex(real(z), -imag(z))
			return z*z + c
		},
	}
}

// BurningShip is (|Re z| + i|Im z|)² + c.
func BurningShip() mandel.Fractal {
	return &formula{
		name:   "burning-ship",
		degree: 2,
		step: func(z, c complex128) complex128 {
			z = complex(math.Abs(real(z)), math.Abs(imag(z)))
			return z*z + c
		},
		step64: func(z, c complex64) complex64 {
			z = complex(float32(math.Abs(float64(real(z)))), float32(math.Abs(float64(imag(z)))))
			return z*z + c
		},
	}
}

func inCardioidOrBulb(c complex128) bool {
	x, y := real(c), imag(c)
	y2 := y * y

	q := (x-0.25)*(x-0.25) + y2
	if q*(q+(x-0.25)) <= 0.25*y2 {
		return true
	}
	return (x+1)*(x+1)+y2 <= 1.0/16
}
