// Package fractaltest provides scripted fractals for scheduler tests.
package fractaltest

import (
	"sync/atomic"

	mandel "github.com/marben/adaptive_mandel"
)

// Scripted is a fractal whose behaviour is decided per coordinate by the test.
//
// Every Advance call adds 1 to real(px.Z), so a test can check how many times
// each pixel was advanced.
type Scripted struct {
	// EscapeAt returns the iteration count a pixel escapes at, or
	// mandel.Infinite for pixels that never escape. Nil means never.
	EscapeAt func(c complex128) int64
	// Interior marks pixels escaped (with an infinite count) during Init.
	Interior func(c complex128) bool
	// Fail makes Advance return an error for matching pixels.
	Fail func(c complex128) error
	// Hook runs at the start of every Advance call.
	Hook func()

	inits    atomic.Int64
	advances atomic.Int64
}

var _ mandel.Fractal = (*Scripted)(nil)

// EscapeAfter escapes every pixel after exactly n iterations.
func EscapeAfter(n int64) *Scripted {
	return &Scripted{EscapeAt: func(complex128) int64 { return n }}
}

// Never is a fractal whose pixels never escape.
func Never() *Scripted {
	return &Scripted{}
}

func (s *Scripted) Name() string {
	return "scripted"
}

func (s *Scripted) Init(px *mandel.Pixel) {
	s.inits.Add(1)
	if s.Interior != nil && s.Interior(px.Origin) {
		px.Escaped = true
		px.Iterations = mandel.Infinite
	}
}

func (s *Scripted) Advance(ceiling int64, px *mandel.Pixel, _ mandel.Precision) error {
	s.advances.Add(1)
	if s.Hook != nil {
		s.Hook()
	}
	px.Z += 1

	if s.Fail != nil {
		if err := s.Fail(px.Origin); err != nil {
			return err
		}
	}

	at := mandel.Infinite
	if s.EscapeAt != nil {
		at = s.EscapeAt(px.Origin)
	}
	if at != mandel.Infinite && at <= ceiling {
		px.Iterations = at
		px.Escaped = true
		px.Smooth = float32(at)
		return nil
	}

	px.Iterations = ceiling
	return nil
}

// Inits is the number of Init calls so far.
func (s *Scripted) Inits() int64 {
	return s.inits.Load()
}

// Advances is the number of Advance calls so far.
func (s *Scripted) Advances() int64 {
	return s.advances.Load()
}
