// Package sink contains observers of plot progress.
package sink

import (
	"sync"

	mandel "github.com/marben/adaptive_mandel"
)

// Nop ignores every event.
type Nop struct{}

func (Nop) UnitComplete(mandel.Unit)        {}
func (Nop) PassComplete(mandel.PassSummary) {}
func (Nop) PlotComplete(error)              {}

type multi []mandel.Sink

// Multi fans events out to every sink in order. Nil sinks are skipped.
func Multi(sinks ...mandel.Sink) mandel.Sink {
	m := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) UnitComplete(u mandel.Unit) {
	for _, s := range m {
		s.UnitComplete(u)
	}
}

func (m multi) PassComplete(p mandel.PassSummary) {
	for _, s := range m {
		s.PassComplete(p)
	}
}

func (m multi) PlotComplete(err error) {
	for _, s := range m {
		s.PlotComplete(err)
	}
}

// Counter records events. It is used by tests and by the status endpoint.
type Counter struct {
	mu          sync.Mutex
	units       int
	unitsInPass int
	perPass     []int
	summaries   []mandel.PassSummary
	completions int
	lastErr     error
}

func (c *Counter) UnitComplete(mandel.Unit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units++
	c.unitsInPass++
}

func (c *Counter) PassComplete(s mandel.PassSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perPass = append(c.perPass, c.unitsInPass)
	c.unitsInPass = 0
	c.summaries = append(c.summaries, s)
}

func (c *Counter) PlotComplete(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completions++
	c.lastErr = err
}

// Units is the total number of UnitComplete calls.
func (c *Counter) Units() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.units
}

// UnitsPerPass is the number of UnitComplete calls seen before each PassComplete.
func (c *Counter) UnitsPerPass() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.perPass...)
}

func (c *Counter) Summaries() []mandel.PassSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]mandel.PassSummary(nil), c.summaries...)
}

// Completions returns how often PlotComplete was called and the last error.
func (c *Counter) Completions() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completions, c.lastErr
}
