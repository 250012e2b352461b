package plot

import "math"

// MaxCeiling bounds the iteration ceiling; reaching it ends the run.
const MaxCeiling int64 = math.MaxInt64 / 2

// heuristic decides the ceiling of every pass of one run and when the run
// has converged.
type heuristic struct {
	cfg Config

	pixelThreshold int
	deltaThreshold float64

	ceiling int64 // ceiling of the next pass
	scale   int64
	live    int

	passes    int   // passes over the lifetime of the plot
	runPasses int   // passes of this run
	plotted   int64 // ceiling of the last finished pass
	exhausted bool
}

// newHeuristic starts a run. plottedPasses and plottedCeiling describe the
// passes already done by earlier runs over the same units.
func newHeuristic(cfg Config, plottedCeiling int64, plottedPasses int) *heuristic {
	total := cfg.total()
	h := &heuristic{
		cfg:            cfg,
		pixelThreshold: total * (100 - cfg.MinEscapeePercent) / 100,
		deltaThreshold: float64(total) * cfg.LiveThreshold,
		live:           total,
		passes:         plottedPasses,
		plotted:        plottedCeiling,
	}

	if plottedPasses > 0 {
		div := cfg.EvenDivisor
		if plottedPasses%2 == 1 {
			div = cfg.OddDivisor
		}
		h.scale = max(plottedCeiling/div, 1)
		if h.scale >= MaxCeiling-plottedCeiling {
			h.exhausted = true
			return h
		}
		h.ceiling = plottedCeiling + h.scale
	} else {
		h.ceiling = cfg.InitialCeiling
		h.scale = h.ceiling
	}
	return h
}

// Done reports a resumed run that has no ceiling left to try.
func (h *heuristic) Done() bool {
	return h.exhausted
}

func (h *heuristic) Ceiling() int64 {
	return h.ceiling
}

// Next records the live pixel count after a pass at the current ceiling and
// moves on to the next ceiling. It reports whether another pass should run.
func (h *heuristic) Next(live int) bool {
	prev := h.live
	h.live = live

	proceed := true
	if live == 0 {
		proceed = false
	} else if live < h.pixelThreshold {
		delta := float64(prev - live)
		if delta < h.deltaThreshold {
			proceed = false
		} else if delta < 2*h.deltaThreshold {
			h.deltaThreshold *= 2
		}
	}

	h.passes++
	h.runPasses++
	h.plotted = h.ceiling
	if h.passes%2 == 1 {
		h.scale = max(h.ceiling/h.cfg.OddDivisor, 1)
	}

	if h.scale >= MaxCeiling-h.ceiling {
		h.exhausted = true
		proceed = false
	} else {
		h.ceiling += h.scale
	}

	if h.cfg.MaxPasses > 0 && h.runPasses >= h.cfg.MaxPasses {
		proceed = false
	}
	return proceed
}
