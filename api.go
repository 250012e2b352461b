package mandel

import (
	"image"
	"time"
)

// Renderer turns work units into an image of the whole plot.
type Renderer interface {
	// DrawUnit paints u at its place in img. It may be called concurrently
	// for different units of the same image.
	DrawUnit(img *image.RGBA, u Unit)
	Render(width, height int, units []Unit) *image.RGBA
}

// Fractal is a pluggable escape-time formula.
//
// Init and Advance must only touch the pixel they are handed; they are called
// concurrently for pixels of different units.
type Fractal interface {
	Name() string
	// Init prepares a pixel whose Origin is set. It may mark the pixel
	// escaped straight away (known interior) without iterating.
	Init(px *Pixel)
	// Advance iterates px until it escapes or px.Iterations reaches ceiling.
	// A pixel that does not escape is left resumable.
	Advance(ceiling int64, px *Pixel, prec Precision) error
}

// Unit is the read-only view of a work unit given to sinks and renderers.
type Unit interface {
	Tile() Tile
	Data() []Pixel
	LivePixels() int
}

// PassSummary describes one completed pass over every unit of a plot.
type PassSummary struct {
	Text    string
	Pass    int
	Ceiling int64
	Live    int
	Total   int
	Elapsed time.Duration
}

// Sink observes plot progress. Callbacks must return quickly: UnitComplete
// runs on pool workers and the next pass waits for PassComplete.
//
// PassComplete and PlotComplete run on the plot's control goroutine, which
// also waits for UnitComplete calls. No callback may call the plot's Close,
// since Close waits for that goroutine to exit; close it from another
// goroutine instead.
type Sink interface {
	UnitComplete(u Unit)
	PassComplete(s PassSummary)
	PlotComplete(err error)
}

type EventKind string

const (
	// EventStatus carries the plot state, sent when a watcher connects.
	EventStatus EventKind = "status"
	// EventPass is sent after every pass.
	EventPass EventKind = "pass"
	// EventComplete is sent when a run ends, successfully or not.
	EventComplete EventKind = "complete"
)

// Event is a progress message streamed by the plot server to watchers.
type Event struct {
	Kind    EventKind     `json:"kind"`
	State   string        `json:"state"`
	Text    string        `json:"text,omitempty"`
	Pass    int           `json:"pass"`
	Ceiling int64         `json:"ceiling"`
	Live    int           `json:"live"`
	Total   int           `json:"total"`
	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`
}
