// Package plot schedules the adaptive multi-pass rendering of a fractal.
//
// A Plot splits its image into chunks once and then runs passes over them
// with a growing iteration ceiling until enough pixels have escaped and the
// number of pixels escaping per pass has dropped off. Every Plot owns one
// control goroutine which alone mutates the scheduling state; the chunks of
// a pass run concurrently on a worker pool that may be shared between plots.
package plot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/chunk"
	"github.com/marben/adaptive_mandel/divide"
	"github.com/marben/adaptive_mandel/logger"
	"github.com/marben/adaptive_mandel/sink"
)

var tracer = otel.Tracer("github.com/marben/adaptive_mandel/plot")

var (
	ErrRunning    = errors.New("plot is running")
	ErrClosed     = errors.New("plot is closed")
	ErrNotStarted = errors.New("plot has not been started")
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdResume
	cmdShutdown
)

type command struct {
	kind commandKind
	run  *run
}

// run is the completion handle of one Start or Resume.
type run struct {
	id   uuid.UUID
	done chan struct{}
	err  error
}

// Stats is a snapshot of a plot's progress.
type Stats struct {
	RunID     string        `json:"run_id"`
	State     string        `json:"state"`
	Passes    int           `json:"passes"`
	Ceiling   int64         `json:"ceiling"`
	Live      int           `json:"live"`
	Total     int           `json:"total"`
	Units     int           `json:"units"`
	Precision string        `json:"precision"`
	Elapsed   time.Duration `json:"elapsed"`
}

type Option func(*Plot)

// WithSink sets the observer of the plot's progress.
func WithSink(s mandel.Sink) Option {
	return func(p *Plot) {
		p.sink = s
	}
}

func WithLogger(l logger.Logger) Option {
	return func(p *Plot) {
		p.logger = l
	}
}

// WithPrecision overrides the precision picked from the pixel step size.
func WithPrecision(prec mandel.Precision) Option {
	return func(p *Plot) {
		p.precision = prec
	}
}

// Plot is an adaptive rendering of one region of a fractal.
type Plot struct {
	cfg       Config
	fractal   mandel.Fractal
	divider   divide.Divider
	pool      Submitter
	sink      mandel.Sink
	logger    logger.Logger
	precision mandel.Precision

	cmdMu     sync.Mutex
	cmds      chan command
	exited    chan struct{}
	closeOnce sync.Once

	running      atomic.Bool
	stop         atomic.Bool
	shuttingDown atomic.Bool
	state        atomic.Int32
	current      atomic.Pointer[run]
	stats        atomic.Pointer[Stats]
	units        atomic.Pointer[[]mandel.Unit]

	// owned by the control goroutine
	geometry       []chunk.Geometry
	chunks         []*chunk.Chunk
	plottedCeiling int64
	plottedPasses  int
}

// New creates an idle plot and its control goroutine. The pool is borrowed;
// closing the plot does not close it.
func New(cfg Config, f mandel.Fractal, d divide.Divider, pool Submitter, opts ...Option) (*Plot, error) {
	if err := cfg.Verify(); err != nil {
		return nil, fmt.Errorf("invalid plot config: %w", err)
	}
	if f == nil || d == nil || pool == nil {
		return nil, errors.New("plot needs a fractal, a divider and a pool")
	}

	p := &Plot{
		cfg:       cfg,
		fractal:   f,
		divider:   d,
		pool:      pool,
		sink:      sink.Nop{},
		logger:    logger.NewNoopLogger(),
		precision: mandel.PrecisionFor(cfg.Region.Origin(), cfg.Region.Axis(), cfg.Width, cfg.Height),
		cmds:      make(chan command, 2),
		exited:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sink == nil {
		p.sink = sink.Nop{}
	}
	if p.logger == nil {
		p.logger = logger.NewNoopLogger()
	}

	p.stats.Store(&Stats{
		State:     Idle.String(),
		Total:     cfg.total(),
		Live:      cfg.total(),
		Precision: p.precision.String(),
	})

	go p.control()
	return p, nil
}

func (p *Plot) Config() Config {
	return p.cfg
}

func (p *Plot) State() State {
	return State(p.state.Load())
}

func (p *Plot) Stats() Stats {
	return *p.stats.Load()
}

// Units returns the work units of the latest run. Their pixel data is stable
// once Wait has returned and until the next Start or Resume.
func (p *Plot) Units() []mandel.Unit {
	u := p.units.Load()
	if u == nil {
		return nil
	}
	return *u
}

// Start begins a fresh plot at the initial ceiling. The image is divided on
// the first Start only; later starts reuse the geometry with fresh pixels.
func (p *Plot) Start() error {
	return p.begin(cmdStart)
}

// Resume runs further passes over the units of the previous run, continuing
// from the ceiling it reached.
func (p *Plot) Resume() error {
	return p.begin(cmdResume)
}

func (p *Plot) begin(kind commandKind) error {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	if p.shuttingDown.Load() {
		return ErrClosed
	}
	if !p.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	if kind == cmdResume && p.State() == Idle {
		p.running.Store(false)
		return ErrNotStarted
	}

	p.stop.Store(false)
	r := &run{id: uuid.New(), done: make(chan struct{})}
	p.current.Store(r)
	p.state.Store(int32(Running))
	p.cmds <- command{kind: kind, run: r}
	return nil
}

// Stop asks the plot to end after the pass in flight. It does not block.
func (p *Plot) Stop() {
	p.stop.Store(true)
}

// Wait blocks until the latest run finishes and returns its error. It
// returns nil straight away if the plot was never started.
func (p *Plot) Wait(ctx context.Context) error {
	r := p.current.Load()
	if r == nil {
		return nil
	}

	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the control goroutine down, letting a pass in flight finish.
// Start and Resume return ErrClosed afterwards.
//
// Close blocks until the control goroutine has exited, and sink callbacks run
// on that goroutine or on pool workers it waits for. Calling Close from a
// callback therefore deadlocks; a sink that wants to close the plot must call
// Close from a goroutine of its own.
func (p *Plot) Close() {
	p.closeOnce.Do(func() {
		p.cmdMu.Lock()
		p.shuttingDown.Store(true)
		p.cmds <- command{kind: cmdShutdown}
		p.cmdMu.Unlock()
	})
	<-p.exited
}

func (p *Plot) control() {
	defer close(p.exited)

	for cmd := range p.cmds {
		switch cmd.kind {
		case cmdShutdown:
			p.logger.Debug("plot control loop exiting")
			return
		case cmdStart:
			p.reset()
			p.execute(cmd.run, false)
		case cmdResume:
			p.execute(cmd.run, true)
		}
	}
}

// reset builds fresh chunks for a new plot.
func (p *Plot) reset() {
	if p.geometry == nil {
		origin, axis := p.cfg.Region.Origin(), p.cfg.Region.Axis()
		p.geometry = p.divider.Divide(p.cfg.Width, p.cfg.Height, origin, axis)
		for i := range p.geometry {
			p.geometry[i].Precision = p.precision
		}
		p.logger.Debug("image divided",
			zap.Stringer("divider", p.divider),
			zap.Int("units", len(p.geometry)),
			zap.Stringer("precision", p.precision),
		)
	}

	p.chunks = make([]*chunk.Chunk, len(p.geometry))
	units := make([]mandel.Unit, len(p.geometry))
	for i, g := range p.geometry {
		p.chunks[i] = chunk.New(g, p.fractal, p.sink)
		units[i] = p.chunks[i]
	}
	p.units.Store(&units)

	p.plottedCeiling = 0
	p.plottedPasses = 0
}

func (p *Plot) execute(r *run, resumed bool) {
	start := time.Now()
	log := p.logger.With(zap.String("run_id", r.id.String()), zap.String("fractal", p.fractal.Name()))

	ctx, span := tracer.Start(context.Background(), "plot.run", trace.WithAttributes(
		attribute.String("run_id", r.id.String()),
		attribute.String("fractal", p.fractal.Name()),
		attribute.Bool("resumed", resumed),
		attribute.Int("width", p.cfg.Width),
		attribute.Int("height", p.cfg.Height),
	))
	defer span.End()

	h := newHeuristic(p.cfg, p.plottedCeiling, p.plottedPasses)
	p.publish(r, Running, p.live(), 0)
	log.Info("plot started",
		zap.Bool("resumed", resumed),
		zap.Int64("ceiling", h.Ceiling()),
		zap.Int("passes", p.plottedPasses),
	)

	var (
		err       error
		converged = h.Done()
	)
	for !converged && !p.stop.Load() && !p.shuttingDown.Load() {
		ceiling := h.Ceiling()
		for _, c := range p.chunks {
			c.SetCeiling(ceiling)
		}

		passStart := time.Now()
		if err = NewPass(p.chunks).Run(ctx, p.pool); err != nil {
			break
		}

		live := p.live()
		converged = !h.Next(live)
		p.plottedCeiling, p.plottedPasses = h.plotted, h.passes

		summary := p.summary(h.passes, ceiling, live, time.Since(passStart))
		p.publish(r, Running, live, time.Since(start))
		log.Debug("pass complete",
			zap.Int("pass", summary.Pass),
			zap.Int64("ceiling", ceiling),
			zap.Int("live", live),
			zap.Duration("elapsed", summary.Elapsed),
		)
		span.AddEvent("pass", trace.WithAttributes(
			attribute.Int("pass", summary.Pass),
			attribute.Int64("ceiling", ceiling),
			attribute.Int("live", live),
		))
		p.sink.PassComplete(summary)
	}

	state := Stopped
	switch {
	case err != nil:
		state = Failed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("plot failed", zap.Error(err), zap.Int("passes", p.plottedPasses))
	case converged:
		state = Completed
		log.Info("plot complete",
			zap.Int("passes", p.plottedPasses),
			zap.Int64("ceiling", p.plottedCeiling),
			zap.Duration("elapsed", time.Since(start)),
		)
	default:
		log.Info("plot stopped", zap.Int("passes", p.plottedPasses), zap.Int64("ceiling", p.plottedCeiling))
	}

	p.publish(r, state, p.live(), time.Since(start))
	p.state.Store(int32(state))
	p.sink.PlotComplete(err)

	r.err = err
	p.running.Store(false)
	close(r.done)
}

func (p *Plot) live() int {
	live := 0
	for _, c := range p.chunks {
		live += c.LivePixels()
	}
	return live
}

func (p *Plot) summary(pass int, ceiling int64, live int, elapsed time.Duration) mandel.PassSummary {
	total := p.cfg.total()
	return mandel.PassSummary{
		Text: fmt.Sprintf("pass %d: ceiling %d, %d of %d pixels live (%.2f%%), took %v",
			pass, ceiling, live, total, 100*float64(live)/float64(total), elapsed.Round(time.Millisecond)),
		Pass:    pass,
		Ceiling: ceiling,
		Live:    live,
		Total:   total,
		Elapsed: elapsed,
	}
}

func (p *Plot) publish(r *run, state State, live int, elapsed time.Duration) {
	p.stats.Store(&Stats{
		RunID:     r.id.String(),
		State:     state.String(),
		Passes:    p.plottedPasses,
		Ceiling:   p.plottedCeiling,
		Live:      live,
		Total:     p.cfg.total(),
		Units:     len(p.chunks),
		Precision: p.precision.String(),
		Elapsed:   elapsed,
	})
}
