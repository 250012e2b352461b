package plot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/chunk"
	"github.com/marben/adaptive_mandel/divide"
	"github.com/marben/adaptive_mandel/fractal"
	"github.com/marben/adaptive_mandel/fractal/fractaltest"
	"github.com/marben/adaptive_mandel/logger"
	"github.com/marben/adaptive_mandel/sink"
	"github.com/marben/adaptive_mandel/workerpool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 10, 10
	cfg.Region = mandel.RegionAround(0, complex(4, 4))
	return cfg
}

func newPlot(t *testing.T, cfg Config, f mandel.Fractal, d divide.Divider, workers int, opts ...Option) *Plot {
	t.Helper()

	pool := workerpool.New(workers)
	p, err := New(cfg, f, d, pool, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Close()
		pool.Close()
	})
	return p
}

func wait(t *testing.T, p *Plot) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := p.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

// gate blocks every Advance call until it is opened.
type gate struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) hook() {
	g.once.Do(func() { close(g.entered) })
	<-g.release
}

func (g *gate) open() {
	close(g.release)
}

func ceilings(c *sink.Counter) []int64 {
	var out []int64
	for _, s := range c.Summaries() {
		out = append(out, s.Ceiling)
	}
	return out
}

func TestSingleChunkEndToEnd(t *testing.T) {
	counter := &sink.Counter{}
	p := newPlot(t, testConfig(), fractaltest.EscapeAfter(3), divide.Single{}, 4, WithSink(counter))

	require.NoError(t, p.Start())
	require.NoError(t, wait(t, p))

	units := p.Units()
	require.Len(t, units, 1)
	data := units[0].Data()
	require.Len(t, data, 100)
	for _, px := range data {
		require.True(t, px.Escaped)
		require.Equal(t, int64(3), px.Iterations)
	}

	stats := p.Stats()
	require.Equal(t, 1, stats.Passes)
	require.Equal(t, int64(256), stats.Ceiling)
	require.Zero(t, stats.Live)
	require.Equal(t, Completed, p.State())

	n, err := counter.Completions()
	require.Equal(t, 1, n)
	require.NoError(t, err)
}

// halfEscaping never escapes on the left half of the image and escapes after
// 300 iterations on the right half.
func halfEscaping() *fractaltest.Scripted {
	return &fractaltest.Scripted{
		EscapeAt: func(c complex128) int64 {
			if real(c) < 0 {
				return mandel.Infinite
			}
			return 300
		},
	}
}

func TestFourWayBlocksMatchSingleChunk(t *testing.T) {
	single := &sink.Counter{}
	ps := newPlot(t, testConfig(), halfEscaping(), divide.Single{}, 2, WithSink(single))
	require.NoError(t, ps.Start())
	require.NoError(t, wait(t, ps))

	blocks := &sink.Counter{}
	pb := newPlot(t, testConfig(), halfEscaping(), divide.FixedBlocks(7), 2, WithSink(blocks))
	require.NoError(t, pb.Start())
	require.NoError(t, wait(t, pb))

	require.Len(t, pb.Units(), 4)
	perPass := blocks.UnitsPerPass()
	require.Len(t, perPass, 3)
	for _, n := range perPass {
		require.Equal(t, 4, n)
	}

	liveSingle := make([]int, 0)
	for _, s := range single.Summaries() {
		liveSingle = append(liveSingle, s.Live)
	}
	liveBlocks := make([]int, 0)
	for _, s := range blocks.Summaries() {
		liveBlocks = append(liveBlocks, s.Live)
	}
	require.Equal(t, []int{100, 50, 50}, liveSingle)
	require.Equal(t, liveSingle, liveBlocks)
}

// iterationsByPixel lays the iteration counts of units out in image order.
func iterationsByPixel(width, height int, units []mandel.Unit) []int64 {
	out := make([]int64, width*height)
	for _, u := range units {
		tile, data := u.Tile(), u.Data()
		for i, px := range data {
			out[(tile.Y0+i/tile.W)*width+tile.X0+i%tile.W] = px.Iterations
		}
	}
	return out
}

func TestMandelbrotBlocksMatchSingleChunk(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height = 160, 120
	cfg.Region = mandel.SeahorseValley
	cfg.MaxPasses = 4

	run := func(d divide.Divider) ([]int, []int64) {
		counter := &sink.Counter{}
		p := newPlot(t, cfg, fractal.Mandelbrot(), d, 4, WithSink(counter), WithPrecision(mandel.PrecisionDouble))
		require.NoError(t, p.Start())
		require.NoError(t, wait(t, p))

		var live []int
		for _, s := range counter.Summaries() {
			live = append(live, s.Live)
		}
		return live, iterationsByPixel(cfg.Width, cfg.Height, p.Units())
	}

	liveSingle, itersSingle := run(divide.Single{})
	for _, d := range []divide.Divider{divide.FixedBlocks(7), divide.Rows{N: 3}, divide.Columns{N: 11}} {
		live, iters := run(d)
		require.Equal(t, liveSingle, live, d.String())
		require.Equal(t, itersSingle, iters, d.String())
	}
}

func TestAlwaysEscapingTerminatesAfterOnePass(t *testing.T) {
	f := fractaltest.EscapeAfter(1)
	p := newPlot(t, testConfig(), f, divide.FixedBlocks(4), 3)

	require.NoError(t, p.Start())
	require.NoError(t, wait(t, p))

	stats := p.Stats()
	require.Equal(t, 1, stats.Passes)
	require.Zero(t, stats.Live)
	require.Equal(t, int64(100), f.Advances())
}

func TestCeilingGrowsMonotonically(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPasses = 8
	counter := &sink.Counter{}
	p := newPlot(t, cfg, fractaltest.Never(), divide.Rows{N: 3}, 2, WithSink(counter))

	require.NoError(t, p.Start())
	require.NoError(t, wait(t, p))

	got := ceilings(counter)
	require.Len(t, got, 8)
	for i := 1; i < len(got); i++ {
		require.Greater(t, got[i], got[i-1])
	}
	require.Equal(t, []int64{256, 384, 512, 768, 1024, 1536, 2048, 3072}, got)

	// Live pixels are left resumable at the last ceiling.
	for _, u := range p.Units() {
		for _, px := range u.Data() {
			require.False(t, px.Escaped)
			require.Equal(t, int64(3072), px.Iterations)
			require.Equal(t, mandel.SmoothUnknown, px.Smooth)
		}
	}
}

func TestNoPixelAdvancedTwicePerPass(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPasses = 3
	f := fractaltest.Never()
	p := newPlot(t, cfg, f, divide.FixedBlocks(3), 2)

	require.NoError(t, p.Start())
	require.NoError(t, wait(t, p))

	require.Len(t, p.Units(), 16)
	for _, u := range p.Units() {
		for _, px := range u.Data() {
			require.Equal(t, 3.0, real(px.Z))
		}
	}
	require.Equal(t, int64(300), f.Advances())
}

func TestStopIsObservedBetweenPasses(t *testing.T) {
	g := newGate()
	f := &fractaltest.Scripted{Hook: g.hook}
	counter := &sink.Counter{}
	p := newPlot(t, testConfig(), f, divide.FixedBlocks(5), 2, WithSink(counter))

	require.NoError(t, p.Start())
	<-g.entered
	p.Stop()
	require.Equal(t, Running, p.State())
	g.open()

	require.NoError(t, wait(t, p))
	require.Equal(t, Stopped, p.State())
	require.Equal(t, 1, p.Stats().Passes)

	// The pass in flight ran to completion on every unit.
	require.Equal(t, []int{4}, counter.UnitsPerPass())
	for _, u := range p.Units() {
		for _, px := range u.Data() {
			require.Equal(t, int64(256), px.Iterations)
		}
	}

	n, err := counter.Completions()
	require.Equal(t, 1, n)
	require.NoError(t, err)
}

func TestResumeContinuesExistingUnits(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPasses = 2
	f := fractaltest.Never()
	counter := &sink.Counter{}
	p := newPlot(t, cfg, f, divide.FixedBlocks(5), 2, WithSink(counter))

	require.NoError(t, p.Start())
	require.NoError(t, wait(t, p))
	require.Equal(t, Completed, p.State())
	before := p.Units()

	require.NoError(t, p.Resume())
	require.NoError(t, wait(t, p))

	require.Equal(t, []int64{256, 384, 512, 768}, ceilings(counter))
	var passes []int
	for _, s := range counter.Summaries() {
		passes = append(passes, s.Pass)
	}
	require.Equal(t, []int{1, 2, 3, 4}, passes)
	require.Equal(t, 4, p.Stats().Passes)

	// Same units, prepared once.
	require.Equal(t, before, p.Units())
	require.Equal(t, int64(100), f.Inits())
	for _, u := range p.Units() {
		for _, px := range u.Data() {
			require.Equal(t, int64(768), px.Iterations)
			require.Equal(t, 4.0, real(px.Z))
		}
	}
}

func TestRestartUsesFreshPixels(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPasses = 1
	f := fractaltest.Never()
	counter := &sink.Counter{}
	p := newPlot(t, cfg, f, divide.Single{}, 1, WithSink(counter))

	require.NoError(t, p.Start())
	require.NoError(t, wait(t, p))
	require.NoError(t, p.Start())
	require.NoError(t, wait(t, p))

	require.Equal(t, []int64{256, 256}, ceilings(counter))
	require.Equal(t, int64(200), f.Inits())
	require.Equal(t, 1, p.Stats().Passes)
}

func TestResumeAfterOverflowGuard(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCeiling = MaxCeiling - 10
	counter := &sink.Counter{}
	p := newPlot(t, cfg, fractaltest.Never(), divide.Single{}, 1, WithSink(counter))

	require.NoError(t, p.Start())
	require.NoError(t, wait(t, p))
	require.Equal(t, Completed, p.State())
	require.Len(t, counter.Summaries(), 1)

	require.NoError(t, p.Resume())
	require.NoError(t, wait(t, p))
	require.Equal(t, Completed, p.State())
	require.Len(t, counter.Summaries(), 1)
	require.Equal(t, MaxCeiling-10, p.Stats().Ceiling)

	n, _ := counter.Completions()
	require.Equal(t, 2, n)
}

func TestStrategyFailure(t *testing.T) {
	boom := errors.New("boom")
	f := &fractaltest.Scripted{
		Fail: func(c complex128) error {
			if real(c) > 1 {
				return boom
			}
			return nil
		},
	}
	log, logs := logger.NewObserverLogger("error")
	counter := &sink.Counter{}
	p := newPlot(t, testConfig(), f, divide.FixedBlocks(5), 2, WithSink(counter), WithLogger(log))

	require.NoError(t, p.Start())
	err := wait(t, p)

	var se *chunk.StrategyError
	require.ErrorAs(t, err, &se)
	require.ErrorIs(t, err, boom)
	require.Equal(t, Failed, p.State())
	require.Zero(t, p.Stats().Passes)
	require.Empty(t, counter.Summaries())

	n, plotErr := counter.Completions()
	require.Equal(t, 1, n)
	require.ErrorIs(t, plotErr, boom)
	require.Equal(t, 1, logs.FilterMessage("plot failed").Len())

	// A failed plot can be resumed; it fails again.
	require.NoError(t, p.Resume())
	require.ErrorIs(t, wait(t, p), boom)
}

func TestStartWhileRunning(t *testing.T) {
	g := newGate()
	p := newPlot(t, testConfig(), &fractaltest.Scripted{Hook: g.hook}, divide.Single{}, 1)

	require.NoError(t, p.Start())
	<-g.entered

	require.ErrorIs(t, p.Start(), ErrRunning)
	require.ErrorIs(t, p.Resume(), ErrRunning)

	p.Stop()
	g.open()
	require.NoError(t, wait(t, p))
}

func TestResumeBeforeStart(t *testing.T) {
	p := newPlot(t, testConfig(), fractaltest.Never(), divide.Single{}, 1)

	require.ErrorIs(t, p.Resume(), ErrNotStarted)
	require.Equal(t, Idle, p.State())
	require.NoError(t, p.Wait(context.Background()))

	// The failed resume left the plot startable.
	require.NoError(t, p.Start())
	p.Stop()
	require.NoError(t, wait(t, p))
}

func TestWaitHonoursContext(t *testing.T) {
	g := newGate()
	p := newPlot(t, testConfig(), &fractaltest.Scripted{Hook: g.hook}, divide.Single{}, 1)

	require.NoError(t, p.Start())
	<-g.entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)

	p.Stop()
	g.open()
	require.NoError(t, wait(t, p))
}

func TestCloseWhileRunning(t *testing.T) {
	g := newGate()
	pool := workerpool.New(2)
	defer pool.Close()

	p, err := New(testConfig(), &fractaltest.Scripted{Hook: g.hook}, divide.FixedBlocks(5), pool)
	require.NoError(t, err)

	require.NoError(t, p.Start())
	<-g.entered

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned during a pass")
	case <-time.After(20 * time.Millisecond):
	}
	g.open()
	<-closed

	require.NoError(t, wait(t, p))
	require.Equal(t, Stopped, p.State())
	require.Equal(t, 1, p.Stats().Passes)

	require.ErrorIs(t, p.Start(), ErrClosed)
	require.ErrorIs(t, p.Resume(), ErrClosed)
	p.Close()
}

// closingSink closes its plot after the first pass, from a goroutine of its
// own.
type closingSink struct {
	sink.Nop
	p      *Plot
	once   sync.Once
	closed chan struct{}
}

func (s *closingSink) PassComplete(mandel.PassSummary) {
	s.once.Do(func() {
		go func() {
			s.p.Close()
			close(s.closed)
		}()
	})
}

func TestSinkClosesPlotFromOwnGoroutine(t *testing.T) {
	cs := &closingSink{closed: make(chan struct{})}
	p := newPlot(t, testConfig(), fractaltest.Never(), divide.FixedBlocks(5), 2, WithSink(cs))
	cs.p = p
	require.NoError(t, p.Start())

	select {
	case <-cs.closed:
	case <-time.After(10 * time.Second):
		t.Fatal("Close called from a sink goroutine did not return")
	}

	require.NoError(t, wait(t, p))
	require.NotEqual(t, Running, p.State())
	require.ErrorIs(t, p.Start(), ErrClosed)
}

func TestPlotsShareAPool(t *testing.T) {
	pool := workerpool.New(3)
	defer pool.Close()

	var plots []*Plot
	for i := 0; i < 4; i++ {
		p, err := New(testConfig(), fractaltest.EscapeAfter(int64(100*(i+1))), divide.FixedBlocks(4), pool)
		require.NoError(t, err)
		plots = append(plots, p)
		require.NoError(t, p.Start())
	}

	for _, p := range plots {
		require.NoError(t, wait(t, p))
		require.Zero(t, p.Stats().Live)
		p.Close()
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	pool := workerpool.New(1)
	defer pool.Close()

	cfg := testConfig()
	cfg.Width = 0
	_, err := New(cfg, fractaltest.Never(), divide.Single{}, pool)
	require.Error(t, err)

	_, err = New(testConfig(), nil, divide.Single{}, pool)
	require.Error(t, err)
}
