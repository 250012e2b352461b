package sink

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/logger"
)

type fakeUnit struct {
	tile mandel.Tile
	live int
}

func (f fakeUnit) Tile() mandel.Tile    { return f.tile }
func (f fakeUnit) Data() []mandel.Pixel { return nil }
func (f fakeUnit) LivePixels() int      { return f.live }

func TestMultiFansOut(t *testing.T) {
	a, b := &Counter{}, &Counter{}
	m := Multi(a, nil, b)

	u := fakeUnit{tile: mandel.Tile{W: 2, H: 2}}
	m.UnitComplete(u)
	m.UnitComplete(u)
	m.PassComplete(mandel.PassSummary{Pass: 1})
	m.PlotComplete(nil)

	for _, c := range []*Counter{a, b} {
		require.Equal(t, 2, c.Units())
		require.Equal(t, []int{2}, c.UnitsPerPass())
		n, err := c.Completions()
		require.Equal(t, 1, n)
		require.NoError(t, err)
	}
}

func TestCounterUnitsPerPass(t *testing.T) {
	c := &Counter{}
	u := fakeUnit{}
	for pass := 1; pass <= 3; pass++ {
		for i := 0; i < pass; i++ {
			c.UnitComplete(u)
		}
		c.PassComplete(mandel.PassSummary{Pass: pass})
	}
	boom := errors.New("boom")
	c.PlotComplete(boom)

	require.Equal(t, []int{1, 2, 3}, c.UnitsPerPass())
	require.Len(t, c.Summaries(), 3)
	require.Equal(t, 3, c.Summaries()[2].Pass)
	_, err := c.Completions()
	require.ErrorIs(t, err, boom)
}

func TestLogSink(t *testing.T) {
	log, logs := logger.NewObserverLogger("debug")
	s := Log{Logger: log}

	s.UnitComplete(fakeUnit{tile: mandel.Tile{X0: 1, Y0: 2, W: 3, H: 4}, live: 5})
	s.PassComplete(mandel.PassSummary{Text: "pass 1 done", Pass: 1, Ceiling: 256, Live: 10, Total: 100, Elapsed: time.Second})
	s.PlotComplete(errors.New("bad"))

	require.Equal(t, 3, logs.Len())
	entries := logs.All()
	require.Equal(t, "unit complete", entries[0].Message)
	require.Equal(t, "(1,2)-(4,6)", entries[0].ContextMap()["tile"])
	require.Equal(t, "pass 1 done", entries[1].Message)
	require.Equal(t, int64(256), entries[1].ContextMap()["ceiling"])
	require.Equal(t, "plot finished with error", entries[2].Message)
	require.Equal(t, "bad", entries[2].ContextMap()["error"])
}

func TestMetricsSink(t *testing.T) {
	m := Metrics{Plot: "metrics-test"}
	m.UnitComplete(fakeUnit{})
	m.UnitComplete(fakeUnit{})
	m.PassComplete(mandel.PassSummary{Pass: 1, Ceiling: 512, Live: 42})
	m.PlotComplete(nil)

	require.InDelta(t, 2, testutil.ToFloat64(unitsCompletedCounter.WithLabelValues("metrics-test")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(passesCounter.WithLabelValues("metrics-test")), 0)
	require.InDelta(t, 42, testutil.ToFloat64(livePixelsGauge.WithLabelValues("metrics-test")), 0)
	require.InDelta(t, 512, testutil.ToFloat64(ceilingGauge.WithLabelValues("metrics-test")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(plotsCounter.WithLabelValues("metrics-test", "ok")), 0)
}
