package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	mandel "github.com/marben/adaptive_mandel"
)

var (
	unitsCompletedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mandel_units_completed_total",
		Help: "The total number of work unit sweeps completed.",
	}, []string{"plot"})

	passesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mandel_passes_total",
		Help: "The total number of passes completed.",
	}, []string{"plot"})

	passDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mandel_pass_duration_seconds",
		Help:    "Wall time of a single pass over every work unit.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"plot"})

	livePixelsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mandel_live_pixels",
		Help: "Pixels that had not escaped after the last pass.",
	}, []string{"plot"})

	ceilingGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mandel_iteration_ceiling",
		Help: "Iteration ceiling of the last completed pass.",
	}, []string{"plot"})

	plotsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mandel_plots_finished_total",
		Help: "Plot runs that finished, by outcome.",
	}, []string{"plot", "outcome"})
)

// Metrics exports plot progress as prometheus metrics labelled with Plot.
type Metrics struct {
	Plot string
}

func (m Metrics) UnitComplete(mandel.Unit) {
	unitsCompletedCounter.WithLabelValues(m.Plot).Inc()
}

func (m Metrics) PassComplete(s mandel.PassSummary) {
	passesCounter.WithLabelValues(m.Plot).Inc()
	passDurationHistogram.WithLabelValues(m.Plot).Observe(s.Elapsed.Seconds())
	livePixelsGauge.WithLabelValues(m.Plot).Set(float64(s.Live))
	ceilingGauge.WithLabelValues(m.Plot).Set(float64(s.Ceiling))
}

func (m Metrics) PlotComplete(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	plotsCounter.WithLabelValues(m.Plot, outcome).Inc()
}
