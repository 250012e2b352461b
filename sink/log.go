package sink

import (
	"go.uber.org/zap"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/logger"
)

// Log writes progress to a logger: passes at info, units at debug.
type Log struct {
	Logger logger.Logger
}

func (l Log) UnitComplete(u mandel.Unit) {
	t := u.Tile()
	l.Logger.Debug("unit complete",
		zap.Stringer("tile", t.Rect()),
		zap.Int("live", u.LivePixels()),
	)
}

func (l Log) PassComplete(s mandel.PassSummary) {
	l.Logger.Info(s.Text,
		zap.Int("pass", s.Pass),
		zap.Int64("ceiling", s.Ceiling),
		zap.Int("live", s.Live),
		zap.Int("total", s.Total),
		zap.Duration("elapsed", s.Elapsed),
	)
}

// PlotComplete logs at info even on failure; the plot itself reports the error.
func (l Log) PlotComplete(err error) {
	if err != nil {
		l.Logger.Info("plot finished with error", zap.Error(err))
		return
	}
	l.Logger.Info("plot finished")
}
