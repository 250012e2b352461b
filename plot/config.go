package plot

import (
	"errors"
	"fmt"

	mandel "github.com/marben/adaptive_mandel"
)

// Config describes what a Plot draws and tunes its convergence heuristic.
type Config struct {
	Width, Height int
	Region        mandel.Region

	// InitialCeiling is the iteration ceiling of the first pass.
	InitialCeiling int64
	// MinEscapeePercent is the share of pixels that must have escaped before
	// the live-pixel delta test may end the run.
	MinEscapeePercent int
	// LiveThreshold is the fraction of all pixels a pass must still resolve
	// for the run to continue once MinEscapeePercent is reached.
	LiveThreshold float64
	// OddDivisor and EvenDivisor scale the ceiling step by pass parity.
	OddDivisor  int64
	EvenDivisor int64
	// MaxPasses caps the passes of a single Start or Resume. Zero means no cap.
	MaxPasses int
}

func DefaultConfig() Config {
	return Config{
		Width:             800,
		Height:            600,
		Region:            mandel.WholeSet,
		InitialCeiling:    256,
		MinEscapeePercent: 20,
		LiveThreshold:     0.001,
		OddDivisor:        2,
		EvenDivisor:       3,
		MaxPasses:         0,
	}
}

// Verify returns an error if the config cannot drive a plot.
func (c Config) Verify() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("image size must be positive, got %dx%d", c.Width, c.Height))
	}
	if c.Region.Xmax <= c.Region.Xmin || c.Region.Ymax <= c.Region.Ymin {
		errs = append(errs, fmt.Errorf("region %v is empty", c.Region))
	}
	if c.InitialCeiling <= 0 || c.InitialCeiling >= MaxCeiling {
		errs = append(errs, fmt.Errorf("initial ceiling %d out of range (0, %d)", c.InitialCeiling, MaxCeiling))
	}
	if c.MinEscapeePercent < 0 || c.MinEscapeePercent > 100 {
		errs = append(errs, fmt.Errorf("min escapee percent %d out of range [0, 100]", c.MinEscapeePercent))
	}
	if c.LiveThreshold < 0 {
		errs = append(errs, fmt.Errorf("live threshold %g is negative", c.LiveThreshold))
	}
	if c.OddDivisor < 1 || c.EvenDivisor < 1 {
		errs = append(errs, fmt.Errorf("ceiling divisors must be at least 1, got %d and %d", c.OddDivisor, c.EvenDivisor))
	}
	if c.MaxPasses < 0 {
		errs = append(errs, fmt.Errorf("max passes %d is negative", c.MaxPasses))
	}
	return errors.Join(errs...)
}

func (c Config) total() int {
	return c.Width * c.Height
}
