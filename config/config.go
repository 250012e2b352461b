// Package config holds the configuration shared by the mandel commands. Values
// come from command line flags, MANDEL_ environment variables or a
// config.yaml file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/divide"
	"github.com/marben/adaptive_mandel/fractal"
	"github.com/marben/adaptive_mandel/logger"
	"github.com/marben/adaptive_mandel/plot"
)

type LogConfig struct {
	// Format is "text" or "json".
	Format string
	// Level is "none", "debug", "info", "warn" or "error".
	Level string
}

type PlotConfig struct {
	Width  int
	Height int

	// Region names a preset of mandel.Regions. A positive SpanX and SpanY
	// replace it with the region of that size around CenterX+CenterY·i.
	Region  string
	CenterX float64
	CenterY float64
	SpanX   float64
	SpanY   float64

	Fractal   string
	Divider   string
	BlockSize int
	// Precision is "single", "double" or "auto".
	Precision string

	InitialCeiling    int64
	MinEscapeePercent int
	LiveThreshold     float64
	OddDivisor        int64
	EvenDivisor       int64
	MaxPasses         int
}

type PoolConfig struct {
	// Workers is the number of pool goroutines; 0 means one per CPU.
	Workers int
}

type HTTPConfig struct {
	Addr string
}

type IRPCConfig struct {
	Addr string
}

type MetricsConfig struct {
	Enabled bool
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig
	SampleRatio float64
	ServiceName string
}

type OTLPTraceConfig struct {
	Endpoint string
}

type Config struct {
	Log     LogConfig
	Plot    PlotConfig
	Pool    PoolConfig
	HTTP    HTTPConfig
	IRPC    IRPCConfig
	Metrics MetricsConfig
	Trace   TraceConfig
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	p := plot.DefaultConfig()
	return &Config{
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Plot: PlotConfig{
			Width:             p.Width,
			Height:            p.Height,
			Region:            "whole",
			Fractal:           "mandelbrot",
			Divider:           "blocks",
			BlockSize:         divide.DefaultBlockSize,
			Precision:         "auto",
			InitialCeiling:    p.InitialCeiling,
			MinEscapeePercent: p.MinEscapeePercent,
			LiveThreshold:     p.LiveThreshold,
			OddDivisor:        p.OddDivisor,
			EvenDivisor:       p.EvenDivisor,
			MaxPasses:         p.MaxPasses,
		},
		Pool: PoolConfig{
			Workers: 0,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		IRPC: IRPCConfig{
			Addr: ":8081",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Trace: TraceConfig{
			Enabled:     false,
			OTLP:        OTLPTraceConfig{Endpoint: "0.0.0.0:4317"},
			SampleRatio: 0.2,
			ServiceName: "mandel",
		},
	}
}

// Verify returns an error describing every invalid setting.
func (c *Config) Verify() error {
	var errs []error

	if _, err := logger.NewLogger(c.Log.Format, c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Region(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Divider(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := mandel.ParsePrecision(c.Plot.Precision); err != nil {
		errs = append(errs, err)
	}
	if c.Plot.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("block size %d is negative", c.Plot.BlockSize))
	}
	if c.Pool.Workers < 0 {
		errs = append(errs, fmt.Errorf("worker count %d is negative", c.Pool.Workers))
	}
	if c.IRPC.Addr == "" {
		errs = append(errs, errors.New("irpc address is empty"))
	}
	if c.Trace.Enabled && c.Trace.OTLP.Endpoint == "" {
		errs = append(errs, errors.New("tracing is enabled but no OTLP endpoint is set"))
	}
	if c.Trace.SampleRatio < 0 || c.Trace.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("trace sample ratio %g out of range [0, 1]", c.Trace.SampleRatio))
	}

	pc, err := c.PlotConfig()
	if err == nil {
		err = pc.Verify()
	}
	if err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Region resolves the configured area of the complex plane.
func (c *Config) Region() (mandel.Region, error) {
	if c.Plot.SpanX > 0 && c.Plot.SpanY > 0 {
		return mandel.RegionAround(complex(c.Plot.CenterX, c.Plot.CenterY), complex(c.Plot.SpanX, c.Plot.SpanY)), nil
	}
	return mandel.LookupRegion(c.Plot.Region)
}

// PlotConfig translates the plot section into a plot.Config.
func (c *Config) PlotConfig() (plot.Config, error) {
	region, err := c.Region()
	if err != nil {
		return plot.Config{}, err
	}

	return plot.Config{
		Width:             c.Plot.Width,
		Height:            c.Plot.Height,
		Region:            region,
		InitialCeiling:    c.Plot.InitialCeiling,
		MinEscapeePercent: c.Plot.MinEscapeePercent,
		LiveThreshold:     c.Plot.LiveThreshold,
		OddDivisor:        c.Plot.OddDivisor,
		EvenDivisor:       c.Plot.EvenDivisor,
		MaxPasses:         c.Plot.MaxPasses,
	}, nil
}

// Divider builds the configured divider. A plain "blocks" divider reads
// plot.blockSize from viper each time it divides an image.
func (c *Config) Divider() (divide.Divider, error) {
	return divide.Parse(c.Plot.Divider, func() int {
		if viper.IsSet(blockSizeConf) {
			return viper.GetInt(blockSizeConf)
		}
		return c.Plot.BlockSize
	})
}

// Fractal looks the configured fractal up in reg.
func (c *Config) Fractal(reg *fractal.Registry) (mandel.Fractal, error) {
	return reg.Lookup(strings.ToLower(c.Plot.Fractal))
}

// PlotOptions returns the plot options implied by the configuration.
func (c *Config) PlotOptions() ([]plot.Option, error) {
	prec, ok, err := mandel.ParsePrecision(c.Plot.Precision)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return []plot.Option{plot.WithPrecision(prec)}, nil
}

func (c *Config) Logger() (*logger.ZapLogger, error) {
	return logger.NewLogger(c.Log.Format, c.Log.Level)
}

// Read loads the configuration from the sources bound in viper. A missing
// config file is not an error.
func Read() (*Config, error) {
	config := DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}
