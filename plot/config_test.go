package plot

import (
	"testing"

	"github.com/stretchr/testify/require"

	mandel "github.com/marben/adaptive_mandel"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Verify())
}

func TestConfigVerify(t *testing.T) {
	tests := map[string]struct {
		mutate func(*Config)
	}{
		`zero_width`:        {mutate: func(c *Config) { c.Width = 0 }},
		`negative_height`:   {mutate: func(c *Config) { c.Height = -1 }},
		`empty_region`:      {mutate: func(c *Config) { c.Region = mandel.Region{} }},
		`zero_ceiling`:      {mutate: func(c *Config) { c.InitialCeiling = 0 }},
		`ceiling_too_large`: {mutate: func(c *Config) { c.InitialCeiling = MaxCeiling }},
		`percent_over_100`:  {mutate: func(c *Config) { c.MinEscapeePercent = 101 }},
		`negative_live`:     {mutate: func(c *Config) { c.LiveThreshold = -0.5 }},
		`zero_divisor`:      {mutate: func(c *Config) { c.EvenDivisor = 0 }},
		`negative_passes`:   {mutate: func(c *Config) { c.MaxPasses = -1 }},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.mutate(&cfg)
			require.Error(t, cfg.Verify())
		})
	}
}

func TestConfigVerifyReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Width = 0
	cfg.MaxPasses = -3

	err := cfg.Verify()
	require.ErrorContains(t, err, "image size")
	require.ErrorContains(t, err, "max passes")
}

func TestStateString(t *testing.T) {
	require.Equal(t, "completed", Completed.String())
	require.True(t, Stopped.Terminal())
	require.False(t, Running.Terminal())
	require.False(t, Idle.Terminal())
}
