package main

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/marben/adaptive_mandel/config"
	"github.com/marben/adaptive_mandel/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func smallConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Plot.Width = 40
	cfg.Plot.Height = 30
	cfg.Plot.Divider = "rows:3"
	cfg.Pool.Workers = 2
	return cfg
}

func TestRenderToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.png")
	log, logs := logger.NewObserverLogger("info")

	require.NoError(t, renderToFile(context.Background(), smallConfig(), log, out, 1))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, 40, img.Bounds().Dx())
	require.Equal(t, 30, img.Bounds().Dy())

	written := logs.FilterMessage("image written").All()
	require.Len(t, written, 1)
	require.Equal(t, "completed", written[0].ContextMap()["state"])
	require.Equal(t, 2, logs.FilterMessage("plot finished").Len())
}

func TestRenderToFileRejectsUnknownFractal(t *testing.T) {
	cfg := smallConfig()
	cfg.Plot.Fractal = "julia"

	err := renderToFile(context.Background(), cfg, logger.NewNoopLogger(), filepath.Join(t.TempDir(), "out.png"), 0)
	require.Error(t, err)
}
