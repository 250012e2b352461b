package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/chunk"
	"github.com/marben/adaptive_mandel/divide"
	"github.com/marben/adaptive_mandel/fractal"
	"github.com/marben/adaptive_mandel/fractal/fractaltest"
)

func TestHSV(t *testing.T) {
	require.Equal(t, color.RGBA{R: 255, A: 255}, hsv(0, 1, 1))
	require.Equal(t, color.RGBA{G: 255, B: 255, A: 255}, hsv(0.5, 1, 1))
	require.Equal(t, color.RGBA{A: 255}, hsv(0.3, 1, 0))
}

func TestColor(t *testing.T) {
	red := func(mandel.Pixel) color.RGBA { return color.RGBA{R: 255, A: 255} }

	tests := map[string]struct {
		px   mandel.Pixel
		want color.RGBA
	}{
		`live`:     {px: mandel.Pixel{Iterations: 10, Smooth: mandel.SmoothUnknown}, want: black},
		`interior`: {px: mandel.Pixel{Iterations: mandel.Infinite, Escaped: true}, want: black},
		`escaped`:  {px: mandel.Pixel{Iterations: 10, Escaped: true, Smooth: 9.5}, want: color.RGBA{R: 255, A: 255}},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, test.want, Color(red, test.px))
		})
	}
}

func TestSmoothPaletteIsOpaque(t *testing.T) {
	for _, smooth := range []float32{0.5, 3.2, 77, 1000.25} {
		c := Smooth(mandel.Pixel{Escaped: true, Smooth: smooth, Angle: -1})
		require.Equal(t, uint8(255), c.A)
	}
}

func plotted(t *testing.T, m mandel.Fractal, d divide.Divider) []mandel.Unit {
	t.Helper()

	var units []mandel.Unit
	for _, g := range d.Divide(40, 30, mandel.WholeSet.Origin(), mandel.WholeSet.Axis()) {
		c := chunk.New(g, m, nil)
		c.SetCeiling(64)
		require.NoError(t, c.Run())
		units = append(units, c)
	}
	return units
}

// bands escapes later the further right a pixel is, in bands a few pixels
// wide whose edges are well clear of any pixel coordinate.
func bands() mandel.Fractal {
	return &fractaltest.Scripted{
		EscapeAt: func(c complex128) int64 {
			return int64(math.Floor((real(c)+2.2)*10+0.3)) + 1
		},
	}
}

func TestRenderIsIndependentOfDivision(t *testing.T) {
	single := Image(40, 30, plotted(t, bands(), divide.Single{}))
	blocks := Image(40, 30, plotted(t, bands(), divide.FixedBlocks(7)))
	rows := Image(40, 30, plotted(t, bands(), divide.Rows{N: 4}))

	require.Equal(t, single.Pix, blocks.Pix)
	require.Equal(t, single.Pix, rows.Pix)
}

func TestRenderShowsSetAndEscapees(t *testing.T) {
	img := Image(40, 30, plotted(t, fractal.Mandelbrot(), divide.Single{}))

	// Pixel (0,0) is far outside the set, the centre of the main cardioid
	// sits near pixel (22,15).
	require.NotEqual(t, black, img.RGBAAt(0, 0))
	require.Equal(t, black, img.RGBAAt(22, 15))
}

func TestUnpreparedUnitsAreSkipped(t *testing.T) {
	g := divide.Single{}.Divide(4, 4, 0, complex(1, 1))[0]
	img := Image(4, 4, []mandel.Unit{chunk.New(g, fractal.Mandelbrot(), nil)})

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			require.Equal(t, black, img.RGBAAt(x, y))
		}
	}
}

func TestEncodePNG(t *testing.T) {
	img := Image(40, 30, plotted(t, fractal.Mandelbrot(), divide.Columns{N: 16}))

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, img))

	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 40, 30), decoded.Bounds())
}
