// Package render turns the pixel state of finished work units into images.
package render

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	mandel "github.com/marben/adaptive_mandel"
)

var black = color.RGBA{A: 255}

// Palette colours an escaped pixel.
type Palette func(px mandel.Pixel) color.RGBA

// Smooth cycles the hue with the smooth iteration count, shifted by the
// escape angle.
func Smooth(px mandel.Pixel) color.RGBA {
	t := (float64(px.Angle) + math.Pi) / (2 * math.Pi)
	hue := math.Mod(float64(px.Smooth)*0.02+t*0.3, 1.0)
	if hue < 0 {
		hue++
	}
	return hsv(hue, 1, 1)
}

// Color is the colour of px under p. Pixels still live, and pixels known
// never to escape, are black.
func Color(p Palette, px mandel.Pixel) color.RGBA {
	if !px.Escaped || px.Iterations == mandel.Infinite {
		return black
	}
	return p(px)
}

// Renderer draws units with a palette.
type Renderer struct {
	Palette Palette
}

var _ mandel.Renderer = Renderer{}

func (r Renderer) palette() Palette {
	if r.Palette == nil {
		return Smooth
	}
	return r.Palette
}

// DrawUnit paints u at its place in img.
func (r Renderer) DrawUnit(img *image.RGBA, u mandel.Unit) {
	tile := u.Tile()
	data := u.Data()
	if len(data) != tile.Pixels() {
		return
	}

	p := r.palette()
	i := 0
	for y := tile.Y0; y < tile.Y0+tile.H; y++ {
		for x := tile.X0; x < tile.X0+tile.W; x++ {
			img.SetRGBA(x, y, Color(p, data[i]))
			i++
		}
	}
}

func (r Renderer) Render(width, height int, units []mandel.Unit) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)
	for _, u := range units {
		r.DrawUnit(img, u)
	}
	return img
}

// DrawUnit paints u into img with the Smooth palette.
func DrawUnit(img *image.RGBA, u mandel.Unit) {
	Renderer{}.DrawUnit(img, u)
}

// Image renders units into a width×height image with the Smooth palette.
func Image(width, height int, units []mandel.Unit) *image.RGBA {
	return Renderer{}.Render(width, height, units)
}

func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

func hsv(h, s, v float64) color.RGBA {
	h = math.Mod(h, 1)
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return color.RGBA{uint8(r * 255), uint8(g * 255), uint8(b * 255), 255}
}
