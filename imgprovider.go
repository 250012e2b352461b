package mandel

import "image"

// ImgProvider serves the image of a plot once the plot has finished. The
// plot server exposes it over irpc next to its HTTP routes.
//
//go:generate go run github.com/marben/irpc/cmd/irpc
type ImgProvider interface {
	GetImage() (image.RGBA, error)
}
