package main

import (
	"context"
	"image"
	"image/draw"
	"slices"
	"sync"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/divide"
	"github.com/marben/adaptive_mandel/logger"
	"github.com/marben/adaptive_mandel/plot"
	"github.com/marben/adaptive_mandel/render"
	"github.com/marben/adaptive_mandel/sink"
)

// imageService runs the server's plot. It keeps an image that is painted
// unit by unit as passes complete and publishes pass progress to the hub.
type imageService struct {
	plot     *plot.Plot
	hub      *hub
	logger   logger.Logger
	renderer mandel.Renderer

	m   sync.Mutex
	img *image.RGBA
}

var (
	_ mandel.Sink        = (*imageService)(nil)
	_ mandel.ImgProvider = (*imageService)(nil)
)

func newImageService(cfg plot.Config, f mandel.Fractal, d divide.Divider, pool plot.Submitter, log logger.Logger, opts ...plot.Option) (*imageService, error) {
	img := image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	draw.Draw(img, img.Bounds(), image.Black, image.Point{}, draw.Src)

	s := &imageService{
		hub:      newHub(),
		logger:   log,
		renderer: render.Renderer{},
		img:      img,
	}

	opts = append(opts,
		plot.WithSink(sink.Multi(s, sink.Log{Logger: log}, sink.Metrics{Plot: "server"})),
		plot.WithLogger(log),
	)
	p, err := plot.New(cfg, f, d, pool, opts...)
	if err != nil {
		return nil, err
	}
	s.plot = p
	return s, nil
}

func (s *imageService) Start() error {
	return s.plot.Start()
}

func (s *imageService) Resume() error {
	return s.plot.Resume()
}

func (s *imageService) Stop() {
	s.plot.Stop()
}

func (s *imageService) Close() {
	s.plot.Close()
	s.hub.close()
}

// UnitComplete paints the unit. It runs on pool workers.
func (s *imageService) UnitComplete(u mandel.Unit) {
	s.m.Lock()
	defer s.m.Unlock()
	s.renderer.DrawUnit(s.img, u)
}

func (s *imageService) PassComplete(ps mandel.PassSummary) {
	s.hub.publish(mandel.Event{
		Kind:    mandel.EventPass,
		State:   plot.Running.String(),
		Text:    ps.Text,
		Pass:    ps.Pass,
		Ceiling: ps.Ceiling,
		Live:    ps.Live,
		Total:   ps.Total,
		Elapsed: ps.Elapsed,
	})
}

func (s *imageService) PlotComplete(err error) {
	e := s.status(mandel.EventComplete)
	if err != nil {
		e.Error = err.Error()
	}
	s.hub.publish(e)
}

func (s *imageService) status(kind mandel.EventKind) mandel.Event {
	st := s.plot.Stats()
	return mandel.Event{
		Kind:    kind,
		State:   st.State,
		Pass:    st.Passes,
		Ceiling: st.Ceiling,
		Live:    st.Live,
		Total:   st.Total,
		Elapsed: st.Elapsed,
	}
}

// snapshot copies the image as painted so far.
func (s *imageService) snapshot() *image.RGBA {
	s.m.Lock()
	defer s.m.Unlock()
	return &image.RGBA{
		Pix:    slices.Clone(s.img.Pix),
		Stride: s.img.Stride,
		Rect:   s.img.Rect,
	}
}

// Image waits for the current run to finish and returns the image with the
// run's error. A failed run still yields the pixels computed before the
// failure.
func (s *imageService) Image(ctx context.Context) (*image.RGBA, error) {
	err := s.plot.Wait(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return s.snapshot(), err
}

// GetImage blocks until the plot is complete.
func (s *imageService) GetImage() (image.RGBA, error) {
	img, err := s.Image(context.Background())
	if img == nil {
		return image.RGBA{}, err
	}
	return *img, err
}
