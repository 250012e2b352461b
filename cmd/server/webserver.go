package main

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/plot"
	"github.com/marben/adaptive_mandel/render"
)

const writeTimeout = 5 * time.Second

// routes serves the image, plot control and progress stream.
func (s *imageService) routes(metrics bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /image.png", s.handleImage)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /start", s.handleControl(s.Start))
	mux.HandleFunc("POST /resume", s.handleControl(s.Resume))
	mux.HandleFunc("POST /stop", s.handleControl(func() error {
		s.Stop()
		return nil
	}))
	mux.HandleFunc("GET /ws", s.handleWS)
	if metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	return mux
}

// handleImage sends the plot as PNG. It waits for the run in flight unless
// the request asks for ?wait=false.
func (s *imageService) handleImage(w http.ResponseWriter, r *http.Request) {
	var (
		img     *image.RGBA
		plotErr error
	)
	if r.URL.Query().Get("wait") == "false" {
		img = s.snapshot()
	} else {
		img, plotErr = s.Image(r.Context())
		if img == nil {
			s.logger.Debug("image request abandoned", zap.Error(plotErr))
			return
		}
	}

	w.Header().Set("Content-Type", "image/png")
	if plotErr != nil {
		w.Header().Set("X-Plot-Error", plotErr.Error())
	}
	if err := render.EncodePNG(w, img); err != nil {
		s.logger.Warn("failed to encode image", zap.Error(err))
	}
}

func (s *imageService) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.plot.Stats())
}

func (s *imageService) handleControl(action func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		err := action()
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, s.plot.Stats())
		case errors.Is(err, plot.ErrRunning), errors.Is(err, plot.ErrNotStarted):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, plot.ErrClosed):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// handleWS streams progress events, starting with the current status.
//
// The watcher is subscribed before the handshake completes, so a client that
// starts a plot once its dial returns sees every event of that run.
func (s *imageService) handleWS(w http.ResponseWriter, r *http.Request) {
	events, cancel := s.hub.subscribe()
	defer cancel()

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer c.CloseNow()

	// Watchers only listen; CloseRead handles their close frames.
	ctx := c.CloseRead(r.Context())

	if err := writeEvent(ctx, c, s.status(mandel.EventStatus)); err != nil {
		return
	}

	for {
		select {
		case e, ok := <-events:
			if !ok {
				c.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			if err := writeEvent(ctx, c, e); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(ctx context.Context, c *websocket.Conn, e mandel.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
