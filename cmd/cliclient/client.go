package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/logger"
	"github.com/marben/adaptive_mandel/plot"
)

// client talks to the plot server's HTTP and websocket endpoints.
type client struct {
	base     *url.URL
	http     *http.Client
	logger   logger.Logger
	retryFor time.Duration
}

func newClient(server string, log logger.Logger, retryFor time.Duration) (*client, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", server, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", server)
	}
	return &client{
		base:     u,
		http:     &http.Client{},
		logger:   log,
		retryFor: retryFor,
	}, nil
}

func (c *client) endpoint(path string) *url.URL {
	return c.base.JoinPath(path)
}

// control posts one of start, resume or stop.
func (c *client) control(ctx context.Context, action string) (plot.Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(action).String(), nil)
	if err != nil {
		return plot.Stats{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return plot.Stats{}, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return plot.Stats{}, fmt.Errorf("%s: %w", action, statusError(resp))
	}

	var st plot.Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return plot.Stats{}, fmt.Errorf("%s: decoding stats: %w", action, err)
	}
	return st, nil
}

// dial opens the progress stream, retrying with exponential backoff while
// the server is unreachable.
func (c *client) dial(ctx context.Context) (*websocket.Conn, error) {
	u := c.endpoint("ws")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.retryFor
	attempt := 1

	var conn *websocket.Conn
	err := backoff.Retry(func() error {
		var err error
		conn, _, err = websocket.Dial(ctx, u.String(), nil)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.logger.Info("waiting for plot server", zap.Int("attempt", attempt), zap.Error(err))
			attempt++
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", u, err)
	}

	c.logger.Debug("connected to plot server", zap.Stringer("url", u))
	return conn, nil
}

// eventReader returns a function yielding the next event from conn.
func eventReader(ctx context.Context, conn *websocket.Conn) func() (mandel.Event, error) {
	return func() (mandel.Event, error) {
		var e mandel.Event
		err := wsjson.Read(ctx, conn, &e)
		return e, err
	}
}

// finished reports whether e ends the watch. Watching our own run, only its
// completion counts; otherwise a plot already at rest ends it too.
func finished(e mandel.Event, ownRun bool) bool {
	switch e.Kind {
	case mandel.EventComplete:
		return true
	case mandel.EventStatus:
		return !ownRun && e.State != plot.Running.String() && e.State != plot.Idle.String()
	default:
		return false
	}
}

// follow logs events until the plot finishes.
func (c *client) follow(next func() (mandel.Event, error), ownRun bool) error {
	for {
		e, err := next()
		if err != nil {
			return fmt.Errorf("reading progress: %w", err)
		}

		switch e.Kind {
		case mandel.EventPass:
			c.logger.Info(e.Text,
				zap.Int("pass", e.Pass),
				zap.Int64("ceiling", e.Ceiling),
				zap.Int("live", e.Live),
				zap.Int("total", e.Total),
				zap.Duration("elapsed", e.Elapsed),
			)
		default:
			c.logger.Info("plot status",
				zap.String("state", e.State),
				zap.Int("passes", e.Pass),
				zap.Int64("ceiling", e.Ceiling),
				zap.String("error", e.Error),
			)
		}

		if finished(e, ownRun) {
			if e.Error != "" {
				c.logger.Warn("plot failed", zap.String("error", e.Error))
			}
			return nil
		}
	}
}

// saveImage downloads the plot image to path.
func (c *client) saveImage(ctx context.Context, path string, wait bool) error {
	u := c.endpoint("image.png")
	if !wait {
		u.RawQuery = url.Values{"wait": {"false"}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching image: %w", statusError(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("fetching image: %w", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("server sent an invalid image: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	fields := []zap.Field{zap.String("file", path), zap.Int("width", cfg.Width), zap.Int("height", cfg.Height)}
	if plotErr := resp.Header.Get("X-Plot-Error"); plotErr != "" {
		c.logger.Warn("saved image of a failed plot", append(fields, zap.String("error", plotErr))...)
		return nil
	}
	c.logger.Info("image saved", fields...)
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return errors.New(resp.Status)
	}
	return fmt.Errorf("%s: %s", resp.Status, msg)
}
