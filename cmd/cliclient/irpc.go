package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/marben/irpc"
	"go.uber.org/zap"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/render"
)

// fetchIrpcImage asks the plot server's ImgProvider on addr for the finished
// image and saves it to path as PNG. The call blocks until the server's plot
// is done.
func (c *client) fetchIrpcImage(ctx context.Context, addr, path string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to irpc server: %w", err)
	}
	ep := irpc.NewEndpoint(conn)
	defer ep.Close()

	// GetImage takes no context; closing the endpoint ends the call.
	stop := context.AfterFunc(ctx, func() { _ = ep.Close() })
	defer stop()

	provider, err := mandel.NewImgProviderIrpcClient(ep)
	if err != nil {
		return fmt.Errorf("image provider client: %w", err)
	}

	c.logger.Debug("requesting image over irpc", zap.String("addr", addr))
	img, plotErr := provider.GetImage()
	if len(img.Pix) == 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if plotErr == nil {
			plotErr = errors.New("server sent an empty image")
		}
		return fmt.Errorf("fetching image: %w", plotErr)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.EncodePNG(f, &img); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fields := []zap.Field{zap.String("file", path), zap.Int("width", img.Rect.Dx()), zap.Int("height", img.Rect.Dy())}
	if plotErr != nil {
		c.logger.Warn("saved image of a failed plot", append(fields, zap.String("error", plotErr.Error()))...)
		return nil
	}
	c.logger.Info("image saved", fields...)
	return nil
}
