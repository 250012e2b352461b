package main

import (
	"io"
	"net"
	"testing"

	"github.com/marben/irpc"
	"github.com/stretchr/testify/require"

	mandel "github.com/marben/adaptive_mandel"
	"github.com/marben/adaptive_mandel/fractal"
	"github.com/marben/adaptive_mandel/fractal/fractaltest"
	"github.com/marben/adaptive_mandel/logger"
	"github.com/marben/adaptive_mandel/plot"
)

// dialIrpc serves svc on a local tcp listener and returns a client connected
// to it.
func dialIrpc(t *testing.T, svc *imageService) *mandel.ImgProviderIrpcClient {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := newIrpcServer(svc, logger.NewNoopLogger())
	served := make(chan error, 1)
	go func() { served <- s.Serve(lis) }()

	conn, err := net.Dial("tcp", lis.Addr().String())
	require.NoError(t, err)
	ep := irpc.NewEndpoint(conn)

	t.Cleanup(func() {
		_ = ep.Close()
		_ = s.Close()
		require.ErrorIs(t, <-served, irpc.ErrServerClosed)
	})

	client, err := mandel.NewImgProviderIrpcClient(ep)
	require.NoError(t, err)
	return client
}

func TestIrpcGetImageMatchesRenderedUnits(t *testing.T) {
	svc, _ := newTestServer(t, fractal.Mandelbrot())
	client := dialIrpc(t, svc)
	require.NoError(t, svc.Start())

	img, err := client.GetImage()
	require.NoError(t, err)

	want := svc.renderer.Render(32, 24, svc.plot.Units())
	require.Equal(t, want.Rect, img.Rect)
	require.Equal(t, want.Stride, img.Stride)
	require.Equal(t, want.Pix, img.Pix)
}

func TestIrpcGetImageCarriesPlotError(t *testing.T) {
	f := &fractaltest.Scripted{
		Fail: func(c complex128) error {
			if real(c) > 0 {
				return io.ErrUnexpectedEOF
			}
			return nil
		},
	}
	svc, _ := newTestServer(t, f)
	client := dialIrpc(t, svc)
	require.NoError(t, svc.Start())

	img, err := client.GetImage()
	require.ErrorContains(t, err, io.ErrUnexpectedEOF.Error())
	require.Equal(t, 32, img.Bounds().Dx())
	require.Equal(t, 24, img.Bounds().Dy())
	require.Equal(t, plot.Failed, svc.plot.State())
}
