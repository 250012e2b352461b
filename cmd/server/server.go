// Command mandel-server plots a region of a fractal and serves the image
// while passes refine it, along with a websocket stream of pass progress.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marben/irpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marben/adaptive_mandel/config"
	"github.com/marben/adaptive_mandel/fractal"
	"github.com/marben/adaptive_mandel/logger"
	"github.com/marben/adaptive_mandel/telemetry"
	"github.com/marben/adaptive_mandel/workerpool"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	config.Init()

	cmd := &cobra.Command{
		Use:   "mandel-server",
		Short: "Serve an adaptively refined fractal plot over HTTP",
		Long: `Serve an adaptively refined fractal plot over HTTP.

The plot starts as soon as the server does. GET /image.png waits for the plot
to finish (or returns the current state with ?wait=false), GET /ws streams
pass progress, and POST /start, /stop and /resume control the plot. The
finished image is also served to irpc clients on --irpc-addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read()
			if err != nil {
				return err
			}
			if err := cfg.Verify(); err != nil {
				return err
			}

			log, err := cfg.Logger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, log)
		},
	}

	config.BindPlotFlags(cmd)
	config.BindServerFlags(cmd)
	return cmd
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if cfg.Trace.Enabled {
		tp, err := telemetry.NewTracerProvider(
			telemetry.WithOTLPEndpoint(cfg.Trace.OTLP.Endpoint),
			telemetry.WithServiceName(cfg.Trace.ServiceName),
			telemetry.WithSamplingRatio(cfg.Trace.SampleRatio),
		)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = tp.ForceFlush(ctx)
			_ = tp.Shutdown(ctx)
		}()
		log.Info("tracing enabled", zap.String("endpoint", cfg.Trace.OTLP.Endpoint))
	}

	f, err := cfg.Fractal(fractal.Default())
	if err != nil {
		return err
	}
	d, err := cfg.Divider()
	if err != nil {
		return err
	}
	pc, err := cfg.PlotConfig()
	if err != nil {
		return err
	}
	opts, err := cfg.PlotOptions()
	if err != nil {
		return err
	}

	pool := workerpool.New(cfg.Pool.Workers, workerpool.WithLogger(log), workerpool.WithName("server"))
	defer pool.Close()

	svc, err := newImageService(pc, f, d, pool, log, opts...)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Start(); err != nil {
		return fmt.Errorf("starting plot: %w", err)
	}
	log.Info("plot started",
		zap.String("fractal", f.Name()),
		zap.Stringer("region", pc.Region),
		zap.Stringer("divider", d),
		zap.Int("workers", pool.Workers()),
	)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           svc.routes(cfg.Metrics.Enabled),
		ReadHeaderTimeout: 5 * time.Second,
	}

	irpcServer := newIrpcServer(svc, log)
	tcpListener, err := net.Listen("tcp", cfg.IRPC.Addr)
	if err != nil {
		return fmt.Errorf("irpc listener: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("irpc listening", zap.String("addr", tcpListener.Addr().String()))
		if err := irpcServer.Serve(tcpListener); err != nil && !errors.Is(err, irpc.ErrServerClosed) {
			return fmt.Errorf("irpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		// Pending image requests return once the pass in flight is done.
		svc.Stop()
		svc.hub.close()
		if err := irpcServer.Close(); err != nil {
			log.Warn("closing irpc server", zap.Error(err))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
