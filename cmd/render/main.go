// Command render plots a fractal in-process and writes it as PNG.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marben/adaptive_mandel/config"
	"github.com/marben/adaptive_mandel/fractal"
	"github.com/marben/adaptive_mandel/logger"
	"github.com/marben/adaptive_mandel/plot"
	"github.com/marben/adaptive_mandel/render"
	"github.com/marben/adaptive_mandel/sink"
	"github.com/marben/adaptive_mandel/workerpool"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		out     string
		resumes int
	)

	config.Init()
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Plot a fractal and save it as PNG",
		Long: `Plot a fractal with the adaptive pass scheduler and save the result.

Every flag may also be set in config.yaml or through a MANDEL_ environment
variable, exactly as for the server.`,
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

			return renderToFile(ctx, cfg, log, out, resumes)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "mandel.png", "file the image is written to")
	cmd.Flags().IntVar(&resumes, "resumes", 0, "resume the finished plot this many times for deeper detail")
	config.BindPlotFlags(cmd)
	return cmd
}

// renderToFile runs the plot to completion, resuming it resumes times, and
// writes the image to out. An interrupted or failed plot still writes the
// pixels computed so far.
func renderToFile(ctx context.Context, cfg *config.Config, log logger.Logger, out string, resumes int) error {
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

	pool := workerpool.New(cfg.Pool.Workers, workerpool.WithLogger(log), workerpool.WithName("render"))
	defer pool.Close()

	opts = append(opts, plot.WithSink(sink.Log{Logger: log}), plot.WithLogger(log))
	p, err := plot.New(pc, f, d, pool, opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	// Stop after the pass in flight when interrupted.
	stopOnCancel := context.AfterFunc(ctx, p.Stop)
	defer stopOnCancel()

	plotErr := p.Start()
	if plotErr == nil {
		plotErr = p.Wait(context.Background())
	}
	for i := 0; i < resumes && plotErr == nil && ctx.Err() == nil; i++ {
		if plotErr = p.Resume(); plotErr == nil {
			plotErr = p.Wait(context.Background())
		}
	}

	st := p.Stats()
	img := render.Image(pc.Width, pc.Height, p.Units())

	file, err := os.Create(out)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := render.EncodePNG(file, img); err != nil {
		return fmt.Errorf("encoding %s: %w", out, err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	log.Info("image written",
		zap.String("file", out),
		zap.String("state", st.State),
		zap.Int("passes", st.Passes),
		zap.Int64("ceiling", st.Ceiling),
		zap.Int("live", st.Live),
		zap.Duration("elapsed", st.Elapsed),
	)
	return plotErr
}
