// Command cliclient drives a plot server: it can start a plot, follow its
// passes and save the finished image as PNG, fetched over HTTP or irpc.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coder/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marben/adaptive_mandel/logger"
)

type options struct {
	server    string
	irpcAddr  string
	out       string
	start     bool
	watch     bool
	tui       bool
	noWait    bool
	retryFor  time.Duration
	logFormat string
	logLevel  string
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "cliclient",
		Short: "Follow a plot server and save its image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logger.NewLogger(opts.logFormat, opts.logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, opts, log)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.server, "server", "http://localhost:8080", "plot server base url")
	flags.StringVar(&opts.irpcAddr, "irpc", "", "fetch the finished image from the server's irpc address (host:port) instead of over HTTP")
	flags.StringVarP(&opts.out, "out", "o", "mandel.png", "file the image is saved to")
	flags.BoolVar(&opts.start, "start", false, "start a fresh plot before fetching the image")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "log pass progress until the plot finishes")
	flags.BoolVar(&opts.tui, "tui", false, "show pass progress in a terminal dashboard")
	flags.BoolVar(&opts.noWait, "no-wait", false, "save the image as painted so far instead of waiting for the plot")
	flags.DurationVar(&opts.retryFor, "retry-for", time.Minute, "how long to keep retrying the server connection")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: none, debug, info, warn or error")
	cmd.MarkFlagsMutuallyExclusive("irpc", "no-wait")
	return cmd
}

func run(ctx context.Context, opts options, log logger.Logger) error {
	c, err := newClient(opts.server, log, opts.retryFor)
	if err != nil {
		return err
	}

	var conn *websocket.Conn
	if opts.watch || opts.tui {
		// Connect before starting so no pass of our own run is missed.
		conn, err = c.dial(ctx)
		if err != nil {
			return err
		}
		defer conn.CloseNow()
	}

	if opts.start {
		st, err := c.control(ctx, "start")
		if err != nil {
			return err
		}
		log.Info("plot started", zap.String("run", st.RunID), zap.Int("units", st.Units))
	}

	if conn != nil {
		next := eventReader(ctx, conn)
		if opts.tui {
			final, err := tea.NewProgram(newWatchModel(next, opts.start), tea.WithContext(ctx)).Run()
			if err != nil {
				return fmt.Errorf("dashboard: %w", err)
			}
			if m, ok := final.(watchModel); ok && m.err != nil {
				return m.err
			}
		} else if err := c.follow(next, opts.start); err != nil {
			return err
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}

	if opts.irpcAddr != "" {
		return c.fetchIrpcImage(ctx, opts.irpcAddr, opts.out)
	}
	return c.saveImage(ctx, opts.out, !opts.noWait)
}
