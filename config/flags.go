package config

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	mandel "github.com/marben/adaptive_mandel"
)

const blockSizeConf = "plot.blockSize"

// Init points viper at the config file locations and the MANDEL_ environment.
func Init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("MANDEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/mandel", "$HOME/.mandel", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}
}

// mustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func mustBindEnv(input ...string) {
	if err := viper.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}

// BindPlotFlags registers the logging, plot and pool flags on command.
func BindPlotFlags(command *cobra.Command) {
	defaultConfig := DefaultConfig()
	flags := command.Flags()

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in (text or json)")
	mustBindPFlag("log.format", flags.Lookup("log-format"))
	mustBindEnv("log.format", "MANDEL_LOG_FORMAT")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use (none, debug, info, warn, error)")
	mustBindPFlag("log.level", flags.Lookup("log-level"))
	mustBindEnv("log.level", "MANDEL_LOG_LEVEL")

	flags.Int("width", defaultConfig.Plot.Width, "image width in pixels")
	mustBindPFlag("plot.width", flags.Lookup("width"))
	mustBindEnv("plot.width", "MANDEL_PLOT_WIDTH")

	flags.Int("height", defaultConfig.Plot.Height, "image height in pixels")
	mustBindPFlag("plot.height", flags.Lookup("height"))
	mustBindEnv("plot.height", "MANDEL_PLOT_HEIGHT")

	flags.String("region", defaultConfig.Plot.Region, "named region to plot, one of: "+strings.Join(mandel.RegionNames(), ", "))
	mustBindPFlag("plot.region", flags.Lookup("region"))
	mustBindEnv("plot.region", "MANDEL_PLOT_REGION")

	flags.Float64("center-x", defaultConfig.Plot.CenterX, "real part of the region centre, used with --span-x and --span-y")
	mustBindPFlag("plot.centerX", flags.Lookup("center-x"))
	mustBindEnv("plot.centerX", "MANDEL_PLOT_CENTER_X")

	flags.Float64("center-y", defaultConfig.Plot.CenterY, "imaginary part of the region centre")
	mustBindPFlag("plot.centerY", flags.Lookup("center-y"))
	mustBindEnv("plot.centerY", "MANDEL_PLOT_CENTER_Y")

	flags.Float64("span-x", defaultConfig.Plot.SpanX, "width of the region in the complex plane; overrides --region when set with --span-y")
	mustBindPFlag("plot.spanX", flags.Lookup("span-x"))
	mustBindEnv("plot.spanX", "MANDEL_PLOT_SPAN_X")

	flags.Float64("span-y", defaultConfig.Plot.SpanY, "height of the region in the complex plane")
	mustBindPFlag("plot.spanY", flags.Lookup("span-y"))
	mustBindEnv("plot.spanY", "MANDEL_PLOT_SPAN_Y")

	command.MarkFlagsRequiredTogether("span-x", "span-y")

	flags.String("fractal", defaultConfig.Plot.Fractal, "the fractal formula to plot")
	mustBindPFlag("plot.fractal", flags.Lookup("fractal"))
	mustBindEnv("plot.fractal", "MANDEL_PLOT_FRACTAL")

	flags.String("divider", defaultConfig.Plot.Divider, "how the image is split into work units: single, rows:N, columns:N, blocks:N or blocks")
	mustBindPFlag("plot.divider", flags.Lookup("divider"))
	mustBindEnv("plot.divider", "MANDEL_PLOT_DIVIDER")

	flags.Int("block-size", defaultConfig.Plot.BlockSize, "block size used by the plain blocks divider")
	mustBindPFlag(blockSizeConf, flags.Lookup("block-size"))
	mustBindEnv(blockSizeConf, "MANDEL_PLOT_BLOCK_SIZE")

	flags.String("precision", defaultConfig.Plot.Precision, "arithmetic precision: single, double or auto")
	mustBindPFlag("plot.precision", flags.Lookup("precision"))
	mustBindEnv("plot.precision", "MANDEL_PLOT_PRECISION")

	flags.Int64("initial-ceiling", defaultConfig.Plot.InitialCeiling, "iteration ceiling of the first pass")
	mustBindPFlag("plot.initialCeiling", flags.Lookup("initial-ceiling"))
	mustBindEnv("plot.initialCeiling", "MANDEL_PLOT_INITIAL_CEILING")

	flags.Int("min-escapee-percent", defaultConfig.Plot.MinEscapeePercent, "percentage of pixels that must escape before a plot may converge")
	mustBindPFlag("plot.minEscapeePercent", flags.Lookup("min-escapee-percent"))
	mustBindEnv("plot.minEscapeePercent", "MANDEL_PLOT_MIN_ESCAPEE_PERCENT")

	flags.Float64("live-threshold", defaultConfig.Plot.LiveThreshold, "fraction of all pixels a pass must resolve for the plot to continue")
	mustBindPFlag("plot.liveThreshold", flags.Lookup("live-threshold"))
	mustBindEnv("plot.liveThreshold", "MANDEL_PLOT_LIVE_THRESHOLD")

	flags.Int64("odd-divisor", defaultConfig.Plot.OddDivisor, "ceiling step divisor after odd passes")
	mustBindPFlag("plot.oddDivisor", flags.Lookup("odd-divisor"))
	mustBindEnv("plot.oddDivisor", "MANDEL_PLOT_ODD_DIVISOR")

	flags.Int64("even-divisor", defaultConfig.Plot.EvenDivisor, "ceiling step divisor when resuming after an even pass")
	mustBindPFlag("plot.evenDivisor", flags.Lookup("even-divisor"))
	mustBindEnv("plot.evenDivisor", "MANDEL_PLOT_EVEN_DIVISOR")

	flags.Int("max-passes", defaultConfig.Plot.MaxPasses, "maximum passes per start or resume (0 means unlimited)")
	mustBindPFlag("plot.maxPasses", flags.Lookup("max-passes"))
	mustBindEnv("plot.maxPasses", "MANDEL_PLOT_MAX_PASSES")

	flags.Int("workers", defaultConfig.Pool.Workers, "worker goroutines (0 means one per CPU)")
	mustBindPFlag("pool.workers", flags.Lookup("workers"))
	mustBindEnv("pool.workers", "MANDEL_POOL_WORKERS")
}

// BindServerFlags registers the HTTP, irpc, metrics and tracing flags on command.
func BindServerFlags(command *cobra.Command) {
	defaultConfig := DefaultConfig()
	flags := command.Flags()

	flags.String("http-addr", defaultConfig.HTTP.Addr, "the host:port address to serve the HTTP server on")
	mustBindPFlag("http.addr", flags.Lookup("http-addr"))
	mustBindEnv("http.addr", "MANDEL_HTTP_ADDR")

	flags.String("irpc-addr", defaultConfig.IRPC.Addr, "the host:port address irpc clients fetch the finished image from")
	mustBindPFlag("irpc.addr", flags.Lookup("irpc-addr"))
	mustBindEnv("irpc.addr", "MANDEL_IRPC_ADDR")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics on /metrics")
	mustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
	mustBindEnv("metrics.enabled", "MANDEL_METRICS_ENABLED")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	mustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
	mustBindEnv("trace.enabled", "MANDEL_TRACE_ENABLED")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")
	mustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
	mustBindEnv("trace.otlp.endpoint", "MANDEL_TRACE_OTLP_ENDPOINT")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none.")
	mustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
	mustBindEnv("trace.sampleRatio", "MANDEL_TRACE_SAMPLE_RATIO")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces")
	mustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
	mustBindEnv("trace.serviceName", "MANDEL_TRACE_SERVICE_NAME")
}
