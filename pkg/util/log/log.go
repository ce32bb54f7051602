package log

import (
	"io"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	dslog "github.com/grafana/dskit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var supportedLevels = []level.Value{
	level.DebugValue(),
	level.InfoValue(),
	level.WarnValue(),
	level.ErrorValue(),
}

// Config configures the process logger.
type Config struct {
	Level  dslog.Level
	Format string
}

// RegisterFlags registers the logging flags on app.
func (c *Config) RegisterFlags(app *kingpin.Application) {
	app.Flag("log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error]").Default("info").SetValue(&c.Level)
	app.Flag("log.format", "Output log messages in the given format. Valid formats: [logfmt, json]").Default("logfmt").EnumVar(&c.Format, "logfmt", "json")
}

// NewLogger returns a logger writing to w that drops messages below the
// configured level. Every message that goes through is counted by level on
// reg.
func NewLogger(cfg Config, w io.Writer, reg prometheus.Registerer) log.Logger {
	plogger := &prometheusLogger{
		logger: dslog.NewGoKitWithWriter(cfg.Format, w),
		logMessages: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "ch_grafana_cache",
			Name:      "log_messages_total",
			Help:      "Total number of log messages.",
		}, []string{"level"}),
	}
	// Initialise counters for all supported levels.
	for _, l := range supportedLevels {
		plogger.logMessages.WithLabelValues(l.String())
	}

	filter := cfg.Level.Option
	if filter == nil {
		filter = level.AllowInfo()
	}
	logger := level.NewFilter(plogger, filter)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

type prometheusLogger struct {
	logger      log.Logger
	logMessages *prometheus.CounterVec
}

// Log increments the appropriate Prometheus counter depending on the log level.
func (pl *prometheusLogger) Log(kv ...interface{}) error {
	if err := pl.logger.Log(kv...); err != nil {
		return err
	}
	l := "unknown"
	for i := 1; i < len(kv); i += 2 {
		if v, ok := kv[i].(level.Value); ok {
			l = v.String()
			break
		}
	}
	pl.logMessages.WithLabelValues(l).Inc()
	return nil
}
