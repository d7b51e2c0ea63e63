package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mcmd1962/p1-slimmelezer/internal/ports"
)

// Obs implements the Observability port with zap for logs and Prometheus for
// metrics, addressed by metric name.
type Obs struct {
	log      *zap.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// New builds the default observability stack and registers all metrics on
// the default registerer.
func New(level string) (*Obs, error) {
	logger, err := newLogger(level)
	if err != nil {
		return nil, err
	}
	return newWithLogger(logger, prometheus.DefaultRegisterer), nil
}

// NewForTest registers metrics on a private registry so parallel tests do
// not collide on the default one.
func NewForTest() *Obs {
	return newWithLogger(zap.NewNop(), prometheus.NewRegistry())
}

func newWithLogger(logger *zap.Logger, reg prometheus.Registerer) *Obs {
	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "p1_datagrams_published_total",
		Help: "Telegrams handed to the publisher sinks.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "p1_datagrams_dropped_total",
		Help: "Finalized telegrams dropped for missing the timestamp tag.",
	})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "p1_datagrams_skipped_total",
		Help: "Telegrams consumed during startup skip or forced resync.",
	})
	unparsed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "p1_lines_unparsed_total",
		Help: "Data lines matching none of the field patterns.",
	})
	violations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "p1_framing_violations_total",
		Help: "Non-header lines seen while awaiting a header.",
	})
	reconnects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "p1_reconnects_total",
		Help: "P1 socket reopen operations.",
	})
	timeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "p1_read_timeouts_total",
		Help: "Idle read timeouts on the P1 socket.",
	})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "p1_clock_drift_seconds",
		Help: "Last computed wall-clock vs device-clock drift.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "p1_frame_duration_seconds",
		Help:    "Wall-clock time between header and footer of one telegram.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	reg.MustRegister(published, dropped, skipped, unparsed, violations, reconnects, timeouts, drift, duration)

	return &Obs{
		log: logger,
		counters: map[string]prometheus.Counter{
			"p1_datagrams_published_total": published,
			"p1_datagrams_dropped_total":   dropped,
			"p1_datagrams_skipped_total":   skipped,
			"p1_lines_unparsed_total":      unparsed,
			"p1_framing_violations_total":  violations,
			"p1_reconnects_total":          reconnects,
			"p1_read_timeouts_total":       timeouts,
		},
		gauges: map[string]prometheus.Gauge{
			"p1_clock_drift_seconds": drift,
		},
		histos: map[string]prometheus.Observer{
			"p1_frame_duration_seconds": duration,
		},
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func (o *Obs) Sync() {
	_ = o.log.Sync()
}

func (o *Obs) LogDebug(msg string, fields ...ports.Field) {
	o.log.Debug(msg, zapFields(fields, nil)...)
}

func (o *Obs) LogInfo(msg string, fields ...ports.Field) {
	o.log.Info(msg, zapFields(fields, nil)...)
}

func (o *Obs) LogWarn(msg string, fields ...ports.Field) {
	o.log.Warn(msg, zapFields(fields, nil)...)
}

func (o *Obs) LogError(msg string, err error, fields ...ports.Field) {
	o.log.Error(msg, zapFields(fields, err)...)
}

func (o *Obs) LogCritical(msg string, err error, fields ...ports.Field) {
	// Fatal conditions are logged here; deciding to exit stays with the caller.
	o.log.Error(msg, zapFields(fields, err)...)
}

func (o *Obs) IncCounter(name string, v float64) {
	if c, ok := o.counters[name]; ok {
		c.Add(v)
	}
}

func (o *Obs) SetGauge(name string, v float64) {
	if g, ok := o.gauges[name]; ok {
		g.Set(v)
	}
}

func (o *Obs) ObserveDuration(name string, seconds float64) {
	if h, ok := o.histos[name]; ok {
		h.Observe(seconds)
	}
}

func zapFields(fields []ports.Field, err error) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	if err != nil {
		out = append(out, zap.Error(err))
	}
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*Obs)(nil)
