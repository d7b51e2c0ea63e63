package p1

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcmd1962/p1-slimmelezer/internal/adapters/meterconn"
	"github.com/mcmd1962/p1-slimmelezer/internal/adapters/multicast"
	"github.com/mcmd1962/p1-slimmelezer/internal/adapters/natspub"
	"github.com/mcmd1962/p1-slimmelezer/internal/adapters/observability"
	"github.com/mcmd1962/p1-slimmelezer/internal/app/reader"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	source        Source
	publishers    []Publisher
	observability Observability
	now           func() time.Time
}

// WithSource injects a custom byte source (serial bridge, replay file, simulators).
func WithSource(src Source) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.source = src
	}
}

// WithPublisher adds a publisher; repeatable, and when any are given the
// config-driven multicast/NATS publishers are not built.
func WithPublisher(pub Publisher) RuntimeOption {
	return func(o *runtimeOverrides) {
		if pub != nil {
			o.publishers = append(o.publishers, pub)
		}
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithNow overrides the wall clock, mainly for tests.
func WithNow(now func() time.Time) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.now = now
	}
}

// Runtime wires source → reframer → framer → parser → clock → publishers
// into the single synchronous loop and exposes simple lifecycle hooks for
// embedding the reader inside any Go service.
type Runtime struct {
	cfg        *Config
	obs        Observability
	source     Source
	publisher  Publisher
	framer     *reader.Framer
	metricsSrv *http.Server
}

// NewRuntime bootstraps the default adapters (TCP connection manager,
// multicast publisher, optional NATS publisher, zap/Prometheus
// observability). RuntimeOption values override any dependency.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		var err error
		obs, err = observability.New(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
	}

	src := overrides.source
	if src == nil {
		var err error
		src, err = meterconn.New(meterconn.Config{
			Host:        cfg.Meter.Host,
			Port:        cfg.Meter.Port,
			ReadTimeout: time.Duration(cfg.Meter.ReadTimeout) * time.Second,
			DialTimeout: time.Duration(cfg.Meter.DialTimeout) * time.Second,
		}, obs)
		if err != nil {
			return nil, err
		}
	}

	publishers := overrides.publishers
	if len(publishers) == 0 {
		mc, err := multicast.New(cfg.Multicast.Address, cfg.Multicast.Port, cfg.Multicast.TTL)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, mc)

		if cfg.NATS.URL != "" {
			np, err := natspub.New(cfg.NATS.URL, cfg.NATS.Subject)
			if err != nil {
				return nil, err
			}
			publishers = append(publishers, np)
		}
	}
	pub := NewFanoutPublisher(publishers...)

	loc, err := time.LoadLocation(cfg.Meter.Location)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", cfg.Meter.Location, err)
	}

	clock := reader.NewSynchronizer(time.Duration(cfg.Meter.TimesyncPeriod)*time.Second, loc, obs, overrides.now)
	lines := reader.NewLineReader(src, obs)
	framer := reader.NewFramer(lines, reader.NewParser(obs), clock, pub, obs, cfg.Meter.SkipCount, overrides.now)

	return &Runtime{
		cfg:       cfg,
		obs:       obs,
		source:    src,
		publisher: pub,
		framer:    framer,
	}, nil
}

// Run connects to the meter, starts the metrics endpoint, and blocks in the
// reader loop until the context is cancelled or the loop fails. The stream
// connection and publishers are released before returning.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.source.Connect(ctx); err != nil {
		return fmt.Errorf("initial connect: %w", err)
	}
	r.startMetrics()

	runErr := r.framer.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		r.obs.LogInfo("shutting down")
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(runErr, r.shutdown(shutdownCtx))
}

func (r *Runtime) shutdown(ctx context.Context) error {
	var errs []error

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if err := r.source.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Runtime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics server exited", err)
		}
	}()
}
