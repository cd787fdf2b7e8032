// Package retention deletes refresh records that expired longer ago than the
// retention window.
//
// Expired records are kept for a while so a replayed stale credential is
// still recognized as reuse instead of as an unknown token.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"candidash/cmd/internal/auth/session"
)

// Deleter is the part of session.Store the sweeper needs.
type Deleter interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls the sweep window and cadence.
type Config struct {
	// Window is how long a record is kept after it expired.
	Window time.Duration
	// Interval is the period of Run.
	Interval time.Duration
}

// DefaultConfig keeps expired records for 7 days and sweeps hourly.
func DefaultConfig() Config {
	return Config{
		Window:   7 * 24 * time.Hour,
		Interval: time.Hour,
	}
}

// LoadConfigFromEnv applies CANDIDASH_RETENTION_WINDOW and
// CANDIDASH_RETENTION_INTERVAL to base.
func LoadConfigFromEnv(base Config) (Config, error) {
	cfg := base
	for _, f := range []struct {
		key string
		dst *time.Duration
	}{
		{"CANDIDASH_RETENTION_WINDOW", &cfg.Window},
		{"CANDIDASH_RETENTION_INTERVAL", &cfg.Interval},
	} {
		v := strings.TrimSpace(os.Getenv(f.key))
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = d
	}
	return cfg, cfg.Validate()
}

// Validate rejects negative windows and non-positive intervals.
func (c Config) Validate() error {
	if c.Window < 0 {
		return errors.New("retention: window must not be negative")
	}
	if c.Interval <= 0 {
		return errors.New("retention: interval must be positive")
	}
	return nil
}

// Sweeper runs retention passes against a store.
type Sweeper struct {
	store Deleter
	cfg   Config
	clock session.Clock
	log   *slog.Logger

	deleted     prometheus.Counter
	runs        *prometheus.CounterVec
	lastSuccess prometheus.Gauge
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithClock replaces the wall clock.
func WithClock(c session.Clock) Option { return func(s *Sweeper) { s.clock = c } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(s *Sweeper) { s.log = l } }

// WithRegisterer registers the sweeper's collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Sweeper) { reg.MustRegister(s.deleted, s.runs, s.lastSuccess) }
}

// New builds a Sweeper.
func New(store Deleter, cfg Config, opts ...Option) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("retention: nil store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Sweeper{
		store: store,
		cfg:   cfg,
		clock: session.SystemClock,
		log:   slog.New(slog.DiscardHandler),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "candidash",
			Subsystem: "retention",
			Name:      "records_deleted_total",
			Help:      "Refresh records deleted by the retention sweeper.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "candidash",
			Subsystem: "retention",
			Name:      "sweeps_total",
			Help:      "Retention sweeps by result.",
		}, []string{"result"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "candidash",
			Subsystem: "retention",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sweep.",
		}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Cutoff returns the instant before which expired records are deleted.
func (s *Sweeper) Cutoff() time.Time {
	return s.clock.Now().Add(-s.cfg.Window)
}

// SweepOnce deletes every record with expires_at < now - window and returns
// the count. Running it twice in a row deletes nothing the second time.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.Cutoff()
	start := time.Now()

	n, err := s.store.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		s.runs.WithLabelValues("error").Inc()
		s.log.ErrorContext(ctx, "retention.sweep.failed", "cutoff", cutoff, "err", err)
		return 0, fmt.Errorf("retention: sweep: %w", err)
	}

	s.runs.WithLabelValues("ok").Inc()
	s.deleted.Add(float64(n))
	s.lastSuccess.Set(float64(s.clock.Now().Unix()))
	s.log.InfoContext(ctx, "retention.sweep.done",
		"deleted", n,
		"cutoff", cutoff,
		"dur_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// Run sweeps immediately and then every Interval until ctx is done. Failed
// sweeps are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.InfoContext(ctx, "retention.start", "window", s.cfg.Window.String(), "interval", s.cfg.Interval.String())

	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	for {
		_, _ = s.SweepOnce(ctx)

		select {
		case <-ctx.Done():
			s.log.InfoContext(context.WithoutCancel(ctx), "retention.stop")
			return nil
		case <-t.C:
		}
	}
}
