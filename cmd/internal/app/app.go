// Package app wires the candidash server runtime: config, logging, storage
// backends, HTTP routes, and the retention sweeper.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"candidash/cmd/identity"
	"candidash/cmd/internal/auth/api"
	"candidash/cmd/internal/auth/retention"
	"candidash/cmd/internal/auth/session"
	"candidash/cmd/security/token"
)

// App is the candidash server runtime.
type App struct {
	cfg Config
	log Logger

	backends *backends
	registry *prometheus.Registry
	sessions *session.Manager
	sweeper  *retention.Sweeper
	handler  http.Handler
}

// New constructs a fully wired App. The caller must call Run or Close.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	secret, err := token.LoadSecret(cfg.SigningSecret, cfg.SigningSecretFile)
	if err != nil {
		return nil, err
	}
	codec, err := token.New(token.Options{
		Secret: secret,
		Issuer: cfg.Session.Issuer,
		Leeway: cfg.Session.ClockSkew,
	})
	if err != nil {
		return nil, err
	}

	verifier, err := identity.NewArgon2idVerifier(cfg.Password)
	if err != nil {
		return nil, err
	}

	b, err := openBackends(ctx, cfg, log, verifier)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mgr, err := session.NewManager(cfg.Session, b.store, codec, b.directory, verifier,
		session.WithLogger(log),
		session.WithMetrics(session.NewMetrics(reg)),
	)
	if err != nil {
		b.Close()
		return nil, err
	}

	sweeper, err := retention.New(b.store, cfg.Retention,
		retention.WithLogger(log),
		retention.WithRegisterer(reg),
	)
	if err != nil {
		b.Close()
		return nil, err
	}

	auth, err := authapi.NewHandler(log, cfg.Auth, mgr, b.directory)
	if err != nil {
		b.Close()
		return nil, err
	}

	return &App{
		cfg:      cfg,
		log:      log,
		backends: b,
		registry: reg,
		sessions: mgr,
		sweeper:  sweeper,
		handler:  newRouter(log, cfg, reg, b, auth),
	}, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP and runs the retention sweeper until ctx is canceled or
// either of them fails. Backends are closed before it returns.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	g.Go(func() error { return a.sweeper.Run(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

// Close releases backend resources.
func (a *App) Close() { a.backends.Close() }

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
