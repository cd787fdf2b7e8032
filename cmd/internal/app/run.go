package app

import (
	"context"
	"os/signal"
	"syscall"

	"candidash/cmd/identity"
	"candidash/cmd/internal/auth/retention"
)

// Run is the CLI entrypoint used by cmd/candidash.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// RunSweep is the entrypoint used by cmd/sweep: one retention pass against
// the configured store, then exit.
func RunSweep() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_, err = Sweep(ctx, cfg, log)
	return err
}

// Sweep opens the configured store and deletes records past the retention
// window once.
func Sweep(ctx context.Context, cfg Config, log Logger) (int64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	verifier, err := identity.NewArgon2idVerifier(cfg.Password)
	if err != nil {
		return 0, err
	}
	b, err := openBackends(ctx, cfg, log, verifier)
	if err != nil {
		return 0, err
	}
	defer b.Close()

	s, err := retention.New(b.store, cfg.Retention, retention.WithLogger(log))
	if err != nil {
		return 0, err
	}
	return s.SweepOnce(ctx)
}
