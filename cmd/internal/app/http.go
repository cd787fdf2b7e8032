package app

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"candidash/cmd/internal/auth/api"
)

func newRouter(
	log Logger,
	cfg Config,
	reg *prometheus.Registry,
	b *backends,
	auth *authapi.Handler,
) chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		WithRequestLogging(log),
		middleware.Recoverer,
		WithSecurityHeaders,
		WithCORS(cfg.CORSAllowedOrigins, log),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !b.persistent() {
			http.Error(w, "store not persistent", http.StatusServiceUnavailable)
			return
		}

		names := make([]string, 0, len(b.checks))
		for name := range b.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := b.checks[name](ctx)
			cancel()
			if err != nil {
				log.Info("readyz.not_ready", "dependency", name, "err", err)
				http.Error(w, name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	auth.Register(r)
	return r
}
