package app

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"warden/cmd/internal/auth/api"
	"warden/cmd/internal/metrics"
)

// newRouter registers probes, metrics and the auth API, then wraps the router with the
// middleware chain. m may be nil when metrics are disabled.
func newRouter(log Logger, cfg Config, dbPool *pgxpool.Pool, auth *api.Handler, m *metrics.Metrics) http.Handler {
	r := mux.NewRouter()
	dbEnabled := dbPool != nil

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	}).Methods(http.MethodGet)

	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
		r.Use(m.Middleware)
	}

	if auth != nil {
		auth.Register(r)
	}

	var h http.Handler = r
	h = WithCORS(h, cfg, log)
	h = WithSecurityHeaders(h)
	return WithRequestLogging(h, log)
}
