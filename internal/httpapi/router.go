// Package httpapi is the observability HTTP surface both binaries
// expose: /healthz and /healthz/ready for liveness/readiness probes,
// /metrics for Prometheus scraping, and an optional /status JSON route.
// nfgraph's actual control surface is internal/wire, not REST.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc reports whether the process is ready to serve, returning
// a human-readable reason when it is not.
type HealthFunc func() (ready bool, reason string)

// NewRouter builds the chi router shared by chaind and chainagent.
// readiness is consulted on every GET /healthz/ready; startTime feeds
// the liveness probe's uptime field. statusHandler is mounted at
// GET /status when non-nil — chainagent run wires it to a JSON dump of
// per-core counters and installed NFs that `chainagent status` polls
// remotely, since a separate CLI invocation has no in-process access
// to the running agent's state; chaind passes nil, since it has no
// equivalent of "installed NFs" to report outside /metrics.
func NewRouter(startTime time.Time, readiness HealthFunc, statusHandler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"uptime_sec": int64(time.Since(startTime).Seconds()),
		})
	})

	r.Get("/healthz/ready", func(w http.ResponseWriter, req *http.Request) {
		if readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		ready, reason := readiness()
		if !ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"reason": reason,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	r.Handle("/metrics", promhttp.Handler())

	if statusHandler != nil {
		r.Get("/status", statusHandler)
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
