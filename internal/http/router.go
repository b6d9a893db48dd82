// Package http assembles the service router: middleware chain, operational
// endpoints, and the authenticated API surface.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custos/pkg/platform/middleware/actor"
	"custos/pkg/platform/middleware/requestid"
	"custos/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's endpoints on the router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter builds the full service router. Every API route sits behind the
// actor middleware so each decision has an accountable principal; /healthz
// and /metrics stay open for probes and scrapers.
func NewRouter(signingKey []byte, logger *slog.Logger, registrars ...Registrar) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(actor.Middleware(signingKey, logger))
		for _, registrar := range registrars {
			registrar.Register(r)
		}
	})

	return r
}
