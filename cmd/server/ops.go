// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/featurestore/internal/logging"
	"github.com/tomtom215/featurestore/internal/middleware"
	"github.com/tomtom215/featurestore/internal/resilience"
	"github.com/tomtom215/featurestore/internal/supervisor/services"
)

type backendHealth struct {
	Backend   string    `json:"backend"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

type breakerHealth struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type healthResponse struct {
	Status   string          `json:"status"`
	Backends []backendHealth `json:"backends"`
	Breakers []breakerHealth `json:"breakers,omitempty"`
}

// newOpsRouter serves Prometheus metrics on metricsPath and store health
// on /healthz. /healthz answers 503 once any probe has failed.
func newOpsRouter(metricsPath string, probes []*services.HealthProbe, breakers []*resilience.Breaker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.Handle(metricsPath, promhttp.Handler())
	r.Get("/healthz", healthHandler(probes, breakers))
	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func healthHandler(probes []*services.HealthProbe, breakers []*resilience.Breaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		for _, p := range probes {
			checked, err := p.Status()
			h := backendHealth{Backend: p.Name(), Status: "up", CheckedAt: checked}
			switch {
			case checked.IsZero():
				h.Status = "unknown"
			case err != nil:
				h.Status = "down"
				h.Error = err.Error()
				resp.Status = "degraded"
			}
			resp.Backends = append(resp.Backends, h)
		}
		for _, b := range breakers {
			resp.Breakers = append(resp.Breakers, breakerHealth{Name: b.Name(), State: b.State()})
		}

		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to write health response")
		}
	}
}
