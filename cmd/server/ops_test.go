// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/featurestore/internal/config"
	"github.com/tomtom215/featurestore/internal/middleware"
	"github.com/tomtom215/featurestore/internal/resilience"
	"github.com/tomtom215/featurestore/internal/supervisor/services"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	breaker := resilience.NewBreaker("ops-test", config.BreakerConfig{MaxRequests: 1, Timeout: time.Second, MinRequests: 1, FailureRatio: 1})

	tests := []struct {
		name       string
		pingErr    error
		probe      bool
		wantCode   int
		wantStatus string
		wantState  string
	}{
		{"healthy", nil, true, http.StatusOK, "ok", "up"},
		{"store down", errors.New("connection refused"), true, http.StatusServiceUnavailable, "degraded", "down"},
		{"not yet probed", nil, false, http.StatusOK, "ok", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := services.NewHealthProbe("duckdb", stubPinger{err: tt.pingErr}, time.Hour)
			if tt.probe {
				_ = probe.Probe(context.Background())
			}
			router := newOpsRouter("/metrics", []*services.HealthProbe{probe}, []*resilience.Breaker{breaker})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp healthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if len(resp.Backends) != 1 || resp.Backends[0].Status != tt.wantState {
				t.Errorf("backends = %+v, want one %q", resp.Backends, tt.wantState)
			}
			if len(resp.Breakers) != 1 || resp.Breakers[0].State != "closed" {
				t.Errorf("breakers = %+v, want one closed", resp.Breakers)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newOpsRouter("/metrics", nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics body missing go_goroutines")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("/livez status code = %d, want 204", rec.Code)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("/livez response missing request id header")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `featurestore_ops_requests_total{method="GET",route="/livez",status="204"}`) {
		t.Error("metrics body missing ops request counter for /livez")
	}
}
