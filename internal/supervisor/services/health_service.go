// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package services

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/featurestore/internal/logging"
	"github.com/tomtom215/featurestore/internal/metrics"
)

// Pinger is any store that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthProbe pings a store on an interval and keeps the last result for
// the /healthz handler. It never fails; an unreachable store is a state,
// not a crash.
type HealthProbe struct {
	name     string
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration

	mu      sync.RWMutex
	lastErr error
	checked time.Time
}

// NewHealthProbe creates a probe for pinger. interval defaults to 15s.
func NewHealthProbe(name string, pinger Pinger, interval time.Duration) *HealthProbe {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HealthProbe{
		name:     name,
		pinger:   pinger,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// Serve implements suture.Service.
func (h *HealthProbe) Serve(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Probe(ctx)
		}
	}
}

// Probe pings once and records the result.
func (h *HealthProbe) Probe(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	err := h.pinger.Ping(pingCtx)

	h.mu.Lock()
	wasDown := h.lastErr != nil
	h.lastErr = err
	h.checked = time.Now()
	h.mu.Unlock()

	if err != nil {
		metrics.StoreUp.WithLabelValues(h.name).Set(0)
		logging.Warn().Str("backend", h.name).Err(err).Msg("Store health probe failed")
		return err
	}
	metrics.StoreUp.WithLabelValues(h.name).Set(1)
	if wasDown {
		logging.Info().Str("backend", h.name).Msg("Store reachable again")
	}
	return nil
}

// Status returns when the last probe ran and its error. A zero time means
// no probe has completed yet.
func (h *HealthProbe) Status() (time.Time, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.checked, h.lastErr
}

// Name returns the probed backend.
func (h *HealthProbe) Name() string { return h.name }

// String names the service in supervisor logs.
func (h *HealthProbe) String() string { return "health-" + h.name }
