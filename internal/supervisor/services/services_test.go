// Featurestore - Experiment Bucketing and Recommendation Feature Store
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/featurestore

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*HealthProbe)(nil)
)

type fakeServer struct {
	listenErr error
	stop      chan struct{}
	shutdowns atomic.Int32
	once      sync.Once
}

func newFakeServer() *fakeServer { return &fakeServer{stop: make(chan struct{})} }

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	f.once.Do(func() { close(f.stop) })
	return nil
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	srv := newFakeServer()
	svc := NewHTTPServerService("ops-http", srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if srv.shutdowns.Load() != 1 {
		t.Errorf("Shutdown calls = %d, want 1", srv.shutdowns.Load())
	}
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	srv := newFakeServer()
	srv.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService("", srv, 0)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.listenErr) {
		t.Errorf("Serve() error = %v, want wrapped listen error", err)
	}
	if svc.String() != "http-server" {
		t.Errorf("String() = %q, want http-server", svc.String())
	}
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v, want 10s", svc.shutdownTimeout)
	}
}

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePinger) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func TestHealthProbe_TracksLastResult(t *testing.T) {
	pinger := &fakePinger{}
	probe := NewHealthProbe("duckdb", pinger, time.Hour)

	if checked, _ := probe.Status(); !checked.IsZero() {
		t.Errorf("Status() before any probe = %v, want zero time", checked)
	}

	if err := probe.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if checked, err := probe.Status(); checked.IsZero() || err != nil {
		t.Errorf("Status() = %v, %v; want checked, nil", checked, err)
	}

	down := errors.New("database is locked")
	pinger.set(down)
	if err := probe.Probe(context.Background()); !errors.Is(err, down) {
		t.Errorf("Probe() error = %v, want %v", err, down)
	}
	if _, err := probe.Status(); !errors.Is(err, down) {
		t.Errorf("Status() error = %v, want %v", err, down)
	}
}

func TestHealthProbe_ServeProbesImmediately(t *testing.T) {
	probe := NewHealthProbe("postgres", &fakePinger{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- probe.Serve(ctx) }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if checked, _ := probe.Status(); !checked.IsZero() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if checked, _ := probe.Status(); checked.IsZero() {
		t.Error("Serve() did not probe on start")
	}
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if probe.String() != "health-postgres" {
		t.Errorf("String() = %q, want health-postgres", probe.String())
	}
}
