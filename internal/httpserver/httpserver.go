/*
Copyright 2026 The LidarCtl Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package httpserver is the small admin HTTP surface every control-plane
// binary mounts alongside its real work: /healthz, /readyz, and /metrics,
// behind the standard recover/request-id/CORS middleware chain.
package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lidarctl/controlplane/pkg/log"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

// ReadinessCheck reports whether the binary is ready to serve traffic
// (e.g. a database ping). A nil error means ready.
type ReadinessCheck func() error

// Options configures the admin server. Registry defaults to the global
// Prometheus registry when nil; Ready defaults to an always-ready check
// when nil.
type Options struct {
	Registry prometheus.Gatherer
	Ready    ReadinessCheck
	Log      logr.Logger
}

// New builds the chi.Router every binary mounts its admin surface on:
// request-id + panic recovery + permissive CORS (this surface carries no
// tenant data), then /healthz, /readyz, /metrics.
func New(opts Options) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	ready := opts.Ready
	if ready == nil {
		ready = func() error { return nil }
	}
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if err := ready(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready","error":"` + err.Error() + `"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return r
}

// Serve runs an http.Server on addr with r as the handler until the
// server is shut down or ListenAndServe returns a non-shutdown error.
func Serve(addr string, r chi.Router, l logr.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	l.Info("admin HTTP surface listening", log.NewFields().Custom("addr", addr).KeysAndValues()...)
	return srv.ListenAndServe()
}
