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

// Command orchestrator-worker runs the standalone per-scan ingest-run FSM
// (C11: poll QUEUED ingest_runs, claim, execute, stamp terminal) and hosts
// the multi-scan pipeline's two mandatory activity bodies (ingest, export)
// behind a small HTTP surface a host workflow engine calls into, alongside
// the admin surface (/healthz, /readyz, /metrics).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/lidarctl/controlplane/internal/config"
	"github.com/lidarctl/controlplane/internal/database"
	"github.com/lidarctl/controlplane/internal/httpserver"
	"github.com/lidarctl/controlplane/pkg/artifact"
	"github.com/lidarctl/controlplane/pkg/catalog"
	"github.com/lidarctl/controlplane/pkg/crs"
	"github.com/lidarctl/controlplane/pkg/ingestrun"
	"github.com/lidarctl/controlplane/pkg/log"
	"github.com/lidarctl/controlplane/pkg/metrics"
	"github.com/lidarctl/controlplane/pkg/objectstore"
	"github.com/lidarctl/controlplane/pkg/orchestrator"
)

func main() {
	var (
		adminAddr    = flag.String("admin-addr", ":8081", "address the admin+activity HTTP surface listens on")
		concurrency  = flag.Int("concurrency", 4, "max concurrent ingest-run claims per poll tick")
		limit        = flag.Int("limit", 50, "max QUEUED rows listed per poll tick")
		pollInterval = flag.Duration("poll-interval", 5*time.Second, "ingest-run poll interval")
		dev          = flag.Bool("dev", false, "enable human-readable development logging")
	)
	flag.Parse()

	opts := log.DefaultOptions()
	if *dev {
		opts = log.DevelopmentOptions()
	}
	logger := log.NewLogger(opts)
	defer log.Sync(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error(err, "load configuration")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	_ = metrics.NewMetricsWithRegistry("lidarctl", "orchestrator_worker", registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		logger.Error(err, "connect to catalog database")
		os.Exit(1)
	}
	defer db.Close()
	repo := catalog.NewRepository(db, logger)

	pool, err := pgxpool.New(ctx, cfg.Database.ResolvedDSN())
	if err != nil {
		logger.Error(err, "open pgx pool for ingest-run claims")
		os.Exit(1)
	}
	defer pool.Close()
	poller := ingestrun.NewPoller(pool)

	store, err := objectstore.NewClient(ctx, cfg.ObjectStore)
	if err != nil {
		logger.Error(err, "build object store client")
		os.Exit(1)
	}
	artifactSvc := artifact.NewService(store, repo, cfg.ObjectStore.Bucket, logger)

	presets, err := crs.NewWatchedPresetLoader(cfg.CRS.PresetsPath, logger)
	if err != nil {
		logger.Error(err, "load CRS presets", "path", cfg.CRS.PresetsPath)
		os.Exit(1)
	}
	defer presets.Close()

	acts := &activities{
		catalog:      repo,
		artifact:     artifactSvc,
		presets:      presets,
		fingerprints: ingestrun.NewFingerprintService(repo),
	}

	pipeline := orchestrator.NewPipeline(orchestrator.Stages{
		IngestScan: acts.ingestOneScan,
		Export:     acts.exportStub,
	}, repo, logger)

	worker := &ingestrun.Worker{
		Poller:       poller,
		Executor:     acts.runIngestRun,
		Limit:        *limit,
		Concurrency:  *concurrency,
		PollInterval: *pollInterval,
		Log:          logger,
	}

	router := httpserver.New(httpserver.Options{
		Registry: registry,
		Ready:    func() error { return db.PingContext(ctx) },
		Log:      logger,
	})
	mountPipelineRoutes(router, pipeline, logger)
	mountIngestRunRoutes(router, acts, logger)
	admin := &http.Server{Addr: *adminAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Run(gctx)
	})
	group.Go(func() error {
		logger.Info("orchestrator-worker admin/activity surface listening", "addr", *adminAddr)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return admin.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		logger.Error(err, "orchestrator-worker exited with error")
		os.Exit(1)
	}
	logger.Info("orchestrator-worker shut down cleanly")
}

// runIngestRun adapts one claimed ingest_runs row into the orchestrator's
// per-scan ingest activity, satisfying pkg/ingestrun.Executor.
func (a *activities) runIngestRun(ctx context.Context, run ingestrun.QueuedRun) error {
	_, err := a.ingestOneScan(ctx, run.CompanyID, orchestrator.ScanSpec{ScanID: run.ScanID})
	return err
}

// mountPipelineRoutes adds the host-engine-facing activity entrypoint to
// router: a synchronous POST that runs the full multi-scan pipeline and
// returns its export result, mirroring the thin JSON/HTTP façade style
// pkg/workflowgateway/temporalrpc uses on the client side of the same
// front end.
func mountPipelineRoutes(router interface {
	Post(pattern string, h http.HandlerFunc)
	Get(pattern string, h http.HandlerFunc)
}, pipeline *orchestrator.Pipeline, l interface {
	Error(err error, msg string, kv ...interface{})
}) {
	router.Post("/pipeline/run", func(w http.ResponseWriter, r *http.Request) {
		var cmd orchestrator.PipelineCommand
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := pipeline.Run(r.Context(), cmd)
		if err != nil {
			l.Error(err, "pipeline run failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	})

	router.Get("/pipeline/progress", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pipeline.Progress.Snapshot())
	})
}

// submitIngestRunRequest is the producer-side counterpart of a claimed
// ingestrun.QueuedRun: whoever owns a scan's raw artifacts (the catalog
// API, a backfill script) calls this to queue it for the standalone C11
// FSM, with the same fingerprint-dedup semantics spec §8 scenario 4
// requires of any submission path.
type submitIngestRunRequest struct {
	CompanyID     string `json:"company_id"`
	ScanID        string `json:"scan_id"`
	SchemaVersion int    `json:"schema_version"`
	Force         bool   `json:"force"`
}

type submitIngestRunResponse struct {
	IngestRunID int64  `json:"ingest_run_id"`
	Status      string `json:"status"`
	Deduped     bool   `json:"deduped"`
}

// mountIngestRunRoutes adds the C11 submission endpoint: the producer
// half that the worker loop's poll/claim/execute consumer half has
// always lacked.
func mountIngestRunRoutes(router interface {
	Post(pattern string, h http.HandlerFunc)
}, acts *activities, l interface {
	Error(err error, msg string, kv ...interface{})
}) {
	router.Post("/ingest-runs", func(w http.ResponseWriter, r *http.Request) {
		var req submitIngestRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.CompanyID == "" || req.ScanID == "" {
			http.Error(w, "company_id and scan_id are required", http.StatusBadRequest)
			return
		}

		run, deduped, err := acts.submitIngestRun(r.Context(), req.CompanyID, req.ScanID, req.SchemaVersion, req.Force)
		if err != nil {
			l.Error(err, "submit ingest run failed", "company_id", req.CompanyID, "scan_id", req.ScanID)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(submitIngestRunResponse{
			IngestRunID: run.ID,
			Status:      run.Status,
			Deduped:     deduped,
		})
	})
}
