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

// Command reconciler is the standalone healing loop of spec.md §4.3/§7:
// it periodically lists artifacts stuck in PENDING (a crash or network
// partition between the object PUT and the AVAILABLE upsert) and probes
// the object store to flip each one to AVAILABLE or FAILED.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/lidarctl/controlplane/internal/config"
	"github.com/lidarctl/controlplane/internal/database"
	"github.com/lidarctl/controlplane/internal/httpserver"
	"github.com/lidarctl/controlplane/pkg/artifact"
	"github.com/lidarctl/controlplane/pkg/catalog"
	"github.com/lidarctl/controlplane/pkg/log"
	"github.com/lidarctl/controlplane/pkg/metrics"
	"github.com/lidarctl/controlplane/pkg/objectstore"
)

func main() {
	var (
		adminAddr    = flag.String("admin-addr", ":8082", "address the admin HTTP surface listens on")
		batchSize    = flag.Int("batch-size", 100, "max PENDING artifacts probed per pass")
		pollInterval = flag.Duration("poll-interval", 30*time.Second, "reconciliation pass interval")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		logger.Error(err, "connect to catalog database")
		os.Exit(1)
	}
	defer db.Close()
	repo := catalog.NewRepository(db, logger)

	store, err := objectstore.NewClient(ctx, cfg.ObjectStore)
	if err != nil {
		logger.Error(err, "build object store client")
		os.Exit(1)
	}
	artifactSvc := artifact.NewService(store, repo, cfg.ObjectStore.Bucket, logger)

	registry := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry("lidarctl", "reconciler", registry)

	loop := &reconcileLoop{
		catalog:      repo,
		artifact:     artifactSvc,
		batchSize:    *batchSize,
		pollInterval: *pollInterval,
		log:          logger,
		metrics:      m,
	}

	router := httpserver.New(httpserver.Options{
		Registry: registry,
		Ready:    func() error { return db.PingContext(ctx) },
		Log:      logger,
	})
	admin := &http.Server{Addr: *adminAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return loop.run(gctx)
	})
	group.Go(func() error {
		logger.Info("reconciler admin surface listening", "addr", *adminAddr)
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
		logger.Error(err, "reconciler exited with error")
		os.Exit(1)
	}
	logger.Info("reconciler shut down cleanly")
}
