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

package main

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/lidarctl/controlplane/pkg/artifact"
	"github.com/lidarctl/controlplane/pkg/catalog"
	"github.com/lidarctl/controlplane/pkg/metrics"
)

// reconcileLoop periodically lists PENDING artifacts and heals each one
// via pkg/artifact.Service.ReconcilePending. One stuck artifact never
// blocks the rest of a pass: failures are logged and the loop continues
// to the next artifact, then the next tick.
type reconcileLoop struct {
	catalog      *catalog.Repository
	artifact     *artifact.Service
	batchSize    int
	pollInterval time.Duration
	log          logr.Logger
	metrics      *metrics.Metrics
}

// run ticks until ctx is canceled, calling pass on every tick.
func (l *reconcileLoop) run(ctx context.Context) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.pass(ctx); err != nil {
				l.log.Error(err, "reconciliation pass failed")
			}
		}
	}
}

// pass lists up to batchSize PENDING artifacts and probes each against
// the object store.
func (l *reconcileLoop) pass(ctx context.Context) error {
	pending, err := l.catalog.ListPendingArtifacts(ctx, l.batchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	l.log.Info("reconciling pending artifacts", "count", len(pending))

	for _, a := range pending {
		healed, err := l.artifact.ReconcilePending(ctx, a)
		if err != nil {
			l.log.Error(err, "failed to reconcile artifact", "artifact_id", a.ID, "key", a.Key)
			continue
		}
		outcome := "healed_available"
		if healed.Status == catalog.ArtifactStatusFailed {
			outcome = "healed_failed"
		}
		l.metrics.ArtifactUploadsTotal.WithLabelValues(healed.Kind, outcome).Inc()
		l.log.Info("reconciled artifact", "artifact_id", healed.ID, "key", healed.Key, "status", healed.Status)
	}
	return nil
}
