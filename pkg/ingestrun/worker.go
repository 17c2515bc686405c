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

package ingestrun

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
)

// Executor runs the ingest body for a claimed run: validating inputs and
// producing whatever downstream state (manifest, derived artifacts) the
// ingest operation is responsible for. A non-nil error stamps the run
// FAILED with the error's message; success stamps SUCCEEDED.
type Executor func(ctx context.Context, run QueuedRun) error

// ClaimPoller is the narrow slice of Poller the worker loop depends on,
// so tests can exercise claim-race and executor-failure behavior with an
// in-memory fake instead of a live Postgres pool.
type ClaimPoller interface {
	ListQueued(ctx context.Context, limit int) ([]QueuedRun, error)
	Claim(ctx context.Context, runID int64) (bool, error)
	StampTerminal(ctx context.Context, runID int64, status string, errJSON []byte) error
}

// Worker polls for QUEUED ingest runs and drives each claimed row
// through Executor. Concurrency within one poll tick comes from
// golang.org/x/sync/errgroup running up to Concurrency claim attempts in
// parallel; the CAS in ClaimPoller.Claim is what makes a lost race
// harmless (the loser simply skips the row).
type Worker struct {
	Poller       ClaimPoller
	Executor     Executor
	Limit        int
	Concurrency  int
	PollInterval time.Duration
	Log          logr.Logger
}

// Run polls until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.Log.Error(err, "ingest run poll tick failed")
			}
		}
	}
}

func (w *Worker) pollInterval() time.Duration {
	if w.PollInterval <= 0 {
		return 5 * time.Second
	}
	return w.PollInterval
}

func (w *Worker) concurrency() int {
	if w.Concurrency <= 0 {
		return 1
	}
	return w.Concurrency
}

// tick lists queued rows and attempts to claim+execute up to
// Concurrency of them in parallel.
func (w *Worker) tick(ctx context.Context) error {
	rows, err := w.Poller.ListQueued(ctx, w.Limit)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.concurrency())

	for _, row := range rows {
		row := row
		group.Go(func() error {
			w.claimAndExecute(groupCtx, row)
			return nil
		})
	}
	return group.Wait()
}

// claimAndExecute attempts the CAS claim for one row; a lost race is not
// an error, just a skip. Errors from the claim itself or from Executor
// are logged rather than returned, so one row's failure never aborts the
// rest of the tick's errgroup.
func (w *Worker) claimAndExecute(ctx context.Context, row QueuedRun) {
	claimed, err := w.Poller.Claim(ctx, row.ID)
	if err != nil {
		w.Log.Error(err, "claim failed", "ingest_run_id", row.ID)
		return
	}
	if !claimed {
		return
	}

	if err := w.Executor(ctx, row); err != nil {
		w.stampFailed(ctx, row.ID, err)
		return
	}
	if err := w.Poller.StampTerminal(ctx, row.ID, StatusSucceeded, nil); err != nil {
		w.Log.Error(err, "failed to stamp SUCCEEDED", "ingest_run_id", row.ID)
	}
}

func (w *Worker) stampFailed(ctx context.Context, runID int64, execErr error) {
	payload, _ := json.Marshal(map[string]string{
		"type":    "ingest_error",
		"message": execErr.Error(),
	})
	if err := w.Poller.StampTerminal(ctx, runID, StatusFailed, payload); err != nil {
		w.Log.Error(err, "failed to stamp FAILED", "ingest_run_id", runID)
	}
}
