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
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/lidarctl/controlplane/internal/errors"
)

// QueuedRun is the minimal projection of an ingest_runs row the poller
// needs to attempt a claim and hand off to an executor.
type QueuedRun struct {
	ID               int64
	CompanyID        string
	ScanID           string
	SchemaVersion    int
	InputFingerprint string
	Attempt          int
}

// Poller is the high-throughput CAS-claim hot path for the worker loop.
// It talks to Postgres over a native pgxpool connection pool rather than
// through the sqlx-based catalog.Repository: under a tight poll interval
// with many competing workers, pgx's native protocol and pooling avoid
// the per-call reflection and row-scanning overhead database/sql pays
// on every claim attempt.
type Poller struct {
	pool *pgxpool.Pool
}

// NewPoller wraps an existing pgxpool.Pool.
func NewPoller(pool *pgxpool.Pool) *Poller {
	return &Poller{pool: pool}
}

var _ ClaimPoller = (*Poller)(nil)

// ListQueued returns up to limit QUEUED rows ordered by creation time,
// oldest first.
func (p *Poller) ListQueued(ctx context.Context, limit int) ([]QueuedRun, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, company_id, scan_id, schema_version, input_fingerprint, attempt
		FROM ingest_runs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2`, StatusQueued, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("ListQueued", err)
	}
	defer rows.Close()

	var out []QueuedRun
	for rows.Next() {
		var r QueuedRun
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.ScanID, &r.SchemaVersion, &r.InputFingerprint, &r.Attempt); err != nil {
			return nil, apperrors.NewDatabaseError("ListQueued scan", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("ListQueued rows", err)
	}
	return out, nil
}

// Claim performs the QUEUED->RUNNING compare-and-swap. It reports
// claimed=false, nil when another worker already claimed runID; this is
// the only concurrency-correctness primitive the worker loop relies on.
func (p *Poller) Claim(ctx context.Context, runID int64) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE ingest_runs SET status = $1
		WHERE id = $2 AND status = $3`, StatusRunning, runID, StatusQueued)
	if err != nil {
		return false, apperrors.NewDatabaseError("Claim", err)
	}
	return tag.RowsAffected() == 1, nil
}

// StampTerminal records the terminal outcome of a claimed run. errJSON
// is nil on success.
func (p *Poller) StampTerminal(ctx context.Context, runID int64, status string, errJSON []byte) error {
	if err := ValidateTerminalTransition(status); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `
		UPDATE ingest_runs
		SET status = $1, error = $2, finished_at = now()
		WHERE id = $3`, status, errJSON, runID)
	if err != nil {
		return apperrors.NewDatabaseError(fmt.Sprintf("StampTerminal(%s)", status), err)
	}
	return nil
}
