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

package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"

	apperrors "github.com/lidarctl/controlplane/internal/errors"
)

// Repository is the transactional catalog repository (C3). Every exported
// method runs inside a single transaction obtained from a scoped session:
// committed on normal return, rolled back on error or panic.
type Repository struct {
	db  *sqlx.DB
	log logr.Logger
}

// NewRepository builds a Repository over an already-connected pool.
func NewRepository(db *sqlx.DB, log logr.Logger) *Repository {
	return &Repository{db: db, log: log}
}

// Tx is a scoped transactional session. Its methods are the same
// operations as Repository's but composable within one transaction.
type Tx struct {
	tx  *sqlx.Tx
	log logr.Logger
}

// WithTx opens a transaction, runs fn, and commits on normal return. A
// panic or returned error rolls the transaction back; a panic is
// re-panicked after rollback.
func (r *Repository) WithTx(ctx context.Context, fn func(*Tx) error) (err error) {
	sqlxTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.NewDatabaseError("begin transaction", err)
	}

	tx := &Tx{tx: sqlxTx, log: r.log}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlxTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlxTx.Rollback(); rbErr != nil {
				r.log.Error(rbErr, "rollback failed after operation error")
			}
			return
		}
		err = sqlxTx.Commit()
	}()

	err = fn(tx)
	return err
}

func newULID() string {
	return ulid.Make().String()
}

// EnsureCompany inserts the company if absent. Idempotent.
func (r *Repository) EnsureCompany(ctx context.Context, id, name string) error {
	return r.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO companies (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO NOTHING`, id, name)
		if err != nil {
			return apperrors.NewDatabaseError("EnsureCompany", err)
		}
		return nil
	})
}

// EnsureCRS inserts the CRS if absent. CRS rows are immutable once present;
// an existing row is never updated.
func (r *Repository) EnsureCRS(ctx context.Context, crs CRS) error {
	return r.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO crs (id, name, zone_degree, epsg, units, axis_order, meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			crs.ID, crs.Name, crs.ZoneDegree, crs.EPSG, crs.Units, crs.AxisOrder, crs.Meta)
		if err != nil {
			return apperrors.NewDatabaseError("EnsureCRS", err)
		}
		return nil
	})
}

// EnsureDataset returns the dataset id for (company, name), creating it if
// absent. If an existing row's crs_id disagrees with a non-empty supplied
// crsID, the call fails with a catalog invariant error. The race between
// two concurrent creators is handled by insert-then-retry-on-conflict: a
// unique violation means another caller won, so the winner's row is
// re-read rather than treated as failure.
func (r *Repository) EnsureDataset(ctx context.Context, company, name, crsID string) (string, error) {
	var datasetID string
	var lostRace bool
	err := r.WithTx(ctx, func(tx *Tx) error {
		var existing Dataset
		err := tx.tx.GetContext(ctx, &existing, `
			SELECT id, company_id, name, crs_id FROM datasets
			WHERE company_id = $1 AND name = $2`, company, name)
		switch {
		case err == nil:
			if crsID != "" && existing.CRSID != crsID {
				return apperrors.NewCatalogInvariantError(
					fmt.Sprintf("dataset %s/%s already exists with crs_id=%s, requested %s",
						company, name, existing.CRSID, crsID))
			}
			datasetID = existing.ID
			return nil
		case err != sql.ErrNoRows:
			return apperrors.NewDatabaseError("EnsureDataset lookup", err)
		}

		newID := newULID()
		_, err = tx.tx.ExecContext(ctx, `
			INSERT INTO datasets (id, company_id, name, crs_id) VALUES ($1, $2, $3, $4)`,
			newID, company, name, crsID)
		if err != nil {
			lostRace = isUniqueViolation(err)
			return apperrors.NewDatabaseError("EnsureDataset insert", err)
		}
		datasetID = newID
		return nil
	})
	if !lostRace {
		return datasetID, err
	}
	// The failed insert aborted the first transaction, so the winner's row is
	// read in a fresh one.
	err = r.WithTx(ctx, func(tx *Tx) error {
		var winner Dataset
		if rerr := tx.tx.GetContext(ctx, &winner, `
			SELECT id, company_id, name, crs_id FROM datasets
			WHERE company_id = $1 AND name = $2`, company, name); rerr != nil {
			return apperrors.NewDatabaseError("EnsureDataset re-read after race", rerr)
		}
		datasetID = winner.ID
		return nil
	})
	return datasetID, err
}

// EnsureDatasetVersion returns the current active dataset version, creating
// version 1 if the dataset has none yet.
func (r *Repository) EnsureDatasetVersion(ctx context.Context, datasetID string) (DatasetVersion, error) {
	var dv DatasetVersion
	err := r.WithTx(ctx, func(tx *Tx) error {
		err := tx.tx.GetContext(ctx, &dv, `
			SELECT id, dataset_id, version, is_active, created_at FROM dataset_versions
			WHERE dataset_id = $1 AND is_active = true`, datasetID)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return apperrors.NewDatabaseError("EnsureDatasetVersion lookup", err)
		}

		dv = DatasetVersion{ID: newULID(), DatasetID: datasetID, Version: 1, IsActive: true}
		row := tx.tx.QueryRowContext(ctx, `
			INSERT INTO dataset_versions (id, dataset_id, version, is_active)
			VALUES ($1, $2, $3, true) RETURNING created_at`, dv.ID, dv.DatasetID, dv.Version)
		if err := row.Scan(&dv.CreatedAt); err != nil {
			return apperrors.NewDatabaseError("EnsureDatasetVersion insert", err)
		}
		return nil
	})
	return dv, err
}

// BumpDatasetVersion select-for-updates the active row, deactivates it, and
// inserts a new active row with version = prev+1. The row lock makes two
// concurrent bumps serialize: exactly one creates v+1, the other v+2.
func (r *Repository) BumpDatasetVersion(ctx context.Context, datasetID string) (DatasetVersion, error) {
	var next DatasetVersion
	err := r.WithTx(ctx, func(tx *Tx) error {
		var current DatasetVersion
		err := tx.tx.GetContext(ctx, &current, `
			SELECT id, dataset_id, version, is_active, created_at FROM dataset_versions
			WHERE dataset_id = $1 AND is_active = true FOR UPDATE`, datasetID)
		if err != nil {
			return apperrors.NewDatabaseError("BumpDatasetVersion lock active version", err)
		}

		if _, err := tx.tx.ExecContext(ctx, `
			UPDATE dataset_versions SET is_active = false WHERE id = $1`, current.ID); err != nil {
			return apperrors.NewDatabaseError("BumpDatasetVersion deactivate", err)
		}

		next = DatasetVersion{ID: newULID(), DatasetID: datasetID, Version: current.Version + 1, IsActive: true}
		row := tx.tx.QueryRowContext(ctx, `
			INSERT INTO dataset_versions (id, dataset_id, version, is_active)
			VALUES ($1, $2, $3, true) RETURNING created_at`, next.ID, next.DatasetID, next.Version)
		if err := row.Scan(&next.CreatedAt); err != nil {
			return apperrors.NewDatabaseError("BumpDatasetVersion insert", err)
		}
		return nil
	})
	return next, err
}

// GetScan returns a scan by id, used by callers (the artifact service) that
// need to authorize a key-layout request against the scan's own company and
// dataset version before touching the object store.
func (r *Repository) GetScan(ctx context.Context, scanID string) (Scan, error) {
	var scan Scan
	err := r.WithTx(ctx, func(tx *Tx) error {
		err := tx.tx.GetContext(ctx, &scan, `
			SELECT id, company_id, dataset_id, dataset_version_id, crs_id, status, schema_version, owner_department, meta
			FROM scans WHERE id = $1`, scanID)
		if err == sql.ErrNoRows {
			return apperrors.NewNotFoundError("scan")
		}
		if err != nil {
			return apperrors.NewDatabaseError("GetScan", err)
		}
		return nil
	})
	return scan, err
}

// CreateScan validates that datasetVersionID's owning dataset belongs to
// company, then inserts a scan with status CREATED.
func (r *Repository) CreateScan(ctx context.Context, company, datasetVersionID, crsID string) (string, error) {
	var scanID string
	err := r.WithTx(ctx, func(tx *Tx) error {
		var ownerCompany string
		err := tx.tx.GetContext(ctx, &ownerCompany, `
			SELECT d.company_id FROM dataset_versions dv
			JOIN datasets d ON d.id = dv.dataset_id
			WHERE dv.id = $1`, datasetVersionID)
		if err == sql.ErrNoRows {
			return apperrors.NewNotFoundError("dataset version")
		}
		if err != nil {
			return apperrors.NewDatabaseError("CreateScan owner lookup", err)
		}
		if ownerCompany != company {
			return apperrors.NewCatalogInvariantError(
				fmt.Sprintf("dataset version %s belongs to company %s, not %s", datasetVersionID, ownerCompany, company))
		}

		var datasetID string
		if err := tx.tx.GetContext(ctx, &datasetID, `
			SELECT dataset_id FROM dataset_versions WHERE id = $1`, datasetVersionID); err != nil {
			return apperrors.NewDatabaseError("CreateScan dataset lookup", err)
		}

		scanID = newULID()
		_, err = tx.tx.ExecContext(ctx, `
			INSERT INTO scans (id, company_id, dataset_id, dataset_version_id, crs_id, status)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			scanID, company, datasetID, datasetVersionID, crsID, ScanStatusCreated)
		if err != nil {
			return apperrors.NewDatabaseError("CreateScan insert", err)
		}
		return nil
	})
	return scanID, err
}

// RegisterRawArtifact inserts a raw artifact (schema_version NULL). The
// repository rejects a second raw artifact of the same kind for a scan.
func (r *Repository) RegisterRawArtifact(ctx context.Context, a Artifact) (int64, error) {
	if a.IsRaw() == false {
		return 0, apperrors.NewValidationError("RegisterRawArtifact requires schema_version to be unset")
	}
	var id int64
	err := r.WithTx(ctx, func(tx *Tx) error {
		var count int
		if err := tx.tx.GetContext(ctx, &count, `
			SELECT count(*) FROM artifacts
			WHERE scan_id = $1 AND kind = $2 AND schema_version IS NULL`, a.ScanID, a.Kind); err != nil {
			return apperrors.NewDatabaseError("RegisterRawArtifact duplicate check", err)
		}
		if count > 0 {
			return apperrors.NewCatalogInvariantError(
				fmt.Sprintf("scan %s already has a raw artifact of kind %s", a.ScanID, a.Kind))
		}

		if a.Status == "" {
			a.Status = ArtifactStatusAvailable
		}
		row := tx.tx.QueryRowContext(ctx, `
			INSERT INTO artifacts (company_id, scan_id, kind, schema_version, bucket, key, etag, size_bytes, status, content_type, meta)
			VALUES ($1, $2, $3, NULL, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`,
			a.CompanyID, a.ScanID, a.Kind, a.Bucket, a.Key, a.ETag, a.SizeBytes, a.Status, a.ContentType, a.Meta)
		if err := row.Scan(&id); err != nil {
			return apperrors.NewDatabaseError("RegisterRawArtifact insert", err)
		}
		return nil
	})
	return id, err
}

// RegisterArtifact inserts a derived artifact; schema_version is required.
func (r *Repository) RegisterArtifact(ctx context.Context, a Artifact) (int64, error) {
	if !a.SchemaVersion.Valid {
		return 0, apperrors.NewValidationError("RegisterArtifact requires a schema_version")
	}
	var id int64
	err := r.WithTx(ctx, func(tx *Tx) error {
		if a.Status == "" {
			a.Status = ArtifactStatusAvailable
		}
		row := tx.tx.QueryRowContext(ctx, `
			INSERT INTO artifacts (company_id, scan_id, kind, schema_version, bucket, key, etag, size_bytes, status, content_type, meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			a.CompanyID, a.ScanID, a.Kind, a.SchemaVersion, a.Bucket, a.Key, a.ETag, a.SizeBytes, a.Status, a.ContentType, a.Meta)
		if err := row.Scan(&id); err != nil {
			return apperrors.NewDatabaseError("RegisterArtifact insert", err)
		}
		return nil
	})
	return id, err
}

// UpsertDerivedArtifact overwrites the row identified by
// (scan_id, kind, schema_version) if one exists, or inserts it.
func (r *Repository) UpsertDerivedArtifact(ctx context.Context, a Artifact) (int64, error) {
	if !a.SchemaVersion.Valid {
		return 0, apperrors.NewValidationError("UpsertDerivedArtifact requires a schema_version")
	}
	var id int64
	err := r.WithTx(ctx, func(tx *Tx) error {
		if a.Status == "" {
			a.Status = ArtifactStatusAvailable
		}
		row := tx.tx.QueryRowContext(ctx, `
			INSERT INTO artifacts (company_id, scan_id, kind, schema_version, bucket, key, etag, size_bytes, status, content_type, meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (scan_id, kind, schema_version) WHERE schema_version IS NOT NULL DO UPDATE SET
				bucket = EXCLUDED.bucket,
				key = EXCLUDED.key,
				etag = EXCLUDED.etag,
				size_bytes = EXCLUDED.size_bytes,
				status = EXCLUDED.status,
				content_type = EXCLUDED.content_type,
				meta = EXCLUDED.meta
			RETURNING id`,
			a.CompanyID, a.ScanID, a.Kind, a.SchemaVersion, a.Bucket, a.Key, a.ETag, a.SizeBytes, a.Status, a.ContentType, a.Meta)
		if err := row.Scan(&id); err != nil {
			return apperrors.NewDatabaseError("UpsertDerivedArtifact", err)
		}
		return nil
	})
	return id, err
}

// ListRawArtifacts returns the AVAILABLE raw artifacts of a scan.
func (r *Repository) ListRawArtifacts(ctx context.Context, scanID string) ([]Artifact, error) {
	var artifacts []Artifact
	err := r.WithTx(ctx, func(tx *Tx) error {
		return tx.tx.SelectContext(ctx, &artifacts, `
			SELECT id, company_id, scan_id, kind, schema_version, bucket, key, etag, size_bytes, status, content_type, meta, created_at
			FROM artifacts
			WHERE scan_id = $1 AND schema_version IS NULL AND status = $2
			ORDER BY kind, bucket, key`, scanID, ArtifactStatusAvailable)
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("ListRawArtifacts", err)
	}
	return artifacts, nil
}

// UpdateArtifactStatus stamps an artifact's status and, when present,
// etag/size_bytes in place by id. Used by the reconciler to heal a PENDING
// row without re-running the raw/derived duplicate-key insert logic.
func (r *Repository) UpdateArtifactStatus(ctx context.Context, id int64, status string, etag sql.NullString, sizeBytes sql.NullInt64) error {
	return r.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `
			UPDATE artifacts SET status = $1, etag = $2, size_bytes = $3 WHERE id = $4`,
			status, etag, sizeBytes, id)
		if err != nil {
			return apperrors.NewDatabaseError("UpdateArtifactStatus", err)
		}
		return nil
	})
}

// ListPendingArtifacts returns up to limit artifacts still in PENDING
// status, oldest first, for the background reconciler (spec.md §4.3) to
// probe against the object store.
func (r *Repository) ListPendingArtifacts(ctx context.Context, limit int) ([]Artifact, error) {
	var artifacts []Artifact
	err := r.WithTx(ctx, func(tx *Tx) error {
		return tx.tx.SelectContext(ctx, &artifacts, `
			SELECT id, company_id, scan_id, kind, schema_version, bucket, key, etag, size_bytes, status, content_type, meta, created_at
			FROM artifacts
			WHERE status = $1
			ORDER BY created_at ASC
			LIMIT $2`, ArtifactStatusPending, limit)
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("ListPendingArtifacts", err)
	}
	return artifacts, nil
}

// FindDerivedArtifact returns the latest derived artifact for
// (scan, kind, schema_version), or apperrors.ErrorTypeNotFound if absent.
func (r *Repository) FindDerivedArtifact(ctx context.Context, scanID, kind string, schemaVersion int) (Artifact, error) {
	var a Artifact
	err := r.WithTx(ctx, func(tx *Tx) error {
		err := tx.tx.GetContext(ctx, &a, `
			SELECT id, company_id, scan_id, kind, schema_version, bucket, key, etag, size_bytes, status, content_type, meta, created_at
			FROM artifacts
			WHERE scan_id = $1 AND kind = $2 AND schema_version = $3
			ORDER BY created_at DESC LIMIT 1`, scanID, kind, schemaVersion)
		if err == sql.ErrNoRows {
			return apperrors.NewNotFoundError("derived artifact")
		}
		if err != nil {
			return apperrors.NewDatabaseError("FindDerivedArtifact", err)
		}
		return nil
	})
	return a, err
}

// ComputeFingerprint lists the scan's raw artifacts and folds them into the
// ingest run dedup key (see fingerprint.go).
func (r *Repository) ComputeFingerprint(ctx context.Context, scanID string) (string, error) {
	artifacts, err := r.ListRawArtifacts(ctx, scanID)
	if err != nil {
		return "", err
	}
	return fingerprint(artifacts), nil
}

// FindIngestRun returns an existing run for
// (company, scan, schema_version, fingerprint), or a not-found error.
func (r *Repository) FindIngestRun(ctx context.Context, company, scanID string, schemaVersion int, fp string) (IngestRun, error) {
	var run IngestRun
	err := r.WithTx(ctx, func(tx *Tx) error {
		err := tx.tx.GetContext(ctx, &run, `
			SELECT id, company_id, scan_id, schema_version, input_fingerprint, status, error, attempt, created_at, finished_at
			FROM ingest_runs
			WHERE company_id = $1 AND scan_id = $2 AND schema_version = $3 AND input_fingerprint = $4
			ORDER BY created_at DESC LIMIT 1`, company, scanID, schemaVersion, fp)
		if err == sql.ErrNoRows {
			return apperrors.NewNotFoundError("ingest run")
		}
		if err != nil {
			return apperrors.NewDatabaseError("FindIngestRun", err)
		}
		return nil
	})
	return run, err
}

// CreateIngestRun inserts a new QUEUED ingest run.
func (r *Repository) CreateIngestRun(ctx context.Context, run IngestRun) (int64, error) {
	var id int64
	err := r.WithTx(ctx, func(tx *Tx) error {
		if run.Status == "" {
			run.Status = IngestRunStatusQueued
		}
		if run.Attempt == 0 {
			run.Attempt = 1
		}
		row := tx.tx.QueryRowContext(ctx, `
			INSERT INTO ingest_runs (company_id, scan_id, schema_version, input_fingerprint, status, attempt)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			run.CompanyID, run.ScanID, run.SchemaVersion, run.InputFingerprint, run.Status, run.Attempt)
		if err := row.Scan(&id); err != nil {
			return apperrors.NewDatabaseError("CreateIngestRun", err)
		}
		return nil
	})
	return id, err
}

// SetIngestRunStatus stamps a terminal status (last-writer-wins) with an
// optional structured error and finished_at.
func (r *Repository) SetIngestRunStatus(ctx context.Context, runID int64, status string, runErr *IngestRunError) error {
	return r.WithTx(ctx, func(tx *Tx) error {
		var errJSON []byte
		if runErr != nil {
			var err error
			errJSON, err = json.Marshal(runErr)
			if err != nil {
				return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "marshal ingest run error")
			}
		}
		_, err := tx.tx.ExecContext(ctx, `
			UPDATE ingest_runs SET status = $1, error = $2, finished_at = now()
			WHERE id = $3`, status, errJSON, runID)
		if err != nil {
			return apperrors.NewDatabaseError("SetIngestRunStatus", err)
		}
		return nil
	})
}

// ClaimIngestRun performs the CAS QUEUED->RUNNING transition and reports
// whether this call won the claim. Exactly-once semantics across any
// number of racing workers.
func (r *Repository) ClaimIngestRun(ctx context.Context, runID int64) (bool, error) {
	var claimed bool
	err := r.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx, `
			UPDATE ingest_runs SET status = $1
			WHERE id = $2 AND status = $3`, IngestRunStatusRunning, runID, IngestRunStatusQueued)
		if err != nil {
			return apperrors.NewDatabaseError("ClaimIngestRun", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperrors.NewDatabaseError("ClaimIngestRun rows affected", err)
		}
		claimed = n == 1
		return nil
	})
	return claimed, err
}

// ListQueuedIngestRuns lists up to limit QUEUED rows, optionally filtered
// by schema version and company, oldest first.
func (r *Repository) ListQueuedIngestRuns(ctx context.Context, schemaVersion *int, company *string, limit int) ([]IngestRun, error) {
	var runs []IngestRun
	err := r.WithTx(ctx, func(tx *Tx) error {
		query := `
			SELECT id, company_id, scan_id, schema_version, input_fingerprint, status, error, attempt, created_at, finished_at
			FROM ingest_runs WHERE status = $1`
		args := []interface{}{IngestRunStatusQueued}

		if schemaVersion != nil {
			args = append(args, *schemaVersion)
			query += fmt.Sprintf(" AND schema_version = $%d", len(args))
		}
		if company != nil {
			args = append(args, *company)
			query += fmt.Sprintf(" AND company_id = $%d", len(args))
		}
		args = append(args, limit)
		query += fmt.Sprintf(" ORDER BY created_at ASC LIMIT $%d", len(args))

		return tx.tx.SelectContext(ctx, &runs, query, args...)
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("ListQueuedIngestRuns", err)
	}
	return runs, nil
}

// AddScanEdges bulk-upserts edges; on conflict, weight becomes
// MAX(existing, new) and transform_guess/meta are overwritten.
func (r *Repository) AddScanEdges(ctx context.Context, edges []ScanEdge) error {
	return r.WithTx(ctx, func(tx *Tx) error {
		for _, e := range edges {
			_, err := tx.tx.ExecContext(ctx, `
				INSERT INTO scan_edges (company_id, dataset_version_id, scan_id_from, scan_id_to, kind, weight, transform_guess, meta)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (dataset_version_id, scan_id_from, scan_id_to, kind) DO UPDATE SET
					weight = GREATEST(scan_edges.weight, EXCLUDED.weight),
					transform_guess = EXCLUDED.transform_guess,
					meta = EXCLUDED.meta,
					updated_at = now()`,
				e.CompanyID, e.DatasetVersionID, e.ScanIDFrom, e.ScanIDTo, e.Kind, e.Weight, e.TransformGuess, e.Meta)
			if err != nil {
				return apperrors.NewDatabaseError("AddScanEdges", err)
			}
		}
		return nil
	})
}

// UpsertScanPose upserts the absolute pose for a scan within a dataset
// version.
func (r *Repository) UpsertScanPose(ctx context.Context, pose ScanPose) error {
	return r.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `
			INSERT INTO scan_poses (company_id, dataset_version_id, scan_id, pose, quality, meta)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (dataset_version_id, scan_id) DO UPDATE SET
				pose = EXCLUDED.pose,
				quality = EXCLUDED.quality,
				meta = EXCLUDED.meta`,
			pose.CompanyID, pose.DatasetVersionID, pose.ScanID, pose.Pose, pose.Quality, pose.Meta)
		if err != nil {
			return apperrors.NewDatabaseError("UpsertScanPose", err)
		}
		return nil
	})
}

// GetCRS returns the full CRS row for crsID, used by activity bodies that
// need more than the PDAL SRS string ResolveCrsToPdalSRS returns (e.g.
// reconstructing a crs.Built record for pkg/manifest.Build from meta).
func (r *Repository) GetCRS(ctx context.Context, crsID string) (CRS, error) {
	var c CRS
	err := r.WithTx(ctx, func(tx *Tx) error {
		err := tx.tx.GetContext(ctx, &c, `
			SELECT id, name, zone_degree, epsg, units, axis_order, meta FROM crs WHERE id = $1`, crsID)
		if err == sql.ErrNoRows {
			return apperrors.NewNotFoundError("CRS")
		}
		if err != nil {
			return apperrors.NewDatabaseError("GetCRS", err)
		}
		return nil
	})
	if err != nil {
		return CRS{}, err
	}
	return c, nil
}

// ResolveCrsToPdalSRS resolves a CRS row to the string PDAL expects:
// "EPSG:<n>" when known, else meta.projjson, else meta.wkt, else the raw id.
func (r *Repository) ResolveCrsToPdalSRS(ctx context.Context, crsID string) (string, error) {
	var crs CRS
	err := r.WithTx(ctx, func(tx *Tx) error {
		err := tx.tx.GetContext(ctx, &crs, `
			SELECT id, name, zone_degree, epsg, units, axis_order, meta FROM crs WHERE id = $1`, crsID)
		if err == sql.ErrNoRows {
			return apperrors.NewNotFoundError("CRS")
		}
		if err != nil {
			return apperrors.NewDatabaseError("ResolveCrsToPdalSRS", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if crs.EPSG.Valid {
		return fmt.Sprintf("EPSG:%d", crs.EPSG.Int64), nil
	}

	var meta map[string]json.RawMessage
	if len(crs.Meta) > 0 {
		if err := json.Unmarshal(crs.Meta, &meta); err == nil {
			if v, ok := meta["projjson"]; ok {
				return string(v), nil
			}
			if v, ok := meta["wkt"]; ok {
				var s string
				if json.Unmarshal(v, &s) == nil {
					return s, nil
				}
			}
		}
	}
	return crs.ID, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), the signal EnsureDataset uses to detect the insert race.
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
