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

// Package catalog is the relational source of truth for the ingest control
// plane: companies, CRS definitions, datasets and their versions, scans,
// artifacts, ingest runs, and the scan registration graph.
package catalog

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Artifact kinds. Raw kinds carry a NULL schema_version; derived kinds are
// identified together with a schema_version.
const (
	KindRawPointCloud   = "raw.point_cloud"
	KindRawTrajectory   = "raw.trajectory"
	KindRawControlPoint = "raw.control_point"
)

// Artifact status lifecycle.
const (
	ArtifactStatusPending   = "PENDING"
	ArtifactStatusAvailable = "AVAILABLE"
	ArtifactStatusReady     = "READY"
	ArtifactStatusFailed    = "FAILED"
)

// IngestRun status lifecycle: QUEUED -> RUNNING -> {SUCCEEDED, FAILED}.
const (
	IngestRunStatusQueued    = "QUEUED"
	IngestRunStatusRunning   = "RUNNING"
	IngestRunStatusSucceeded = "SUCCEEDED"
	IngestRunStatusFailed    = "FAILED"
)

// Company is the root tenant. Created once; never deleted by the core.
type Company struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

// CRS is immutable once created. Meta may hold WKT/PROJJSON blobs.
type CRS struct {
	ID         string          `db:"id"`
	Name       string          `db:"name"`
	ZoneDegree sql.NullFloat64 `db:"zone_degree"`
	EPSG       sql.NullInt64   `db:"epsg"`
	Units      string          `db:"units"`
	AxisOrder  string          `db:"axis_order"`
	Meta       json.RawMessage `db:"meta"`
}

// Dataset is owned by a Company. (company_id, name) is unique.
type Dataset struct {
	ID        string `db:"id"`
	CompanyID string `db:"company_id"`
	Name      string `db:"name"`
	CRSID     string `db:"crs_id"`
}

// DatasetVersion is a monotonic snapshot of a Dataset. Exactly one row per
// dataset has IsActive=true at any moment.
type DatasetVersion struct {
	ID        string    `db:"id"`
	DatasetID string    `db:"dataset_id"`
	Version   int        `db:"version"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

// Scan is one scanning session: a bundle of raw artifacts anchored to a
// dataset version.
type Scan struct {
	ID               string        `db:"id"`
	CompanyID        string        `db:"company_id"`
	DatasetID        string        `db:"dataset_id"`
	DatasetVersionID string        `db:"dataset_version_id"`
	CRSID            string        `db:"crs_id"`
	Status           string        `db:"status"`
	// SchemaVersion tracks the manifest schema version the scan was last
	// ingested against (added, recovered from original_source).
	SchemaVersion   sql.NullInt64  `db:"schema_version"`
	OwnerDepartment sql.NullString `db:"owner_department"`
	Meta            json.RawMessage `db:"meta"`
}

// ScanStatusCreated is the status a Scan is born with.
const ScanStatusCreated = "CREATED"

// Artifact is a persisted file anchored to a scan by (kind, schema_version?).
// SchemaVersion.Valid=false identifies a raw artifact.
type Artifact struct {
	ID            int64          `db:"id"`
	CompanyID     string         `db:"company_id"`
	ScanID        string         `db:"scan_id"`
	Kind          string         `db:"kind"`
	SchemaVersion sql.NullInt64  `db:"schema_version"`
	Bucket        string         `db:"bucket"`
	Key           string         `db:"key"`
	ETag          sql.NullString `db:"etag"`
	SizeBytes     sql.NullInt64  `db:"size_bytes"`
	Status        string         `db:"status"`
	// ContentType is recorded at registration time (added, from
	// original_source). The reconciler heals status, etag and size only; it
	// does not re-derive the content type.
	ContentType sql.NullString  `db:"content_type"`
	Meta        json.RawMessage `db:"meta"`
	CreatedAt   time.Time       `db:"created_at"`
}

// IsRaw reports whether a is a raw artifact (schema_version IS NULL).
func (a Artifact) IsRaw() bool {
	return !a.SchemaVersion.Valid
}

// IngestRunError is the structured failure recorded on a terminal FAILED
// ingest run.
type IngestRunError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

// IngestRun is one attempt to normalize a scan into a schema-versioned
// manifest; deduplicated by InputFingerprint.
type IngestRun struct {
	ID               int64           `db:"id"`
	CompanyID        string          `db:"company_id"`
	ScanID           string          `db:"scan_id"`
	SchemaVersion    int             `db:"schema_version"`
	InputFingerprint string          `db:"input_fingerprint"`
	Status           string          `db:"status"`
	Error            json.RawMessage `db:"error"`
	// Attempt counts forced re-ingestions of an already-terminal
	// fingerprint (added, from original_source); carried into the
	// manifest's ingest.attempt field.
	Attempt    int          `db:"attempt"`
	CreatedAt  time.Time    `db:"created_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
}

// ScanEdge is a registration-graph edge between two scans within one
// dataset version. Unique on (dataset_version_id, from, to, kind).
type ScanEdge struct {
	CompanyID        string          `db:"company_id"`
	DatasetVersionID string          `db:"dataset_version_id"`
	ScanIDFrom       string          `db:"scan_id_from"`
	ScanIDTo         string          `db:"scan_id_to"`
	Kind             string          `db:"kind"`
	Weight           float64         `db:"weight"`
	TransformGuess   json.RawMessage `db:"transform_guess"`
	Meta             json.RawMessage `db:"meta"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// Pose is a rigid transform: translation t and rotation matrix R.
type Pose struct {
	T [3]float64    `json:"t"`
	R [3][3]float64 `json:"R"`
}

// ScanPose is the solved absolute pose for one scan within one dataset
// version. Unique on (dataset_version_id, scan_id).
type ScanPose struct {
	CompanyID        string          `db:"company_id"`
	DatasetVersionID string          `db:"dataset_version_id"`
	ScanID           string          `db:"scan_id"`
	Pose             json.RawMessage `db:"pose"`
	Quality          sql.NullFloat64 `db:"quality"`
	Meta             json.RawMessage `db:"meta"`
}
