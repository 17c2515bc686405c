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

// Package artifact composes the object store and catalog repository into
// the deterministic key layout, raw/derived upload flows, and the
// two-phase PENDING->object->AVAILABLE register sequence.
package artifact

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-logr/logr"

	apperrors "github.com/lidarctl/controlplane/internal/errors"
	"github.com/lidarctl/controlplane/pkg/catalog"
	"github.com/lidarctl/controlplane/pkg/objectstore"
)

var unsafeKeyChar = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// sanitize replaces every byte outside [A-Za-z0-9._-] with '_', matching
// the deterministic key layout's normalization rule.
func sanitize(segment string) string {
	return unsafeKeyChar.ReplaceAllString(segment, "_")
}

// ScanRef identifies the scan a key is being built for.
type ScanRef struct {
	Company          string
	DatasetVersionID string
	ScanID           string
}

func prefix(scan ScanRef) string {
	return fmt.Sprintf("tenants/%s/dataset_versions/%s/scans/%s",
		sanitize(scan.Company), sanitize(scan.DatasetVersionID), sanitize(scan.ScanID))
}

// RawKey builds the deterministic key for a raw artifact of the given kind.
func RawKey(scan ScanRef, kind, filename string) (string, error) {
	p := prefix(scan)
	switch kind {
	case catalog.KindRawPointCloud:
		if filename == "" {
			return "", apperrors.NewValidationError("filename is required for raw point cloud artifacts")
		}
		return fmt.Sprintf("%s/raw/point_cloud/%s", p, sanitize(filename)), nil
	case catalog.KindRawTrajectory:
		return fmt.Sprintf("%s/raw/trajectory/path.txt", p), nil
	case catalog.KindRawControlPoint:
		return fmt.Sprintf("%s/raw/control_points/ControlPoint.txt", p), nil
	default:
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown raw artifact kind: %s", kind))
	}
}

// DerivedManifestKey builds the key for a schema-versioned ingest manifest.
func DerivedManifestKey(scan ScanRef, schemaVersion int) string {
	return fmt.Sprintf("%s/derived/v%d/ingest_manifest.json", prefix(scan), schemaVersion)
}

// DerivedCloudKey builds the key for a schema-versioned, stage-scoped
// derived point cloud artifact.
func DerivedCloudKey(scan ScanRef, schemaVersion int, stage, filename string) string {
	return fmt.Sprintf("%s/derived/v%d/%s/point_cloud/%s",
		prefix(scan), schemaVersion, sanitize(stage), sanitize(filename))
}

// Service composes the object store and catalog repository.
type Service struct {
	store   *objectstore.Client
	catalog *catalog.Repository
	bucket  string
	log     logr.Logger
}

// NewService builds an artifact Service.
func NewService(store *objectstore.Client, repo *catalog.Repository, bucket string, log logr.Logger) *Service {
	return &Service{store: store, catalog: repo, bucket: bucket, log: log}
}

// authorize confirms scanRef's company and dataset version match the
// catalog's record for that scan before any object store call is made.
func (s *Service) authorize(ctx context.Context, scanRef ScanRef) error {
	scan, err := s.catalog.GetScan(ctx, scanRef.ScanID)
	if err != nil {
		return err
	}
	if scan.CompanyID != scanRef.Company {
		return apperrors.NewCatalogInvariantError(
			fmt.Sprintf("scan %s belongs to company %s, not %s", scanRef.ScanID, scan.CompanyID, scanRef.Company))
	}
	if scan.DatasetVersionID != scanRef.DatasetVersionID {
		return apperrors.NewCatalogInvariantError(
			fmt.Sprintf("scan %s belongs to dataset version %s, not %s", scanRef.ScanID, scan.DatasetVersionID, scanRef.DatasetVersionID))
	}
	return nil
}

// UploadRawArtifact authorizes the scan, picks the deterministic key for
// kind, puts localPath, and registers the row AVAILABLE.
func (s *Service) UploadRawArtifact(ctx context.Context, scan ScanRef, kind, localPath, filename string) (catalog.Artifact, error) {
	if err := s.authorize(ctx, scan); err != nil {
		return catalog.Artifact{}, err
	}

	key, err := RawKey(scan, kind, filename)
	if err != nil {
		return catalog.Artifact{}, err
	}

	etag, size, err := s.store.UploadFile(ctx, objectstore.Ref{Key: key}, localPath)
	if err != nil {
		return catalog.Artifact{}, err
	}

	a := catalog.Artifact{
		CompanyID: scan.Company,
		ScanID:    scan.ScanID,
		Kind:      kind,
		Bucket:    s.bucket,
		Key:       key,
		ETag:      sql.NullString{String: etag, Valid: true},
		SizeBytes: sql.NullInt64{Int64: size, Valid: true},
		Status:    catalog.ArtifactStatusAvailable,
	}
	id, err := s.catalog.RegisterRawArtifact(ctx, a)
	if err != nil {
		return catalog.Artifact{}, err
	}
	a.ID = id
	return a, nil
}

// UploadDerivedBytes puts body at key and registers a derived row.
func (s *Service) UploadDerivedBytes(ctx context.Context, scan ScanRef, schemaVersion int, kind, key string, body []byte, contentType, status string, meta json.RawMessage) (catalog.Artifact, error) {
	if err := s.authorize(ctx, scan); err != nil {
		return catalog.Artifact{}, err
	}
	if status == "" {
		status = catalog.ArtifactStatusAvailable
	}

	etag, size, err := s.store.PutBytes(ctx, objectstore.Ref{Key: key}, body, contentType)
	if err != nil {
		return catalog.Artifact{}, err
	}

	a := catalog.Artifact{
		CompanyID:     scan.Company,
		ScanID:        scan.ScanID,
		Kind:          kind,
		SchemaVersion: sql.NullInt64{Int64: int64(schemaVersion), Valid: true},
		Bucket:        s.bucket,
		Key:           key,
		ETag:          sql.NullString{String: etag, Valid: true},
		SizeBytes:     sql.NullInt64{Int64: size, Valid: true},
		Status:        status,
		ContentType:   sql.NullString{String: contentType, Valid: contentType != ""},
		Meta:          meta,
	}
	id, err := s.catalog.RegisterArtifact(ctx, a)
	if err != nil {
		return catalog.Artifact{}, err
	}
	a.ID = id
	return a, nil
}

// UploadDerivedFile is UploadDerivedBytes for a local file.
func (s *Service) UploadDerivedFile(ctx context.Context, scan ScanRef, schemaVersion int, kind, key, localPath, contentType string, meta json.RawMessage) (catalog.Artifact, error) {
	if err := s.authorize(ctx, scan); err != nil {
		return catalog.Artifact{}, err
	}

	etag, size, err := s.store.UploadFile(ctx, objectstore.Ref{Key: key}, localPath)
	if err != nil {
		return catalog.Artifact{}, err
	}

	a := catalog.Artifact{
		CompanyID:     scan.Company,
		ScanID:        scan.ScanID,
		Kind:          kind,
		SchemaVersion: sql.NullInt64{Int64: int64(schemaVersion), Valid: true},
		Bucket:        s.bucket,
		Key:           key,
		ETag:          sql.NullString{String: etag, Valid: true},
		SizeBytes:     sql.NullInt64{Int64: size, Valid: true},
		Status:        catalog.ArtifactStatusAvailable,
		ContentType:   sql.NullString{String: contentType, Valid: contentType != ""},
		Meta:          meta,
	}
	id, err := s.catalog.RegisterArtifact(ctx, a)
	if err != nil {
		return catalog.Artifact{}, err
	}
	a.ID = id
	return a, nil
}

// UpsertDerivedFile is idempotent on (scan, kind, schema): uploading the
// same derived file twice overwrites the prior row rather than erroring.
func (s *Service) UpsertDerivedFile(ctx context.Context, scan ScanRef, schemaVersion int, kind, key, localPath, contentType string, meta json.RawMessage) (catalog.Artifact, error) {
	if err := s.authorize(ctx, scan); err != nil {
		return catalog.Artifact{}, err
	}

	etag, size, err := s.store.UploadFile(ctx, objectstore.Ref{Key: key}, localPath)
	if err != nil {
		return catalog.Artifact{}, err
	}

	a := catalog.Artifact{
		CompanyID:     scan.Company,
		ScanID:        scan.ScanID,
		Kind:          kind,
		SchemaVersion: sql.NullInt64{Int64: int64(schemaVersion), Valid: true},
		Bucket:        s.bucket,
		Key:           key,
		ETag:          sql.NullString{String: etag, Valid: true},
		SizeBytes:     sql.NullInt64{Int64: size, Valid: true},
		Status:        catalog.ArtifactStatusAvailable,
		ContentType:   sql.NullString{String: contentType, Valid: contentType != ""},
		Meta:          meta,
	}
	id, err := s.catalog.UpsertDerivedArtifact(ctx, a)
	if err != nil {
		return catalog.Artifact{}, err
	}
	a.ID = id
	return a, nil
}

// RegisterManifestTwoPhase runs the two-phase register used by the ingest
// manifest step: insert PENDING, put the object, upsert AVAILABLE with the
// real etag/size. If the put fails the PENDING row is left in place for the
// reconciler to heal to FAILED.
func (s *Service) RegisterManifestTwoPhase(ctx context.Context, scan ScanRef, schemaVersion int, body []byte) (catalog.Artifact, error) {
	if err := s.authorize(ctx, scan); err != nil {
		return catalog.Artifact{}, err
	}

	key := DerivedManifestKey(scan, schemaVersion)
	kind := "derived.ingest_manifest"

	pending := catalog.Artifact{
		CompanyID:     scan.Company,
		ScanID:        scan.ScanID,
		Kind:          kind,
		SchemaVersion: sql.NullInt64{Int64: int64(schemaVersion), Valid: true},
		Bucket:        s.bucket,
		Key:           key,
		Status:        catalog.ArtifactStatusPending,
		ContentType:   sql.NullString{String: "application/json", Valid: true},
	}
	if _, err := s.catalog.UpsertDerivedArtifact(ctx, pending); err != nil {
		return catalog.Artifact{}, err
	}

	etag, size, err := s.store.PutBytes(ctx, objectstore.Ref{Key: key}, body, "application/json")
	if err != nil {
		return catalog.Artifact{}, err
	}

	available := pending
	available.ETag = sql.NullString{String: etag, Valid: true}
	available.SizeBytes = sql.NullInt64{Int64: size, Valid: true}
	available.Status = catalog.ArtifactStatusAvailable

	id, err := s.catalog.UpsertDerivedArtifact(ctx, available)
	if err != nil {
		return catalog.Artifact{}, err
	}
	available.ID = id
	return available, nil
}

// ReconcilePending probes the object store for a PENDING artifact and
// transitions it to AVAILABLE on presence or FAILED on absence.
func (s *Service) ReconcilePending(ctx context.Context, a catalog.Artifact) (catalog.Artifact, error) {
	etag, size, found, err := s.store.HeadObject(ctx, objectstore.Ref{Key: a.Key})
	if err != nil {
		return catalog.Artifact{}, err
	}

	next := a
	if found {
		next.Status = catalog.ArtifactStatusAvailable
		next.ETag = sql.NullString{String: strings.Trim(etag, `"`), Valid: true}
		next.SizeBytes = sql.NullInt64{Int64: size, Valid: true}
	} else {
		next.Status = catalog.ArtifactStatusFailed
	}

	if err := s.catalog.UpdateArtifactStatus(ctx, a.ID, next.Status, next.ETag, next.SizeBytes); err != nil {
		return catalog.Artifact{}, err
	}
	return next, nil
}
