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
	"encoding/json"
	"fmt"

	apperrors "github.com/lidarctl/controlplane/internal/errors"
	"github.com/lidarctl/controlplane/pkg/artifact"
	"github.com/lidarctl/controlplane/pkg/catalog"
	"github.com/lidarctl/controlplane/pkg/crs"
	"github.com/lidarctl/controlplane/pkg/ingestrun"
	"github.com/lidarctl/controlplane/pkg/manifest"
	"github.com/lidarctl/controlplane/pkg/orchestrator"
)

// activities bundles the catalog/artifact/crs ports the two mandatory
// orchestrator stages (ingest, export) and the standalone ingest-run
// executor are built against.
type activities struct {
	catalog      *catalog.Repository
	artifact     *artifact.Service
	presets      presetLoader
	fingerprints *ingestrun.FingerprintService
}

// presetLoader is the narrow slice of pkg/crs's two loader types this
// binary needs: just the current preset table, not the hot-reload
// plumbing itself.
type presetLoader interface {
	Load() (map[int]crs.RegionPreset, error)
}

// builtCRSFromRow reconstructs a crs.Built record from a catalog CRS row's
// meta column, which carries the marshaled Built record produced when the
// CRS was first resolved and registered (see DESIGN.md). A CRS with no
// usable meta resolves to nil, matching manifest.Input.CRS's "no CRS"
// contract; this never re-runs crs.Validate, since the descriminated-union
// descriptor that produced the row is not retained past registration.
func builtCRSFromRow(row catalog.CRS) *crs.Built {
	if len(row.Meta) == 0 {
		return nil
	}
	var built crs.Built
	if err := json.Unmarshal(row.Meta, &built); err != nil {
		return nil
	}
	return &built
}

// ingestOneScan implements orchestrator.IngestScanActivity: it folds a
// scan's already-uploaded raw artifacts into a manifest and registers it
// two-phase. It is also the executor pkg/ingestrun.Worker drives for the
// standalone per-run FSM (C11), wrapped by runIngestRun below.
func (a *activities) ingestOneScan(ctx context.Context, company string, spec orchestrator.ScanSpec) (orchestrator.IngestScanResult, error) {
	scan, err := a.catalog.GetScan(ctx, spec.ScanID)
	if err != nil {
		return orchestrator.IngestScanResult{}, err
	}
	if scan.CompanyID != company {
		return orchestrator.IngestScanResult{}, apperrors.NewCatalogInvariantError(
			fmt.Sprintf("scan %s belongs to company %s, not %s", spec.ScanID, scan.CompanyID, company))
	}

	rawArtifacts, err := a.catalog.ListRawArtifacts(ctx, spec.ScanID)
	if err != nil {
		return orchestrator.IngestScanResult{}, err
	}

	var built *crs.Built
	if scan.CRSID != "" {
		row, err := a.catalog.GetCRS(ctx, scan.CRSID)
		if err != nil {
			return orchestrator.IngestScanResult{}, err
		}
		built = builtCRSFromRow(row)
	}

	schemaVersion := 1
	if scan.SchemaVersion.Valid {
		schemaVersion = int(scan.SchemaVersion.Int64)
	}

	doc, err := manifest.Build(manifest.Input{
		Run:          catalog.IngestRun{CompanyID: company, ScanID: spec.ScanID, SchemaVersion: schemaVersion},
		Scan:         scan,
		RawArtifacts: rawArtifacts,
		CRS:          built,
	})
	if err != nil {
		return orchestrator.IngestScanResult{}, err
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return orchestrator.IngestScanResult{}, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "marshal manifest")
	}

	scanRef := artifact.ScanRef{Company: company, DatasetVersionID: scan.DatasetVersionID, ScanID: spec.ScanID}
	registered, err := a.artifact.RegisterManifestTwoPhase(ctx, scanRef, schemaVersion, body)
	if err != nil {
		return orchestrator.IngestScanResult{}, err
	}

	return orchestrator.IngestScanResult{
		ScanID:           spec.ScanID,
		DatasetVersionID: scan.DatasetVersionID,
		ManifestKey:      registered.Key,
	}, nil
}

// exportStub implements orchestrator.ExportActivity. The pose-weighted
// point-cloud merge math is a spec Non-goal; this stub satisfies the
// pipeline's mandatory Export stage by uploading an empty placeholder
// merged-cloud object and registering it AVAILABLE in one step through
// UploadDerivedBytes, so the catalog invariants around export still run end
// to end.
func (a *activities) exportStub(ctx context.Context, datasetVersionID string, poses map[string]orchestrator.SE3, scanIDs []string) (orchestrator.ExportResult, error) {
	if len(scanIDs) == 0 {
		return orchestrator.ExportResult{}, apperrors.NewCatalogInvariantError("export requires at least one scan")
	}
	rootScanID := scanIDs[0]
	scan, err := a.catalog.GetScan(ctx, rootScanID)
	if err != nil {
		return orchestrator.ExportResult{}, err
	}

	scanRef := artifact.ScanRef{Company: scan.CompanyID, DatasetVersionID: datasetVersionID, ScanID: rootScanID}
	key := artifact.DerivedCloudKey(scanRef, 1, orchestrator.StageExport, "merged.copc.laz")
	meta, _ := json.Marshal(map[string]interface{}{
		"scan_count":     len(scanIDs),
		"scan_ids":       scanIDs,
		"poses_resolved": len(poses),
	})

	registered, err := a.artifact.UploadDerivedBytes(ctx, scanRef, 1, orchestrator.KindMergedPointCloud, key, []byte{}, "application/octet-stream", "", meta)
	if err != nil {
		return orchestrator.ExportResult{}, err
	}
	return orchestrator.ExportResult{MergedKey: registered.Key, ETag: registered.ETag.String}, nil
}

// submitIngestRun is the C11 producer half: it computes the scan's
// current input fingerprint, short-circuits via FindOrNone when an
// identical fingerprint already has a run (scenario 4, spec §8), and
// otherwise queues a fresh QUEUED row for the worker loop to claim. The
// returned bool reports whether an existing run was reused (deduped)
// rather than created.
func (a *activities) submitIngestRun(ctx context.Context, companyID, scanID string, schemaVersion int, force bool) (catalog.IngestRun, bool, error) {
	existing, found, err := a.fingerprints.FindOrNone(ctx, companyID, scanID, schemaVersion, force)
	if err != nil {
		return catalog.IngestRun{}, false, err
	}
	if found {
		return existing, true, nil
	}

	fp, err := a.fingerprints.Compute(ctx, companyID, scanID, schemaVersion)
	if err != nil {
		return catalog.IngestRun{}, false, err
	}

	attempt := 1
	if existing.ID != 0 {
		attempt = existing.Attempt + 1
	}

	run := catalog.IngestRun{
		CompanyID:        companyID,
		ScanID:           scanID,
		SchemaVersion:    schemaVersion,
		InputFingerprint: fp,
		Attempt:          attempt,
	}
	id, err := a.catalog.CreateIngestRun(ctx, run)
	if err != nil {
		return catalog.IngestRun{}, false, err
	}
	run.ID = id
	run.Status = catalog.IngestRunStatusQueued
	return run, false, nil
}
