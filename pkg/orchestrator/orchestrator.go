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

// Package orchestrator runs the multi-scan pipeline: per-scan ingest and
// profiling, dataset-level reproject and preprocess, registration, export,
// and an optional clustering pass. It is driven from inside a host
// workflow engine activity, not a standalone process: Pipeline.Run
// sequences the stages and talks to pkg/catalog and pkg/artifact only,
// exactly as every activity body is required to.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/lidarctl/controlplane/internal/errors"
	"github.com/lidarctl/controlplane/pkg/catalog"
)

// Stage names as reported by Progress.Stage.
const (
	StageIngest       = "ingest"
	StageProfiling    = "profiling"
	StageReproject    = "reproject"
	StagePreprocess   = "preprocess"
	StageRegistration = "registration"
	StageExport       = "export"
	StageCluster      = "cluster"
	StageDone         = "done"
)

// Derived artifact kinds this package writes or reads, following the
// teacher's plain string-literal kind convention (see
// pkg/artifact.Service.RegisterManifestTwoPhase's "derived.ingest_manifest").
const (
	KindReprojectedPointCloud  = "derived.reprojected_point_cloud"
	KindPreprocessedPointCloud = "derived.preprocessed_point_cloud"
	KindMergedPointCloud       = "derived.merged_point_cloud"
)

// ArtifactSpec references one raw artifact supplied in the pipeline
// command for a scan (point_cloud, trajectory, or control_point).
type ArtifactSpec struct {
	Kind   string
	S3Key  string
	ETag   string
}

// ScanSpec is one scan's input to the pipeline.
type ScanSpec struct {
	ScanID    string
	Artifacts []ArtifactSpec
}

// PipelineCommand is the input to Pipeline.Run.
type PipelineCommand struct {
	Company          string
	DatasetName      string
	TargetCRSID      string
	Scans            []ScanSpec
	EnableClustering bool
}

// IngestScanResult is what the per-scan ingest child-workflow returns.
type IngestScanResult struct {
	ScanID           string
	DatasetVersionID string
	ManifestKey      string
}

// ExportResult is what the export stage returns.
type ExportResult struct {
	MergedKey string
	ETag      string
}

// IngestScanActivity runs the per-scan ingest child-workflow (C11/C12).
type IngestScanActivity func(ctx context.Context, company string, scan ScanSpec) (IngestScanResult, error)

// ProfilingActivity computes and uploads per-scan profiling output
// (hexbin + stats). The numerics are out of scope (Non-goal); this is a
// stub contract supplied by the host.
type ProfilingActivity func(ctx context.Context, scanID, manifestKey string) error

// ReprojectActivity resolves source SRS from the manifest or the supplied
// CRS id and writes derived.reprojected_point_cloud per scan. Out of
// scope numerics; stub contract.
type ReprojectActivity func(ctx context.Context, datasetVersionID, targetCRSID string, scanIDs []string) error

// PreprocessActivity runs voxel downsampling and outlier removal,
// writing derived.preprocessed_point_cloud. Out of scope numerics; stub
// contract.
type PreprocessActivity func(ctx context.Context, datasetVersionID string, scanIDs []string) error

// ExportActivity fetches one derived cloud per scan, applies the
// absolute pose as a 4x4, merges, and uploads
// derived.merged_point_cloud anchored on the first scan. Out of scope
// numerics; stub contract.
type ExportActivity func(ctx context.Context, datasetVersionID string, poses map[string]SE3, scanIDs []string) (ExportResult, error)

// Stages bundles every activity body the pipeline drives. Registration
// is not here: its edge-proposal and BFS-compose math is implemented in
// this package (see registration.go); only the numeric-heavy
// ingest/profiling/reproject/preprocess/export/cluster stages are
// supplied by the host as activity functions.
type Stages struct {
	IngestScan      IngestScanActivity
	Profiling       ProfilingActivity
	Reproject       ReprojectActivity
	Preprocess      PreprocessActivity
	AnchorExtractor AnchorExtractor
	Export          ExportActivity
	Cluster         ClusterActivity
}

// Pipeline drives Stages against one PipelineCommand, tracking progress
// queryable by the host workflow engine's "progress" query handler.
type Pipeline struct {
	Stages   Stages
	Catalog  *catalog.Repository
	Log      logr.Logger
	Progress *ProgressTracker
}

// NewPipeline builds a Pipeline with a fresh ProgressTracker. repo may be
// nil in tests that only exercise the pure edge-proposal/pose-solve math,
// since runRegistration skips persistence when it is unset.
func NewPipeline(stages Stages, repo *catalog.Repository, log logr.Logger) *Pipeline {
	return &Pipeline{Stages: stages, Catalog: repo, Log: log, Progress: NewProgressTracker()}
}

// Run executes all seven stages in order, fanning the per-scan stages
// (ingest, profiling) out concurrently via errgroup, and returns the
// export result. All scans must land on the same dataset_version_id; a
// mismatch is a fatal catalog invariant violation, not retried.
func (p *Pipeline) Run(ctx context.Context, cmd PipelineCommand) (ExportResult, error) {
	scanIDs := scanIDsOf(cmd.Scans)

	p.Progress.Set(StageIngest, scanIDs, "")
	ingestResults, err := p.runIngest(ctx, cmd)
	if err != nil {
		return ExportResult{}, err
	}

	datasetVersionID, err := reconcileDatasetVersion(ingestResults)
	if err != nil {
		return ExportResult{}, err
	}
	p.Progress.Set(StageIngest, scanIDs, datasetVersionID)

	p.Progress.Set(StageProfiling, scanIDs, datasetVersionID)
	if err := p.runProfiling(ctx, ingestResults); err != nil {
		return ExportResult{}, err
	}

	p.Progress.Set(StageReproject, scanIDs, datasetVersionID)
	if p.Stages.Reproject != nil {
		if err := p.Stages.Reproject(ctx, datasetVersionID, cmd.TargetCRSID, scanIDs); err != nil {
			return ExportResult{}, err
		}
	}

	p.Progress.Set(StagePreprocess, scanIDs, datasetVersionID)
	if p.Stages.Preprocess != nil {
		if err := p.Stages.Preprocess(ctx, datasetVersionID, scanIDs); err != nil {
			return ExportResult{}, err
		}
	}

	p.Progress.Set(StageRegistration, scanIDs, datasetVersionID)
	regResult, err := p.runRegistration(ctx, cmd.Company, datasetVersionID, scanIDs)
	if err != nil {
		return ExportResult{}, err
	}

	p.Progress.Set(StageExport, scanIDs, datasetVersionID)
	exportResult, err := p.Stages.Export(ctx, datasetVersionID, regResult.Poses, scanIDs)
	if err != nil {
		return ExportResult{}, err
	}

	if cmd.EnableClustering && p.Stages.Cluster != nil {
		p.Progress.Set(StageCluster, scanIDs, datasetVersionID)
		if _, err := p.Stages.Cluster(ctx, ClusterRequest{
			DatasetVersionID: datasetVersionID,
			MergedKey:        exportResult.MergedKey,
		}); err != nil {
			return ExportResult{}, err
		}
	}

	p.Progress.Set(StageDone, scanIDs, datasetVersionID)
	return exportResult, nil
}

func (p *Pipeline) runIngest(ctx context.Context, cmd PipelineCommand) ([]IngestScanResult, error) {
	results := make([]IngestScanResult, len(cmd.Scans))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, scan := range cmd.Scans {
		i, scan := i, scan
		group.Go(func() error {
			r, err := p.Stages.IngestScan(groupCtx, cmd.Company, scan)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) runProfiling(ctx context.Context, results []IngestScanResult) error {
	if p.Stages.Profiling == nil {
		return nil
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for _, r := range results {
		r := r
		group.Go(func() error {
			return p.Stages.Profiling(groupCtx, r.ScanID, r.ManifestKey)
		})
	}
	return group.Wait()
}

// reconcileDatasetVersion asserts every scan's ingest landed on the same
// dataset_version_id, per spec.md §4.10 step 1 ("a mismatch is fatal").
func reconcileDatasetVersion(results []IngestScanResult) (string, error) {
	if len(results) == 0 {
		return "", apperrors.NewCatalogInvariantError("pipeline command carried zero scans")
	}
	want := results[0].DatasetVersionID
	for _, r := range results[1:] {
		if r.DatasetVersionID != want {
			return "", apperrors.NewFatalError(
				fmt.Sprintf("scan %s ingested onto dataset version %s, expected %s (all scans must share one dataset version)",
					r.ScanID, r.DatasetVersionID, want), nil)
		}
	}
	return want, nil
}

func scanIDsOf(scans []ScanSpec) []string {
	ids := make([]string, len(scans))
	for i, s := range scans {
		ids[i] = s.ScanID
	}
	return ids
}

// Progress is the document returned by the host workflow engine's
// "progress" query handler (see pkg/scenario's registered query name).
type Progress struct {
	Stage            string   `json:"stage"`
	ScanIDs          []string `json:"scan_ids"`
	DatasetVersionID string   `json:"dataset_version_id"`
}

// ProgressTracker holds the pipeline's current Progress behind a mutex so
// a query handler running on another goroutine can read a consistent
// snapshot while Run advances through stages.
type ProgressTracker struct {
	mu       sync.Mutex
	progress Progress
}

// NewProgressTracker returns a tracker with an empty Progress.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{}
}

// Set records the current stage, scan_ids, and dataset_version_id.
func (t *ProgressTracker) Set(stage string, scanIDs []string, datasetVersionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = Progress{Stage: stage, ScanIDs: scanIDs, DatasetVersionID: datasetVersionID}
}

// Snapshot returns the current Progress.
func (t *ProgressTracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}
