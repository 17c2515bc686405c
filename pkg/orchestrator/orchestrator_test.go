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

package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/go-logr/logr"
)

func fakeStages(datasetVersionID string, clusterCalls *int, exportCalls *int) Stages {
	return Stages{
		IngestScan: func(ctx context.Context, company string, scan ScanSpec) (IngestScanResult, error) {
			return IngestScanResult{ScanID: scan.ScanID, DatasetVersionID: datasetVersionID, ManifestKey: scan.ScanID + "/manifest.json"}, nil
		},
		Profiling: func(ctx context.Context, scanID, manifestKey string) error { return nil },
		Reproject: func(ctx context.Context, datasetVersionID, targetCRSID string, scanIDs []string) error { return nil },
		Preprocess: func(ctx context.Context, datasetVersionID string, scanIDs []string) error { return nil },
		AnchorExtractor: func(ctx context.Context, scanID string) (Anchor, error) {
			return Anchor{ScanID: scanID}, nil
		},
		Export: func(ctx context.Context, datasetVersionID string, poses map[string]SE3, scanIDs []string) (ExportResult, error) {
			if exportCalls != nil {
				*exportCalls++
			}
			return ExportResult{MergedKey: "merged.laz"}, nil
		},
		Cluster: func(ctx context.Context, req ClusterRequest) (ClusterResult, error) {
			if clusterCalls != nil {
				*clusterCalls++
			}
			return ClusterResult{ClusteredKey: "clustered.laz"}, nil
		},
	}
}

func TestPipelineRunHappyPathWithoutClustering(t *testing.T) {
	var exportCalls, clusterCalls int
	stages := fakeStages("dv-1", &clusterCalls, &exportCalls)
	p := NewPipeline(stages, nil, logr.Discard())

	cmd := PipelineCommand{
		Company: "co",
		Scans: []ScanSpec{
			{ScanID: "scan-a"},
			{ScanID: "scan-b"},
		},
		EnableClustering: false,
	}

	result, err := p.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MergedKey != "merged.laz" {
		t.Fatalf("unexpected merged key: %v", result.MergedKey)
	}
	if exportCalls != 1 {
		t.Fatalf("expected export to run once, got %d", exportCalls)
	}
	if clusterCalls != 0 {
		t.Fatalf("expected cluster not to run when disabled, got %d", clusterCalls)
	}

	snap := p.Progress.Snapshot()
	if snap.Stage != StageDone {
		t.Fatalf("expected final stage %q, got %q", StageDone, snap.Stage)
	}
	if snap.DatasetVersionID != "dv-1" {
		t.Fatalf("expected dataset_version_id dv-1, got %q", snap.DatasetVersionID)
	}
}

func TestPipelineRunWithClusteringEnabled(t *testing.T) {
	var exportCalls, clusterCalls int
	stages := fakeStages("dv-1", &clusterCalls, &exportCalls)
	p := NewPipeline(stages, nil, logr.Discard())

	cmd := PipelineCommand{
		Company:          "co",
		Scans:            []ScanSpec{{ScanID: "scan-a"}},
		EnableClustering: true,
	}

	if _, err := p.Run(context.Background(), cmd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clusterCalls != 1 {
		t.Fatalf("expected cluster to run once when enabled, got %d", clusterCalls)
	}
}

func TestPipelineRunFailsOnDatasetVersionMismatch(t *testing.T) {
	stages := Stages{
		IngestScan: func(ctx context.Context, company string, scan ScanSpec) (IngestScanResult, error) {
			dv := "dv-1"
			if scan.ScanID == "scan-b" {
				dv = "dv-2"
			}
			return IngestScanResult{ScanID: scan.ScanID, DatasetVersionID: dv}, nil
		},
	}
	p := NewPipeline(stages, nil, logr.Discard())

	cmd := PipelineCommand{
		Company: "co",
		Scans: []ScanSpec{
			{ScanID: "scan-a"},
			{ScanID: "scan-b"},
		},
	}

	_, err := p.Run(context.Background(), cmd)
	if err == nil {
		t.Fatal("expected a fatal error on dataset version mismatch")
	}
}

func TestPipelineRunFailsFastOnIngestError(t *testing.T) {
	boom := errBoomOrchestrator{}
	stages := Stages{
		IngestScan: func(ctx context.Context, company string, scan ScanSpec) (IngestScanResult, error) {
			return IngestScanResult{}, boom
		},
	}
	p := NewPipeline(stages, nil, logr.Discard())

	_, err := p.Run(context.Background(), PipelineCommand{Scans: []ScanSpec{{ScanID: "scan-a"}}})
	if err == nil {
		t.Fatal("expected ingest failure to propagate")
	}
}

func TestProgressTrackerConcurrentAccess(t *testing.T) {
	tracker := NewProgressTracker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tracker.Set(StageIngest, []string{"s"}, "dv")
			_ = tracker.Snapshot()
		}(i)
	}
	wg.Wait()
}

type errBoomOrchestrator struct{}

func (errBoomOrchestrator) Error() string { return "boom" }
