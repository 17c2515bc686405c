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

import "context"

// ClusterRequest is the optional batch-clustering stage's input: tile the
// merged cloud, split ground/off-ground, cluster per tile, crop buffers,
// merge back. Carried forward from the original pipeline's always-wired
// clustering step (gated here behind PipelineCommand.EnableClustering
// rather than dropped, since the original pipeline never made it truly
// optional).
type ClusterRequest struct {
	DatasetVersionID string
	MergedKey        string
}

// ClusterResult is the clustering stage's output key.
type ClusterResult struct {
	ClusteredKey string
}

// ClusterActivity tiles, splits, clusters, and re-merges the clustering
// pass. Voxel/clustering numerics are out of scope (Non-goal); stub
// contract supplied by the host.
type ClusterActivity func(ctx context.Context, req ClusterRequest) (ClusterResult, error)
