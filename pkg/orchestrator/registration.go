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
	"encoding/json"
	"math"
	"sort"

	apperrors "github.com/lidarctl/controlplane/internal/errors"
	"github.com/lidarctl/controlplane/pkg/catalog"
)

// proximityThresholdMeters is the tail->head distance below which an edge
// is proposed between two scans.
const proximityThresholdMeters = 20.0

// Anchor is the per-scan registration input: head/tail trajectory points
// and any control-point coordinates, in the dataset's working frame.
type Anchor struct {
	ScanID        string
	Head          [3]float64
	Tail          [3]float64
	ControlPoints [][3]float64
}

// AnchorExtractor parses a scan's trajectory and control-point files into
// an Anchor. Trajectory/CP file parsing is out of scope numerics
// (Non-goal); this is a stub contract supplied by the host.
type AnchorExtractor func(ctx context.Context, scanID string) (Anchor, error)

// SE3 is a rigid transform: translation T and rotation matrix R.
// Composition follows catalog.Pose's [3]float64/[3][3]float64 shape so a
// solved pose serializes directly into a catalog.ScanPose row.
type SE3 struct {
	T [3]float64
	R [3][3]float64
}

// IdentitySE3 is the zero rotation, zero translation transform.
func IdentitySE3() SE3 {
	return SE3{R: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// Compose returns a∘b: apply b, then a. Rotation composes by matrix
// product; translation carries a's rotation applied to b's translation
// plus a's own translation.
func Compose(a, b SE3) SE3 {
	var out SE3
	out.R = matMul3(a.R, b.R)
	out.T = addVec3(matVec3(a.R, b.T), a.T)
	return out
}

func matMul3(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += a[i][k] * b[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

func matVec3(m [3][3]float64, v [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = m[i][0]*v[0] + m[i][1]*v[1] + m[i][2]*v[2]
	}
	return out
}

func addVec3(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func distance3(a, b [3]float64) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// EdgeProposal is a candidate registration edge between two scans before
// persistence, carrying the closed-form translation-only transform guess
// (tail(from) -> head(to)) that ICP refinement, when available, replaces.
type EdgeProposal struct {
	From, To string
	Distance float64
	Weight   float64
	Guess    SE3
}

// ProposeEdges builds candidate edges for every ordered pair of scans
// whose tail->head distance is below proximityThresholdMeters, weighted
// max(0.1, 20/d) per spec.md §4.10 step 5. Anchors are sorted by ScanID
// first so the result is deterministic regardless of input order.
func ProposeEdges(anchors []Anchor) []EdgeProposal {
	sorted := make([]Anchor, len(anchors))
	copy(sorted, anchors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ScanID < sorted[j].ScanID })

	var edges []EdgeProposal
	for _, from := range sorted {
		for _, to := range sorted {
			if from.ScanID == to.ScanID {
				continue
			}
			d := distance3(from.Tail, to.Head)
			if d >= proximityThresholdMeters {
				continue
			}
			weight := 20.0 / d
			if weight < 0.1 {
				weight = 0.1
			}
			edges = append(edges, EdgeProposal{
				From:     from.ScanID,
				To:       to.ScanID,
				Distance: d,
				Weight:   weight,
				Guess: SE3{
					R: IdentitySE3().R,
					T: [3]float64{
						to.Head[0] - from.Tail[0],
						to.Head[1] - from.Tail[1],
						to.Head[2] - from.Tail[2],
					},
				},
			})
		}
	}
	return edges
}

// RefineEdgeWithICP would replace an edge's translation-only Guess with
// an ICP-aligned transform. Not implemented: RANSAC/ICP numerics are a
// named Non-goal. Callers that want refinement must supply their own
// pre-refined edges to SolvePoseGraph instead of calling this.
func RefineEdgeWithICP(ctx context.Context, edge EdgeProposal) (EdgeProposal, error) {
	return EdgeProposal{}, apperrors.New(apperrors.ErrorTypeFatal, "ICP edge refinement is not implemented")
}

// PoseGraphDiagnostics records which scans the BFS solve reached and
// which it could not (disconnected from the root).
type PoseGraphDiagnostics struct {
	Root       string   `json:"root"`
	Reached    []string `json:"reached"`
	Unreachable []string `json:"unreachable"`
}

// SolvePoseGraph performs the closed-form solve: BFS from root, composing
// each traversed edge's transform onto its parent's absolute pose. This
// is the specified stand-in for real pose-graph optimization — a real
// solve would run a Levenberg-Marquardt step over SE(3) nodes with
// information proportional to edge weight, which is a named Non-goal and
// not implemented here.
func SolvePoseGraph(root string, edges []EdgeProposal) (map[string]SE3, PoseGraphDiagnostics) {
	adjacency := map[string][]EdgeProposal{}
	nodes := map[string]bool{root: true}
	for _, e := range edges {
		adjacency[e.From] = append(adjacency[e.From], e)
		nodes[e.From] = true
		nodes[e.To] = true
	}

	poses := map[string]SE3{root: IdentitySE3()}
	queue := []string{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		currentPose := poses[current]

		neighbors := append([]EdgeProposal(nil), adjacency[current]...)
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].To < neighbors[j].To })

		for _, e := range neighbors {
			if _, visited := poses[e.To]; visited {
				continue
			}
			poses[e.To] = Compose(currentPose, e.Guess)
			queue = append(queue, e.To)
		}
	}

	var reached, unreachable []string
	for node := range nodes {
		if _, ok := poses[node]; ok {
			reached = append(reached, node)
		} else {
			unreachable = append(unreachable, node)
		}
	}
	sort.Strings(reached)
	sort.Strings(unreachable)

	return poses, PoseGraphDiagnostics{Root: root, Reached: reached, Unreachable: unreachable}
}

// RegistrationResult is the output of Pipeline.runRegistration: the
// solved absolute poses plus diagnostics, both persisted via
// pkg/catalog before being returned.
type RegistrationResult struct {
	Poses       map[string]SE3
	Diagnostics PoseGraphDiagnostics
}

// runRegistration extracts anchors for every scan, proposes edges,
// solves the pose graph, and persists edges/poses through Catalog.
func (p *Pipeline) runRegistration(ctx context.Context, company, datasetVersionID string, scanIDs []string) (RegistrationResult, error) {
	if p.Stages.AnchorExtractor == nil {
		return RegistrationResult{}, apperrors.New(apperrors.ErrorTypeFatal, "no AnchorExtractor configured for registration stage")
	}

	anchors := make([]Anchor, 0, len(scanIDs))
	for _, scanID := range scanIDs {
		a, err := p.Stages.AnchorExtractor(ctx, scanID)
		if err != nil {
			return RegistrationResult{}, err
		}
		anchors = append(anchors, a)
	}

	edges := ProposeEdges(anchors)

	if p.Catalog != nil {
		catalogEdges := make([]catalog.ScanEdge, 0, len(edges))
		for _, e := range edges {
			guess, err := json.Marshal(e.Guess)
			if err != nil {
				return RegistrationResult{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "marshal edge transform guess")
			}
			catalogEdges = append(catalogEdges, catalog.ScanEdge{
				CompanyID:        company,
				DatasetVersionID: datasetVersionID,
				ScanIDFrom:       e.From,
				ScanIDTo:         e.To,
				Kind:             "proximity",
				Weight:           e.Weight,
				TransformGuess:   guess,
			})
		}
		if len(catalogEdges) > 0 {
			if err := p.Catalog.AddScanEdges(ctx, catalogEdges); err != nil {
				return RegistrationResult{}, err
			}
		}
	}

	root := rootScan(scanIDs)
	poses, diagnostics := SolvePoseGraph(root, edges)

	if p.Catalog != nil {
		for scanID, pose := range poses {
			encoded, err := json.Marshal(catalog.Pose{T: pose.T, R: pose.R})
			if err != nil {
				return RegistrationResult{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "marshal solved pose")
			}
			if err := p.Catalog.UpsertScanPose(ctx, catalog.ScanPose{
				CompanyID:        company,
				DatasetVersionID: datasetVersionID,
				ScanID:           scanID,
				Pose:             encoded,
			}); err != nil {
				return RegistrationResult{}, err
			}
		}
	}

	return RegistrationResult{Poses: poses, Diagnostics: diagnostics}, nil
}

// rootScan picks the lexicographically smallest scan id as the BFS root,
// giving a deterministic solve for a fixed input set.
func rootScan(scanIDs []string) string {
	root := scanIDs[0]
	for _, id := range scanIDs[1:] {
		if id < root {
			root = id
		}
	}
	return root
}
