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
	"math"
	"testing"
)

func TestProposeEdgesThresholdAndWeight(t *testing.T) {
	anchors := []Anchor{
		{ScanID: "a", Tail: [3]float64{0, 0, 0}},
		{ScanID: "b", Head: [3]float64{10, 0, 0}}, // 10m from a.Tail: within threshold
		{ScanID: "c", Head: [3]float64{100, 0, 0}}, // far: excluded
	}

	edges := ProposeEdges(anchors)

	var found bool
	for _, e := range edges {
		if e.From == "a" && e.To == "b" {
			found = true
			if math.Abs(e.Distance-10) > 1e-9 {
				t.Fatalf("expected distance 10, got %v", e.Distance)
			}
			wantWeight := 20.0 / 10.0
			if math.Abs(e.Weight-wantWeight) > 1e-9 {
				t.Fatalf("expected weight %v, got %v", wantWeight, e.Weight)
			}
		}
		if e.From == "a" && e.To == "c" {
			t.Fatal("expected no edge beyond the proximity threshold")
		}
	}
	if !found {
		t.Fatal("expected an a->b edge within the proximity threshold")
	}
}

func TestProposeEdgesWeightFloorsAtPointOne(t *testing.T) {
	anchors := []Anchor{
		{ScanID: "a", Tail: [3]float64{0, 0, 0}},
		{ScanID: "b", Head: [3]float64{19.9, 0, 0}},
	}
	edges := ProposeEdges(anchors)
	for _, e := range edges {
		if e.From == "a" && e.To == "b" {
			if e.Weight < 0.1 {
				t.Fatalf("weight must never drop below the 0.1 floor, got %v", e.Weight)
			}
		}
	}
}

func TestSolvePoseGraphBFSCompose(t *testing.T) {
	// a -> b -> c, each edge a pure +10 translation on X.
	edges := []EdgeProposal{
		{From: "a", To: "b", Weight: 1, Guess: SE3{R: IdentitySE3().R, T: [3]float64{10, 0, 0}}},
		{From: "b", To: "c", Weight: 1, Guess: SE3{R: IdentitySE3().R, T: [3]float64{10, 0, 0}}},
	}

	poses, diag := SolvePoseGraph("a", edges)

	if poses["a"].T != (SE3{}).T {
		t.Fatalf("expected root pose at origin, got %v", poses["a"].T)
	}
	if poses["b"].T != [3]float64{10, 0, 0} {
		t.Fatalf("expected b at (10,0,0), got %v", poses["b"].T)
	}
	if poses["c"].T != [3]float64{20, 0, 0} {
		t.Fatalf("expected c to compose to (20,0,0), got %v", poses["c"].T)
	}
	if len(diag.Unreachable) != 0 {
		t.Fatalf("expected no unreachable nodes, got %v", diag.Unreachable)
	}
	if diag.Root != "a" {
		t.Fatalf("expected root=a, got %s", diag.Root)
	}
}

func TestSolvePoseGraphReportsUnreachableNodes(t *testing.T) {
	// c has no inbound edge from the a/b component: it's a separate node
	// that only shows up as a dangling "From" with no path from root.
	edges := []EdgeProposal{
		{From: "a", To: "b", Weight: 1, Guess: IdentitySE3()},
		{From: "c", To: "d", Weight: 1, Guess: IdentitySE3()},
	}

	poses, diag := SolvePoseGraph("a", edges)

	if _, ok := poses["c"]; ok {
		t.Fatal("expected c to be unreachable from root a")
	}
	if len(diag.Unreachable) == 0 {
		t.Fatal("expected at least one unreachable node")
	}
}

func TestRefineEdgeWithICPIsAnUnimplementedExtensionPoint(t *testing.T) {
	_, err := RefineEdgeWithICP(context.Background(), EdgeProposal{})
	if err == nil {
		t.Fatal("expected RefineEdgeWithICP to report unimplemented")
	}
}

func TestComposeIdentity(t *testing.T) {
	id := IdentitySE3()
	a := SE3{R: id.R, T: [3]float64{1, 2, 3}}
	got := Compose(id, a)
	if got.T != a.T {
		t.Fatalf("composing with identity should be a no-op, got %v", got.T)
	}
}
