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

package manifest

import (
	"encoding/json"
	"testing"

	"github.com/lidarctl/controlplane/pkg/catalog"
	"github.com/lidarctl/controlplane/pkg/crs"
)

func TestClassifyPointCloudFormat(t *testing.T) {
	cases := map[string]PointCloudFormat{
		"scan.copc.laz":  PointCloudFormatCOPCLAZ,
		"SCAN.COPC.LAZ":  PointCloudFormatCOPCLAZ,
		"scan.laz":       PointCloudFormatLAZ,
		"scan.las":       PointCloudFormatLAS,
		"scan.txt":       "",
		"":               "",
	}
	for key, want := range cases {
		if got := ClassifyPointCloudFormat(key); got != want {
			t.Errorf("ClassifyPointCloudFormat(%q) = %q, want %q", key, got, want)
		}
	}
}

func baseInput() Input {
	return Input{
		Run: catalog.IngestRun{
			ID:            42,
			ScanID:        "scan-1",
			SchemaVersion: 3,
			Attempt:       1,
		},
		Scan: catalog.Scan{
			ID: "scan-1",
		},
		RawArtifacts: []catalog.Artifact{
			{Kind: catalog.KindRawPointCloud, Bucket: "b", Key: "tenants/co/dataset_versions/dv/scans/scan-1/raw/point_cloud/scan.copc.laz"},
			{Kind: catalog.KindRawTrajectory, Bucket: "b", Key: "tenants/co/dataset_versions/dv/scans/scan-1/raw/trajectory/path.txt"},
		},
	}
}

func TestBuildWithoutControlPointOrCRS(t *testing.T) {
	doc, err := Build(baseInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cp := doc["control_points"].(map[string]interface{})
	if cp["verified_from_control_point"] != false {
		t.Fatalf("expected verified_from_control_point=false, got %v", cp["verified_from_control_point"])
	}
	if cp["table"] != nil {
		t.Fatalf("expected nil table, got %v", cp["table"])
	}

	cs := doc["coordinate_system"].(map[string]interface{})
	if cs["verified_from_control_point"] != false {
		t.Fatalf("expected coordinate_system.verified_from_control_point=false, got %v", cs["verified_from_control_point"])
	}
	if _, ok := cs["projjson"]; ok {
		t.Fatal("expected no projjson without a CRS")
	}

	ingest := doc["ingest"].(map[string]interface{})
	if ingest["point_cloud_format"] != string(PointCloudFormatCOPCLAZ) {
		t.Fatalf("expected copc.laz, got %v", ingest["point_cloud_format"])
	}
	if ingest["run_id"] != int64(42) {
		t.Fatalf("expected run_id=42, got %v", ingest["run_id"])
	}
}

func TestBuildWithControlPointAndCRS(t *testing.T) {
	in := baseInput()
	in.RawArtifacts = append(in.RawArtifacts, catalog.Artifact{
		Kind: catalog.KindRawControlPoint, Bucket: "b", Key: "tenants/co/.../raw/control_points/ControlPoint.txt",
	})
	in.CRS = &crs.Built{
		Source:           crs.SourceCustom,
		CCRSType:         crs.CCRSTypeProjection,
		ZMode:            crs.ZModeOrthometric,
		GeoidModel:       "egm2008",
		BuiltCRSProjJSON: `{"type":"ProjectedCRS","name":"test"}`,
	}

	doc, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cp := doc["control_points"].(map[string]interface{})
	if cp["verified_from_control_point"] != true {
		t.Fatal("expected verified_from_control_point=true")
	}
	table, ok := cp["table"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected table to be populated, got %v", cp["table"])
	}
	if table["key"] != "tenants/co/.../raw/control_points/ControlPoint.txt" {
		t.Fatalf("unexpected table key: %v", table["key"])
	}

	cs := doc["coordinate_system"].(map[string]interface{})
	if cs["verified_from_control_point"] != true {
		t.Fatal("expected coordinate_system.verified_from_control_point=true (projected upward)")
	}
	pj, ok := cs["projjson"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected projjson to be parsed into a map, got %v", cs["projjson"])
	}
	if pj["name"] != "test" {
		t.Fatalf("unexpected projjson content: %v", pj)
	}

	zm := doc["z_measurement"].(map[string]interface{})
	if zm["mode"] != string(crs.ZModeOrthometric) {
		t.Fatalf("unexpected z_measurement.mode: %v", zm["mode"])
	}
}

func TestBuildAppliesScanMetaOverridesLast(t *testing.T) {
	in := baseInput()
	overrides := map[string]interface{}{
		"manifest": map[string]interface{}{
			"material": map[string]interface{}{
				"density_kg_m3": 1800,
			},
			"ingest": map[string]interface{}{
				"point_cloud_format": "las",
			},
		},
	}
	raw, err := json.Marshal(overrides)
	if err != nil {
		t.Fatalf("failed to marshal overrides: %v", err)
	}
	in.Scan.Meta = raw

	doc, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	material := doc["material"].(map[string]interface{})
	if material["density_kg_m3"] != float64(1800) {
		t.Fatalf("expected override to win, got %v", material["density_kg_m3"])
	}

	ingest := doc["ingest"].(map[string]interface{})
	if ingest["point_cloud_format"] != "las" {
		t.Fatalf("expected scan override to win over computed classification, got %v", ingest["point_cloud_format"])
	}
	// Fields the override never touches survive untouched.
	if ingest["run_id"] != int64(42) {
		t.Fatalf("expected run_id to survive the merge, got %v", ingest["run_id"])
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	in := baseInput()

	docA, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	docB, err := Build(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bytesA, err := json.Marshal(docA)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	bytesB, err := json.Marshal(docB)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(bytesA) != string(bytesB) {
		t.Fatalf("expected identical output for identical input:\n%s\nvs\n%s", bytesA, bytesB)
	}
}
