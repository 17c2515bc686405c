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

// Package manifest deterministically folds an ingest run, its scan, and
// its raw artifacts into the normalized ingest manifest document every
// downstream pipeline stage reads.
package manifest

import (
	"encoding/json"
	"fmt"

	"dario.cat/mergo"

	apperrors "github.com/lidarctl/controlplane/internal/errors"
	"github.com/lidarctl/controlplane/pkg/catalog"
	"github.com/lidarctl/controlplane/pkg/crs"
)

// PointCloudFormat is the container format classified from a raw point
// cloud artifact's key suffix.
type PointCloudFormat string

const (
	PointCloudFormatCOPCLAZ PointCloudFormat = "copc.laz"
	PointCloudFormatLAZ     PointCloudFormat = "laz"
	PointCloudFormatLAS     PointCloudFormat = "las"
)

// ClassifyPointCloudFormat returns the format implied by key's suffix, or
// "" when the suffix matches none of the recognized container formats.
func ClassifyPointCloudFormat(key string) PointCloudFormat {
	switch {
	case hasSuffixFold(key, ".copc.laz"):
		return PointCloudFormatCOPCLAZ
	case hasSuffixFold(key, ".laz"):
		return PointCloudFormatLAZ
	case hasSuffixFold(key, ".las"):
		return PointCloudFormatLAS
	default:
		return ""
	}
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	return equalFold(tail, suffix)
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Input is everything Build needs to fold one ingest run into a manifest.
type Input struct {
	Run          catalog.IngestRun
	Scan         catalog.Scan
	RawArtifacts []catalog.Artifact

	// CRS is the already-resolved coordinate reference system for this
	// scan, or nil when the scan carries none.
	CRS *crs.Built
}

// scanMetaOverrides is the one field of Scan.Meta this package reads: the
// caller-supplied manifest overrides, deep-merged last and winning over
// every computed default.
type scanMetaOverrides struct {
	Manifest map[string]interface{} `json:"manifest"`
}

// Build deterministically folds in into a manifest document. Section
// construction order is fixed and every section is built from concrete
// typed fields rather than iterated in map order, so the same input
// always serializes to the same JSON bytes.
func Build(in Input) (map[string]interface{}, error) {
	pointCloudKey, controlPointArtifact := classifyArtifacts(in.RawArtifacts)
	format := ClassifyPointCloudFormat(pointCloudKey)
	verifiedFromControlPoint := controlPointArtifact != nil

	doc := map[string]interface{}{
		"material":          map[string]interface{}{},
		"coordinate_system": coordinateSystemSection(in.CRS, verifiedFromControlPoint),
		"z_measurement":     zMeasurementSection(in.CRS),
		"control_points":    controlPointsSection(controlPointArtifact, verifiedFromControlPoint),
		"business_logic":    map[string]interface{}{},
		"recording_modes":   map[string]interface{}{},
		"ingest":            ingestSection(in, format),
	}

	overrides, err := parseManifestOverrides(in.Scan.Meta)
	if err != nil {
		return nil, err
	}
	if len(overrides) == 0 {
		return doc, nil
	}

	if err := mergo.Merge(&doc, overrides, mergo.WithOverride()); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "merge manifest overrides")
	}
	return doc, nil
}

func coordinateSystemSection(built *crs.Built, verifiedFromControlPoint bool) map[string]interface{} {
	section := map[string]interface{}{
		"verified_from_control_point": verifiedFromControlPoint,
	}
	if built == nil {
		return section
	}
	section["source"] = string(built.Source)
	section["epsg_code"] = built.EPSGCode
	section["ccrs_type"] = string(built.CCRSType)
	section["zone_family"] = string(built.ZoneFamily)
	section["datum"] = built.Datum
	section["axis_order"] = built.AxisOrder
	section["units"] = built.Units

	if built.BuiltCRSProjJSON != "" {
		var projjson interface{}
		if err := json.Unmarshal([]byte(built.BuiltCRSProjJSON), &projjson); err == nil {
			section["projjson"] = projjson
		}
	}
	return section
}

func zMeasurementSection(built *crs.Built) map[string]interface{} {
	if built == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"mode":        string(built.ZMode),
		"geoid_model": built.GeoidModel,
	}
}

func controlPointsSection(cp *catalog.Artifact, verified bool) map[string]interface{} {
	section := map[string]interface{}{
		"verified_from_control_point": verified,
		"table":                       nil,
	}
	if cp != nil {
		section["table"] = map[string]interface{}{
			"bucket": cp.Bucket,
			"key":    cp.Key,
		}
	}
	return section
}

func ingestSection(in Input, format PointCloudFormat) map[string]interface{} {
	artifacts := make([]map[string]interface{}, 0, len(in.RawArtifacts))
	for _, a := range in.RawArtifacts {
		artifacts = append(artifacts, map[string]interface{}{
			"kind":   a.Kind,
			"bucket": a.Bucket,
			"key":    a.Key,
		})
	}

	var pointCloudFormat interface{}
	if format != "" {
		pointCloudFormat = string(format)
	}

	return map[string]interface{}{
		"run_id":             in.Run.ID,
		"scan_id":            in.Scan.ID,
		"schema_version":     in.Run.SchemaVersion,
		"attempt":            in.Run.Attempt,
		"point_cloud_format": pointCloudFormat,
		"raw_artifacts":      artifacts,
	}
}

// classifyArtifacts returns the raw point cloud artifact's key (for
// format classification) and the raw control-point artifact, if present.
func classifyArtifacts(artifacts []catalog.Artifact) (pointCloudKey string, controlPoint *catalog.Artifact) {
	for i := range artifacts {
		a := artifacts[i]
		switch a.Kind {
		case catalog.KindRawPointCloud:
			pointCloudKey = a.Key
		case catalog.KindRawControlPoint:
			controlPoint = &artifacts[i]
		}
	}
	return pointCloudKey, controlPoint
}

func parseManifestOverrides(meta json.RawMessage) (map[string]interface{}, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	var wrapper scanMetaOverrides
	if err := json.Unmarshal(meta, &wrapper); err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid scan meta: %v", err))
	}
	return wrapper.Manifest, nil
}
