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

package consumer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/lidarctl/controlplane/internal/validation"
)

// ArtifactRef is one raw artifact pointer nested under a scan's
// point_cloud/trajectory/control_point map.
type ArtifactRef struct {
	S3Key string `json:"s3_key" validate:"required"`
	ETag  string `json:"etag" validate:"required"`
}

// ScanArtifacts is the per-scan artifact-kind grouping of an ingest.start
// message. At least one point_cloud entry is required; trajectory and
// control_point are optional.
type ScanArtifacts struct {
	PointCloud   map[string]ArtifactRef `json:"point_cloud" validate:"required,min=1,dive"`
	Trajectory   map[string]ArtifactRef `json:"trajectory,omitempty" validate:"omitempty,dive"`
	ControlPoint map[string]ArtifactRef `json:"control_point,omitempty" validate:"omitempty,dive"`
}

// VersionInfo carries the message and pipeline version the producer
// stamped the command with.
type VersionInfo struct {
	MessageVersion  string `json:"message_version" validate:"required"`
	PipelineVersion string `json:"pipeline_version" validate:"required"`
}

// IngestStartMessage is the decoded shape of the "ingest.start" broker
// message body (spec §6). Dataset is keyed by scan_id.
type IngestStartMessage struct {
	WorkflowID string                   `json:"workflow_id" validate:"required"`
	Scenario   string                   `json:"scenario" validate:"required"`
	Version    VersionInfo              `json:"version" validate:"required"`
	Dataset    map[string]ScanArtifacts `json:"dataset" validate:"required,min=1,dive"`
}

// decodeIngestStartMessage unmarshals payload strictly: any top-level key
// not in IngestStartMessage's shape is rejected, per spec §6's "unknown
// top-level keys rejected" rule.
func decodeIngestStartMessage(payload []byte) (IngestStartMessage, error) {
	var msg IngestStartMessage
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&msg); err != nil {
		return IngestStartMessage{}, fmt.Errorf("decode ingest.start message: %w", err)
	}
	if dec.More() {
		return IngestStartMessage{}, fmt.Errorf("decode ingest.start message: trailing data after JSON body")
	}
	return msg, nil
}

// datasetToMap converts the typed dataset into the generic
// map[string]interface{} shape pkg/ingestusecase.StartIngestCommand.Dataset
// carries through to the workflow engine payload unchanged.
func datasetToMap(dataset map[string]ScanArtifacts) (map[string]interface{}, error) {
	raw, err := json.Marshal(dataset)
	if err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return out, nil
}

// validateArtifactSafety screens every string field an attacker fully
// controls (s3_key, etag) for injection/control-character content before
// it is logged or persisted, beyond the required-ness struct tags already
// checked.
func validateArtifactSafety(dataset map[string]ScanArtifacts) error {
	var errs []error
	for scanID, artifacts := range dataset {
		errs = append(errs, validation.ValidateStringInput("scan_id", scanID, 256))
		errs = append(errs, validation.ValidateNonEmptyMap(fmt.Sprintf("dataset[%s].point_cloud", scanID), len(artifacts.PointCloud)))
		for kind, refs := range map[string]map[string]ArtifactRef{
			"point_cloud":   artifacts.PointCloud,
			"trajectory":    artifacts.Trajectory,
			"control_point": artifacts.ControlPoint,
		} {
			for key, ref := range refs {
				field := fmt.Sprintf("dataset[%s].%s[%s]", scanID, kind, key)
				errs = append(errs, validation.ValidateStringInput(field+".s3_key", ref.S3Key, 1024))
				errs = append(errs, validation.ValidateStringInput(field+".etag", ref.ETag, 256))
			}
		}
	}
	return validation.Combine(errs...)
}
