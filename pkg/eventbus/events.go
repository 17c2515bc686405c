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

package eventbus

// The three event bodies below are the wire shapes of spec.md §6's
// "ingest.status" / "ingest.complete" / "ingest.failed" events. Both
// pkg/ingestusecase (the in-flight happy path, RoutingStatus/Complete/
// Failed) and pkg/consumer (the pre-handoff rejection path, RoutingFailed
// only) publish these, so they live here rather than in either importer.

// StatusEvent is published on the "<prefix>.status" subject for every
// intermediate status the use case reaches.
type StatusEvent struct {
	WorkflowID string                 `json:"workflow_id"`
	Scenario   string                 `json:"scenario"`
	Status     string                 `json:"status"`
	Timestamp  string                 `json:"timestamp"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// OutputRef is one produced artifact reference inside a CompletedEvent.
type OutputRef struct {
	Kind  string `json:"kind"`
	S3Key string `json:"s3_key"`
	ETag  string `json:"etag"`
}

// CompletedEvent is published on the "<prefix>.complete" subject once the
// workflow engine reports a successful result.
type CompletedEvent struct {
	WorkflowID string      `json:"workflow_id"`
	Scenario   string      `json:"scenario"`
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Outputs    []OutputRef `json:"outputs"`
}

// FailedEvent is published on the "<prefix>.failed" subject, whether the
// failure is raised before handoff (pkg/consumer, always VALIDATION_ERROR)
// or from inside the use case's Start (pkg/ingestusecase).
type FailedEvent struct {
	WorkflowID   string `json:"workflow_id"`
	Scenario     string `json:"scenario"`
	Status       string `json:"status"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Retryable    bool   `json:"retryable"`
	FailedAt     string `json:"failed_at"`
}
