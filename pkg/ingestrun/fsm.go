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

// Package ingestrun implements the ingest-run state machine: QUEUED ->
// RUNNING -> {SUCCEEDED, FAILED}, a compare-and-swap claim poller, and
// the concurrent worker loop that drives runs through it.
package ingestrun

import apperrors "github.com/lidarctl/controlplane/internal/errors"

const (
	StatusQueued    = "QUEUED"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// validNextStatus enumerates the only legal terminal transitions out of
// RUNNING; QUEUED->RUNNING is handled separately by the CAS claim, which
// is the sole concurrency-correctness primitive in this package.
var validNextStatus = map[string]bool{
	StatusSucceeded: true,
	StatusFailed:    true,
}

// ValidateTerminalTransition rejects any status other than SUCCEEDED or
// FAILED as the terminal stamp a worker applies after claiming a run.
func ValidateTerminalTransition(status string) error {
	if !validNextStatus[status] {
		return apperrors.NewCatalogInvariantError("ingest run terminal status must be SUCCEEDED or FAILED, got " + status)
	}
	return nil
}
