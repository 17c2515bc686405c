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

// Package scenario resolves an incoming (scenario, pipeline_version) pair
// to the concrete workflow coordinates the gateway needs to start a run.
// The table is a static, compiled-in map: there is no runtime registration
// path, so a lookup miss is always a caller error, never a race.
package scenario

import (
	"strings"

	apperrors "github.com/lidarctl/controlplane/internal/errors"
)

// Route names the workflow engine coordinates for one (scenario, pipeline
// version) pair.
type Route struct {
	WorkflowName string
	TaskQueue    string
	QueryName    string
}

type key struct {
	scenario        string
	pipelineVersion string
}

// registry is the compiled-in scenario table. Scenario names are matched
// case-insensitively; pipeline versions are matched exactly.
var registry = map[key]Route{
	{scenario: "ingest", pipelineVersion: "v1"}: {
		WorkflowName: "IngestWorkflow",
		TaskQueue:    "ingest-task-queue",
		QueryName:    "progress",
	},
	{scenario: "orchestrate", pipelineVersion: "v1"}: {
		WorkflowName: "OrchestratorWorkflow",
		TaskQueue:    "orchestrator-task-queue",
		QueryName:    "progress",
	},
	{scenario: "orchestrate", pipelineVersion: "v2"}: {
		WorkflowName: "OrchestratorWorkflowV2",
		TaskQueue:    "orchestrator-task-queue",
		QueryName:    "progress",
	},
}

// Resolve looks up the workflow coordinates for scenario/pipelineVersion.
// It fails with an AppError of ErrorTypeScenario when the pair is unknown.
func Resolve(scenario, pipelineVersion string) (Route, error) {
	k := key{scenario: strings.ToLower(scenario), pipelineVersion: pipelineVersion}
	route, ok := registry[k]
	if !ok {
		return Route{}, apperrors.NewScenarioError(scenario, pipelineVersion)
	}
	return route, nil
}
