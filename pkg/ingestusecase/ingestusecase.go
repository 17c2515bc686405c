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

// Package ingestusecase drives the seven-step happy path of starting one
// ingest run: resolve the scenario, start the workflow, watch progress,
// await the result, and push status at every transition. It never
// retries internally; redelivery-driven retries belong to the message
// consumer that calls it.
package ingestusecase

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/lidarctl/controlplane/pkg/eventbus"
	"github.com/lidarctl/controlplane/pkg/scenario"
	"github.com/lidarctl/controlplane/pkg/statusstore"
	"github.com/lidarctl/controlplane/pkg/workflowgateway"
)

// Status names mirror the states pushed to the status store and event bus.
const (
	StatusResolvedScenario = "RESOLVED_SCENARIO"
	StatusStarting         = "STARTING"
	StatusRunning          = "RUNNING"
	StatusCompleted        = "COMPLETED"
	StatusFailed           = "FAILED"
)

// Error codes distinguish why a FAILED push happened (spec §6 ingest.failed
// error_code enum).
const (
	DetailValidationError        = "VALIDATION_ERROR"
	DetailTemporalStartError     = "TEMPORAL_START_ERROR"
	DetailTemporalExecutionError = "TEMPORAL_EXECUTION_ERROR"
)

// StartIngestCommand is the single input to UseCase.Start.
type StartIngestCommand struct {
	WorkflowID      string
	Scenario        string
	MessageVersion  string
	PipelineVersion string
	Dataset         map[string]interface{}
}

// StatusPusher is the subset of pkg/statusstore.Store the use case needs.
type StatusPusher interface {
	Put(ctx context.Context, workflowID string, status statusstore.Status) error
}

// EventPublisher is the subset of pkg/eventbus.Publisher the use case needs.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey eventbus.RoutingKey, workflowID string, event interface{}) error
}

// UseCase implements the ingest happy path.
type UseCase struct {
	Gateway workflowgateway.Gateway
	Status  StatusPusher
	Events  EventPublisher
	Log     logr.Logger

	// Now is overridable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

func (u *UseCase) now() time.Time {
	if u.Now != nil {
		return u.Now()
	}
	return time.Now()
}

// Start runs the seven-step happy path for cmd. It returns the
// underlying failure (already reflected as a FAILED push) when any step
// fails; callers categorize it (e.g. via workflowgateway.WorkflowEngineError.
// Retryable) to decide whether to acknowledge or redeliver the triggering
// message.
func (u *UseCase) Start(ctx context.Context, cmd StartIngestCommand) error {
	route, err := scenario.Resolve(cmd.Scenario, cmd.PipelineVersion)
	if err != nil {
		u.pushFailed(ctx, cmd.WorkflowID, cmd.Scenario, DetailValidationError, err.Error(), false)
		return err
	}

	u.pushStatus(ctx, cmd.WorkflowID, cmd.Scenario, StatusResolvedScenario, map[string]interface{}{
		"workflow_name": route.WorkflowName,
	})

	payload := map[string]interface{}{
		"scenario":         cmd.Scenario,
		"message_version":  cmd.MessageVersion,
		"pipeline_version": cmd.PipelineVersion,
		"dataset":          cmd.Dataset,
	}
	u.pushStatus(ctx, cmd.WorkflowID, cmd.Scenario, StatusStarting, map[string]interface{}{"payload": payload})

	if err := u.Gateway.StartWorkflow(ctx, route.WorkflowName, cmd.WorkflowID, route.TaskQueue, payload); err != nil {
		u.pushFailed(ctx, cmd.WorkflowID, cmd.Scenario, DetailTemporalStartError, err.Error(), true)
		return err
	}

	progress, err := u.Gateway.QueryWorkflow(ctx, cmd.WorkflowID, route.QueryName)
	if err != nil {
		u.Log.Error(err, "progress query failed, continuing to wait for result", "workflow_id", cmd.WorkflowID)
		progress = map[string]interface{}{}
	}
	u.pushStatus(ctx, cmd.WorkflowID, cmd.Scenario, StatusRunning, progress)

	result, err := u.Gateway.WaitResult(ctx, cmd.WorkflowID)
	if err != nil {
		u.pushFailed(ctx, cmd.WorkflowID, cmd.Scenario, DetailTemporalExecutionError, err.Error(), true)
		return err
	}

	u.pushCompleted(ctx, cmd.WorkflowID, cmd.Scenario, decodeOutputs(result["outputs"]))
	return nil
}

// OnBreakerStateChange is a workflowgateway.StateChangeFunc that surfaces
// a circuit breaker transition as a RUNNING detail, per the breaker
// wiring note in pkg/workflowgateway. The breaker is process-global, not
// per-workflow, so no scenario is available here; it is left blank.
func (u *UseCase) OnBreakerStateChange(workflowID string) workflowgateway.StateChangeFunc {
	return func(from, to string) {
		u.pushStatus(context.Background(), workflowID, "", StatusRunning, map[string]interface{}{
			"breaker_transition": map[string]string{"from": from, "to": to},
		})
	}
}

// decodeOutputs converts a workflow result's "outputs" field — a JSON list
// of {kind, s3_key, etag} objects (spec §4.7 step 7, §6 ingest.complete) —
// into typed OutputRefs. A result shaped unexpectedly yields an empty
// slice rather than a partial or nil one.
func decodeOutputs(raw interface{}) []eventbus.OutputRef {
	items, ok := raw.([]interface{})
	if !ok {
		return []eventbus.OutputRef{}
	}
	outputs := make([]eventbus.OutputRef, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		outputs = append(outputs, eventbus.OutputRef{
			Kind:  stringField(obj, "kind"),
			S3Key: stringField(obj, "s3_key"),
			ETag:  stringField(obj, "etag"),
		})
	}
	return outputs
}

func stringField(obj map[string]interface{}, key string) string {
	s, _ := obj[key].(string)
	return s
}

// pushStatus writes an intermediate (non-terminal) status to the KV store
// then publishes an eventbus.StatusEvent, in that order: the status store
// is always written first so external observers can reconstruct state
// even if the broker publish is lost.
func (u *UseCase) pushStatus(ctx context.Context, workflowID, scenarioName, status string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	timestamp := u.now().UTC().Format(time.RFC3339Nano)

	u.putKV(ctx, workflowID, status, details, timestamp)

	event := eventbus.StatusEvent{
		WorkflowID: workflowID,
		Scenario:   scenarioName,
		Status:     status,
		Timestamp:  timestamp,
		Details:    details,
	}
	if err := u.Events.Publish(ctx, eventbus.RoutingStatus, workflowID, event); err != nil {
		u.Log.Error(err, "event bus publish failed", "workflow_id", workflowID, "status", status)
	}
}

// pushCompleted writes StatusCompleted to the KV store then publishes an
// eventbus.CompletedEvent carrying the run's outputs.
func (u *UseCase) pushCompleted(ctx context.Context, workflowID, scenarioName string, outputs []eventbus.OutputRef) {
	timestamp := u.now().UTC().Format(time.RFC3339Nano)
	u.putKV(ctx, workflowID, StatusCompleted, map[string]interface{}{"outputs": outputs}, timestamp)

	event := eventbus.CompletedEvent{
		WorkflowID: workflowID,
		Scenario:   scenarioName,
		Status:     StatusCompleted,
		Timestamp:  timestamp,
		Outputs:    outputs,
	}
	if err := u.Events.Publish(ctx, eventbus.RoutingComplete, workflowID, event); err != nil {
		u.Log.Error(err, "event bus publish failed", "workflow_id", workflowID, "status", StatusCompleted)
	}
}

// pushFailed writes StatusFailed to the KV store then publishes an
// eventbus.FailedEvent shaped exactly like the consumer's pre-handoff
// rejection event (pkg/consumer.FailedEvent), so every "ingest.failed"
// message on the bus — whatever stage raised it — carries the same shape.
func (u *UseCase) pushFailed(ctx context.Context, workflowID, scenarioName, errorCode, errorMessage string, retryable bool) {
	timestamp := u.now().UTC().Format(time.RFC3339Nano)
	u.putKV(ctx, workflowID, StatusFailed, map[string]interface{}{
		"error_code":    errorCode,
		"error_message": errorMessage,
		"retryable":     retryable,
	}, timestamp)

	event := eventbus.FailedEvent{
		WorkflowID:   workflowID,
		Scenario:     scenarioName,
		Status:       StatusFailed,
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
		Retryable:    retryable,
		FailedAt:     timestamp,
	}
	if err := u.Events.Publish(ctx, eventbus.RoutingFailed, workflowID, event); err != nil {
		u.Log.Error(err, "event bus publish failed", "workflow_id", workflowID, "status", StatusFailed)
	}
}

// putKV is the status-store half shared by all three push variants. It is
// best-effort: a failure is logged, never returned, so an observability
// outage never blocks the happy path (nor an already-in-flight FAILED
// push) from completing.
func (u *UseCase) putKV(ctx context.Context, workflowID, status string, payload map[string]interface{}, timestamp string) {
	payload["timestamp"] = timestamp
	entry := statusstore.Status{Status: status, Payload: payload}
	if err := u.Status.Put(ctx, workflowID, entry); err != nil {
		u.Log.Error(err, "status store push failed", "workflow_id", workflowID, "status", status)
	}
}
