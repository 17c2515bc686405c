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

// Package workflowgateway is the polymorphic port onto the workflow
// engine: starting, querying, and awaiting a workflow execution. The
// engine itself (Temporal or otherwise) is out of scope; the package
// exposes a Gateway interface plus a production adapter and a circuit
// breaker decorator that any adapter can be wrapped in.
package workflowgateway

import (
	"context"
	"fmt"
)

// Gateway is the capability set the ingest use case and the orchestrator
// need from a workflow engine. StartWorkflow MUST be idempotent on id: a
// second start with the same id against an already-running execution
// returns success without creating a duplicate run.
type Gateway interface {
	StartWorkflow(ctx context.Context, workflowName, id, taskQueue string, payload map[string]interface{}) error
	QueryWorkflow(ctx context.Context, id, queryName string) (map[string]interface{}, error)
	WaitResult(ctx context.Context, id string) (map[string]interface{}, error)
}

// WorkflowEngineError wraps a failure from any Gateway operation.
// Retryable distinguishes transient RPC/infrastructure failures (timeouts,
// unavailable, breaker-open) from terminal ones (workflow not found,
// invalid argument) so the use case can pick the right FAILED detail code.
type WorkflowEngineError struct {
	Operation string
	Cause     error
	Retryable bool
}

func (e *WorkflowEngineError) Error() string {
	return fmt.Sprintf("workflow engine %s failed: %v", e.Operation, e.Cause)
}

func (e *WorkflowEngineError) Unwrap() error {
	return e.Cause
}

// NewEngineError builds a WorkflowEngineError for the given operation.
func NewEngineError(operation string, cause error, retryable bool) *WorkflowEngineError {
	return &WorkflowEngineError{Operation: operation, Cause: cause, Retryable: retryable}
}
