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

package workflowgateway

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// StateChangeFunc is notified every time the breaker transitions between
// closed, open, and half-open. ingestusecase.UseCase.OnBreakerStateChange
// can turn a transition into a RUNNING status push for one workflow;
// cmd/ingest-gateway wires a callback that only logs the transition, so
// transitions are not pushed to the status stream there.
type StateChangeFunc func(from, to string)

// BreakerSettings configures the underlying gobreaker.CircuitBreaker.
type BreakerSettings struct {
	// ConsecutiveFailureThreshold trips the breaker open after this many
	// consecutive engine failures.
	ConsecutiveFailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before allowing a
	// single half-open probe request through.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings matches the teacher's external-API breaker
// defaults: trip after 5 consecutive failures, cool down for 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailureThreshold: 5, OpenTimeout: 30 * time.Second}
}

// BreakerGateway decorates any Gateway with a circuit breaker so that a
// run of engine failures fails fast instead of continuing to hammer a
// down dependency.
type BreakerGateway struct {
	inner   Gateway
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerGateway wraps inner in a circuit breaker. onStateChange may be
// nil if the caller does not want transition notifications.
func NewBreakerGateway(inner Gateway, settings BreakerSettings, onStateChange StateChangeFunc) *BreakerGateway {
	cbSettings := gobreaker.Settings{
		Name:        "workflow-engine",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailureThreshold
		},
	}
	if onStateChange != nil {
		cbSettings.OnStateChange = func(name string, from, to gobreaker.State) {
			onStateChange(from.String(), to.String())
		}
	}
	return &BreakerGateway{inner: inner, breaker: gobreaker.NewCircuitBreaker(cbSettings)}
}

func (g *BreakerGateway) StartWorkflow(ctx context.Context, workflowName, id, taskQueue string, payload map[string]interface{}) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, g.inner.StartWorkflow(ctx, workflowName, id, taskQueue, payload)
	})
	return translateBreakerErr(err, "start_workflow")
}

func (g *BreakerGateway) QueryWorkflow(ctx context.Context, id, queryName string) (map[string]interface{}, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.QueryWorkflow(ctx, id, queryName)
	})
	if err != nil {
		return nil, translateBreakerErr(err, "query_workflow")
	}
	dict, _ := result.(map[string]interface{})
	return dict, nil
}

func (g *BreakerGateway) WaitResult(ctx context.Context, id string) (map[string]interface{}, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.WaitResult(ctx, id)
	})
	if err != nil {
		return nil, translateBreakerErr(err, "wait_result")
	}
	dict, _ := result.(map[string]interface{})
	return dict, nil
}

// translateBreakerErr surfaces a breaker-open/too-many-requests rejection
// as a retryable WorkflowEngineError. Any other error already came back
// from the inner adapter (typically already a *WorkflowEngineError) and
// is passed through unchanged.
func translateBreakerErr(err error, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewEngineError(operation, err, true)
	}
	return err
}
