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

// Package consumer decodes and validates the "ingest.start" broker
// message and hands it off to the ingest use case, applying the
// ack-after-handoff and ack-plus-publish-failure-event policy of spec.md
// §4.11/§7: a message that never reaches the use case (bad shape, failed
// validation) is acked and its rejection published as a FailedEvent,
// since nothing short of a producer fix will ever make it valid; a
// message that does reach the use case is acked or left for redelivery
// depending on which error-taxonomy class the use case's failure falls
// into.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/lidarctl/controlplane/internal/errors"
	"github.com/lidarctl/controlplane/internal/validation"
	"github.com/lidarctl/controlplane/pkg/eventbus"
	"github.com/lidarctl/controlplane/pkg/ingestusecase"
)

// IngestHandler is the subset of pkg/ingestusecase.UseCase the consumer
// needs, narrowed for testability (no NATS connection required to unit
// test Process).
type IngestHandler interface {
	Start(ctx context.Context, cmd ingestusecase.StartIngestCommand) error
}

// EventPublisher is the subset of pkg/eventbus.Publisher the consumer
// needs, mirroring pkg/ingestusecase.EventPublisher's narrow-interface
// shape.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey eventbus.RoutingKey, workflowID string, event interface{}) error
}

// Consumer decodes, validates, and hands off "ingest.start" messages.
type Consumer struct {
	Handler  IngestHandler
	Events   EventPublisher
	Log      logr.Logger
	Validate *validatorv10.Validate

	// Now is overridable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

// NewConsumer builds a Consumer with a fresh validator instance.
func NewConsumer(handler IngestHandler, events EventPublisher, log logr.Logger) *Consumer {
	return &Consumer{Handler: handler, Events: events, Log: log, Validate: validatorv10.New()}
}

func (c *Consumer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Process decodes, validates, and hands off one ingest.start payload. It
// returns true when the message should be acknowledged and false when it
// should be left for the broker to redeliver.
func (c *Consumer) Process(ctx context.Context, payload []byte) bool {
	msg, err := decodeIngestStartMessage(payload)
	if err != nil {
		c.rejectBeforeHandoff(ctx, "", "", err)
		return true
	}

	if err := c.validateMessage(msg); err != nil {
		c.rejectBeforeHandoff(ctx, msg.WorkflowID, msg.Scenario, err)
		return true
	}

	dataset, err := datasetToMap(msg.Dataset)
	if err != nil {
		c.rejectBeforeHandoff(ctx, msg.WorkflowID, msg.Scenario, err)
		return true
	}

	cmd := ingestusecase.StartIngestCommand{
		WorkflowID:      msg.WorkflowID,
		Scenario:        msg.Scenario,
		MessageVersion:  msg.Version.MessageVersion,
		PipelineVersion: msg.Version.PipelineVersion,
		Dataset:         dataset,
	}

	err = c.Handler.Start(ctx, cmd)
	return c.shouldAck(msg.WorkflowID, err)
}

// validateMessage runs the struct-tag required-field pass (validator/v10)
// then the hand-rolled injection/control-character safety pass over every
// attacker-controlled string the struct tags don't reach.
func (c *Consumer) validateMessage(msg IngestStartMessage) error {
	return validation.Combine(
		c.Validate.Struct(msg),
		validation.ValidateStringInput("workflow_id", msg.WorkflowID, 256),
		validation.ValidateStringInput("scenario", msg.Scenario, 128),
		validateArtifactSafety(msg.Dataset),
	)
}

// shouldAck classifies err against the five-class error taxonomy (spec
// §7): validation/scenario, invariant, and fatal failures are acked
// (retrying would reproduce the same outcome); engine and unclassified
// (transient infrastructure) failures are left for redelivery.
func (c *Consumer) shouldAck(workflowID string, err error) bool {
	if err == nil {
		return true
	}
	switch apperrors.GetType(err) {
	case apperrors.ErrorTypeScenario, apperrors.ErrorTypeValidation, apperrors.ErrorTypeCRS,
		apperrors.ErrorTypeCatalogInvariant, apperrors.ErrorTypeFatal:
		return true
	default:
		c.Log.Info("leaving message for redelivery", "workflow_id", workflowID, "error", err.Error())
		return false
	}
}

// rejectBeforeHandoff publishes a VALIDATION_ERROR FailedEvent for a
// message that never reached pkg/ingestusecase.UseCase.Start.
func (c *Consumer) rejectBeforeHandoff(ctx context.Context, workflowID, scenario string, cause error) {
	c.Log.Info("rejecting ingest.start message before handoff",
		"workflow_id", workflowID, "error", validation.SanitizeForLogging(cause.Error()))

	event := FailedEvent{
		WorkflowID:   workflowID,
		Scenario:     scenario,
		Status:       "FAILED",
		ErrorCode:    "VALIDATION_ERROR",
		ErrorMessage: validation.SanitizeForLogging(cause.Error()),
		Retryable:    false,
		FailedAt:     c.now().UTC().Format(time.RFC3339Nano),
	}
	if err := c.Events.Publish(ctx, eventbus.RoutingFailed, workflowID, event); err != nil {
		c.Log.Error(err, "failed to publish pre-handoff validation failure", "workflow_id", workflowID)
	}
}

// Run pulls batches of up to concurrency messages from the durable
// JetStream consumer on subject/durable and fans their processing out
// with bounded concurrency, mirroring pkg/ingestrun.Worker's
// errgroup.SetLimit fan-out. It runs until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, js nats.JetStreamContext, subject, durable string, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	sub, err := js.PullSubscribe(subject, durable, nats.ManualAck())
	if err != nil {
		return fmt.Errorf("pull-subscribe %s/%s: %w", subject, durable, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(concurrency, nats.MaxWait(5*time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			return fmt.Errorf("fetch from %s: %w", subject, err)
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(concurrency)
		for _, m := range msgs {
			m := m
			group.Go(func() error {
				c.handleOne(groupCtx, m)
				return nil
			})
		}
		_ = group.Wait()
	}
}

func (c *Consumer) handleOne(ctx context.Context, m *nats.Msg) {
	if c.Process(ctx, m.Data) {
		if err := m.Ack(); err != nil {
			c.Log.Error(err, "ack failed")
		}
		return
	}
	if err := m.Nak(); err != nil {
		c.Log.Error(err, "nak failed")
	}
}
