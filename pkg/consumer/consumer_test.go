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
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-logr/logr"

	apperrors "github.com/lidarctl/controlplane/internal/errors"
	"github.com/lidarctl/controlplane/pkg/eventbus"
	"github.com/lidarctl/controlplane/pkg/ingestusecase"
)

type fakeHandler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (h *fakeHandler) Start(ctx context.Context, cmd ingestusecase.StartIngestCommand) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.err
}

type publishedEvent struct {
	routingKey eventbus.RoutingKey
	workflowID string
	event      interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(ctx context.Context, routingKey eventbus.RoutingKey, workflowID string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{routingKey: routingKey, workflowID: workflowID, event: event})
	return nil
}

const validPayload = `{
	"workflow_id": "wf-1",
	"scenario": "ingest",
	"version": {"message_version": "1", "pipeline_version": "v1"},
	"dataset": {
		"scan-a": {
			"point_cloud": {"raw": {"s3_key": "co/scan-a/raw.copc.laz", "etag": "abc"}}
		}
	}
}`

func newTestConsumer(handler *fakeHandler, pub *fakePublisher) *Consumer {
	return NewConsumer(handler, pub, logr.Discard())
}

func TestProcessHandsOffAValidMessage(t *testing.T) {
	handler := &fakeHandler{}
	pub := &fakePublisher{}
	c := newTestConsumer(handler, pub)

	if ack := c.Process(context.Background(), []byte(validPayload)); !ack {
		t.Fatal("expected ack on a successful handoff")
	}
	if handler.calls != 1 {
		t.Fatalf("expected exactly one handoff, got %d", handler.calls)
	}
	if len(pub.events) != 0 {
		t.Fatalf("expected no pre-handoff failure event, got %d", len(pub.events))
	}
}

func TestProcessRejectsUnknownTopLevelKey(t *testing.T) {
	handler := &fakeHandler{}
	pub := &fakePublisher{}
	c := newTestConsumer(handler, pub)

	payload := `{"workflow_id":"wf-1","scenario":"ingest","version":{"message_version":"1","pipeline_version":"v1"},"dataset":{},"extra_unknown_field":true}`

	if ack := c.Process(context.Background(), []byte(payload)); !ack {
		t.Fatal("expected ack even on a structural rejection (prevents poison-loop)")
	}
	if handler.calls != 0 {
		t.Fatalf("expected no handoff for a structurally invalid message, got %d calls", handler.calls)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one VALIDATION_ERROR event, got %d", len(pub.events))
	}
	evt, ok := pub.events[0].event.(FailedEvent)
	if !ok {
		t.Fatalf("expected a FailedEvent, got %T", pub.events[0].event)
	}
	if evt.ErrorCode != "VALIDATION_ERROR" {
		t.Fatalf("expected error_code VALIDATION_ERROR, got %q", evt.ErrorCode)
	}
	if pub.events[0].routingKey != eventbus.RoutingFailed {
		t.Fatalf("expected the failed routing key, got %q", pub.events[0].routingKey)
	}
}

func TestProcessRejectsScanWithoutPointCloud(t *testing.T) {
	handler := &fakeHandler{}
	pub := &fakePublisher{}
	c := newTestConsumer(handler, pub)

	payload := `{
		"workflow_id": "wf-1",
		"scenario": "ingest",
		"version": {"message_version": "1", "pipeline_version": "v1"},
		"dataset": {
			"scan-a": {"trajectory": {"raw": {"s3_key": "co/scan-a/traj.json", "etag": "abc"}}}
		}
	}`

	if ack := c.Process(context.Background(), []byte(payload)); !ack {
		t.Fatal("expected ack on a validation rejection")
	}
	if handler.calls != 0 {
		t.Fatalf("expected no handoff when a scan carries no point_cloud, got %d calls", handler.calls)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected one VALIDATION_ERROR event, got %d", len(pub.events))
	}
}

func TestProcessRejectsInjectionShapedArtifactKey(t *testing.T) {
	handler := &fakeHandler{}
	pub := &fakePublisher{}
	c := newTestConsumer(handler, pub)

	payload := `{
		"workflow_id": "wf-1",
		"scenario": "ingest",
		"version": {"message_version": "1", "pipeline_version": "v1"},
		"dataset": {
			"scan-a": {
				"point_cloud": {"raw": {"s3_key": "'; DROP TABLE scans; --", "etag": "abc"}}
			}
		}
	}`

	if ack := c.Process(context.Background(), []byte(payload)); !ack {
		t.Fatal("expected ack on a validation rejection")
	}
	if handler.calls != 0 {
		t.Fatalf("expected no handoff for an unsafe s3_key, got %d calls", handler.calls)
	}
}

func TestShouldAckByErrorTaxonomyClass(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantsAck bool
	}{
		{"nil error", nil, true},
		{"scenario validation error", apperrors.NewScenarioError("bogus", "v1"), true},
		{"catalog invariant error", apperrors.NewCatalogInvariantError("scan belongs to another company"), true},
		{"fatal error", apperrors.NewFatalError("missing raw point cloud", nil), true},
		{"engine error", apperrors.NewEngineError("start", errors.New("rpc timeout"), true), false},
		{"unclassified infrastructure error", errors.New("connection reset"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := &fakeHandler{err: tc.err}
			pub := &fakePublisher{}
			c := newTestConsumer(handler, pub)

			ack := c.Process(context.Background(), []byte(validPayload))
			if ack != tc.wantsAck {
				t.Fatalf("expected ack=%v for %v, got %v", tc.wantsAck, tc.err, ack)
			}
		})
	}
}
