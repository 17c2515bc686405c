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

// Package eventbus publishes workflow status events onto a durable NATS
// JetStream stream. Every scenario prefix (e.g. "ingest") gets three
// routing keys: "<prefix>.status", "<prefix>.complete", "<prefix>.failed".
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/nats-io/nats.go"
)

// RoutingKey identifies which of the three per-scenario subjects a
// message belongs on.
type RoutingKey string

const (
	RoutingStatus   RoutingKey = "status"
	RoutingComplete RoutingKey = "complete"
	RoutingFailed   RoutingKey = "failed"
)

// Publisher publishes JSON events onto a durable JetStream stream backing
// the three routing keys of one scenario prefix. Publish blocks until
// JetStream acknowledges persistence (ack-required, not fire-and-forget
// at the broker level); the caller itself does not retry a failed
// publish — a failure propagates as an error for the caller to handle.
type Publisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	prefix string
	log    logr.Logger
}

// Config controls stream provisioning.
type Config struct {
	URL    string
	Stream string
	Prefix string
}

// NewPublisher connects to NATS at cfg.URL and ensures a durable stream
// named cfg.Stream backs the three "<prefix>.status|complete|failed"
// subjects, creating it if absent.
func NewPublisher(cfg Config, log logr.Logger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("lidarctl-eventbus"), nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open JetStream context: %w", err)
	}

	subjects := []string{
		fmt.Sprintf("%s.%s", cfg.Prefix, RoutingStatus),
		fmt.Sprintf("%s.%s", cfg.Prefix, RoutingComplete),
		fmt.Sprintf("%s.%s", cfg.Prefix, RoutingFailed),
	}
	if _, err := js.AddStream(&nats.StreamConfig{Name: cfg.Stream, Subjects: subjects}); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		nc.Close()
		return nil, fmt.Errorf("provision stream %s: %w", cfg.Stream, err)
	}

	return &Publisher{nc: nc, js: js, prefix: cfg.Prefix, log: log}, nil
}

// Close drains the underlying connection.
func (p *Publisher) Close() {
	p.nc.Close()
}

// Publish encodes event as JSON and publishes it on "<prefix>.<routingKey>"
// with persistent delivery, correlation_id=workflowID, type=<routing
// subject>, and content_type=application/json as NATS headers.
func (p *Publisher) Publish(ctx context.Context, routingKey RoutingKey, workflowID string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, routingKey)
	msg := &nats.Msg{
		Subject: subject,
		Data:    payload,
		Header: nats.Header{
			"content_type":   []string{"application/json"},
			"correlation_id": []string{workflowID},
			"type":           []string{subject},
		},
	}

	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}
