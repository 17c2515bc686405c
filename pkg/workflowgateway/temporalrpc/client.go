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

// Package temporalrpc is the one production workflowgateway.Gateway
// adapter shipped with the control plane. It talks to a workflow-engine
// front end over a thin JSON/HTTP façade rather than embedding the engine
// client SDK directly, keeping the dependency surface of this repository
// limited to the control plane's own concerns.
package temporalrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/lidarctl/controlplane/pkg/workflowgateway"
)

// Client is a thin HTTP client for a workflow-engine front end exposing
// start/query/wait as JSON POST endpoints. It implements
// workflowgateway.Gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logr.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default *http.Client (tests substitute a
// short-timeout client pointed at an httptest.Server).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a Client against baseURL, the workflow-engine front
// end's address.
func NewClient(baseURL string, log logr.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ workflowgateway.Gateway = (*Client)(nil)

type startWorkflowRequest struct {
	WorkflowName string                 `json:"workflow_name"`
	WorkflowID   string                 `json:"workflow_id"`
	TaskQueue    string                 `json:"task_queue"`
	Payload      map[string]interface{} `json:"payload"`
}

// StartWorkflow asks the engine front end to start workflowName under id
// on taskQueue. The front end is expected to implement start-idempotency
// on workflow id itself (Temporal's own WorkflowIDReusePolicy semantics);
// this client does not attempt to de-duplicate client-side.
func (c *Client) StartWorkflow(ctx context.Context, workflowName, id, taskQueue string, payload map[string]interface{}) error {
	body := startWorkflowRequest{WorkflowName: workflowName, WorkflowID: id, TaskQueue: taskQueue, Payload: payload}
	if _, err := c.post(ctx, "/workflows/start", body); err != nil {
		return workflowgateway.NewEngineError("start_workflow", err, isRetryable(err))
	}
	return nil
}

type queryWorkflowRequest struct {
	WorkflowID string `json:"workflow_id"`
	QueryName  string `json:"query_name"`
}

// QueryWorkflow issues a synchronous query against a running workflow.
func (c *Client) QueryWorkflow(ctx context.Context, id, queryName string) (map[string]interface{}, error) {
	body := queryWorkflowRequest{WorkflowID: id, QueryName: queryName}
	resp, err := c.post(ctx, "/workflows/query", body)
	if err != nil {
		return nil, workflowgateway.NewEngineError("query_workflow", err, isRetryable(err))
	}
	var result map[string]interface{}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, workflowgateway.NewEngineError("query_workflow", fmt.Errorf("decode response: %w", err), false)
	}
	return result, nil
}

type waitResultRequest struct {
	WorkflowID string `json:"workflow_id"`
}

// WaitResult blocks for the workflow's terminal result and returns its
// output dict. The wait ends at ctx's deadline or at the HTTP client's own
// timeout (10s for the client NewClient builds), whichever comes first.
func (c *Client) WaitResult(ctx context.Context, id string) (map[string]interface{}, error) {
	body := waitResultRequest{WorkflowID: id}
	resp, err := c.post(ctx, "/workflows/result", body)
	if err != nil {
		return nil, workflowgateway.NewEngineError("wait_result", err, isRetryable(err))
	}
	var result map[string]interface{}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, workflowgateway.NewEngineError("wait_result", fmt.Errorf("decode response: %w", err), false)
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &rpcError{retryable: true, cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &rpcError{retryable: true, cause: err}
	}

	if resp.StatusCode >= 500 {
		return nil, &rpcError{retryable: true, cause: fmt.Errorf("engine front end returned %d: %s", resp.StatusCode, respBody)}
	}
	if resp.StatusCode >= 400 {
		return nil, &rpcError{retryable: false, cause: fmt.Errorf("engine front end returned %d: %s", resp.StatusCode, respBody)}
	}

	return respBody, nil
}

// rpcError distinguishes transport/5xx failures (retryable) from 4xx
// rejections (terminal: bad workflow id, unknown query, ...).
type rpcError struct {
	retryable bool
	cause     error
}

func (e *rpcError) Error() string { return e.cause.Error() }
func (e *rpcError) Unwrap() error { return e.cause }

func isRetryable(err error) bool {
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) {
		return rpcErr.retryable
	}
	return true
}
