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
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestWorkflowGateway(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Workflow Gateway Suite")
}

type fakeGateway struct {
	startErr error
	calls    int
}

func (f *fakeGateway) StartWorkflow(ctx context.Context, workflowName, id, taskQueue string, payload map[string]interface{}) error {
	f.calls++
	return f.startErr
}

func (f *fakeGateway) QueryWorkflow(ctx context.Context, id, queryName string) (map[string]interface{}, error) {
	return map[string]interface{}{"stage": "reproject"}, nil
}

func (f *fakeGateway) WaitResult(ctx context.Context, id string) (map[string]interface{}, error) {
	return map[string]interface{}{"outputs": "ok"}, nil
}

var _ = Describe("BreakerGateway", func() {
	It("should pass through a successful call untouched", func() {
		inner := &fakeGateway{}
		gw := NewBreakerGateway(inner, DefaultBreakerSettings(), nil)

		err := gw.StartWorkflow(context.Background(), "IngestWorkflow", "wf-1", "queue", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(inner.calls).To(Equal(1))

		result, err := gw.QueryWorkflow(context.Background(), "wf-1", "progress")
		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(HaveKeyWithValue("stage", "reproject"))
	})

	It("should trip open after consecutive failures and fail fast with a retryable error", func() {
		inner := &fakeGateway{startErr: NewEngineError("start_workflow", errors.New("engine unavailable"), true)}
		var transitions [][2]string
		gw := NewBreakerGateway(inner, BreakerSettings{ConsecutiveFailureThreshold: 2, OpenTimeout: 50 * time.Millisecond},
			func(from, to string) { transitions = append(transitions, [2]string{from, to}) })

		for i := 0; i < 2; i++ {
			err := gw.StartWorkflow(context.Background(), "IngestWorkflow", "wf-1", "queue", nil)
			Expect(err).To(HaveOccurred())
		}

		callsBeforeOpen := inner.calls
		err := gw.StartWorkflow(context.Background(), "IngestWorkflow", "wf-1", "queue", nil)
		Expect(err).To(HaveOccurred())

		var engineErr *WorkflowEngineError
		Expect(errors.As(err, &engineErr)).To(BeTrue())
		Expect(engineErr.Retryable).To(BeTrue())

		// the breaker rejected this call before it reached the inner gateway
		Expect(inner.calls).To(Equal(callsBeforeOpen))
		Expect(transitions).ToNot(BeEmpty())
		Expect(transitions[0][1]).To(Equal("open"))
	})
})
