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

// Package metrics is the ambient Prometheus instrumentation shared by every
// binary: ingest-run transitions, object-store uploads, broker publishes,
// and catalog query latency.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingest run status label values recorded against IngestRunsTotal.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Metrics bundles every counter/histogram/gauge the control plane emits.
// Construct one per process with NewMetricsWithRegistry and thread it
// through the components that need it.
type Metrics struct {
	IngestRunsTotal        *prometheus.CounterVec
	IngestRunDuration      *prometheus.HistogramVec
	ArtifactUploadsTotal   *prometheus.CounterVec
	ArtifactUploadBytes    *prometheus.HistogramVec
	BrokerPublishTotal     *prometheus.CounterVec
	CatalogQueryDuration   *prometheus.HistogramVec
	WorkflowGatewayErrors  *prometheus.CounterVec
	CircuitBreakerState    *prometheus.GaugeVec
	IngestRunClaimAttempts *prometheus.CounterVec
}

// NewMetricsWithRegistry constructs and registers every metric under
// "<namespace>_<subsystem>_..." against registry. subsystem may be empty.
func NewMetricsWithRegistry(namespace, subsystem string, registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ingest_runs_total",
			Help:      "Total ingest runs by terminal or transitional status.",
		}, []string{"scenario", "status"}),

		IngestRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ingest_run_duration_seconds",
			Help:      "Wall-clock duration of an ingest run from RUNNING to a terminal status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"scenario"}),

		ArtifactUploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "artifact_uploads_total",
			Help:      "Total artifact uploads by kind and outcome.",
		}, []string{"kind", "outcome"}),

		ArtifactUploadBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "artifact_upload_bytes",
			Help:      "Size in bytes of uploaded artifacts.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"kind"}),

		BrokerPublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "broker_publish_total",
			Help:      "Total event-bus publishes by routing key and outcome.",
		}, []string{"routing_key", "outcome"}),

		CatalogQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "catalog_query_duration_seconds",
			Help:      "Duration of catalog repository operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		WorkflowGatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workflow_gateway_errors_total",
			Help:      "Total workflow-gateway RPC errors by operation and retryability.",
		}, []string{"operation", "retryable"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "circuit_breaker_state",
			Help:      "Current gobreaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),

		IngestRunClaimAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ingest_run_claim_attempts_total",
			Help:      "Total CAS claim attempts on queued ingest runs by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.IngestRunsTotal,
		m.IngestRunDuration,
		m.ArtifactUploadsTotal,
		m.ArtifactUploadBytes,
		m.BrokerPublishTotal,
		m.CatalogQueryDuration,
		m.WorkflowGatewayErrors,
		m.CircuitBreakerState,
		m.IngestRunClaimAttempts,
	)

	return m
}
