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

// Package config aggregates the settings every binary in the control plane
// needs: the catalog database, the object store, the broker, the KV status
// store, and the workflow engine client. Each sub-config follows the same
// shape: DefaultConfig, LoadFromEnv, Validate.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/lidarctl/controlplane/internal/database"
)

// Settings is the full set of environment-driven configuration for a
// control-plane binary.
type Settings struct {
	Database    *database.Config
	ObjectStore *ObjectStoreConfig
	Broker      *BrokerConfig
	KV          *KVConfig
	Engine      *EngineConfig
	CRS         *CRSConfig
}

// Load builds Settings from local defaults overridden by the environment,
// and validates every sub-config.
func Load() (*Settings, error) {
	s := &Settings{
		Database:    database.DefaultConfig(),
		ObjectStore: DefaultObjectStoreConfig(),
		Broker:      DefaultBrokerConfig(),
		KV:          DefaultKVConfig(),
		Engine:      DefaultEngineConfig(),
		CRS:         DefaultCRSConfig(),
	}

	s.Database.LoadFromEnv()
	s.ObjectStore.LoadFromEnv()
	s.Broker.LoadFromEnv()
	s.KV.LoadFromEnv()
	s.Engine.LoadFromEnv()
	s.CRS.LoadFromEnv()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate runs every sub-config's Validate and joins any failures.
func (s *Settings) Validate() error {
	var errs []string
	if err := s.Database.Validate(); err != nil {
		errs = append(errs, "database: "+err.Error())
	}
	if err := s.ObjectStore.Validate(); err != nil {
		errs = append(errs, "object store: "+err.Error())
	}
	if err := s.Broker.Validate(); err != nil {
		errs = append(errs, "broker: "+err.Error())
	}
	if err := s.KV.Validate(); err != nil {
		errs = append(errs, "kv: "+err.Error())
	}
	if err := s.Engine.Validate(); err != nil {
		errs = append(errs, "engine: "+err.Error())
	}
	if err := s.CRS.Validate(); err != nil {
		errs = append(errs, "crs: "+err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ObjectStoreConfig holds the S3-compatible object store connection
// parameters (S3_ENDPOINT/S3_ACCESS_KEY/S3_SECRET_KEY/S3_BUCKET/S3_REGION).
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	// UsePathStyle is required by most non-AWS S3-compatible endpoints
	// (MinIO, Ceph RGW); virtual-hosted addressing assumes a real AWS
	// domain.
	UsePathStyle bool
}

// DefaultObjectStoreConfig returns local-development defaults pointing at a
// MinIO instance.
func DefaultObjectStoreConfig() *ObjectStoreConfig {
	return &ObjectStoreConfig{
		Endpoint:     "http://localhost:9000",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		Bucket:       "lidarctl-artifacts",
		Region:       "us-east-1",
		UsePathStyle: true,
	}
}

func (c *ObjectStoreConfig) LoadFromEnv() {
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		c.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.SecretKey = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		c.Region = v
	}
}

func (c *ObjectStoreConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("S3 endpoint is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("S3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("S3 region is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("S3 access key and secret key are required")
	}
	return nil
}

// BrokerConfig holds the event-bus (NATS JetStream) connection parameters.
// The env var name RABBIT_DSN is kept for naming compatibility with the
// original spec even though the wire protocol is NATS, not AMQP.
type BrokerConfig struct {
	DSN string
	// StreamName is the durable JetStream stream backing the three
	// routing keys (ingest.status, ingest.complete, ingest.failed).
	StreamName string
}

func DefaultBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		DSN:        "nats://localhost:4222",
		StreamName: "INGEST_EVENTS",
	}
}

func (c *BrokerConfig) LoadFromEnv() {
	if v := os.Getenv("RABBIT_DSN"); v != "" {
		c.DSN = v
	}
	if v := os.Getenv("BROKER_STREAM_NAME"); v != "" {
		c.StreamName = v
	}
}

func (c *BrokerConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("broker DSN is required")
	}
	if c.StreamName == "" {
		return fmt.Errorf("broker stream name is required")
	}
	return nil
}

// KVConfig holds the status-store (Redis/KeyDB) connection parameters.
type KVConfig struct {
	DSN string
	// Prefix namespaces every key as "<prefix>:status:<workflow_id>".
	Prefix string
}

func DefaultKVConfig() *KVConfig {
	return &KVConfig{
		DSN:    "redis://localhost:6379/0",
		Prefix: "lidarctl",
	}
}

func (c *KVConfig) LoadFromEnv() {
	if v := os.Getenv("KEYDB_DSN"); v != "" {
		c.DSN = v
	}
	if v := os.Getenv("KV_PREFIX"); v != "" {
		c.Prefix = v
	}
}

func (c *KVConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("KV DSN is required")
	}
	if c.Prefix == "" {
		return fmt.Errorf("KV prefix is required")
	}
	return nil
}

// EngineConfig holds the workflow-engine client's connection parameters.
type EngineConfig struct {
	DSN string
	// TaskQueue is the engine-side queue the orchestrator worker polls.
	TaskQueue string
}

func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		DSN:       "localhost:7233",
		TaskQueue: "lidarctl-ingest",
	}
}

func (c *EngineConfig) LoadFromEnv() {
	if v := os.Getenv("TEMPORAL_DSN"); v != "" {
		c.DSN = v
	}
	if v := os.Getenv("ENGINE_TASK_QUEUE"); v != "" {
		c.TaskQueue = v
	}
}

func (c *EngineConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("engine DSN is required")
	}
	if c.TaskQueue == "" {
		return fmt.Errorf("engine task queue is required")
	}
	return nil
}

// CRSConfig holds the path to the MSK zone presets YAML file. This is the
// one setting hot-reloaded at runtime (see pkg/crs.WatchedPresetLoader):
// unlike PG_DSN or S3_BUCKET, a presets-table swap never leaves a pooled
// connection or cached client in an inconsistent state.
type CRSConfig struct {
	PresetsPath string
}

func DefaultCRSConfig() *CRSConfig {
	return &CRSConfig{PresetsPath: "configs/msk_presets.yaml"}
}

func (c *CRSConfig) LoadFromEnv() {
	if v := os.Getenv("CRS_PRESETS_PATH"); v != "" {
		c.PresetsPath = v
	}
}

func (c *CRSConfig) Validate() error {
	if c.PresetsPath == "" {
		return fmt.Errorf("CRS presets path is required")
	}
	return nil
}
