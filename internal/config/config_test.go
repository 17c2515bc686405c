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

package config

import (
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lidarctl/controlplane/internal/database"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Settings Configuration Suite")
}

var allEnvVars = []string{
	"PG_DSN", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE",
	"S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_BUCKET", "S3_REGION",
	"RABBIT_DSN", "BROKER_STREAM_NAME",
	"KEYDB_DSN", "KV_PREFIX",
	"TEMPORAL_DSN", "ENGINE_TASK_QUEUE",
	"CRS_PRESETS_PATH",
}

func withCleanEnv(body func()) {
	saved := map[string]string{}
	for _, k := range allEnvVars {
		saved[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	defer func() {
		for k, v := range saved {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()
	body()
}

var _ = Describe("Settings", func() {
	Describe("Load", func() {
		It("should load valid defaults when nothing is set", func() {
			var settings *Settings
			var err error
			withCleanEnv(func() {
				settings, err = Load()
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(settings.Database.Host).To(Equal("localhost"))
			Expect(settings.ObjectStore.Bucket).To(Equal("lidarctl-artifacts"))
			Expect(settings.Broker.DSN).To(Equal("nats://localhost:4222"))
			Expect(settings.KV.Prefix).To(Equal("lidarctl"))
			Expect(settings.Engine.TaskQueue).To(Equal("lidarctl-ingest"))
			Expect(settings.CRS.PresetsPath).To(Equal("configs/msk_presets.yaml"))
		})

		It("should pick up every documented environment variable", func() {
			var settings *Settings
			var err error
			withCleanEnv(func() {
				os.Setenv("PG_DSN", "postgres://custom")
				os.Setenv("S3_BUCKET", "custom-bucket")
				os.Setenv("RABBIT_DSN", "nats://broker:4222")
				os.Setenv("KEYDB_DSN", "redis://kv:6379/1")
				os.Setenv("TEMPORAL_DSN", "engine:7233")
				os.Setenv("CRS_PRESETS_PATH", "/etc/lidarctl/msk_presets.yaml")
				settings, err = Load()
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(settings.Database.DSN).To(Equal("postgres://custom"))
			Expect(settings.ObjectStore.Bucket).To(Equal("custom-bucket"))
			Expect(settings.Broker.DSN).To(Equal("nats://broker:4222"))
			Expect(settings.KV.DSN).To(Equal("redis://kv:6379/1"))
			Expect(settings.Engine.DSN).To(Equal("engine:7233"))
			Expect(settings.CRS.PresetsPath).To(Equal("/etc/lidarctl/msk_presets.yaml"))
		})
	})

	Describe("ObjectStoreConfig.Validate", func() {
		It("should reject a missing bucket", func() {
			c := DefaultObjectStoreConfig()
			c.Bucket = ""
			Expect(c.Validate()).To(MatchError(ContainSubstring("S3 bucket is required")))
		})

		It("should reject missing credentials", func() {
			c := DefaultObjectStoreConfig()
			c.AccessKey = ""
			Expect(c.Validate()).To(MatchError(ContainSubstring("access key and secret key")))
		})
	})

	Describe("BrokerConfig.Validate", func() {
		It("should reject an empty DSN", func() {
			c := DefaultBrokerConfig()
			c.DSN = ""
			Expect(c.Validate()).To(MatchError(ContainSubstring("broker DSN is required")))
		})
	})

	Describe("KVConfig.Validate", func() {
		It("should reject an empty prefix", func() {
			c := DefaultKVConfig()
			c.Prefix = ""
			Expect(c.Validate()).To(MatchError(ContainSubstring("KV prefix is required")))
		})
	})

	Describe("EngineConfig.Validate", func() {
		It("should reject an empty task queue", func() {
			c := DefaultEngineConfig()
			c.TaskQueue = ""
			Expect(c.Validate()).To(MatchError(ContainSubstring("engine task queue is required")))
		})
	})

	Describe("CRSConfig.Validate", func() {
		It("should reject an empty presets path", func() {
			c := DefaultCRSConfig()
			c.PresetsPath = ""
			Expect(c.Validate()).To(MatchError(ContainSubstring("CRS presets path is required")))
		})
	})

	Describe("Settings.Validate", func() {
		It("should join failures from multiple sub-configs", func() {
			settings := &Settings{
				Database:    database.DefaultConfig(),
				ObjectStore: DefaultObjectStoreConfig(),
				Broker:      DefaultBrokerConfig(),
				KV:          DefaultKVConfig(),
				Engine:      DefaultEngineConfig(),
				CRS:         DefaultCRSConfig(),
			}
			settings.ObjectStore.Bucket = ""
			settings.Broker.DSN = ""

			err := settings.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("object store"))
			Expect(err.Error()).To(ContainSubstring("broker"))
		})
	})
})
