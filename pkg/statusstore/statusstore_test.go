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

package statusstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	goredis "github.com/redis/go-redis/v9"

	lidarredis "github.com/lidarctl/controlplane/pkg/cache/redis"
	lidarlog "github.com/lidarctl/controlplane/pkg/log"
)

func TestStatusStore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Status Store Suite")
}

var _ = Describe("Store", func() {
	var (
		ctx       context.Context
		miniRedis *miniredis.Miniredis
		client    *lidarredis.Client
		store     *Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		miniRedis, err = miniredis.Run()
		Expect(err).ToNot(HaveOccurred())

		logger := lidarlog.NewLogger(lidarlog.Options{Development: true, Level: 1})
		client = lidarredis.NewClient(&goredis.Options{Addr: miniRedis.Addr()}, logger)
		Expect(client.EnsureConnection(ctx)).To(Succeed())

		store = NewStore(client, "ingest")
	})

	AfterEach(func() {
		_ = client.Close()
		miniRedis.Close()
	})

	It("should round-trip a status write/read under the documented key shape", func() {
		status := Status{Status: "RUNNING", Payload: map[string]interface{}{"stage": "reproject"}}
		Expect(store.Put(ctx, "wf-1", status)).To(Succeed())

		exists := miniRedis.Exists("ingest:status:wf-1")
		Expect(exists).To(BeTrue())

		retrieved, err := store.Get(ctx, "wf-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(retrieved.Status).To(Equal("RUNNING"))
		Expect(retrieved.Payload).To(HaveKeyWithValue("stage", "reproject"))
	})

	It("should set the 86400s TTL on every write", func() {
		status := Status{Status: "STARTING"}
		Expect(store.Put(ctx, "wf-2", status)).To(Succeed())

		ttl := miniRedis.TTL("ingest:status:wf-2")
		Expect(ttl).To(Equal(TTL))
	})

	It("should overwrite last-write-wins on a second push", func() {
		Expect(store.Put(ctx, "wf-3", Status{Status: "STARTING"})).To(Succeed())
		Expect(store.Put(ctx, "wf-3", Status{Status: "RUNNING"})).To(Succeed())

		retrieved, err := store.Get(ctx, "wf-3")
		Expect(err).ToNot(HaveOccurred())
		Expect(retrieved.Status).To(Equal("RUNNING"))
	})

	It("should return ErrCacheMiss for an unknown workflow id", func() {
		_, err := store.Get(ctx, "never-started")
		Expect(err).To(Equal(lidarredis.ErrCacheMiss))
	})
})
