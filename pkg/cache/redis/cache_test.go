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

package redis

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	goredis "github.com/redis/go-redis/v9"

	lidarlog "github.com/lidarctl/controlplane/pkg/log"
)

var _ = Describe("Cache", func() {
	var (
		ctx       context.Context
		logger    logr.Logger
		miniRedis *miniredis.Miniredis
		client    *Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = lidarlog.NewLogger(lidarlog.Options{Development: true, Level: 1})

		var err error
		miniRedis, err = miniredis.Run()
		Expect(err).ToNot(HaveOccurred())

		client = NewClient(&goredis.Options{Addr: miniRedis.Addr()}, logger)
		Expect(client.EnsureConnection(ctx)).To(Succeed())
	})

	AfterEach(func() {
		_ = client.Close()
		miniRedis.Close()
	})

	It("should round-trip a struct value", func() {
		type payload struct {
			Status string
			Count  int
		}
		cache := NewCache[payload](client, "test", 5*time.Minute)

		value := payload{Status: "RUNNING", Count: 3}
		Expect(cache.Set(ctx, "key1", &value)).To(Succeed())

		retrieved, err := cache.Get(ctx, "key1")
		Expect(err).ToNot(HaveOccurred())
		Expect(*retrieved).To(Equal(value))
	})

	It("should return ErrCacheMiss for a missing key", func() {
		cache := NewCache[string](client, "test", 5*time.Minute)

		_, err := cache.Get(ctx, "missing")
		Expect(err).To(Equal(ErrCacheMiss))
	})

	It("should expire entries after the TTL", func() {
		cache := NewCache[string](client, "ttl-test", 1*time.Second)

		value := "expires soon"
		Expect(cache.Set(ctx, "ttl-key", &value)).To(Succeed())

		miniRedis.FastForward(2 * time.Second)

		_, err := cache.Get(ctx, "ttl-key")
		Expect(err).To(Equal(ErrCacheMiss))
	})

	It("should isolate keys by prefix", func() {
		cache1 := NewCache[string](client, "prefix1", 5*time.Minute)
		cache2 := NewCache[string](client, "prefix2", 5*time.Minute)

		v1, v2 := "cache1-value", "cache2-value"
		Expect(cache1.Set(ctx, "shared-key", &v1)).To(Succeed())
		Expect(cache2.Set(ctx, "shared-key", &v2)).To(Succeed())

		r1, err := cache1.Get(ctx, "shared-key")
		Expect(err).ToNot(HaveOccurred())
		Expect(*r1).To(Equal("cache1-value"))

		r2, err := cache2.Get(ctx, "shared-key")
		Expect(err).ToNot(HaveOccurred())
		Expect(*r2).To(Equal("cache2-value"))
	})

	It("should overwrite an existing key last-write-wins", func() {
		cache := NewCache[string](client, "overwrite", 5*time.Minute)

		first, second := "value1", "value2"
		Expect(cache.Set(ctx, "k", &first)).To(Succeed())
		Expect(cache.Set(ctx, "k", &second)).To(Succeed())

		retrieved, err := cache.Get(ctx, "k")
		Expect(err).ToNot(HaveOccurred())
		Expect(*retrieved).To(Equal("value2"))
	})

	It("should surface a connection error without panicking", func() {
		unavailable := NewClient(&goredis.Options{Addr: "localhost:9999", DialTimeout: 100 * time.Millisecond}, logger)
		defer unavailable.Close()

		cache := NewCache[string](unavailable, "test", 5*time.Minute)
		value := "test"

		err := cache.Set(ctx, "key", &value)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("redis connection failed"))

		_, err = cache.Get(ctx, "key")
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("redis connection failed"))
	})
})
