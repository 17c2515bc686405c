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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Cache.Get when the key does not exist or
// has expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a type-safe, prefix-namespaced wrapper around a Client. Every
// key is stored under "<prefix>:<key>" so that independently-created
// caches sharing one Client never collide.
type Cache[T any] struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewCache builds a Cache namespaced under prefix with entries expiring
// after ttl.
func NewCache[T any](client *Client, prefix string, ttl time.Duration) *Cache[T] {
	return &Cache[T]{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache[T]) namespacedKey(key string) string {
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

// Set JSON-encodes value and stores it under key with the cache's TTL,
// last-write-wins (a plain SET, no optimistic locking).
func (c *Cache[T]) Set(ctx context.Context, key string, value *T) error {
	if err := c.client.EnsureConnection(ctx); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}

	if err := c.client.GetClient().Set(ctx, c.namespacedKey(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

// Get decodes and returns the value stored under key, or ErrCacheMiss if
// it does not exist or has expired.
func (c *Cache[T]) Get(ctx context.Context, key string) (*T, error) {
	if err := c.client.EnsureConnection(ctx); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	payload, err := c.client.GetClient().Get(ctx, c.namespacedKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return nil, fmt.Errorf("decode cache value: %w", err)
	}
	return &value, nil
}
