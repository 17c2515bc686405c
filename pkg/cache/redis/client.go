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

// Package redis wraps github.com/redis/go-redis/v9 with lazy,
// double-checked-locked connection establishment and a small generic
// cache on top, shared by every component that needs a Redis-backed
// key/value store (the workflow status store, and any future cache).
package redis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// Client lazily connects to Redis on first use and caches the
// connected state in an atomic flag so that steady-state callers pay
// only an atomic load, not a lock, to confirm connectivity.
type Client struct {
	rdb       *redis.Client
	log       logr.Logger
	connected atomic.Bool
	mu        sync.Mutex
}

// NewClient builds a Client around opts without connecting.
func NewClient(opts *redis.Options, log logr.Logger) *Client {
	return &Client{rdb: redis.NewClient(opts), log: log}
}

// EnsureConnection pings Redis on the first call (or after a prior
// failure) and is a fast atomic-load no-op on every call after a
// successful ping.
func (c *Client) EnsureConnection(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected.Load() {
		return nil
	}

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unavailable: %w", err)
	}
	c.connected.Store(true)
	return nil
}

// GetClient returns the underlying go-redis client for direct use.
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	c.connected.Store(false)
	return c.rdb.Close()
}
