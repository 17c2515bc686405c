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

// Package statusstore is the durable, queryable side of workflow status
// reporting: one Redis key per workflow, overwritten last-write-wins on
// every status push, expiring 24 hours after the most recent write.
package statusstore

import (
	"context"
	"time"

	lidarredis "github.com/lidarctl/controlplane/pkg/cache/redis"
)

// TTL is the fixed expiry applied to every status entry: 24 hours.
const TTL = 86400 * time.Second

// Status is the value stored under a workflow's status key.
type Status struct {
	Status  string                 `json:"status"`
	Payload map[string]interface{} `json:"payload"`
}

// Store is the status-store port: one key per workflow_id, namespaced
// under a deployment-specific prefix (e.g. "lidarctl").
type Store struct {
	cache *lidarredis.Cache[Status]
}

// NewStore builds a Store on top of client, namespacing keys as
// "<prefix>:status:<workflow_id>".
func NewStore(client *lidarredis.Client, prefix string) *Store {
	return &Store{cache: lidarredis.NewCache[Status](client, prefix+":status", TTL)}
}

// Put writes (overwrites) the status for workflowID. Last write wins;
// there is no optimistic-locking or version check.
func (s *Store) Put(ctx context.Context, workflowID string, status Status) error {
	return s.cache.Set(ctx, workflowID, &status)
}

// Get returns the last-written status for workflowID, or
// lidarredis.ErrCacheMiss if it has never been written or has expired.
func (s *Store) Get(ctx context.Context, workflowID string) (Status, error) {
	status, err := s.cache.Get(ctx, workflowID)
	if err != nil {
		return Status{}, err
	}
	return *status, nil
}
