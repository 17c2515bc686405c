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

package ingestrun

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/lidarctl/controlplane/internal/errors"
	"github.com/lidarctl/controlplane/pkg/catalog"
)

// FingerprintService wraps catalog.Repository.ComputeFingerprint with a
// singleflight group so that a burst of concurrent callers asking for
// the same (company, scan, schema_version) fingerprint during one poll
// tick collapse into a single ListRawArtifacts+hash round trip. This is
// safe because ComputeFingerprint is a pure function of the scan's raw
// artifacts: every caller that collapses onto one flight gets the exact
// answer it would have computed itself.
type FingerprintService struct {
	repo  *catalog.Repository
	group singleflight.Group
}

// NewFingerprintService builds a FingerprintService over repo.
func NewFingerprintService(repo *catalog.Repository) *FingerprintService {
	return &FingerprintService{repo: repo}
}

// Compute returns the fingerprint for scanID's current raw artifacts,
// collapsing concurrent identical requests (scoped by company and schema
// version, since two schema versions of the same scan must never share a
// singleflight result) into one database round trip.
func (s *FingerprintService) Compute(ctx context.Context, company, scanID string, schemaVersion int) (string, error) {
	key := fmt.Sprintf("%s/%s/%d", company, scanID, schemaVersion)
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.repo.ComputeFingerprint(ctx, scanID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// FindOrNone short-circuits a new ingest run when an existing terminal
// run for the same fingerprint already exists, unless force is set.
func (s *FingerprintService) FindOrNone(ctx context.Context, company, scanID string, schemaVersion int, force bool) (catalog.IngestRun, bool, error) {
	fp, err := s.Compute(ctx, company, scanID, schemaVersion)
	if err != nil {
		return catalog.IngestRun{}, false, err
	}
	existing, err := s.repo.FindIngestRun(ctx, company, scanID, schemaVersion, fp)
	if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		return catalog.IngestRun{}, false, nil
	}
	if err != nil {
		return catalog.IngestRun{}, false, err
	}
	if force {
		return existing, false, nil
	}
	return existing, true, nil
}
