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

package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// fingerprintField is the projection of a raw artifact used to compute an
// ingest run's input fingerprint: (kind, bucket, key, etag, size_bytes).
// Fields are declared in sorted-key order (bucket, etag, key, kind,
// size_bytes) so encoding/json's declaration-order emission doubles as
// the §4.2 sorted-keys serialization without a second encoding pass.
type fingerprintField struct {
	Bucket    string `json:"bucket"`
	ETag      string `json:"etag"`
	Key       string `json:"key"`
	Kind      string `json:"kind"`
	SizeBytes int64  `json:"size_bytes"`
}

// fingerprint is a pure function of the projected raw-artifact set: sorted
// by (kind, bucket, key), serialized with sorted keys and ",:" separators,
// hashed with SHA-256. Reordering the input artifacts never changes the
// result; changing any projected field always does.
func fingerprint(artifacts []Artifact) string {
	fields := make([]fingerprintField, 0, len(artifacts))
	for _, a := range artifacts {
		fields = append(fields, fingerprintField{
			Bucket:    a.Bucket,
			ETag:      a.ETag.String,
			Key:       a.Key,
			Kind:      a.Kind,
			SizeBytes: a.SizeBytes.Int64,
		})
	}

	sort.Slice(fields, func(i, j int) bool {
		if fields[i].Kind != fields[j].Kind {
			return fields[i].Kind < fields[j].Kind
		}
		if fields[i].Bucket != fields[j].Bucket {
			return fields[i].Bucket < fields[j].Bucket
		}
		return fields[i].Key < fields[j].Key
	})

	// encoding/json emits struct fields in declaration order, which
	// fingerprintField declares alphabetically, and without insignificant
	// whitespace, matching the §4.2 sorted-keys/",:" separator requirement.
	payload, _ := json.Marshal(fields)

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
