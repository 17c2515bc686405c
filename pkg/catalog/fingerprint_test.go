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
	"database/sql"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("fingerprint", func() {
	a1 := Artifact{Kind: KindRawPointCloud, Bucket: "raw", Key: "a/points.laz",
		ETag: sql.NullString{String: "etag-1", Valid: true}, SizeBytes: sql.NullInt64{Int64: 100, Valid: true}}
	a2 := Artifact{Kind: KindRawTrajectory, Bucket: "raw", Key: "a/traj.csv",
		ETag: sql.NullString{String: "etag-2", Valid: true}, SizeBytes: sql.NullInt64{Int64: 50, Valid: true}}

	It("should be invariant to input ordering", func() {
		forward := fingerprint([]Artifact{a1, a2})
		reversed := fingerprint([]Artifact{a2, a1})
		Expect(forward).To(Equal(reversed))
	})

	It("should change when any projected field changes", func() {
		base := fingerprint([]Artifact{a1, a2})

		changedETag := a1
		changedETag.ETag = sql.NullString{String: "etag-1-new", Valid: true}
		Expect(fingerprint([]Artifact{changedETag, a2})).ToNot(Equal(base))

		changedSize := a1
		changedSize.SizeBytes = sql.NullInt64{Int64: 101, Valid: true}
		Expect(fingerprint([]Artifact{changedSize, a2})).ToNot(Equal(base))

		changedKey := a1
		changedKey.Key = "a/points-v2.laz"
		Expect(fingerprint([]Artifact{changedKey, a2})).ToNot(Equal(base))
	})

	It("should be deterministic across repeated calls", func() {
		first := fingerprint([]Artifact{a1, a2})
		second := fingerprint([]Artifact{a1, a2})
		Expect(first).To(Equal(second))
	})

	It("should hash nil and an empty set to the same value", func() {
		Expect(fingerprint(nil)).To(Equal(fingerprint([]Artifact{})))
	})
})
