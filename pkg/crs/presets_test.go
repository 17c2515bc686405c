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

package crs

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PresetLoader", func() {
	It("should parse region/zone/gost_towgs84 shapes and memoize the result", func() {
		loader := NewPresetLoader("testdata/msk_presets.yaml")

		presets, err := loader.Load()
		Expect(err).ToNot(HaveOccurred())
		Expect(presets).To(HaveKey(63))
		Expect(presets[63].GostTOWGS84).To(Equal("23.92,-141.27,-80.9,0,0.35,0.82,-0.12"))
		Expect(presets[63].Zones).To(HaveKey(2))
		Expect(presets[63].Zones[2].LonOrigin).To(Equal(51.0))
		Expect(presets[50].Zones[4].FalseEasting).To(Equal(4250000.0))

		again, err := loader.Load()
		Expect(err).ToNot(HaveOccurred())
		Expect(again).To(Equal(presets))
	})

	It("should error on a missing file", func() {
		loader := NewPresetLoader("testdata/does-not-exist.yaml")
		_, err := loader.Load()
		Expect(err).To(HaveOccurred())
	})
})
