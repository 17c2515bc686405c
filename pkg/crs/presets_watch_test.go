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
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WatchedPresetLoader", func() {
	It("should reload the presets table after the file is rewritten", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "msk_presets.yaml")

		initial := "region:\n  50:\n    4:\n      lon_0: 39.0\n      x_0: 4250000\n      y_0: -6875000\n"
		Expect(os.WriteFile(path, []byte(initial), 0o644)).To(Succeed())

		w, err := NewWatchedPresetLoader(path, logr.Discard())
		Expect(err).ToNot(HaveOccurred())
		defer w.Close()

		presets, err := w.Load()
		Expect(err).ToNot(HaveOccurred())
		Expect(presets[50].Zones[4].LonOrigin).To(Equal(39.0))

		updated := "region:\n  50:\n    4:\n      lon_0: 40.5\n      x_0: 4250000\n      y_0: -6875000\n"
		Expect(os.WriteFile(path, []byte(updated), 0o644)).To(Succeed())

		Eventually(func() float64 {
			p, err := w.Load()
			if err != nil {
				return 0
			}
			return p[50].Zones[4].LonOrigin
		}, 3*time.Second, 50*time.Millisecond).Should(Equal(40.5))
	})

	It("should error when constructed over a nonexistent directory", func() {
		_, err := NewWatchedPresetLoader("/nonexistent-dir-for-test/msk_presets.yaml", logr.Discard())
		Expect(err).To(HaveOccurred())
	})
})
