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
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// ZonePreset holds the Transverse Mercator origin parameters for one МСК zone.
type ZonePreset struct {
	LonOrigin     float64
	FalseEasting  float64
	FalseNorthing float64
}

// RegionPreset holds every zone known for one МСК region, plus an optional
// shared GOST towgs84 transform string.
type RegionPreset struct {
	Zones       map[int]ZonePreset
	GostTOWGS84 string
}

// rawPresetsFile mirrors the YAML shape:
// region: {<region>: {gost_towgs84: str?, <zone>: {lon_0, x_0, y_0}}}.
type rawPresetsFile struct {
	Region map[string]map[string]yaml.Node `yaml:"region"`
}

// PresetLoader is a process-scoped memoized loader over one YAML file path.
// Reload creates a fresh loader so a new file content can replace the
// memoized table wholesale; the table returned by a given loader instance
// is never mutated in place once loaded.
type PresetLoader struct {
	path string
	once sync.Once
	val  map[int]RegionPreset
	err  error
}

// NewPresetLoader builds a loader bound to path. It does not read the file
// until the first call to Load.
func NewPresetLoader(path string) *PresetLoader {
	return &PresetLoader{path: path}
}

// Load parses and memoizes the presets table from disk on first call; every
// later call returns the same in-memory table and error.
func (l *PresetLoader) Load() (map[int]RegionPreset, error) {
	l.once.Do(func() {
		l.val, l.err = loadPresetsFile(l.path)
	})
	return l.val, l.err
}

func loadPresetsFile(path string) (map[int]RegionPreset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read MSK presets file: %w", err)
	}

	var file rawPresetsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse MSK presets YAML: %w", err)
	}
	if file.Region == nil {
		return nil, fmt.Errorf("MSK presets YAML: expected top-level key 'region'")
	}

	out := make(map[int]RegionPreset, len(file.Region))
	for regionKey, regionVal := range file.Region {
		regionID, err := strconv.Atoi(regionKey)
		if err != nil {
			return nil, fmt.Errorf("MSK presets YAML: region key %q is not an integer", regionKey)
		}

		preset := RegionPreset{Zones: make(map[int]ZonePreset)}
		for zoneKey, zoneNode := range regionVal {
			if zoneKey == "gost_towgs84" {
				if err := zoneNode.Decode(&preset.GostTOWGS84); err != nil {
					return nil, fmt.Errorf("MSK presets YAML: region %d gost_towgs84 must be a string", regionID)
				}
				continue
			}

			zoneID, err := strconv.Atoi(zoneKey)
			if err != nil {
				return nil, fmt.Errorf("MSK presets YAML: region %d zone key %q is not an integer", regionID, zoneKey)
			}

			var fields struct {
				LonOrigin     float64 `yaml:"lon_0"`
				FalseEasting  float64 `yaml:"x_0"`
				FalseNorthing float64 `yaml:"y_0"`
			}
			if err := zoneNode.Decode(&fields); err != nil {
				return nil, fmt.Errorf("MSK presets YAML: region %d zone %d: %w", regionID, zoneID, err)
			}
			preset.Zones[zoneID] = ZonePreset{
				LonOrigin:     fields.LonOrigin,
				FalseEasting:  fields.FalseEasting,
				FalseNorthing: fields.FalseNorthing,
			}
		}

		out[regionID] = preset
	}
	return out, nil
}
