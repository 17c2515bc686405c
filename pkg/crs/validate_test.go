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
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCRS(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "CRS Normalizer Suite")
}

func floatPtr(v float64) *float64 { return &v }

var _ = Describe("Validate", func() {
	var presets map[int]RegionPreset

	BeforeEach(func() {
		presets = map[int]RegionPreset{
			63: {
				GostTOWGS84: "23.92,-141.27,-80.9,0,0.35,0.82,-0.12",
				Zones:       map[int]ZonePreset{2: {LonOrigin: 51.0, FalseEasting: 5500000, FalseNorthing: -7311600}},
			},
		}
	})

	Describe("epsg source", func() {
		It("should build from an epsg_code", func() {
			built, err := Validate(Descriptor{Source: SourceEPSG, EPSGCode: 4326}, presets)
			Expect(err).ToNot(HaveOccurred())
			Expect(built.EPSGCode).To(Equal(4326))
			Expect(built.BuiltCRSProjJSON).ToNot(BeEmpty())
		})

		It("should reject a missing epsg_code", func() {
			_, err := Validate(Descriptor{Source: SourceEPSG}, presets)
			Expect(err).To(HaveOccurred())
		})

		It("should reject foreign fields alongside epsg_code", func() {
			_, err := Validate(Descriptor{Source: SourceEPSG, EPSGCode: 4326, WKT: "x"}, presets)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("wkt source", func() {
		It("should require wkt_str", func() {
			_, err := Validate(Descriptor{Source: SourceWKT}, presets)
			Expect(err).To(HaveOccurred())
		})

		It("should pass through a non-empty wkt_str", func() {
			built, err := Validate(Descriptor{Source: SourceWKT, WKT: "GEOGCRS[...]"}, presets)
			Expect(err).ToNot(HaveOccurred())
			Expect(built.BuiltCRSProjJSON).To(Equal("GEOGCRS[...]"))
		})
	})

	Describe("projjson source", func() {
		It("should reject invalid JSON", func() {
			_, err := Validate(Descriptor{Source: SourceProjJSON, ProjJSON: "{not json"}, presets)
			Expect(err).To(HaveOccurred())
		})

		It("should pass through valid JSON", func() {
			built, err := Validate(Descriptor{Source: SourceProjJSON, ProjJSON: `{"type":"GeodeticCRS"}`}, presets)
			Expect(err).ToNot(HaveOccurred())
			Expect(built.BuiltCRSProjJSON).To(Equal(`{"type":"GeodeticCRS"}`))
		})
	})

	Describe("custom latlon", func() {
		It("should map WGS84 to EPSG:4326", func() {
			built, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeLatLon,
				Datum: "WGS84", ZMode: ZModeEllipsoidal, AxisOrder: "ENU",
			}, presets)
			Expect(err).ToNot(HaveOccurred())
			Expect(built.EPSGCode).To(Equal(4326))
			Expect(built.Units).To(Equal("degree"))
		})

		It("should require geoid_model when z_mode=orthometric", func() {
			_, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeLatLon,
				Datum: "WGS84", ZMode: ZModeOrthometric, AxisOrder: "ENU",
			}, presets)
			Expect(err).To(HaveOccurred())
		})

		It("should reject an unsupported datum", func() {
			_, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeLatLon,
				Datum: "PZ90", ZMode: ZModeEllipsoidal, AxisOrder: "ENU",
			}, presets)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("custom projection UTM", func() {
		It("should derive EPSG:326xx for the northern hemisphere", func() {
			built, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeProjection,
				Datum: "WGS84", ZMode: ZModeEllipsoidal, AxisOrder: "ENU",
				ZoneFamily: ZoneFamilyUTM, UTMZone: 33, UTMHemisphere: "N",
			}, presets)
			Expect(err).ToNot(HaveOccurred())
			Expect(built.EPSGCode).To(Equal(32633))
		})

		It("should derive EPSG:327xx for the southern hemisphere", func() {
			built, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeProjection,
				Datum: "WGS84", ZMode: ZModeEllipsoidal, AxisOrder: "ENU",
				ZoneFamily: ZoneFamilyUTM, UTMZone: 33, UTMHemisphere: "S",
			}, presets)
			Expect(err).ToNot(HaveOccurred())
			Expect(built.EPSGCode).To(Equal(32733))
		})

		It("should reject a zone outside [1, 60]", func() {
			_, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeProjection,
				Datum: "WGS84", ZMode: ZModeEllipsoidal, AxisOrder: "ENU",
				ZoneFamily: ZoneFamilyUTM, UTMZone: 61, UTMHemisphere: "N",
			}, presets)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a non-WGS84 datum", func() {
			_, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeProjection,
				Datum: "SK42", ZMode: ZModeEllipsoidal, AxisOrder: "ENU",
				ZoneFamily: ZoneFamilyUTM, UTMZone: 33, UTMHemisphere: "N",
			}, presets)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("custom projection GK", func() {
		It("should fail explicitly since GK is unsupported", func() {
			_, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeProjection,
				Datum: "SK42", ZMode: ZModeEllipsoidal, AxisOrder: "ENU",
				ZoneFamily: ZoneFamilyGK,
			}, presets)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("custom projection МСК", func() {
		It("should build a calc variant from the preset with defaults", func() {
			built, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeProjection,
				Datum: "SK42", ZMode: ZModeEllipsoidal, AxisOrder: "ENU",
				ZoneFamily: ZoneFamilyMSK, MSKRegion: 63, MSKZone: 2, MSKVariant: MSKVariantCalc,
			}, presets)
			Expect(err).ToNot(HaveOccurred())
			Expect(built.LonOrigin).To(Equal(51.0))
			Expect(built.LatOrigin).To(Equal(0.0))
			Expect(built.ScaleFactor).To(Equal(1.0))
			Expect(built.BuiltCRSProjJSON).To(ContainSubstring("ProjectedCRS"))
		})

		It("should override the preset origin when explicitly supplied", func() {
			built, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeProjection,
				Datum: "SK42", ZMode: ZModeEllipsoidal, AxisOrder: "ENU",
				ZoneFamily: ZoneFamilyMSK, MSKRegion: 63, MSKZone: 2, MSKVariant: MSKVariantCalc,
				LonOrigin: floatPtr(52.5),
			}, presets)
			Expect(err).ToNot(HaveOccurred())
			Expect(built.LonOrigin).To(Equal(52.5))
		})

		It("should wrap a gost variant in a BoundCRS using the preset towgs84", func() {
			built, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeProjection,
				Datum: "SK42", ZMode: ZModeEllipsoidal, AxisOrder: "ENU",
				ZoneFamily: ZoneFamilyMSK, MSKRegion: 63, MSKZone: 2, MSKVariant: MSKVariantGost,
				HelmertConvention: "position_vector",
			}, presets)
			Expect(err).ToNot(HaveOccurred())
			Expect(built.TOWGS84).To(Equal("23.92,-141.27,-80.9,0,0.35,0.82,-0.12"))
			Expect(built.BuiltCRSProjJSON).To(ContainSubstring("BoundCRS"))
		})

		It("should reject gost without helmert_convention=position_vector", func() {
			_, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeProjection,
				Datum: "SK42", ZMode: ZModeEllipsoidal, AxisOrder: "ENU",
				ZoneFamily: ZoneFamilyMSK, MSKRegion: 63, MSKZone: 2, MSKVariant: MSKVariantGost,
			}, presets)
			Expect(err).To(HaveOccurred())
		})

		It("should reject an unknown region/zone", func() {
			_, err := Validate(Descriptor{
				Source: SourceCustom, CCRSType: CCRSTypeProjection,
				Datum: "SK42", ZMode: ZModeEllipsoidal, AxisOrder: "ENU",
				ZoneFamily: ZoneFamilyMSK, MSKRegion: 99, MSKZone: 1, MSKVariant: MSKVariantCalc,
			}, presets)
			Expect(err).To(HaveOccurred())
		})
	})
})
