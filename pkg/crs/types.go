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

// Package crs resolves heterogeneous coordinate-reference-system
// descriptors into a canonical PROJJSON record. Its output is a hard
// invariant of every downstream ingest stage.
package crs

// Source enumerates the four ways a caller may describe a CRS.
type Source string

const (
	SourceEPSG     Source = "epsg"
	SourceWKT      Source = "wkt"
	SourceProjJSON Source = "projjson"
	SourceCustom   Source = "custom"
)

// CCRSType is the custom-descriptor discriminator.
type CCRSType string

const (
	CCRSTypeLatLon     CCRSType = "latlon"
	CCRSTypeProjection CCRSType = "projection"
)

// ZMode selects how vertical coordinates are interpreted.
type ZMode string

const (
	ZModeEllipsoidal ZMode = "ellipsoidal"
	ZModeOrthometric ZMode = "orthometric"
)

// ZoneFamily selects the projected grid family for ccrs_type=projection.
type ZoneFamily string

const (
	ZoneFamilyUTM ZoneFamily = "UTM"
	ZoneFamilyGK  ZoneFamily = "GK"
	ZoneFamilyMSK ZoneFamily = "МСК"
)

// MSKVariant selects whether a МСК zone carries a gost towgs84 transform.
type MSKVariant string

const (
	MSKVariantCalc MSKVariant = "calc"
	MSKVariantGost MSKVariant = "gost"
)

// Descriptor is the discriminated-union input. Only the fields relevant to
// Source (and, for custom, to CCRSType/ZoneFamily) may be populated; the
// sealed-sum-type discipline is enforced by Validate's exhaustive switch
// rather than by the Go type system, since Go has no native sum types.
type Descriptor struct {
	Source Source

	EPSGCode int
	WKT      string
	ProjJSON string

	CCRSType   CCRSType
	Datum      string
	ZMode      ZMode
	AxisOrder  string
	GeoidModel string

	ZoneFamily     ZoneFamily
	UTMZone        int
	UTMHemisphere  string
	MSKRegion      int
	MSKZone        int
	MSKVariant     MSKVariant
	LonOrigin      *float64
	LatOrigin      *float64
	ScaleFactor    *float64
	FalseEasting   *float64
	FalseNorthing  *float64
	TOWGS84        string
	HelmertConvention string
}

// Built is the normalized output record: every resolved field plus the
// canonical PROJJSON serialization downstream components consume.
type Built struct {
	Source Source

	EPSGCode int
	WKT      string
	ProjJSON string

	CCRSType   CCRSType
	Datum      string
	ZMode      ZMode
	AxisOrder  string
	GeoidModel string

	ZoneFamily    ZoneFamily
	UTMZone       int
	UTMHemisphere string

	MSKRegion      int
	MSKZone        int
	MSKVariant     MSKVariant
	LonOrigin      float64
	LatOrigin      float64
	ScaleFactor    float64
	FalseEasting   float64
	FalseNorthing  float64
	TOWGS84        string
	HelmertConvention string

	Units string

	// BuiltCRSProjJSON is the canonical serialization used by every
	// downstream component.
	BuiltCRSProjJSON string
}
