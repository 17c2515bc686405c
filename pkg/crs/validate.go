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
	"encoding/json"
	"strconv"
	"strings"

	apperrors "github.com/lidarctl/controlplane/internal/errors"
)

var epsgByDatum = map[string]int{
	"WGS84":    4326,
	"CGCS2000": 4490,
	"SK42":     4284,
}

// Validate resolves d into a Built record, following the exhaustive rules
// of the discriminated union. Any rule violation fails with a
// CRSValidationError naming which rule was broken; no partial record is
// ever returned.
func Validate(d Descriptor, presets map[int]RegionPreset) (Built, error) {
	switch d.Source {
	case SourceEPSG:
		return validateEPSG(d)
	case SourceWKT:
		return validateWKT(d)
	case SourceProjJSON:
		return validateProjJSON(d)
	case SourceCustom:
		return validateCustom(d, presets)
	default:
		return Built{}, apperrors.NewCRSValidationError("crs_source must be one of epsg, wkt, projjson, custom")
	}
}

func validateEPSG(d Descriptor) (Built, error) {
	if d.EPSGCode == 0 {
		return Built{}, apperrors.NewCRSValidationError("epsg source requires epsg_code")
	}
	if d.WKT != "" || d.ProjJSON != "" || d.CCRSType != "" {
		return Built{}, apperrors.NewCRSValidationError("epsg source forbids wkt/projjson/custom fields")
	}
	return Built{
		Source:           SourceEPSG,
		EPSGCode:         d.EPSGCode,
		BuiltCRSProjJSON: epsgStub(d.EPSGCode),
	}, nil
}

func validateWKT(d Descriptor) (Built, error) {
	if strings.TrimSpace(d.WKT) == "" {
		return Built{}, apperrors.NewCRSValidationError("wkt source requires wkt_str")
	}
	if d.EPSGCode != 0 || d.ProjJSON != "" || d.CCRSType != "" {
		return Built{}, apperrors.NewCRSValidationError("wkt source forbids epsg/projjson/custom fields")
	}
	return Built{
		Source:           SourceWKT,
		WKT:              d.WKT,
		BuiltCRSProjJSON: d.WKT,
	}, nil
}

func validateProjJSON(d Descriptor) (Built, error) {
	if strings.TrimSpace(d.ProjJSON) == "" {
		return Built{}, apperrors.NewCRSValidationError("projjson source requires projjson_str")
	}
	if !json.Valid([]byte(d.ProjJSON)) {
		return Built{}, apperrors.NewCRSValidationError("projjson_str must be valid JSON")
	}
	if d.EPSGCode != 0 || d.WKT != "" || d.CCRSType != "" {
		return Built{}, apperrors.NewCRSValidationError("projjson source forbids epsg/wkt/custom fields")
	}
	return Built{
		Source:           SourceProjJSON,
		ProjJSON:         d.ProjJSON,
		BuiltCRSProjJSON: d.ProjJSON,
	}, nil
}

func validateCustom(d Descriptor, presets map[int]RegionPreset) (Built, error) {
	if d.CCRSType == "" || d.Datum == "" || d.ZMode == "" || d.AxisOrder == "" {
		return Built{}, apperrors.NewCRSValidationError("custom source requires ccrs_type, datum, z_mode, axis_order")
	}

	geoidModel := ""
	if d.ZMode == ZModeOrthometric {
		if d.GeoidModel == "" {
			return Built{}, apperrors.NewCRSValidationError("z_mode=orthometric requires geoid_model")
		}
		geoidModel = d.GeoidModel
	}

	switch d.CCRSType {
	case CCRSTypeLatLon:
		return validateLatLon(d, geoidModel)
	case CCRSTypeProjection:
		return validateProjection(d, geoidModel, presets)
	default:
		return Built{}, apperrors.NewCRSValidationError("ccrs_type must be latlon or projection")
	}
}

func validateLatLon(d Descriptor, geoidModel string) (Built, error) {
	epsgCode, ok := epsgByDatum[d.Datum]
	if !ok {
		return Built{}, apperrors.NewCRSValidationError("latlon datum must be one of WGS84, CGCS2000, SK42")
	}
	if d.ZoneFamily != "" || d.UTMZone != 0 || d.MSKRegion != 0 {
		return Built{}, apperrors.NewCRSValidationError("latlon forbids projection fields")
	}

	return Built{
		Source:           SourceCustom,
		CCRSType:         CCRSTypeLatLon,
		Datum:            d.Datum,
		ZMode:            d.ZMode,
		AxisOrder:        d.AxisOrder,
		GeoidModel:       geoidModel,
		Units:            "degree",
		EPSGCode:         epsgCode,
		BuiltCRSProjJSON: epsgStub(epsgCode),
	}, nil
}

func validateProjection(d Descriptor, geoidModel string, presets map[int]RegionPreset) (Built, error) {
	if d.ZoneFamily == "" {
		return Built{}, apperrors.NewCRSValidationError("projection requires zone_family")
	}

	switch d.ZoneFamily {
	case ZoneFamilyUTM:
		return validateUTM(d, geoidModel)
	case ZoneFamilyGK:
		return Built{}, apperrors.NewCRSValidationError("GK zone_family is not supported in this version")
	case ZoneFamilyMSK:
		return validateMSK(d, geoidModel, presets)
	default:
		return Built{}, apperrors.NewCRSValidationError("zone_family must be UTM, GK, or МСК")
	}
}

func validateUTM(d Descriptor, geoidModel string) (Built, error) {
	if d.Datum != "WGS84" {
		return Built{}, apperrors.NewCRSValidationError("UTM supports only datum=WGS84")
	}
	if d.UTMZone == 0 || d.UTMHemisphere == "" {
		return Built{}, apperrors.NewCRSValidationError("UTM requires utm_zone and utm_hemisphere")
	}
	if d.UTMZone < 1 || d.UTMZone > 60 {
		return Built{}, apperrors.NewCRSValidationError("utm_zone must be in [1, 60]")
	}
	if d.UTMHemisphere != "N" && d.UTMHemisphere != "S" {
		return Built{}, apperrors.NewCRSValidationError("utm_hemisphere must be N or S")
	}

	epsgCode := 32600 + d.UTMZone
	if d.UTMHemisphere == "S" {
		epsgCode = 32700 + d.UTMZone
	}

	return Built{
		Source:           SourceCustom,
		CCRSType:         CCRSTypeProjection,
		Datum:            d.Datum,
		ZMode:            d.ZMode,
		AxisOrder:        d.AxisOrder,
		GeoidModel:       geoidModel,
		Units:            "metre",
		ZoneFamily:       ZoneFamilyUTM,
		UTMZone:          d.UTMZone,
		UTMHemisphere:    d.UTMHemisphere,
		EPSGCode:         epsgCode,
		BuiltCRSProjJSON: epsgStub(epsgCode),
	}, nil
}

func validateMSK(d Descriptor, geoidModel string, presets map[int]RegionPreset) (Built, error) {
	if d.Datum != "SK42" {
		return Built{}, apperrors.NewCRSValidationError("МСК requires datum=SK42")
	}
	if d.MSKRegion == 0 || d.MSKZone == 0 || d.MSKVariant == "" {
		return Built{}, apperrors.NewCRSValidationError("МСК requires msk_region, msk_zone, msk_variant")
	}

	region, ok := presets[d.MSKRegion]
	if !ok {
		return Built{}, apperrors.NewCRSValidationError("no preset for МСК region " + strconv.Itoa(d.MSKRegion))
	}
	zone, ok := region.Zones[d.MSKZone]
	if !ok {
		return Built{}, apperrors.NewCRSValidationError("no preset for МСК region/zone " + strconv.Itoa(d.MSKRegion) + "/" + strconv.Itoa(d.MSKZone))
	}

	lonOrigin := valueOr(d.LonOrigin, zone.LonOrigin)
	falseEasting := valueOr(d.FalseEasting, zone.FalseEasting)
	falseNorthing := valueOr(d.FalseNorthing, zone.FalseNorthing)
	latOrigin := valueOr(d.LatOrigin, 0)
	scaleFactor := valueOr(d.ScaleFactor, 1)

	projected := buildMSKProjected(lonOrigin, falseEasting, falseNorthing, latOrigin, scaleFactor)

	built := Built{
		Source:         SourceCustom,
		CCRSType:       CCRSTypeProjection,
		Datum:          d.Datum,
		ZMode:          d.ZMode,
		AxisOrder:      d.AxisOrder,
		GeoidModel:     geoidModel,
		Units:          "metre",
		ZoneFamily:     ZoneFamilyMSK,
		MSKRegion:      d.MSKRegion,
		MSKZone:        d.MSKZone,
		MSKVariant:     d.MSKVariant,
		LonOrigin:      lonOrigin,
		LatOrigin:      latOrigin,
		ScaleFactor:    scaleFactor,
		FalseEasting:   falseEasting,
		FalseNorthing:  falseNorthing,
	}

	final := projected
	if d.MSKVariant == MSKVariantGost {
		if d.HelmertConvention != "position_vector" {
			return Built{}, apperrors.NewCRSValidationError("msk_variant=gost requires helmert_convention=position_vector")
		}
		towgs84 := d.TOWGS84
		if towgs84 == "" {
			towgs84 = region.GostTOWGS84
		}
		if towgs84 == "" {
			return Built{}, apperrors.NewCRSValidationError("msk_variant=gost requires towgs84 (directly or via preset)")
		}
		dx, dy, dz, rx, ry, rz, ds, err := parseTOWGS84(towgs84)
		if err != nil {
			return Built{}, err
		}
		final = wrapBoundCRS(projected, dx, dy, dz, rx, ry, rz, ds)
		built.TOWGS84 = towgs84
		built.HelmertConvention = d.HelmertConvention
	}

	payload, err := json.Marshal(final)
	if err != nil {
		return Built{}, apperrors.Wrap(err, apperrors.ErrorTypeCRS, "marshal МСК PROJJSON")
	}
	built.BuiltCRSProjJSON = string(payload)
	return built, nil
}

func parseTOWGS84(s string) (dx, dy, dz, rx, ry, rz, ds float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 7 {
		return 0, 0, 0, 0, 0, 0, 0, apperrors.NewCRSValidationError("towgs84 must contain 7 comma-separated numbers: dx,dy,dz,rx,ry,rz,ds")
	}
	vals := make([]float64, 7)
	for i, p := range parts {
		v, perr := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if perr != nil {
			return 0, 0, 0, 0, 0, 0, 0, apperrors.NewCRSValidationError("towgs84 component is not a number: " + p)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], vals[3], vals[4], vals[5], vals[6], nil
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
