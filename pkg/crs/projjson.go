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

import "encoding/json"

// epsgStub is the minimal PROJJSON fragment used to reference a well-known
// EPSG code. Resolving epsg/wkt/projjson sources to a fully expanded
// PROJJSON body requires a PROJ database oracle; no such Go binding exists
// anywhere in the retrieved example pack (see DESIGN.md), so those three
// sources are echoed through with an id reference rather than expanded.
func epsgStub(epsgCode int) string {
	doc := map[string]interface{}{
		"$schema": "https://proj.org/schemas/v0.7/projjson.schema.json",
		"type":    "GeodeticCRS",
		"id":      map[string]interface{}{"authority": "EPSG", "code": epsgCode},
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

// buildMSKProjected builds the ProjectedCRS PROJJSON body for a МСК zone on
// base Pulkovo-1942 (EPSG:4284), a Go transliteration of the original
// pipeline's Transverse Mercator conversion body.
func buildMSKProjected(lonOrigin, falseEasting, falseNorthing, latOrigin, scaleFactor float64) map[string]interface{} {
	return map[string]interface{}{
		"type": "ProjectedCRS",
		"name": "MSK (custom, SK42/Krassovsky)",
		"base_crs": map[string]interface{}{
			"type": "GeodeticCRS",
			"id":   map[string]interface{}{"authority": "EPSG", "code": 4284},
		},
		"conversion": map[string]interface{}{
			"type":   "Conversion",
			"name":   "Transverse Mercator",
			"method": map[string]interface{}{"name": "Transverse Mercator", "id": map[string]interface{}{"authority": "EPSG", "code": 9807}},
			"parameters": []map[string]interface{}{
				{"name": "Latitude of natural origin", "value": latOrigin, "unit": angularUnit(), "id": epsgID(8801)},
				{"name": "Longitude of natural origin", "value": lonOrigin, "unit": angularUnit(), "id": epsgID(8802)},
				{"name": "Scale factor at natural origin", "value": scaleFactor, "unit": unitlessUnit(), "id": epsgID(8805)},
				{"name": "False easting", "value": falseEasting, "unit": linearUnit(), "id": epsgID(8806)},
				{"name": "False northing", "value": falseNorthing, "unit": linearUnit(), "id": epsgID(8807)},
			},
		},
		"coordinate_system": map[string]interface{}{
			"type":    "CartesianCS",
			"subtype": "plane",
			"axis": []map[string]interface{}{
				{"name": "Easting", "abbreviation": "E", "direction": "east", "unit": linearUnit()},
				{"name": "Northing", "abbreviation": "N", "direction": "north", "unit": linearUnit()},
			},
		},
	}
}

// wrapBoundCRS wraps projected in a BoundCRS with a 7-parameter Position
// Vector Helmert transformation to EPSG:4326.
func wrapBoundCRS(projected map[string]interface{}, dx, dy, dz, rx, ry, rz, ds float64) map[string]interface{} {
	return map[string]interface{}{
		"type":       "BoundCRS",
		"source_crs": projected,
		"target_crs": map[string]interface{}{
			"type": "GeodeticCRS",
			"id":   map[string]interface{}{"authority": "EPSG", "code": 4326},
		},
		"transformation": map[string]interface{}{
			"type":   "Transformation",
			"name":   "towgs84 (7-parameter Helmert)",
			"method": map[string]interface{}{"name": "Position Vector transformation (geocentric domain)", "id": epsgID(1033)},
			"parameters": []map[string]interface{}{
				{"name": "X-axis translation", "value": dx, "unit": linearUnit()},
				{"name": "Y-axis translation", "value": dy, "unit": linearUnit()},
				{"name": "Z-axis translation", "value": dz, "unit": linearUnit()},
				{"name": "X-axis rotation", "value": rx, "unit": arcSecondUnit()},
				{"name": "Y-axis rotation", "value": ry, "unit": arcSecondUnit()},
				{"name": "Z-axis rotation", "value": rz, "unit": arcSecondUnit()},
				{"name": "Scale difference", "value": ds, "unit": ppmUnit()},
			},
		},
	}
}

func epsgID(code int) map[string]interface{} {
	return map[string]interface{}{"authority": "EPSG", "code": code}
}

func angularUnit() map[string]interface{} {
	return map[string]interface{}{"type": "AngularUnit", "name": "degree", "conversion_factor": 0.0174532925199433}
}

func linearUnit() map[string]interface{} {
	return map[string]interface{}{"type": "LinearUnit", "name": "metre", "conversion_factor": 1.0}
}

func unitlessUnit() map[string]interface{} {
	return map[string]interface{}{"type": "ScaleUnit", "name": "unity", "conversion_factor": 1.0}
}

func arcSecondUnit() map[string]interface{} {
	return map[string]interface{}{"type": "AngularUnit", "name": "arc-second", "conversion_factor": 4.84813681109536e-06}
}

func ppmUnit() map[string]interface{} {
	return map[string]interface{}{"type": "ScaleUnit", "name": "parts per million", "conversion_factor": 1e-06}
}
