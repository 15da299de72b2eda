package geofile

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
)

// featureCollection is the subset of RFC 7946 the readers understand.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// outFeature is a feature with an encoded geometry, used for writing.
type outFeature struct {
	Type       string            `json:"type"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties map[string]any    `json:"properties"`
}

type outCollection struct {
	Type     string       `json:"type"`
	Features []outFeature `json:"features"`
}

// row is one decoded record: its geometry plus string attributes, the common
// shape of GeoJSON features and shapefile rows.
type row struct {
	geometry geom.Geom
	fields   map[string]string
}

func readGeoJSON(path string) ([]row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrInvalidInput, path, err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: %s is a %q, want a FeatureCollection", domain.ErrInvalidInput, path, fc.Type)
	}

	rows := make([]row, 0, len(fc.Features))
	for k, f := range fc.Features {
		var g geom.Geom
		if len(f.Geometry) > 0 && string(f.Geometry) != "null" {
			g, err = geojson.Decode(f.Geometry)
			if err != nil {
				return nil, fmt.Errorf("%w: %s feature %d: %v", domain.ErrInvalidInput, path, k, err)
			}
		}
		fields := make(map[string]string, len(f.Properties))
		for key, v := range f.Properties {
			fields[key] = propertyString(v)
		}
		rows = append(rows, row{geometry: g, fields: fields})
	}
	return rows, nil
}

func propertyString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// WriteReadings writes the raw forecast table as a GeoJSON FeatureCollection
// with one Point feature per reading.
func WriteReadings(path string, readings []domain.ForecastReading) error {
	fc := outCollection{Type: "FeatureCollection", Features: make([]outFeature, 0, len(readings))}
	for _, r := range readings {
		g, err := geojson.ToGeoJSON(geom.Point{X: r.Longitude, Y: r.Latitude})
		if err != nil {
			return fmt.Errorf("encode reading geometry: %w", err)
		}
		fc.Features = append(fc.Features, outFeature{
			Type:     "Feature",
			Geometry: g,
			Properties: map[string]any{
				"point_id":            r.PointID,
				"rain_in_mm":          r.RainfallMM,
				"time_of_prediction":  r.Timestamp,
				"predicted_hrs_ahead": r.HoursAhead,
				"latitude":            r.Latitude,
				"longitude":           r.Longitude,
			},
		})
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshal readings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
