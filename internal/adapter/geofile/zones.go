package geofile

import (
	"fmt"
	"path/filepath"

	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/ctessum/geom"
)

// ReadZones loads the polygons of one boundary level. nameKey and codeKey
// name the attributes holding the zone name and its code (e.g. ADM2_EN and
// ADM2_PCODE). Features that are not polygons are rejected.
func ReadZones(path, nameKey, codeKey string) ([]domain.Zone, error) {
	rows, err := readRows(path, nameKey, codeKey)
	if err != nil {
		return nil, fmt.Errorf("read zones: %w", err)
	}

	zones := make([]domain.Zone, 0, len(rows))
	for idx, r := range rows {
		poly, ok := r.geometry.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("%w: zones %s record %d is %T, want a polygon",
				domain.ErrInvalidInput, path, idx, r.geometry)
		}
		name := r.fields[nameKey]
		if name == "" {
			return nil, fmt.Errorf("%w: zones %s record %d has no %s attribute",
				domain.ErrInvalidInput, path, idx, nameKey)
		}
		zones = append(zones, domain.Zone{Name: name, Code: r.fields[codeKey], Geometry: poly})
	}
	if len(zones) == 0 {
		return nil, fmt.Errorf("%w: zones %s has no polygons", domain.ErrInvalidInput, path)
	}
	return zones, nil
}

// LevelFile returns the boundary file of one level, laid out as
// <dir>/<country>_<level>.geojson.
func LevelFile(dir, country, level string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.geojson", country, level))
}
