// Package geofile reads the grid of query points and the administrative
// boundary polygons from GeoJSON or ESRI shapefiles, and writes readings
// back out as GeoJSON.
package geofile

import (
	"fmt"
	"strconv"

	"github.com/couchcryptid/raincast/internal/domain"
)

// Grid attributes written by the QGIS "create grid" tool. When present they
// take precedence over the feature geometry.
const (
	gridLeft = "left"
	gridTop  = "top"
)

// ReadGrid loads the query points from path. Point features are used as-is;
// grid cells carrying left/top attributes are reduced to their top-left
// corner, other shapes to the centre of their bounding box. Points are named
// point_<index> in file order.
func ReadGrid(path string) ([]domain.GridPoint, error) {
	rows, err := readRows(path, gridLeft, gridTop)
	if err != nil {
		return nil, fmt.Errorf("read grid: %w", err)
	}

	points := make([]domain.GridPoint, 0, len(rows))
	for idx, r := range rows {
		lat, lon, err := gridLocation(r)
		if err != nil {
			return nil, fmt.Errorf("%w: grid %s record %d: %v", domain.ErrInvalidInput, path, idx, err)
		}
		points = append(points, domain.NewGridPoint(fmt.Sprintf("point_%d", idx), lat, lon))
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: grid %s has no points", domain.ErrInvalidInput, path)
	}
	return points, nil
}

func gridLocation(r row) (lat, lon float64, err error) {
	left, hasLeft := r.fields[gridLeft]
	top, hasTop := r.fields[gridTop]
	if hasLeft && hasTop && left != "" && top != "" {
		if lon, err = strconv.ParseFloat(left, 64); err != nil {
			return 0, 0, fmt.Errorf("left attribute: %w", err)
		}
		if lat, err = strconv.ParseFloat(top, 64); err != nil {
			return 0, 0, fmt.Errorf("top attribute: %w", err)
		}
		return lat, lon, nil
	}

	p, ok := centre(r.geometry)
	if !ok {
		return 0, 0, fmt.Errorf("no geometry and no %s/%s attributes", gridLeft, gridTop)
	}
	return p.Y, p.X, nil
}
