package geofile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
)

// readRows decodes a GeoJSON file, an ESRI shapefile, or a directory holding
// exactly one shapefile (an extracted archive). Shapefile geometries are
// reprojected to longitude/latitude when the shapefile carries a .prj.
// columns names the shapefile attributes to load; GeoJSON features always
// keep all their properties.
func readRows(path string, columns ...string) ([]row, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingInputError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	if info.IsDir() {
		matches, err := filepath.Glob(filepath.Join(path, "*.shp"))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", path, err)
		}
		if len(matches) != 1 {
			return nil, fmt.Errorf("%w: %s holds %d shapefiles, want 1", domain.ErrInvalidInput, path, len(matches))
		}
		return readShapefile(matches[0], columns)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return readGeoJSON(path)
	case ".shp":
		return readShapefile(path, columns)
	default:
		return nil, fmt.Errorf("%w: unsupported vector format %s", domain.ErrInvalidInput, path)
	}
}

func readShapefile(path string, columns []string) ([]row, error) {
	dec, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer dec.Close()

	trans, err := toLongLat(dec)
	if err != nil {
		return nil, fmt.Errorf("shapefile %s: %w", path, err)
	}

	var rows []row
	for {
		g, fields, more := dec.DecodeRowFields(columns...)
		if !more {
			break
		}
		if trans != nil && g != nil {
			if g, err = g.Transform(trans); err != nil {
				return nil, fmt.Errorf("reproject %s: %w", path, err)
			}
		}
		for k, v := range fields {
			fields[k] = strings.TrimSpace(strings.Trim(v, "\x00"))
		}
		rows = append(rows, row{geometry: g, fields: fields})
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("decode shapefile %s: %w", path, err)
	}
	return rows, nil
}

// toLongLat returns the transform from the shapefile's projection to
// longitude/latitude, or nil when the shapefile has no .prj.
func toLongLat(dec *shp.Decoder) (proj.Transformer, error) {
	src, err := dec.SR()
	if err != nil {
		return nil, nil //nolint:nilerr // a missing .prj means the data is already lon/lat
	}
	dst, err := proj.Parse("+proj=longlat +datum=WGS84")
	if err != nil {
		return nil, err
	}
	return src.NewTransform(dst)
}

// centre returns a representative point of g: the point itself, or the
// centre of its bounding box.
func centre(g geom.Geom) (geom.Point, bool) {
	switch x := g.(type) {
	case geom.Point:
		return x, true
	case *geom.Point:
		return *x, true
	case nil:
		return geom.Point{}, false
	default:
		b := g.Bounds()
		if b == nil {
			return geom.Point{}, false
		}
		return geom.Point{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2}, true
	}
}
