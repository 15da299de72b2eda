// Package netcdf stores forecast rasters as multi-band NetCDF classic files.
package netcdf

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Dimension and coordinate variable names, following CF conventions.
const (
	dimTime = "time"
	dimY    = "y"
	dimX    = "x"

	attrBands = "band_labels"
	timeUnits = "seconds since 1970-01-01 00:00:00 UTC"
)

// WriteRaster writes r to path as a float32 variable named variable with
// dimensions (time, y, x), plus time, y and x coordinate variables. Missing
// cells are stored as NaN, which is also the declared _FillValue.
// bandLabels, when given, name each band (e.g. "hr-24") and are stored as a
// comma-separated global attribute.
func WriteRaster(path string, r *domain.Raster, variable string, bandLabels []string) error {
	if r.Bands() == 0 {
		return fmt.Errorf("%w: raster has no bands", domain.ErrInvalidInput)
	}
	if bandLabels != nil && len(bandLabels) != r.Bands() {
		return fmt.Errorf("%w: %d band labels for %d bands", domain.ErrInvalidInput, len(bandLabels), r.Bands())
	}

	h := cdf.NewHeader([]string{dimTime, dimY, dimX}, []int{r.Bands(), len(r.Y), len(r.X)})
	h.AddAttribute("", "Conventions", "CF-1.8")
	h.AddAttribute("", "title", "Precipitation forecast")
	h.AddAttribute("", "crs", "EPSG:4326")
	if bandLabels != nil {
		h.AddAttribute("", attrBands, strings.Join(bandLabels, ","))
	}

	h.AddVariable(dimTime, []string{dimTime}, []float64{0})
	h.AddAttribute(dimTime, "units", timeUnits)
	h.AddAttribute(dimTime, "standard_name", "time")
	h.AddVariable(dimY, []string{dimY}, []float64{0})
	h.AddAttribute(dimY, "units", "degrees_north")
	h.AddAttribute(dimY, "standard_name", "latitude")
	h.AddVariable(dimX, []string{dimX}, []float64{0})
	h.AddAttribute(dimX, "units", "degrees_east")
	h.AddAttribute(dimX, "standard_name", "longitude")

	h.AddVariable(variable, []string{dimTime, dimY, dimX}, []float32{0})
	h.AddAttribute(variable, "units", "mm")
	h.AddAttribute(variable, "_FillValue", []float32{float32(math.NaN())})
	h.Define()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	nc, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("write netcdf header %s: %w", path, err)
	}

	times := make([]float64, r.Bands())
	for b, t := range r.Times {
		times[b] = float64(t.Unix())
	}
	if err := writeVar(nc, dimTime, times); err != nil {
		return err
	}
	if err := writeVar(nc, dimY, r.Y); err != nil {
		return err
	}
	if err := writeVar(nc, dimX, r.X); err != nil {
		return err
	}

	data32 := make([]float32, len(r.Data.Elements))
	for i, v := range r.Data.Elements {
		data32[i] = float32(v)
	}
	if err := writeVar(nc, variable, data32); err != nil {
		return err
	}

	if err := cdf.UpdateNumRecs(f); err != nil {
		return fmt.Errorf("finalise %s: %w", path, err)
	}
	return f.Close()
}

func writeVar(nc *cdf.File, name string, data any) error {
	end := nc.Header.Lengths(name)
	start := make([]int, len(end))
	w := nc.Writer(name, start, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write variable %s: %w", name, err)
	}
	return nil
}

// ReadRaster reads a raster written by WriteRaster. It returns the band
// labels, or nil when the file has none.
func ReadRaster(path, variable string) (*domain.Raster, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &domain.MissingInputError{Path: path, Err: err}
		}
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	nc, err := cdf.Open(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read netcdf %s: %v", domain.ErrInvalidInput, path, err)
	}

	dims := nc.Header.Lengths(variable)
	if len(dims) != 3 {
		return nil, nil, fmt.Errorf("%w: %s: variable %s has %d dimensions, want 3", domain.ErrInvalidInput, path, variable, len(dims))
	}

	secs := make([]float64, dims[0])
	ys := make([]float64, dims[1])
	xs := make([]float64, dims[2])
	for _, v := range []struct {
		name string
		dst  []float64
	}{{dimTime, secs}, {dimY, ys}, {dimX, xs}} {
		if _, err := nc.Reader(v.name, nil, nil).Read(v.dst); err != nil {
			return nil, nil, fmt.Errorf("read variable %s: %w", v.name, err)
		}
	}

	data32 := make([]float32, dims[0]*dims[1]*dims[2])
	if _, err := nc.Reader(variable, nil, nil).Read(data32); err != nil {
		return nil, nil, fmt.Errorf("read variable %s: %w", variable, err)
	}

	times := make([]time.Time, len(secs))
	for b, s := range secs {
		times[b] = time.Unix(int64(s), 0).UTC()
	}
	data := sparse.ZerosDense(dims...)
	for i, v := range data32 {
		data.Elements[i] = float64(v)
	}
	r := &domain.Raster{Times: times, X: xs, Y: ys, Data: data}

	var labels []string
	if s, ok := nc.Header.GetAttribute("", attrBands).(string); ok && s != "" {
		labels = strings.Split(s, ",")
	}
	return r, labels, nil
}
