package domain

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ctessum/sparse"
)

// Raster is a time × y × x cube of rainfall values. Each time slice is a band.
type Raster struct {
	Times []time.Time
	X     []float64 // cell-centre longitudes, ascending
	Y     []float64 // cell-centre latitudes, ascending
	Data  *sparse.DenseArray
}

// NewRaster allocates a raster filled with NaN.
func NewRaster(times []time.Time, x, y []float64) *Raster {
	data := sparse.ZerosDense(len(times), len(y), len(x))
	for i := range data.Elements {
		data.Elements[i] = math.NaN()
	}
	return &Raster{Times: times, X: x, Y: y, Data: data}
}

// Bands returns the number of time slices.
func (r *Raster) Bands() int { return len(r.Times) }

// At returns the value of band b at row j (latitude) and column i (longitude).
func (r *Raster) At(b, j, i int) float64 { return r.Data.Get(b, j, i) }

// Band returns a copy of one time slice in row-major (y, x) order.
func (r *Raster) Band(b int) []float64 {
	n := len(r.X) * len(r.Y)
	out := make([]float64, n)
	copy(out, r.Data.Elements[b*n:(b+1)*n])
	return out
}

// Rasterize reshapes a flat table of readings into a raster with one band per
// distinct timestamp. Two readings for the same cell and timestamp are an
// error; run SelectSeries first.
func Rasterize(readings []ForecastReading) (*Raster, error) {
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w: no forecast readings to rasterize", ErrInvalidInput)
	}

	times := uniqueTimes(readings)
	xs := uniqueFloats(readings, func(r ForecastReading) float64 { return r.Longitude })
	ys := uniqueFloats(readings, func(r ForecastReading) float64 { return r.Latitude })

	raster := NewRaster(times, xs, ys)
	seen := make(map[[3]int]bool, len(readings))
	for _, r := range readings {
		b := sort.Search(len(times), func(i int) bool { return !times[i].Before(r.Timestamp) })
		j := sort.SearchFloat64s(ys, r.Latitude)
		i := sort.SearchFloat64s(xs, r.Longitude)
		key := [3]int{b, j, i}
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate reading for point %s at %s",
				ErrInvalidInput, r.PointID, r.Timestamp.Format(time.RFC3339))
		}
		seen[key] = true
		raster.Data.Set(r.RainfallMM, b, j, i)
	}
	return raster, nil
}

// RasterizeDaily lays out per-point daily totals as a raster with one band
// per window. Band timestamps are the window starts of the first point.
func RasterizeDaily(totals []DailyTotal, points map[string]GridPoint) (*Raster, []string, error) {
	if len(totals) == 0 {
		return nil, nil, fmt.Errorf("%w: no daily totals to rasterize", ErrInvalidInput)
	}

	maxDay := 0
	for _, t := range totals {
		if t.DayIndex > maxDay {
			maxDay = t.DayIndex
		}
	}
	times := make([]time.Time, maxDay+1)
	labels := make([]string, maxDay+1)
	for d := range labels {
		labels[d] = HoursAheadLabel((d + 1) * 24)
	}

	readings := make([]ForecastReading, 0, len(totals))
	for _, t := range totals {
		p, ok := points[t.Entity]
		if !ok {
			return nil, nil, fmt.Errorf("%w: daily total for unknown point %s", ErrInvalidInput, t.Entity)
		}
		if times[t.DayIndex].IsZero() {
			times[t.DayIndex] = t.Start
			labels[t.DayIndex] = t.Label()
		}
		readings = append(readings, ForecastReading{
			PointID:    t.Entity,
			Latitude:   p.Latitude,
			Longitude:  p.Longitude,
			Timestamp:  time.Unix(int64(t.DayIndex), 0).UTC(),
			RainfallMM: t.TotalMM,
		})
	}

	raster, err := Rasterize(readings)
	if err != nil {
		return nil, nil, err
	}
	// Band order follows DayIndex because the placeholder timestamps do.
	bandTimes := make([]time.Time, len(raster.Times))
	bandLabels := make([]string, len(raster.Times))
	for b, ts := range raster.Times {
		day := int(ts.Unix())
		bandTimes[b] = times[day]
		bandLabels[b] = labels[day]
	}
	raster.Times = bandTimes
	return raster, bandLabels, nil
}

func uniqueTimes(readings []ForecastReading) []time.Time {
	set := make(map[int64]time.Time)
	for _, r := range readings {
		set[r.Timestamp.UnixNano()] = r.Timestamp
	}
	out := make([]time.Time, 0, len(set))
	for _, t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func uniqueFloats(readings []ForecastReading, key func(ForecastReading) float64) []float64 {
	set := make(map[float64]struct{})
	for _, r := range readings {
		set[key(r)] = struct{}{}
	}
	out := make([]float64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}
