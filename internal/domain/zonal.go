package domain

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Aggregate reduces the valid cell values of a zone to one number. Fn always
// receives the values sorted ascending and is never called with an empty
// slice.
type Aggregate struct {
	Name string
	Fn   func(sorted []float64) float64
}

// Built-in aggregates.
var (
	AggMean = Aggregate{Name: "mean", Fn: func(x []float64) float64 { return stat.Mean(x, nil) }}
	AggStd  = Aggregate{Name: "std", Fn: func(x []float64) float64 { return stat.PopStdDev(x, nil) }}
	AggMax  = Aggregate{Name: "max", Fn: func(x []float64) float64 { return x[len(x)-1] }}
	AggMin  = Aggregate{Name: "min", Fn: func(x []float64) float64 { return x[0] }}
	AggSum  = Aggregate{Name: "sum", Fn: floats.Sum}
)

// AggPercentile returns the p-th percentile (0 to 100) with linear interpolation
// between order statistics.
func AggPercentile(p float64) Aggregate {
	return Aggregate{
		Name: fmt.Sprintf("q%g", p),
		Fn: func(x []float64) float64 {
			return stat.Quantile(p/100, stat.LinInterp, x, nil)
		},
	}
}

// ZonalOptions bounds the values considered valid and decides what happens
// to zones without valid cells.
type ZonalOptions struct {
	MinValue    float64
	MaxValue    float64
	FailOnEmpty bool
}

// DefaultZonalOptions accepts every non-NaN value.
func DefaultZonalOptions() ZonalOptions {
	return ZonalOptions{MinValue: math.Inf(-1), MaxValue: math.Inf(1)}
}

// ZoneAggregates holds the aggregate values of one zone for one band, in the
// order the aggregates were requested.
type ZoneAggregates struct {
	Zone   Zone
	Band   int
	Values []float64
	Count  int
}

// Empty reports whether the zone had no valid cells.
func (z ZoneAggregates) Empty() bool { return z.Count == 0 }

// ZoneMask lists the raster cells whose centre lies inside a zone.
type ZoneMask struct {
	Zone  Zone
	cells [][2]int // (j, i)
}

// Cells returns the number of masked cells.
func (m ZoneMask) Cells() int { return len(m.cells) }

// NewZoneMask selects the cells of r whose centre is inside the zone polygon
// or on its boundary. Only cells within the polygon's bounding box are tested.
func NewZoneMask(r *Raster, z Zone) ZoneMask {
	m := ZoneMask{Zone: z}
	if z.Geometry == nil {
		return m
	}
	b := z.Geometry.Bounds()
	j0 := sort.SearchFloat64s(r.Y, b.Min.Y)
	i0 := sort.SearchFloat64s(r.X, b.Min.X)
	for j := j0; j < len(r.Y) && r.Y[j] <= b.Max.Y; j++ {
		for i := i0; i < len(r.X) && r.X[i] <= b.Max.X; i++ {
			p := geom.Point{X: r.X[i], Y: r.Y[j]}
			if p.Within(z.Geometry) != geom.Outside {
				m.cells = append(m.cells, [2]int{j, i})
			}
		}
	}
	return m
}

// Aggregate applies every aggregate to the valid values of band b under the
// mask in a single pass. A mask without valid values yields NaN for every
// aggregate, or an *EmptyZoneError when opts.FailOnEmpty is set.
func (m ZoneMask) Aggregate(r *Raster, b int, aggs []Aggregate, opts ZonalOptions) (ZoneAggregates, error) {
	values := make([]float64, 0, len(m.cells))
	for _, c := range m.cells {
		v := r.At(b, c[0], c[1])
		// NaN fails both comparisons.
		if v >= opts.MinValue && v <= opts.MaxValue {
			values = append(values, v)
		}
	}

	out := ZoneAggregates{Zone: m.Zone, Band: b, Values: make([]float64, len(aggs)), Count: len(values)}
	if len(values) == 0 {
		if opts.FailOnEmpty {
			return out, &EmptyZoneError{Zone: m.Zone.Name, Band: b}
		}
		for k := range out.Values {
			out.Values[k] = math.NaN()
		}
		return out, nil
	}

	sort.Float64s(values)
	for k, agg := range aggs {
		out.Values[k] = agg.Fn(values)
	}
	return out, nil
}

// ZonalStatistics computes the requested aggregates of band b for every zone.
func ZonalStatistics(r *Raster, b int, zones []Zone, aggs []Aggregate, opts ZonalOptions) ([]ZoneAggregates, error) {
	if b < 0 || b >= r.Bands() {
		return nil, fmt.Errorf("%w: band %d out of range [0,%d)", ErrInvalidInput, b, r.Bands())
	}
	out := make([]ZoneAggregates, 0, len(zones))
	for _, z := range zones {
		agg, err := NewZoneMask(r, z).Aggregate(r, b, aggs, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

// ZonalSeries computes mean, std, max, min, the given percentile and the
// valid cell count for every band and zone. Rows are ordered by band, then by
// zone. Masks are built once per zone and reused for all bands.
func ZonalSeries(r *Raster, level string, zones []Zone, percentile float64, opts ZonalOptions) ([]ZonalStat, error) {
	aggs := []Aggregate{AggMean, AggStd, AggMax, AggMin, AggPercentile(percentile)}

	masks := make([]ZoneMask, len(zones))
	for k, z := range zones {
		masks[k] = NewZoneMask(r, z)
	}

	out := make([]ZonalStat, 0, r.Bands()*len(zones))
	for b := 0; b < r.Bands(); b++ {
		for _, m := range masks {
			agg, err := m.Aggregate(r, b, aggs, opts)
			if err != nil {
				return nil, fmt.Errorf("zonal statistics %s: %w", level, err)
			}
			out = append(out, ZonalStat{
				Level:      level,
				Name:       m.Zone.Name,
				Code:       m.Zone.Code,
				Timestamp:  r.Times[b],
				Mean:       agg.Values[0],
				Std:        agg.Values[1],
				Max:        agg.Values[2],
				Min:        agg.Values[3],
				Percentile: agg.Values[4],
				Count:      agg.Count,
				Empty:      agg.Empty(),
			})
		}
	}
	return out, nil
}
