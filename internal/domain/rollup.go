package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DefaultWindow is the roll-up window length.
const DefaultWindow = 24 * time.Hour

// TimedValue is one sample of an entity's time series.
type TimedValue struct {
	Time  time.Time
	Value float64
}

// HoursAheadLabel formats cumulative hours ahead, e.g. 48 -> "hr-48".
func HoursAheadLabel(hours int) string {
	return fmt.Sprintf("hr-%d", hours)
}

// Rollup sums a time-ordered series into consecutive windows anchored at its
// first timestamp. A window starting at s holds every value with
// s <= t < s+window; the next window starts at the first timestamp not
// before s+window, so gaps never produce empty windows. The last window may
// be partial. NaN values count as zero. The window must be a whole number of
// hours so that every window gets an hr-N label.
func Rollup(entity string, series []TimedValue, window time.Duration) ([]DailyTotal, error) {
	if window <= 0 || window%time.Hour != 0 {
		return nil, fmt.Errorf("%w: roll-up window must be a positive whole number of hours, got %s", ErrInvalidInput, window)
	}
	if len(series) == 0 {
		return nil, nil
	}
	if !sort.SliceIsSorted(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) }) {
		return nil, fmt.Errorf("%w: series for %s is not time-ordered", ErrInvalidInput, entity)
	}

	windowHours := int(window / time.Hour)
	var out []DailyTotal
	start := 0
	for start < len(series) {
		s := series[start].Time
		limit := s.Add(window)

		end := start
		total := 0.0
		for end < len(series) && series[end].Time.Before(limit) {
			if v := series[end].Value; !math.IsNaN(v) {
				total += v
			}
			end++
		}

		day := len(out)
		out = append(out, DailyTotal{
			Entity:     entity,
			DayIndex:   day,
			HoursAhead: (day + 1) * windowHours,
			Start:      s,
			TotalMM:    total,
		})
		start = end
	}
	return out, nil
}

// RollupZones groups zonal statistics by zone name and rolls up the zone
// mean. Zones are returned in order of first appearance.
func RollupZones(stats []ZonalStat, window time.Duration) ([]DailyTotal, error) {
	var order []string
	series := make(map[string][]TimedValue)
	for _, s := range stats {
		if _, ok := series[s.Name]; !ok {
			order = append(order, s.Name)
		}
		series[s.Name] = append(series[s.Name], TimedValue{Time: s.Timestamp, Value: s.Mean})
	}

	var out []DailyTotal
	for _, name := range order {
		sortSeries(series[name])
		totals, err := Rollup(name, series[name], window)
		if err != nil {
			return nil, err
		}
		out = append(out, totals...)
	}
	return out, nil
}

// RollupPoints rolls up the hourly readings of every grid point. Readings of
// other interval lengths are ignored so the daily totals are not inflated by
// overlapping blocks.
func RollupPoints(readings []ForecastReading, window time.Duration) ([]DailyTotal, error) {
	var order []string
	series := make(map[string][]TimedValue)
	for _, r := range readings {
		if r.HoursAhead != 1 {
			continue
		}
		if _, ok := series[r.PointID]; !ok {
			order = append(order, r.PointID)
		}
		series[r.PointID] = append(series[r.PointID], TimedValue{Time: r.Timestamp, Value: r.RainfallMM})
	}

	var out []DailyTotal
	for _, id := range order {
		sortSeries(series[id])
		totals, err := Rollup(id, series[id], window)
		if err != nil {
			return nil, err
		}
		out = append(out, totals...)
	}
	return out, nil
}

// MultiDayTotals sums the first days windows of every entity. The result has
// one row per entity with DayIndex 0 and HoursAhead covering the windows
// actually summed.
func MultiDayTotals(daily []DailyTotal, days int) ([]DailyTotal, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: multi-day window must be positive, got %d", ErrInvalidInput, days)
	}

	var order []string
	sums := make(map[string]*DailyTotal)
	for _, d := range daily {
		if d.DayIndex >= days {
			continue
		}
		acc, ok := sums[d.Entity]
		if !ok {
			order = append(order, d.Entity)
			acc = &DailyTotal{Entity: d.Entity, Start: d.Start}
			sums[d.Entity] = acc
		}
		if !math.IsNaN(d.TotalMM) {
			acc.TotalMM += d.TotalMM
		}
		if d.HoursAhead > acc.HoursAhead {
			acc.HoursAhead = d.HoursAhead
		}
	}

	out := make([]DailyTotal, 0, len(order))
	for _, e := range order {
		out = append(out, *sums[e])
	}
	return out, nil
}

func sortSeries(s []TimedValue) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })
}
