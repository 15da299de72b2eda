package domain

import (
	"fmt"
	"sort"
	"time"
)

// Series selection policies.
const (
	PolicyHourly   = "hourly"
	PolicyStitched = "stitched"
)

// SelectSeries removes overlapping intervals so the readings of each point
// can be summed. See the package documentation for the policies. The result
// is ordered by point (first appearance) and then by timestamp.
func SelectSeries(readings []ForecastReading, policy string) ([]ForecastReading, error) {
	switch policy {
	case PolicyHourly:
		out := make([]ForecastReading, 0, len(readings))
		for _, r := range readings {
			if r.HoursAhead == 1 {
				out = append(out, r)
			}
		}
		sortByPointThenTime(out)
		return out, nil
	case PolicyStitched, "":
		return stitch(readings), nil
	default:
		return nil, fmt.Errorf("%w: unknown series policy %q", ErrInvalidInput, policy)
	}
}

func stitch(readings []ForecastReading) []ForecastReading {
	order, byPoint := groupByPoint(readings)

	out := make([]ForecastReading, 0, len(readings))
	for _, id := range order {
		candidates := byPoint[id]
		// Finest intervals first; ties by start time.
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].HoursAhead != candidates[j].HoursAhead {
				return candidates[i].HoursAhead < candidates[j].HoursAhead
			}
			return candidates[i].Timestamp.Before(candidates[j].Timestamp)
		})

		var kept []ForecastReading // sorted by start
		for _, c := range candidates {
			if overlapsAny(kept, c) {
				continue
			}
			idx := sort.Search(len(kept), func(i int) bool { return !kept[i].Timestamp.Before(c.Timestamp) })
			kept = append(kept, ForecastReading{})
			copy(kept[idx+1:], kept[idx:])
			kept[idx] = c
		}
		out = append(out, kept...)
	}
	return out
}

// overlapsAny reports whether c intersects any interval in kept, which is
// sorted by start and non-overlapping.
func overlapsAny(kept []ForecastReading, c ForecastReading) bool {
	start, end := c.Timestamp, c.End()
	idx := sort.Search(len(kept), func(i int) bool { return !kept[i].Timestamp.Before(start) })
	if idx < len(kept) && kept[idx].Timestamp.Before(end) {
		return true
	}
	if idx > 0 && kept[idx-1].End().After(start) {
		return true
	}
	return false
}

// ClipHorizon drops readings that start at or after the first timestamp plus
// horizon. A zero horizon keeps everything.
func ClipHorizon(readings []ForecastReading, horizon time.Duration) []ForecastReading {
	if horizon <= 0 || len(readings) == 0 {
		return readings
	}
	first := readings[0].Timestamp
	for _, r := range readings[1:] {
		if r.Timestamp.Before(first) {
			first = r.Timestamp
		}
	}
	limit := first.Add(horizon)

	out := make([]ForecastReading, 0, len(readings))
	for _, r := range readings {
		if r.Timestamp.Before(limit) {
			out = append(out, r)
		}
	}
	return out
}

func groupByPoint(readings []ForecastReading) ([]string, map[string][]ForecastReading) {
	var order []string
	byPoint := make(map[string][]ForecastReading)
	for _, r := range readings {
		if _, ok := byPoint[r.PointID]; !ok {
			order = append(order, r.PointID)
		}
		byPoint[r.PointID] = append(byPoint[r.PointID], r)
	}
	return order, byPoint
}

func sortByPointThenTime(readings []ForecastReading) {
	rank := make(map[string]int)
	for _, r := range readings {
		if _, ok := rank[r.PointID]; !ok {
			rank[r.PointID] = len(rank)
		}
	}
	sort.SliceStable(readings, func(i, j int) bool {
		ri, rj := rank[readings[i].PointID], rank[readings[j].PointID]
		if ri != rj {
			return ri < rj
		}
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})
}
