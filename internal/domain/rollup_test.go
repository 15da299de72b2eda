package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourly(values ...float64) []TimedValue {
	out := make([]TimedValue, len(values))
	for k, v := range values {
		out[k] = TimedValue{Time: baseTime.Add(time.Duration(k) * time.Hour), Value: v}
	}
	return out
}

func TestRollup_FullAndPartialWindows(t *testing.T) {
	values := make([]float64, 50)
	for k := range values {
		values[k] = 1
	}

	got, err := Rollup("Borama", hourly(values...), DefaultWindow)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, 24.0, got[0].TotalMM)
	assert.Equal(t, 24.0, got[1].TotalMM)
	assert.Equal(t, 2.0, got[2].TotalMM)

	assert.Equal(t, "hr-24", got[0].Label())
	assert.Equal(t, "hr-48", got[1].Label())
	assert.Equal(t, "hr-72", got[2].Label())
	assert.Equal(t, baseTime.Add(24*time.Hour), got[1].Start)
	for k, d := range got {
		assert.Equal(t, "Borama", d.Entity)
		assert.Equal(t, k, d.DayIndex)
	}
}

func TestRollup_PreservesTotal(t *testing.T) {
	series := hourly(0.1, 0, 2.5, 7, 0.3, 1, 0, 0, 4.2, 3.3)
	var want float64
	for _, s := range series {
		want += s.Value
	}

	got, err := Rollup("A", series, 3*time.Hour)
	require.NoError(t, err)

	var sum float64
	for _, d := range got {
		sum += d.TotalMM
	}
	assert.InDelta(t, want, sum, 1e-9)
	assert.Len(t, got, 4)
}

func TestRollup_BoundaryReadingStartsNextWindow(t *testing.T) {
	series := []TimedValue{
		{Time: baseTime, Value: 1},
		{Time: baseTime.Add(23 * time.Hour), Value: 2},
		{Time: baseTime.Add(24 * time.Hour), Value: 4},
	}
	got, err := Rollup("A", series, DefaultWindow)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3.0, got[0].TotalMM)
	assert.Equal(t, 4.0, got[1].TotalMM)
}

func TestRollup_GapAnchorsNextWindow(t *testing.T) {
	series := []TimedValue{
		{Time: baseTime, Value: 1},
		{Time: baseTime.Add(60 * time.Hour), Value: 5},
		{Time: baseTime.Add(66 * time.Hour), Value: 5},
	}
	got, err := Rollup("A", series, DefaultWindow)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, baseTime.Add(60*time.Hour), got[1].Start)
	assert.Equal(t, 10.0, got[1].TotalMM)
}

func TestRollup_NaNCountsAsZero(t *testing.T) {
	got, err := Rollup("A", hourly(1, math.NaN(), 2), DefaultWindow)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3.0, got[0].TotalMM)
}

func TestRollup_Idempotent(t *testing.T) {
	series := hourly(3, 1, 4, 1, 5, 9, 2, 6)
	first, err := Rollup("A", series, 2*time.Hour)
	require.NoError(t, err)
	second, err := Rollup("A", series, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRollup_Errors(t *testing.T) {
	t.Run("non-positive window", func(t *testing.T) {
		_, err := Rollup("A", hourly(1), 0)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("window not a whole number of hours", func(t *testing.T) {
		_, err := Rollup("A", hourly(1, 2), 30*time.Minute)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("unsorted series", func(t *testing.T) {
		series := []TimedValue{
			{Time: baseTime.Add(time.Hour), Value: 1},
			{Time: baseTime, Value: 1},
		}
		_, err := Rollup("A", series, DefaultWindow)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})

	t.Run("empty series", func(t *testing.T) {
		got, err := Rollup("A", nil, DefaultWindow)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestRollupZones_GroupsByName(t *testing.T) {
	var stats []ZonalStat
	for h := 0; h < 30; h++ {
		ts := baseTime.Add(time.Duration(h) * time.Hour)
		stats = append(stats,
			ZonalStat{Name: "Awdal", Timestamp: ts, Mean: 1},
			ZonalStat{Name: "Bari", Timestamp: ts, Mean: 0.5},
		)
	}

	got, err := RollupZones(stats, DefaultWindow)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "Awdal", got[0].Entity)
	assert.Equal(t, 24.0, got[0].TotalMM)
	assert.Equal(t, 6.0, got[1].TotalMM)
	assert.Equal(t, "Bari", got[2].Entity)
	assert.Equal(t, 12.0, got[2].TotalMM)
}

func TestRollupPoints_UsesHourlyReadingsOnly(t *testing.T) {
	readings := []ForecastReading{
		{PointID: "point_0", Timestamp: baseTime, HoursAhead: 1, RainfallMM: 1},
		{PointID: "point_0", Timestamp: baseTime, HoursAhead: 6, RainfallMM: 50},
		{PointID: "point_0", Timestamp: baseTime.Add(time.Hour), HoursAhead: 1, RainfallMM: 2},
		{PointID: "point_1", Timestamp: baseTime, HoursAhead: 1, RainfallMM: 7},
	}

	got, err := RollupPoints(readings, DefaultWindow)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "point_0", got[0].Entity)
	assert.Equal(t, 3.0, got[0].TotalMM)
	assert.Equal(t, "point_1", got[1].Entity)
	assert.Equal(t, 7.0, got[1].TotalMM)
}

func TestMultiDayTotals(t *testing.T) {
	daily := []DailyTotal{
		{Entity: "A", DayIndex: 0, HoursAhead: 24, TotalMM: 5},
		{Entity: "A", DayIndex: 1, HoursAhead: 48, TotalMM: 6},
		{Entity: "A", DayIndex: 2, HoursAhead: 72, TotalMM: 7},
		{Entity: "A", DayIndex: 3, HoursAhead: 96, TotalMM: 100},
		{Entity: "B", DayIndex: 0, HoursAhead: 24, TotalMM: 1},
	}

	got, err := MultiDayTotals(daily, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 18.0, got[0].TotalMM)
	assert.Equal(t, 72, got[0].HoursAhead)
	assert.Equal(t, 1.0, got[1].TotalMM)
	assert.Equal(t, 24, got[1].HoursAhead)

	_, err = MultiDayTotals(daily, 0)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestHoursAheadLabel(t *testing.T) {
	assert.Equal(t, "hr-24", HoursAheadLabel(24))
	assert.Equal(t, "hr-216", HoursAheadLabel(216))
}
