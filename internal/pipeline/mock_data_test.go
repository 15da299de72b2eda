package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/raincast/internal/config"
	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/stretchr/testify/require"
)

// Four points on a one-degree grid: lon 0 and 1, lat 0 and 1.
const gridFixture = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [0, 0]}},
    {"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [1, 0]}},
    {"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [0, 1]}},
    {"type": "Feature", "properties": {}, "geometry": {"type": "Point", "coordinates": [1, 1]}}
  ]
}`

// "All" covers the whole grid; "West" only the lon 0 column.
const adm1Fixture = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"ADM1_EN": "All", "ADM1_PCODE": "XX1"},
     "geometry": {"type": "Polygon", "coordinates": [[[-0.5, -0.5], [1.5, -0.5], [1.5, 1.5], [-0.5, 1.5], [-0.5, -0.5]]]}},
    {"type": "Feature", "properties": {"ADM1_EN": "West", "ADM1_PCODE": "XX2"},
     "geometry": {"type": "Polygon", "coordinates": [[[-0.5, -0.5], [0.5, -0.5], [0.5, 1.5], [-0.5, 1.5], [-0.5, -0.5]]]}}
  ]
}`

// "Far" contains no grid point.
const adm2Fixture = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"NAME": "East", "CODE": "XX21"},
     "geometry": {"type": "Polygon", "coordinates": [[[0.5, -0.5], [1.5, -0.5], [1.5, 1.5], [0.5, 1.5], [0.5, -0.5]]]}},
    {"type": "Feature", "properties": {"NAME": "Far", "CODE": "XX22"},
     "geometry": {"type": "Polygon", "coordinates": [[[40, 40], [41, 40], [41, 41], [40, 41], [40, 40]]]}}
  ]
}`

var forecastStart = time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)

// fakeFetcher serves a 48-hour hourly forecast per point: 1 mm/h at lon 0,
// 0.5 mm/h at lon 1. Every point also gets an overlapping 6-hour block that
// series selection must drop.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeFetcher) FetchForecast(_ context.Context, p domain.GridPoint) ([]domain.ForecastReading, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	rate := 1.0
	if p.Longitude > 0.5 {
		rate = 0.5
	}
	out := make([]domain.ForecastReading, 0, 49)
	for h := 0; h < 48; h++ {
		out = append(out, domain.ForecastReading{
			PointID:    p.ID,
			Latitude:   p.Latitude,
			Longitude:  p.Longitude,
			Timestamp:  forecastStart.Add(time.Duration(h) * time.Hour),
			HoursAhead: 1,
			RainfallMM: rate,
		})
	}
	out = append(out, domain.ForecastReading{
		PointID:    p.ID,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
		Timestamp:  forecastStart,
		HoursAhead: 6,
		RainfallMM: 99,
	})
	return out, nil
}

// testSettings lays out an input directory below a temp dir and returns
// settings pointing at it. adm1 uses the default file name, adm2 an explicit
// one.
func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.DefaultSettings()
	s.Output.MainDir = t.TempDir()
	s.MetNo.UserAgent = "raincast-test"
	s.Geo.CountryCode = "XX"
	s.Geo.Levels = []config.LevelSettings{
		{Name: "adm1", NameKey: "ADM1_EN", CodeKey: "ADM1_PCODE"},
		{Name: "adm2", File: "boundaries/adm2.geojson", NameKey: "NAME", CodeKey: "CODE"},
	}
	s.Thresholds.OneDay = 20
	s.Thresholds.MultiDay = 50
	s.Cloud.Provider = "local"
	s.Cloud.LocalRoot = t.TempDir()
	s.Cloud.MainDir = "raincast"
	require.NoError(t, s.Validate())

	writeInput(t, &s, s.Geo.Grid, gridFixture)
	writeInput(t, &s, "xx_adm1.geojson", adm1Fixture)
	writeInput(t, &s, "boundaries/adm2.geojson", adm2Fixture)
	return &s
}

func writeInput(t *testing.T, s *config.Settings, name, content string) {
	t.Helper()
	path := s.InputPath(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
