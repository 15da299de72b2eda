// Command genmock writes a synthetic input tree so a full run can execute
// offline: a QGIS-style point grid, two boundary levels, cached MET Norway
// responses for every grid point and a matching settings file.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -country xx
//	RAINCAST_SETTINGS=data/mock/settings.yml go run ./cmd/raincast
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/raincast/internal/adapter/geofile"
	"github.com/couchcryptid/raincast/internal/adapter/metno"
	"github.com/couchcryptid/raincast/internal/config"
	"github.com/couchcryptid/raincast/internal/domain"
)

// mockParams describes the synthetic grid and storm.
type mockParams struct {
	out     string
	country string
	lon0    float64
	lat0    float64
	step    float64
	nx, ny  int
	hours   int
	peak    float64 // mm/h at the storm centre
	start   time.Time
	expires time.Time
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	p := mockParams{}
	flag.StringVar(&p.out, "out", "data/mock", "main directory of the generated tree")
	flag.StringVar(&p.country, "country", "xx", "country code used in file names")
	flag.Float64Var(&p.lon0, "lon0", 43.0, "longitude of the first grid column")
	flag.Float64Var(&p.lat0, "lat0", 9.0, "latitude of the first grid row")
	flag.Float64Var(&p.step, "step", 0.25, "grid spacing in degrees")
	flag.IntVar(&p.nx, "nx", 8, "grid columns")
	flag.IntVar(&p.ny, "ny", 6, "grid rows")
	flag.IntVar(&p.hours, "hours", 72, "hourly forecast steps per point")
	flag.Float64Var(&p.peak, "peak", 4, "rain rate at the storm centre in mm/h")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "lifetime of the cached responses")
	flag.Parse()

	if p.nx < 2 || p.ny < 2 || p.hours < 1 || p.step <= 0 {
		flag.Usage()
		return fmt.Errorf("grid needs at least 2x2 points, a positive step and one hour")
	}
	p.country = strings.ToLower(p.country)
	now := time.Now().UTC()
	p.start = now.Truncate(time.Hour).Add(time.Hour)
	p.expires = now.Add(*ttl)

	settings := mockSettings(p)
	inputDir := settings.InputPath("")

	points := gridPoints(p)
	if err := writeJSON(filepath.Join(inputDir, settings.Geo.Grid), gridCollection(p)); err != nil {
		return fmt.Errorf("write grid: %w", err)
	}
	for _, level := range []struct {
		name   string
		splits int
	}{{"adm1", 1}, {"adm2", 2}} {
		path := geofile.LevelFile(inputDir, p.country, level.name)
		if err := writeJSON(path, zoneCollection(p, level.name, level.splits)); err != nil {
			return fmt.Errorf("write %s: %w", level.name, err)
		}
	}

	var total float64
	for _, pt := range points {
		body, sum, err := forecastBody(p, pt)
		if err != nil {
			return err
		}
		total += sum
		if err := metno.WriteCacheEntry(settings.CacheDir(), pt, body, p.expires); err != nil {
			return fmt.Errorf("cache %s: %w", pt.ID, err)
		}
	}

	if err := writeSettings(filepath.Join(p.out, "settings.yml"), settings); err != nil {
		return err
	}

	log.Printf("grid: %d points, %d hourly steps from %s", len(points), p.hours, p.start.Format(time.RFC3339))
	log.Printf("mean rainfall per point: %.2f mm over the horizon", total/float64(len(points)))
	log.Printf("cache expires %s", p.expires.Format(time.RFC3339))
	return nil
}

func mockSettings(p mockParams) config.Settings {
	s := config.DefaultSettings()
	s.MetNo.UserAgent = "raincast-genmock/1.0"
	s.Output.MainDir = p.out
	s.Geo.CountryCode = p.country
	s.Geo.Levels = []config.LevelSettings{
		{Name: "adm1", NameKey: "ADM1_EN", CodeKey: "ADM1_PCODE"},
		{Name: "adm2", NameKey: "ADM2_EN", CodeKey: "ADM2_PCODE"},
	}
	s.Thresholds.OneDay = 30
	s.Thresholds.MultiDay = 60
	s.Cloud.Provider = "local"
	s.Cloud.LocalRoot = filepath.Join(p.out, "bucket")
	s.Cloud.MainDir = "raincast"
	return s
}

func gridPoints(p mockParams) []domain.GridPoint {
	points := make([]domain.GridPoint, 0, p.nx*p.ny)
	for j := 0; j < p.ny; j++ {
		for i := 0; i < p.nx; i++ {
			lon, lat := p.lon0+float64(i)*p.step, p.lat0+float64(j)*p.step
			points = append(points, domain.NewGridPoint(fmt.Sprintf("point_%d", len(points)), lat, lon))
		}
	}
	return points
}

// rainRate is a Gaussian storm crossing the grid from west to east over the
// horizon, peaking on day two.
func rainRate(p mockParams, lat, lon float64, hour int) float64 {
	width := float64(p.nx-1) * p.step
	height := float64(p.ny-1) * p.step
	progress := float64(hour) / float64(p.hours)
	cx := p.lon0 + progress*width
	cy := p.lat0 + height/2
	sigma := math.Max(width, height) / 3
	d2 := (lon-cx)*(lon-cx) + (lat-cy)*(lat-cy)
	intensity := math.Exp(-math.Pow((progress-0.5)*3, 2))
	v := p.peak * intensity * math.Exp(-d2/(2*sigma*sigma))
	return math.Round(v*10) / 10
}

type feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   map[string]any `json:"geometry"`
}

type collection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

func polygon(x0, y0, x1, y1 float64) map[string]any {
	return map[string]any{
		"type":        "Polygon",
		"coordinates": [][][2]float64{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}},
	}
}

// gridCollection writes grid cells the way the QGIS grid tool does, with
// left/top attributes naming the query point.
func gridCollection(p mockParams) collection {
	c := collection{Type: "FeatureCollection"}
	for _, pt := range gridPoints(p) {
		left, top := pt.Longitude, pt.Latitude
		c.Features = append(c.Features, feature{
			Type: "Feature",
			Properties: map[string]any{
				"id": len(c.Features) + 1, "left": left, "top": top,
				"right": left + p.step, "bottom": top - p.step,
			},
			Geometry: polygon(left, top-p.step, left+p.step, top),
		})
	}
	return c
}

// zoneCollection splits the grid extent into splits x 2 rectangles, padded
// by half a cell so edge points fall inside.
func zoneCollection(p mockParams, level string, splits int) collection {
	pad := p.step / 2
	x0, y0 := p.lon0-pad, p.lat0-pad
	x1 := p.lon0 + float64(p.nx-1)*p.step + pad
	y1 := p.lat0 + float64(p.ny-1)*p.step + pad
	dx := (x1 - x0) / 2
	dy := (y1 - y0) / float64(splits)

	prefix := strings.ToUpper(level)
	c := collection{Type: "FeatureCollection"}
	for j := 0; j < splits; j++ {
		for i := 0; i < 2; i++ {
			n := len(c.Features) + 1
			c.Features = append(c.Features, feature{
				Type: "Feature",
				Properties: map[string]any{
					prefix + "_EN":    fmt.Sprintf("%s %s-%d", strings.ToUpper(p.country), level, n),
					prefix + "_PCODE": fmt.Sprintf("%s%d%02d", strings.ToUpper(p.country), splits, n),
				},
				Geometry: polygon(x0+float64(i)*dx, y0+float64(j)*dy, x0+float64(i+1)*dx, y0+float64(j+1)*dy),
			})
		}
	}
	return c
}

type details struct {
	Precipitation *float64 `json:"precipitation_amount,omitempty"`
}

type block struct {
	Details details `json:"details"`
}

type step struct {
	Time string           `json:"time"`
	Data map[string]block `json:"data"`
}

// forecastBody renders a LocationForecast response with hourly blocks and,
// every six hours, an overlapping 6-hour block. It returns the body and the
// hourly sum.
func forecastBody(p mockParams, pt domain.GridPoint) ([]byte, float64, error) {
	rates := make([]float64, p.hours)
	var sum float64
	for h := range rates {
		rates[h] = rainRate(p, pt.Latitude, pt.Longitude, h)
		sum += rates[h]
	}

	steps := make([]step, 0, p.hours)
	for h := 0; h < p.hours; h++ {
		hourly := rates[h]
		data := map[string]block{
			"instant":      {},
			"next_1_hours": {Details: details{Precipitation: &hourly}},
		}
		if h%6 == 0 && h+6 <= p.hours {
			six := 0.0
			for _, r := range rates[h : h+6] {
				six += r
			}
			six = math.Round(six*10) / 10
			data["next_6_hours"] = block{Details: details{Precipitation: &six}}
		}
		steps = append(steps, step{Time: p.start.Add(time.Duration(h) * time.Hour).Format(time.RFC3339), Data: data})
	}

	body, err := json.Marshal(map[string]any{
		"type":     "Feature",
		"geometry": map[string]any{"type": "Point", "coordinates": []float64{pt.Longitude, pt.Latitude}},
		"properties": map[string]any{
			"meta":       map[string]any{"updated_at": p.start.Add(-time.Hour).Format(time.RFC3339)},
			"timeseries": steps,
		},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("encode forecast %s: %w", pt.ID, err)
	}
	return body, sum, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// writeSettings renders the settings file a run against the mock tree needs.
func writeSettings(path string, s config.Settings) error {
	var b strings.Builder
	fmt.Fprintf(&b, "version: %d\n", s.Version)
	fmt.Fprintf(&b, "metno:\n  user_agent: %q\n  forecast_type: %s\n  download_dir: %s\n",
		s.MetNo.UserAgent, s.MetNo.ForecastType, s.MetNo.DownloadDir)
	fmt.Fprintf(&b, "geo:\n  country_code: %s\n  grid: %s\n  levels:\n", s.Geo.CountryCode, s.Geo.Grid)
	for _, l := range s.Geo.Levels {
		fmt.Fprintf(&b, "    - name: %s\n", l.Name)
	}
	fmt.Fprintf(&b, "thresholds:\n  one_day: %g\n  three_day: %g\n", s.Thresholds.OneDay, s.Thresholds.MultiDay)
	fmt.Fprintf(&b, "output:\n  main_dir: %s\n", s.Output.MainDir)
	fmt.Fprintf(&b, "cloud:\n  provider: %s\n  local_root: %s\n  main_dir: %s\n",
		s.Cloud.Provider, s.Cloud.LocalRoot, s.Cloud.MainDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}
