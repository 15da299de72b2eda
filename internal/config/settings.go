package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/couchcryptid/raincast/internal/domain"
)

// SettingsVersion is the settings schema this build understands.
const SettingsVersion = 1

// Settings is the pipeline configuration, loaded from a versioned YAML file.
type Settings struct {
	Version    int               `koanf:"version"`
	MetNo      MetNoSettings     `koanf:"metno"`
	Geo        GeoSettings       `koanf:"geo"`
	Raster     RasterSettings    `koanf:"raster"`
	Zonal      ZonalSettings     `koanf:"zonal"`
	Rollup     RollupSettings    `koanf:"rollup"`
	Thresholds ThresholdSettings `koanf:"thresholds"`
	Output     OutputSettings    `koanf:"output"`
	Cloud      CloudSettings     `koanf:"cloud"`
}

// MetNoSettings configures the forecast API client and its response cache.
type MetNoSettings struct {
	UserAgent    string        `koanf:"user_agent"`
	ForecastType string        `koanf:"forecast_type"`
	DownloadDir  string        `koanf:"download_dir"`
	DefaultTTL   time.Duration `koanf:"default_ttl"` // cache lifetime when a response has no Expires
}

// GeoSettings names the grid and the boundary levels to aggregate over.
type GeoSettings struct {
	CountryCode string          `koanf:"country_code"`
	Grid        string          `koanf:"grid"` // relative to the input dir
	Levels      []LevelSettings `koanf:"levels"`
}

// LevelSettings is one boundary level. File, NameKey and CodeKey default to
// <country>_<name>.geojson, <NAME>_EN and <NAME>_PCODE.
type LevelSettings struct {
	Name    string `koanf:"name"`
	File    string `koanf:"file"` // relative to the input dir; default <country>_<name>.geojson
	NameKey string `koanf:"name_key"`
	CodeKey string `koanf:"code_key"`
}

// RasterSettings controls series selection and the raster variable name.
type RasterSettings struct {
	Variable     string        `koanf:"variable"`
	SeriesPolicy string        `koanf:"series_policy"`
	MaxLeadTime  time.Duration `koanf:"max_lead_time"`
}

// ZonalSettings controls the zonal aggregation.
type ZonalSettings struct {
	MinValue        float64 `koanf:"min_value"`
	Percentile      float64 `koanf:"percentile"`
	FailOnEmptyZone bool    `koanf:"fail_on_empty_zone"`
}

// RollupSettings controls the daily roll-up.
type RollupSettings struct {
	Window    time.Duration `koanf:"window"`
	MultiDays int           `koanf:"multi_days"`
}

// ThresholdSettings holds the trigger thresholds in mm.
type ThresholdSettings struct {
	OneDay   float64 `koanf:"one_day"`
	MultiDay float64 `koanf:"three_day"`
}

// OutputSettings lays out the local directories and output file names.
type OutputSettings struct {
	MainDir   string `koanf:"main_dir"`
	InputDir  string `koanf:"input_dir"`
	OutputDir string `koanf:"output_dir"`
	RawDir    string `koanf:"raw_output"`
	TempDir   string `koanf:"temp_dir"`

	GeoJSONRaw    string `koanf:"geojson_raw"`
	ParquetRaw    string `koanf:"parquet_raw"`
	RasterRaw     string `koanf:"raster_raw"`
	RasterDaily   string `koanf:"raster_daily"`
	CSVZonal      string `koanf:"csv_zonal"`
	CSVZonalDaily string `koanf:"csv_zonal_daily"`
	TriggerStatus string `koanf:"trigger_status"`
}

// CloudSettings locates inputs and outputs in blob storage.
type CloudSettings struct {
	Provider       string `koanf:"provider"` // gcs or local
	LocalRoot      string `koanf:"local_root"`
	MainDir        string `koanf:"main_dir"`
	InputDir       string `koanf:"input_dir"`
	InputShapeFile string `koanf:"input_shape_file"`
}

// DefaultSettings returns the settings applied before the YAML file.
func DefaultSettings() Settings {
	return Settings{
		Version: SettingsVersion,
		MetNo: MetNoSettings{
			ForecastType: "complete",
			DownloadDir:  "temp/downloads",
			DefaultTTL:   time.Hour,
		},
		Geo: GeoSettings{
			Grid: "grid.geojson",
		},
		Raster: RasterSettings{
			Variable:     "rain_in_mm",
			SeriesPolicy: domain.PolicyStitched,
		},
		Zonal: ZonalSettings{
			MinValue:   0,
			Percentile: 90,
		},
		Rollup: RollupSettings{
			Window:    domain.DefaultWindow,
			MultiDays: 3,
		},
		Output: OutputSettings{
			MainDir:       ".",
			InputDir:      "input",
			OutputDir:     "output",
			RawDir:        "raw",
			TempDir:       "temp",
			GeoJSONRaw:    "rainfall_raw.geojson",
			ParquetRaw:    "rainfall_raw.parquet",
			RasterRaw:     "rainfall_raw.nc",
			RasterDaily:   "rainfall_daily.nc",
			CSVZonal:      "zonal_stats",
			CSVZonalDaily: "zonal_stats_daily",
			TriggerStatus: "trigger_status.txt",
		},
		Cloud: CloudSettings{
			Provider: "gcs",
			InputDir: "input",
		},
	}
}

// LoadSettings layers the defaults, the YAML file at path and RAINCAST_
// environment overrides, then validates the result. Nested keys are
// separated by a double underscore: RAINCAST_THRESHOLDS__ONE_DAY=20.
func LoadSettings(path string) (*Settings, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingInputError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("stat settings %s: %w", path, err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load settings %s: %w", path, err)
	}

	envProvider := env.Provider("RAINCAST_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "raincast_")
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load settings env: %w", err)
	}

	s := DefaultSettings()
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", path, err)
	}
	s.applyLevelDefaults()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) applyLevelDefaults() {
	for k := range s.Geo.Levels {
		l := &s.Geo.Levels[k]
		l.Name = strings.ToLower(l.Name)
		if l.NameKey == "" {
			l.NameKey = strings.ToUpper(l.Name) + "_EN"
		}
		if l.CodeKey == "" {
			l.CodeKey = strings.ToUpper(l.Name) + "_PCODE"
		}
	}
}

// Validate reports every invalid field at once.
func (s *Settings) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if s.Version != SettingsVersion {
		add("version: unsupported settings version %d, want %d", s.Version, SettingsVersion)
	}
	if s.MetNo.UserAgent == "" {
		add("metno.user_agent is required by the MET Norway terms of service")
	}
	if s.MetNo.ForecastType != "complete" && s.MetNo.ForecastType != "compact" {
		add("metno.forecast_type must be complete or compact, got %q", s.MetNo.ForecastType)
	}
	if s.MetNo.DefaultTTL < 0 {
		add("metno.default_ttl must not be negative")
	}
	if s.Geo.CountryCode == "" {
		add("geo.country_code is required")
	}
	if s.Geo.Grid == "" {
		add("geo.grid is required")
	}
	if len(s.Geo.Levels) == 0 {
		add("geo.levels must name at least one boundary level")
	}
	seen := make(map[string]bool)
	for k, l := range s.Geo.Levels {
		if l.Name == "" {
			add("geo.levels[%d].name is required", k)
		}
		if seen[l.Name] {
			add("geo.levels[%d].name %q is duplicated", k, l.Name)
		}
		seen[l.Name] = true
	}
	if _, err := domain.SelectSeries(nil, s.Raster.SeriesPolicy); err != nil {
		add("raster.series_policy: %w", err)
	}
	if s.Raster.MaxLeadTime < 0 {
		add("raster.max_lead_time must not be negative")
	}
	if s.Raster.Variable == "" {
		add("raster.variable is required")
	}
	if s.Zonal.Percentile < 0 || s.Zonal.Percentile > 100 || math.IsNaN(s.Zonal.Percentile) {
		add("zonal.percentile must be within [0, 100], got %v", s.Zonal.Percentile)
	}
	if s.Zonal.MinValue < 0 || math.IsNaN(s.Zonal.MinValue) {
		add("zonal.min_value must not be negative, got %v", s.Zonal.MinValue)
	}
	if s.Rollup.Window <= 0 || s.Rollup.Window%time.Hour != 0 {
		add("rollup.window must be a positive whole number of hours, got %s", s.Rollup.Window)
	}
	if s.Rollup.MultiDays <= 0 {
		add("rollup.multi_days must be positive")
	}
	if err := domain.ValidateThreshold(s.Thresholds.OneDay); err != nil {
		add("thresholds.one_day: %w", err)
	}
	if err := domain.ValidateThreshold(s.Thresholds.MultiDay); err != nil {
		add("thresholds.three_day: %w", err)
	}
	if s.Cloud.Provider != "gcs" && s.Cloud.Provider != "local" {
		add("cloud.provider must be gcs or local, got %q", s.Cloud.Provider)
	}
	if s.Cloud.Provider == "local" && s.Cloud.LocalRoot == "" {
		add("cloud.local_root is required for the local provider")
	}

	return result.ErrorOrNil()
}

// InputPath resolves a file name inside the local input directory.
func (s *Settings) InputPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.Output.MainDir, s.Output.InputDir, name)
}

// RunDir is the output directory of the run stamped stamp.
func (s *Settings) RunDir(stamp string) string {
	return filepath.Join(s.Output.MainDir, s.Output.OutputDir, stamp)
}

// RawDir is the raw-output directory of the run stamped stamp.
func (s *Settings) RawDir(stamp string) string {
	return filepath.Join(s.RunDir(stamp), s.Output.RawDir)
}

// CacheDir is the directory of cached forecast responses.
func (s *Settings) CacheDir() string {
	if filepath.IsAbs(s.MetNo.DownloadDir) {
		return s.MetNo.DownloadDir
	}
	return filepath.Join(s.Output.MainDir, s.MetNo.DownloadDir)
}

// TempPath is the directory removed by -remove-temp.
func (s *Settings) TempPath() string {
	if filepath.IsAbs(s.Output.TempDir) {
		return s.Output.TempDir
	}
	return filepath.Join(s.Output.MainDir, s.Output.TempDir)
}

// CloudInputObject is the object holding the zipped boundary inputs.
func (s *Settings) CloudInputObject() string {
	return strings.Join([]string{s.Cloud.MainDir, strings.ToLower(s.Geo.CountryCode), s.Cloud.InputDir, s.Cloud.InputShapeFile}, "/")
}

// CloudOutputPrefix is the object prefix of the run stamped stamp.
func (s *Settings) CloudOutputPrefix(stamp string) string {
	return strings.Join([]string{s.Cloud.MainDir, strings.ToLower(s.Geo.CountryCode), stamp}, "/")
}

// PrepareDirs creates the run, raw and cache directories.
func (s *Settings) PrepareDirs(stamp string) error {
	for _, d := range []string{s.RunDir(stamp), s.RawDir(stamp), s.CacheDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}
