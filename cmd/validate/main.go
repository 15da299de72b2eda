// Command validate re-checks the outputs of one run: the daily totals must
// add up to the zonal series they were rolled up from, the trigger file must
// agree with the thresholds applied to the daily totals, and the rasters must
// carry one band per timestamp and window.
//
// Usage:
//
//	go run ./cmd/validate -settings settings.yml [-stamp 2024042615]
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/raincast/internal/adapter/netcdf"
	"github.com/couchcryptid/raincast/internal/adapter/report"
	"github.com/couchcryptid/raincast/internal/config"
	"github.com/couchcryptid/raincast/internal/domain"
)

// sumTolerance absorbs the rounding of CSV floats.
const sumTolerance = 1e-6

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// levelOutputs holds the parsed reports of one boundary level.
type levelOutputs struct {
	name  string
	zonal []domain.ZonalStat
	daily []domain.DailyTotal
}

func main() {
	settingsPath := flag.String("settings", "settings.yml", "path to the pipeline settings file")
	stamp := flag.String("stamp", "", "run stamp to check (default: latest run)")
	flag.Parse()

	if code := run(*settingsPath, *stamp); code != 0 {
		os.Exit(code)
	}
}

func run(settingsPath, stamp string) int {
	settings, err := config.LoadSettings(settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load settings: %v\n", err)
		return 1
	}
	if stamp == "" {
		if stamp, err = latestStamp(filepath.Join(settings.Output.MainDir, settings.Output.OutputDir)); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			return 1
		}
	}

	fmt.Println("=== Rainfall Run Validation ===")
	fmt.Printf("Run: %s\n\n", settings.RunDir(stamp))

	// ── Load run outputs ──
	rawDir := settings.RawDir(stamp)
	levels := make([]levelOutputs, 0, len(settings.Geo.Levels))
	for _, l := range settings.Geo.Levels {
		out, err := loadLevel(rawDir, stamp, settings, l.Name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load %s: %v\n", l.Name, err)
			return 1
		}
		levels = append(levels, out)
	}
	triggers, err := report.ReadTriggers(filepath.Join(rawDir, stamp+"_"+settings.Output.TriggerStatus))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load trigger file: %v\n", err)
		return 1
	}

	// ── Run validation phases ──
	phases := []*phase{
		validateSums(levels),
		validateTriggers(levels, triggers, settings),
		validateRasters(levels, settings, stamp),
	}

	// ── Report results ──
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	for _, l := range levels {
		fmt.Printf("Level %s: %d zonal rows, %d daily rows\n", l.name, len(l.zonal), len(l.daily))
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func latestStamp(outputDir string) (string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return "", fmt.Errorf("list runs: %w", err)
	}
	var stamps []string
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) == len("2006010215") {
			stamps = append(stamps, e.Name())
		}
	}
	if len(stamps) == 0 {
		return "", fmt.Errorf("no runs in %s", outputDir)
	}
	sort.Strings(stamps)
	return stamps[len(stamps)-1], nil
}

func loadLevel(rawDir, stamp string, s *config.Settings, level string) (levelOutputs, error) {
	zonal, err := report.ReadZonalCSV(filepath.Join(rawDir, fmt.Sprintf("%s_%s_%s.csv", stamp, s.Output.CSVZonal, level)))
	if err != nil {
		return levelOutputs{}, err
	}
	daily, err := report.ReadDailyCSV(filepath.Join(rawDir, fmt.Sprintf("%s_%s_%s.csv", stamp, s.Output.CSVZonalDaily, level)))
	if err != nil {
		return levelOutputs{}, err
	}
	return levelOutputs{name: level, zonal: zonal, daily: daily}, nil
}

// ── Phases ──

// validateSums checks that every zone's daily totals add up to its zonal
// mean series, with missing means counting as zero.
func validateSums(levels []levelOutputs) *phase {
	p := &phase{name: "Daily totals match zonal series"}
	for _, l := range levels {
		series := make(map[string]float64)
		for _, s := range l.zonal {
			if !math.IsNaN(s.Mean) {
				series[s.Name] += s.Mean
			}
		}
		daily := make(map[string]float64)
		for _, d := range l.daily {
			daily[d.Entity] += d.TotalMM
		}
		for name, want := range series {
			got, ok := daily[name]
			if !ok {
				p.errorf("%s/%s: zone has zonal rows but no daily totals", l.name, name)
				continue
			}
			if !floatEq(got, want) {
				p.errorf("%s/%s: daily totals sum to %.6f, zonal means to %.6f", l.name, name, got, want)
			}
		}
		for name := range daily {
			if _, ok := series[name]; !ok {
				p.errorf("%s/%s: daily totals for a zone without zonal rows", l.name, name)
			}
		}
	}
	return p
}

// validateTriggers recomputes every trigger from the daily totals and the
// configured thresholds.
func validateTriggers(levels []levelOutputs, lines []report.TriggerLine, s *config.Settings) *phase {
	p := &phase{name: "Trigger file matches thresholds"}

	recorded := make(map[string]bool, len(lines))
	for _, l := range lines {
		key := l.Level + " " + l.Window
		if _, dup := recorded[key]; dup {
			p.errorf("%s: trigger recorded twice", key)
		}
		recorded[key] = l.Triggered
	}

	for _, l := range levels {
		for _, d := range l.daily {
			if want := d.TotalMM > s.Thresholds.OneDay; d.Trigger != want {
				p.errorf("%s/%s %s: row trigger %t, total %.3f against %.3f",
					l.name, d.Entity, d.Label(), d.Trigger, d.TotalMM, s.Thresholds.OneDay)
			}
		}

		statuses, _, err := domain.EvaluateTriggers(l.name, l.daily, s.Thresholds.OneDay, s.Thresholds.MultiDay, s.Rollup.MultiDays)
		if err != nil {
			p.errorf("%s: %v", l.name, err)
			continue
		}
		for _, st := range statuses {
			key := st.Level + " " + st.Window
			got, ok := recorded[key]
			switch {
			case !ok:
				p.errorf("%s: missing from trigger file", key)
			case got != st.Triggered:
				p.errorf("%s: trigger file says %t, daily totals give %t (max %.3f at %s)",
					key, got, st.Triggered, st.MaxTotal, st.Entity)
			}
			delete(recorded, key)
		}
	}
	for key := range recorded {
		p.errorf("%s: trigger for an unconfigured level", key)
	}
	return p
}

// validateRasters checks the raw raster against the zonal timestamps and the
// daily raster's window labels.
func validateRasters(levels []levelOutputs, s *config.Settings, stamp string) *phase {
	p := &phase{name: "Raster band counts"}

	raw, _, err := netcdf.ReadRaster(filepath.Join(s.RawDir(stamp), stamp+"_"+s.Output.RasterRaw), s.Raster.Variable)
	if err != nil {
		p.errorf("raw raster: %v", err)
	} else {
		for _, l := range levels {
			times := make(map[int64]struct{})
			for _, z := range l.zonal {
				times[z.Timestamp.Unix()] = struct{}{}
			}
			if len(times) != raw.Bands() {
				p.errorf("%s: %d zonal timestamps, raw raster has %d bands", l.name, len(times), raw.Bands())
			}
		}
	}

	daily, labels, err := netcdf.ReadRaster(filepath.Join(s.RunDir(stamp), stamp+"_"+s.Output.RasterDaily), s.Raster.Variable)
	if err != nil {
		p.errorf("daily raster: %v", err)
		return p
	}
	if len(labels) != daily.Bands() {
		p.errorf("daily raster: %d labels for %d bands", len(labels), daily.Bands())
		return p
	}
	hours := int(s.Rollup.Window.Hours())
	for b, label := range labels {
		if want := domain.HoursAheadLabel((b + 1) * hours); label != want {
			p.errorf("daily raster band %d: label %q, want %q", b, label, want)
		}
	}
	return p
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) <= sumTolerance*math.Max(1, math.Abs(b))
}
