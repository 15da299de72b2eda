package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/raincast/internal/adapter/blob"
	"github.com/couchcryptid/raincast/internal/adapter/geofile"
	"github.com/couchcryptid/raincast/internal/adapter/metno"
	"github.com/couchcryptid/raincast/internal/adapter/netcdf"
	"github.com/couchcryptid/raincast/internal/adapter/parquet"
	"github.com/couchcryptid/raincast/internal/adapter/report"
	"github.com/couchcryptid/raincast/internal/config"
	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/couchcryptid/raincast/internal/observability"
	"github.com/google/uuid"
)

// TriggerPublisher sends the trigger statuses of a run downstream.
type TriggerPublisher interface {
	PublishTriggers(ctx context.Context, statuses []domain.TriggerStatus) error
}

// Options holds the optional collaborators and switches of a run.
type Options struct {
	Publisher    TriggerPublisher // nil disables publishing
	Store        blob.Store       // required when StoreInCloud is set
	StoreInCloud bool             // download inputs from and upload outputs to Store
	RemoveTemp   bool             // delete the temp directory after a successful run
}

// RunResult summarises one run.
type RunResult struct {
	RunID      string
	Stamp      string
	StartedAt  time.Time
	Points     int
	Readings   int
	Bands      int
	Files      []string
	Uploaded   []string
	Triggers   []domain.TriggerStatus
	Duration   time.Duration
	FailedStep string
}

// Pipeline runs the forecast, aggregation and trigger stages once.
type Pipeline struct {
	settings *config.Settings
	fetcher  domain.ForecastFetcher
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool

	mu       sync.Mutex
	progress domain.RunProgress
}

// New creates a Pipeline with the given fetcher and observability.
func New(settings *config.Settings, fetcher domain.ForecastFetcher, opts Options, logger *slog.Logger, metrics *observability.Metrics) (*Pipeline, error) {
	if opts.StoreInCloud && opts.Store == nil {
		return nil, errors.New("cloud storage requested without a blob store")
	}
	return &Pipeline{
		settings: settings,
		fetcher:  fetcher,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// CheckReadiness returns nil once every input of the run has been loaded,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline inputs have not been loaded yet")
	}
	return nil
}

// Progress returns a snapshot of the current or most recent run. A zero
// RunID means no run has started.
func (p *Pipeline) Progress() domain.RunProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.progress
	out.Fired = append([]string(nil), p.progress.Fired...)
	return out
}

func (p *Pipeline) track(fn func(*domain.RunProgress)) {
	p.mu.Lock()
	fn(&p.progress)
	p.mu.Unlock()
}

// run carries the state shared between the stages of one run.
type run struct {
	*RunResult
	logger   *slog.Logger
	rawDir   string
	runDir   string
	points   []domain.GridPoint
	levels   []levelZones
	readings []domain.ForecastReading
	selected []domain.ForecastReading
	raster   *domain.Raster
}

type levelZones struct {
	name  string
	zones []domain.Zone
}

type stage struct {
	name string
	fn   func(ctx context.Context, r *run) error
}

// Run executes every stage in order and stops at the first failure. The
// result is returned even on failure so callers can report what was written.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	start := domain.Now()
	res := &RunResult{
		RunID:     uuid.NewString(),
		Stamp:     domain.RunStamp(start),
		StartedAt: start,
	}
	r := &run{
		RunResult: res,
		logger:    p.logger.With("run_id", res.RunID, "stamp", res.Stamp),
		rawDir:    p.settings.RawDir(res.Stamp),
		runDir:    p.settings.RunDir(res.Stamp),
	}

	p.track(func(pr *domain.RunProgress) {
		*pr = domain.RunProgress{RunID: res.RunID, Stamp: res.Stamp, StartedAt: start}
	})
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	r.logger.Info("run started", "country", p.settings.Geo.CountryCode)

	stages := []stage{
		{"prepare", p.prepare},
		{"inputs", p.loadInputs},
		{"fetch", p.fetch},
		{"rasterize", p.rasterize},
		{"export", p.export},
		{"zonal", p.aggregate},
		{"daily_raster", p.dailyRaster},
		{"publish", p.publish},
		{"upload", p.upload},
		{"cleanup", p.cleanup},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return p.fail(r, s.name, err)
		}
		p.track(func(pr *domain.RunProgress) { pr.Stage = s.name })
		began := time.Now()
		err := s.fn(ctx, r)
		p.metrics.StageDuration.WithLabelValues(s.name).Observe(time.Since(began).Seconds())
		if err != nil {
			return p.fail(r, s.name, err)
		}
	}

	res.Duration = domain.Now().Sub(start)
	p.finish(r)
	p.metrics.RunSuccess.Set(1)
	p.metrics.LastRunTimestamp.Set(float64(domain.Now().Unix()))
	r.logger.Info("run finished", "files", len(res.Files), "duration", res.Duration)
	return res, nil
}

func (p *Pipeline) fail(r *run, step string, err error) (*RunResult, error) {
	r.FailedStep = step
	r.Duration = domain.Now().Sub(r.StartedAt)
	p.finish(r)
	p.metrics.RunSuccess.Set(0)
	p.metrics.LastRunTimestamp.Set(float64(domain.Now().Unix()))
	r.logger.Error("run failed", "stage", step, "error", err)
	return r.RunResult, fmt.Errorf("%s: %w", step, err)
}

func (p *Pipeline) finish(r *run) {
	var fired []string
	for _, t := range r.Triggers {
		if t.Triggered {
			fired = append(fired, t.Level+"|"+t.Window)
		}
	}
	p.track(func(pr *domain.RunProgress) {
		pr.FailedStep = r.FailedStep
		pr.Finished = true
		pr.Fired = fired
	})
}

// prepare creates the output tree, clears a trigger file left by an earlier
// run in the same hour, and fetches the boundary archive when running
// against cloud storage.
func (p *Pipeline) prepare(ctx context.Context, r *run) error {
	if err := p.settings.PrepareDirs(r.Stamp); err != nil {
		return err
	}
	if err := os.Remove(p.triggerPath(r)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reset trigger file: %w", err)
	}

	if !p.opts.StoreInCloud || p.settings.Cloud.InputShapeFile == "" {
		return nil
	}
	object := p.settings.CloudInputObject()
	dest := p.settings.InputPath(p.settings.Cloud.InputShapeFile)
	if err := blob.DownloadFile(ctx, p.opts.Store, object, dest); err != nil {
		return err
	}
	extracted, err := geofile.Unzip(filepath.Dir(dest))
	if err != nil {
		return err
	}
	r.logger.Info("inputs downloaded", "object", object, "extracted", len(extracted))
	return nil
}

// loadInputs reads the grid and every boundary level before any request is
// made, so a missing file fails the run early.
func (p *Pipeline) loadInputs(_ context.Context, r *run) error {
	points, err := geofile.ReadGrid(p.settings.InputPath(p.settings.Geo.Grid))
	if err != nil {
		return err
	}
	r.points = points
	r.Points = len(points)

	inputDir := p.settings.InputPath("")
	country := strings.ToLower(p.settings.Geo.CountryCode)
	for _, l := range p.settings.Geo.Levels {
		path := geofile.LevelFile(inputDir, country, l.Name)
		if l.File != "" {
			path = p.settings.InputPath(l.File)
		}
		zones, err := geofile.ReadZones(path, l.NameKey, l.CodeKey)
		if err != nil {
			return fmt.Errorf("level %s: %w", l.Name, err)
		}
		r.levels = append(r.levels, levelZones{name: l.Name, zones: zones})
		r.logger.Info("zones loaded", "level", l.Name, "zones", len(zones))
	}

	p.ready.Store(true)
	r.logger.Info("inputs loaded", "points", len(points), "levels", len(r.levels))
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, r *run) error {
	readings, err := metno.FetchAll(ctx, p.fetcher, r.points, p.metrics, r.logger)
	if err != nil {
		return err
	}
	r.readings = readings
	r.Readings = len(readings)
	return nil
}

// rasterize picks one non-overlapping series per point, clips it to the
// configured horizon and writes the hourly raster.
func (p *Pipeline) rasterize(_ context.Context, r *run) error {
	selected, err := domain.SelectSeries(r.readings, p.settings.Raster.SeriesPolicy)
	if err != nil {
		return err
	}
	if h := p.settings.Raster.MaxLeadTime; h > 0 {
		selected = domain.ClipHorizon(selected, h)
	}
	raster, err := domain.Rasterize(selected)
	if err != nil {
		return err
	}
	r.selected = selected
	r.raster = raster
	r.Bands = raster.Bands()
	p.metrics.RasterBands.Set(float64(raster.Bands()))

	labels := make([]string, raster.Bands())
	for b, t := range raster.Times {
		labels[b] = t.UTC().Format(time.RFC3339)
	}
	path := p.rawFile(r, p.settings.Output.RasterRaw)
	if err := netcdf.WriteRaster(path, raster, p.settings.Raster.Variable, labels); err != nil {
		return err
	}
	r.Files = append(r.Files, path)
	r.logger.Info("raster written", "path", path, "bands", raster.Bands(),
		"width", len(raster.X), "height", len(raster.Y), "readings", len(selected))
	return nil
}

// export writes every fetched reading, before series selection, as GeoJSON
// and Parquet.
func (p *Pipeline) export(_ context.Context, r *run) error {
	geo := p.rawFile(r, p.settings.Output.GeoJSONRaw)
	if err := geofile.WriteReadings(geo, r.readings); err != nil {
		return err
	}
	pq := p.rawFile(r, p.settings.Output.ParquetRaw)
	if err := parquet.WriteReadings(pq, r.RunID, r.readings); err != nil {
		return err
	}
	r.Files = append(r.Files, geo, pq)
	return nil
}

// aggregate computes zonal statistics, daily totals and trigger statuses for
// every boundary level.
func (p *Pipeline) aggregate(_ context.Context, r *run) error {
	s := p.settings
	opts := domain.ZonalOptions{
		MinValue:    s.Zonal.MinValue,
		MaxValue:    math.Inf(1),
		FailOnEmpty: s.Zonal.FailOnEmptyZone,
	}

	for _, l := range r.levels {
		stats, err := domain.ZonalSeries(r.raster, l.name, l.zones, s.Zonal.Percentile, opts)
		if err != nil {
			return err
		}
		p.metrics.ZonesAggregated.WithLabelValues(l.name).Add(float64(len(l.zones)))
		if empty := countEmpty(stats); empty > 0 {
			p.metrics.EmptyZones.WithLabelValues(l.name).Add(float64(empty))
			r.logger.Warn("zones without valid cells", "level", l.name, "rows", empty)
		}

		zonalPath := p.rawFile(r, fmt.Sprintf("%s_%s.csv", s.Output.CSVZonal, l.name))
		if err := report.WriteZonalCSV(zonalPath, stats, s.Zonal.Percentile); err != nil {
			return err
		}

		daily, err := domain.RollupZones(stats, s.Rollup.Window)
		if err != nil {
			return err
		}
		statuses, _, err := domain.EvaluateTriggers(l.name, daily, s.Thresholds.OneDay, s.Thresholds.MultiDay, s.Rollup.MultiDays)
		if err != nil {
			return err
		}
		for k := range statuses {
			statuses[k].RunID = r.RunID
			p.metrics.TriggerStatus.WithLabelValues(l.name, statuses[k].Window).Set(boolGauge(statuses[k].Triggered))
		}

		dailyPath := p.rawFile(r, fmt.Sprintf("%s_%s.csv", s.Output.CSVZonalDaily, l.name))
		if err := report.WriteDailyCSV(dailyPath, daily); err != nil {
			return err
		}
		if err := report.AppendTriggers(p.triggerPath(r), statuses); err != nil {
			return err
		}

		r.Files = append(r.Files, zonalPath, dailyPath)
		r.Triggers = append(r.Triggers, statuses...)
		for _, st := range statuses {
			r.logger.Info("trigger checked", "level", st.Level, "window", st.Window,
				"triggered", st.Triggered, "threshold_mm", st.Threshold,
				"max_total_mm", st.MaxTotal, "entity", st.Entity)
		}
	}
	if len(r.levels) > 0 {
		r.Files = append(r.Files, p.triggerPath(r))
	}
	return nil
}

// dailyRaster rolls each point's hourly series into windows and writes one
// band per window.
func (p *Pipeline) dailyRaster(_ context.Context, r *run) error {
	totals, err := domain.RollupPoints(r.selected, p.settings.Rollup.Window)
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		r.logger.Warn("no hourly readings, skipping daily raster")
		return nil
	}

	byID := make(map[string]domain.GridPoint, len(r.points))
	for _, pt := range r.points {
		byID[pt.ID] = pt
	}
	raster, labels, err := domain.RasterizeDaily(totals, byID)
	if err != nil {
		return err
	}

	path := filepath.Join(r.runDir, r.Stamp+"_"+p.settings.Output.RasterDaily)
	if err := netcdf.WriteRaster(path, raster, p.settings.Raster.Variable, labels); err != nil {
		return err
	}
	r.Files = append(r.Files, path)
	r.logger.Info("daily raster written", "path", path, "bands", raster.Bands())
	return nil
}

func (p *Pipeline) publish(ctx context.Context, r *run) error {
	if p.opts.Publisher == nil || len(r.Triggers) == 0 {
		return nil
	}
	if err := p.opts.Publisher.PublishTriggers(ctx, r.Triggers); err != nil {
		return err
	}
	p.metrics.TriggersPublished.Add(float64(len(r.Triggers)))
	return nil
}

func (p *Pipeline) upload(ctx context.Context, r *run) error {
	if !p.opts.StoreInCloud {
		return nil
	}
	objects, err := blob.UploadDir(ctx, p.opts.Store, r.runDir, p.settings.CloudOutputPrefix(r.Stamp), r.logger)
	r.Uploaded = objects
	return err
}

func (p *Pipeline) cleanup(_ context.Context, r *run) error {
	if !p.opts.RemoveTemp {
		return nil
	}
	dir := p.settings.TempPath()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove temp dir: %w", err)
	}
	r.logger.Info("temp dir removed", "path", dir)
	return nil
}

// rawFile is the path of a stamped file in the raw output directory.
func (p *Pipeline) rawFile(r *run, name string) string {
	return filepath.Join(r.rawDir, r.Stamp+"_"+name)
}

func (p *Pipeline) triggerPath(r *run) string {
	return p.rawFile(r, p.settings.Output.TriggerStatus)
}

func countEmpty(stats []domain.ZonalStat) int {
	n := 0
	for _, s := range stats {
		if s.Empty {
			n++
		}
	}
	return n
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
