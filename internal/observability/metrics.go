package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "raincast"

// Metrics holds the Prometheus counters, histograms, and gauges for a run.
type Metrics struct {
	PipelineRunning  prometheus.Gauge
	RunSuccess       prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
	StageDuration    *prometheus.HistogramVec // labels: stage

	// Forecast API metrics.
	PointsFetched   prometheus.Counter
	ReadingsFetched prometheus.Counter
	APIRequests     *prometheus.CounterVec // labels: outcome={success,error}
	APIDuration     prometheus.Histogram
	ForecastCache   *prometheus.CounterVec // labels: result={hit,miss}

	// Aggregation metrics.
	RasterBands     prometheus.Gauge
	ZonesAggregated *prometheus.CounterVec // labels: level
	EmptyZones      *prometheus.CounterVec // labels: level

	// Trigger metrics.
	TriggerStatus     *prometheus.GaugeVec // labels: level, window
	TriggersPublished prometheus.Counter
}

func newMetrics(full bool) *Metrics {
	help := func(s string) string {
		if full {
			return s
		}
		return ""
	}
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 while a run is executing, 0 otherwise."),
		}),
		RunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      help("1 if the last run completed, 0 if it failed."),
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      help("Unix time at which the last run finished."),
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      help("Duration of each pipeline stage."),
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}, []string{"stage"}),
		PointsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_fetched_total",
			Help:      help("Grid points whose forecast was retrieved."),
		}),
		ReadingsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_fetched_total",
			Help:      help("Precipitation readings decoded from forecast responses."),
		}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_requests_total",
			Help:      help("Forecast API requests by outcome."),
		}, []string{"outcome"}),
		APIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_api_duration_seconds",
			Help:      help("Forecast API request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ForecastCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_cache_total",
			Help:      help("Forecast response cache lookups by result."),
		}, []string{"result"}),
		RasterBands: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "raster_bands",
			Help:      help("Number of time bands in the forecast raster."),
		}),
		ZonesAggregated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zones_aggregated_total",
			Help:      help("Zone-band statistics computed, by boundary level."),
		}, []string{"level"}),
		EmptyZones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_zones_total",
			Help:      help("Zone-band statistics with no valid cells, by boundary level."),
		}, []string{"level"}),
		TriggerStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trigger_status",
			Help:      help("1 if the rainfall threshold is exceeded, by level and window."),
		}, []string{"level", "window"}),
		TriggersPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_published_total",
			Help:      help("Trigger statuses written to Kafka."),
		}),
	}
}

// Collectors returns every metric, for registration or a Pushgateway push.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.RunSuccess,
		m.LastRunTimestamp,
		m.StageDuration,
		m.PointsFetched,
		m.ReadingsFetched,
		m.APIRequests,
		m.APIDuration,
		m.ForecastCache,
		m.RasterBands,
		m.ZonesAggregated,
		m.EmptyZones,
		m.TriggerStatus,
		m.TriggersPublished,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.Collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
