package domain

import (
	"context"
	"time"

	"github.com/ctessum/geom"
)

// GridPoint is one query location of the forecast grid.
type GridPoint struct {
	ID        string
	Latitude  float64
	Longitude float64
	Geometry  geom.Point
}

// NewGridPoint builds a GridPoint whose geometry is (lon, lat).
func NewGridPoint(id string, lat, lon float64) GridPoint {
	return GridPoint{
		ID:        id,
		Latitude:  lat,
		Longitude: lon,
		Geometry:  geom.Point{X: lon, Y: lat},
	}
}

// ForecastReading is the precipitation forecast for one point and one
// forecast interval.
type ForecastReading struct {
	PointID    string    `json:"point_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"time_of_prediction"`
	HoursAhead float64   `json:"predicted_hrs_ahead"` // length of the interval in hours
	RainfallMM float64   `json:"rain_in_mm"`
}

// End returns the end of the interval the reading covers.
func (r ForecastReading) End() time.Time {
	return r.Timestamp.Add(time.Duration(r.HoursAhead * float64(time.Hour)))
}

// ForecastFetcher retrieves the forecast readings for a single grid point.
type ForecastFetcher interface {
	FetchForecast(ctx context.Context, point GridPoint) ([]ForecastReading, error)
}

// Zone is one named polygon of an administrative or catchment boundary set.
type Zone struct {
	Name     string
	Code     string
	Geometry geom.Polygonal
}

// ZonalStat holds the aggregates of one zone for one raster band.
type ZonalStat struct {
	Level      string    `json:"level"`
	Name       string    `json:"name"`
	Code       string    `json:"pcode"`
	Timestamp  time.Time `json:"time_of_prediction"`
	Mean       float64   `json:"mean"`
	Std        float64   `json:"std"`
	Max        float64   `json:"max"`
	Min        float64   `json:"min"`
	Percentile float64   `json:"percentile"`
	Count      int       `json:"count"`
	Empty      bool      `json:"empty"`
}

// DailyTotal is the rainfall summed over one roll-up window of an entity.
type DailyTotal struct {
	Entity     string    `json:"name"`
	DayIndex   int       `json:"day_index"`
	HoursAhead int       `json:"hours_ahead"`
	Start      time.Time `json:"start"`
	TotalMM    float64   `json:"tot_rainfall_mm"`
	Trigger    bool      `json:"trigger"`
}

// Label returns the cumulative hours-ahead label of the window, e.g. "hr-48".
func (d DailyTotal) Label() string {
	return HoursAheadLabel(d.HoursAhead)
}

// Trigger windows reported in the trigger status file.
const (
	WindowOneDay   = "ONE-DAY"
	WindowThreeDay = "THREE-DAY"
)

// TriggerStatus is the outcome of one threshold check for one boundary level.
type TriggerStatus struct {
	RunID     string    `json:"run_id"`
	Level     string    `json:"level"`
	Window    string    `json:"window"`
	Threshold float64   `json:"threshold_mm"`
	Triggered bool      `json:"triggered"`
	MaxTotal  float64   `json:"max_total_mm"`
	Entity    string    `json:"entity,omitempty"` // entity holding MaxTotal
	CheckedAt time.Time `json:"checked_at"`
}

// RunProgress is a snapshot of the current or most recent run.
type RunProgress struct {
	RunID      string    `json:"run_id"`
	Stamp      string    `json:"stamp"`
	Stage      string    `json:"stage"`
	FailedStep string    `json:"failed_step,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Finished   bool      `json:"finished"`
	Fired      []string  `json:"fired,omitempty"` // level|window of triggered checks
}
