// Package metno retrieves precipitation forecasts from the MET Norway
// LocationForecast 2.0 API.
package metno

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/couchcryptid/raincast/internal/observability"
)

// Client implements domain.ForecastFetcher against the LocationForecast API.
type Client struct {
	userAgent    string
	forecastType string
	httpClient   *http.Client
	baseURL      string
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewClient creates a LocationForecast client. forecastType is "complete" or
// "compact". The API rejects requests without an identifying User-Agent.
func NewClient(baseURL, forecastType, userAgent string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		userAgent:    userAgent,
		forecastType: forecastType,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Response is a raw forecast document and its cache lifetime.
type Response struct {
	Body    json.RawMessage `json:"body"`
	Expires time.Time       `json:"expires"`
}

// FetchForecast retrieves and decodes the forecast for one grid point.
func (c *Client) FetchForecast(ctx context.Context, point domain.GridPoint) ([]domain.ForecastReading, error) {
	resp, err := c.Fetch(ctx, point)
	if err != nil {
		return nil, err
	}
	return ParseForecast(point, resp.Body)
}

// Fetch performs the HTTP request for one grid point. Coordinates are sent
// with four decimals, the precision the API caches on.
func (c *Client) Fetch(ctx context.Context, point domain.GridPoint) (Response, error) {
	params := url.Values{
		"lat": {strconv.FormatFloat(point.Latitude, 'f', 4, 64)},
		"lon": {strconv.FormatFloat(point.Longitude, 'f', 4, 64)},
	}
	fullURL := fmt.Sprintf("%s/%s?%s", c.baseURL, c.forecastType, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.APIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.APIRequests.WithLabelValues("error").Inc()
		return Response{}, &domain.APIError{PointID: point.ID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.APIRequests.WithLabelValues("error").Inc()
		return Response{}, &domain.APIError{PointID: point.ID, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		c.metrics.APIRequests.WithLabelValues("error").Inc()
		c.logger.Warn("forecast api error", "point_id", point.ID, "status", resp.StatusCode)
		return Response{}, &domain.APIError{PointID: point.ID, Status: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	c.metrics.APIRequests.WithLabelValues("success").Inc()

	var expires time.Time
	if h := resp.Header.Get("Expires"); h != "" {
		if t, err := http.ParseTime(h); err == nil {
			expires = t
		}
	}
	return Response{Body: body, Expires: expires}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// LocationForecast response types. Only the fields needed for precipitation
// are decoded.

type forecastDoc struct {
	Properties struct {
		Timeseries []timestep `json:"timeseries"`
	} `json:"properties"`
}

type timestep struct {
	Time time.Time                  `json:"time"`
	Data map[string]json.RawMessage `json:"data"`
}

type period struct {
	Details map[string]*float64 `json:"details"`
}

var periodKey = regexp.MustCompile(`^next_(\d+)_hours$`)

// ParseForecast extracts one reading per timestep and per next_N_hours block
// that carries precipitation_amount. HoursAhead is N. Readings are ordered by
// timestamp, then by interval length.
func ParseForecast(point domain.GridPoint, body []byte) ([]domain.ForecastReading, error) {
	var doc forecastDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &domain.APIError{PointID: point.ID, Err: fmt.Errorf("decode response: %w", err)}
	}

	var readings []domain.ForecastReading
	for _, ts := range doc.Properties.Timeseries {
		for key, raw := range ts.Data {
			m := periodKey.FindStringSubmatch(key)
			if m == nil {
				continue
			}
			hours, err := strconv.Atoi(m[1])
			if err != nil || hours <= 0 {
				continue
			}
			var p period
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, &domain.APIError{PointID: point.ID, Err: fmt.Errorf("decode %s at %s: %w", key, ts.Time, err)}
			}
			amount, ok := p.Details["precipitation_amount"]
			if !ok || amount == nil {
				continue
			}
			readings = append(readings, domain.ForecastReading{
				PointID:    point.ID,
				Latitude:   point.Latitude,
				Longitude:  point.Longitude,
				Timestamp:  ts.Time.UTC(),
				HoursAhead: float64(hours),
				RainfallMM: *amount,
			})
		}
	}

	sort.SliceStable(readings, func(i, j int) bool {
		if !readings[i].Timestamp.Equal(readings[j].Timestamp) {
			return readings[i].Timestamp.Before(readings[j].Timestamp)
		}
		return readings[i].HoursAhead < readings[j].HoursAhead
	})
	return readings, nil
}
