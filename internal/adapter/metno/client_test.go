package metno

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/couchcryptid/raincast/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUserAgent     = "raincast-test/1.0 ops@example.org"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

// sampleForecast has two timesteps. The first carries 1h, 6h and 12h
// blocks; the 12h block has no precipitation and is skipped. The second has
// only an instant block.
const sampleForecast = `{
  "type": "Feature",
  "geometry": {"type": "Point", "coordinates": [43.0, 11.5, 10]},
  "properties": {
    "meta": {"updated_at": "2024-04-26T11:00:00Z", "units": {"precipitation_amount": "mm"}},
    "timeseries": [
      {"time": "2024-04-26T12:00:00Z", "data": {
        "instant": {"details": {"air_temperature": 31.2}},
        "next_12_hours": {"summary": {"symbol_code": "cloudy"}, "details": {}},
        "next_6_hours": {"summary": {"symbol_code": "rain"}, "details": {"precipitation_amount": 4.5}},
        "next_1_hours": {"summary": {"symbol_code": "rain"}, "details": {"precipitation_amount": 0.7}}
      }},
      {"time": "2024-04-26T13:00:00Z", "data": {
        "instant": {"details": {"air_temperature": 30.8}},
        "next_1_hours": {"details": {"precipitation_amount": 0}}
      }}
    ]
  }
}`

var testPoint = domain.NewGridPoint("point_7", 11.5, 43.0)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string) *Client {
	return &Client{
		userAgent:    testUserAgent,
		forecastType: "complete",
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		baseURL:      baseURL,
		metrics:      testMetrics(),
		logger:       testLogger(),
	}
}

func TestClient_FetchForecast_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/complete", r.URL.Path)
		assert.Equal(t, "11.5000", r.URL.Query().Get("lat"))
		assert.Equal(t, "43.0000", r.URL.Query().Get("lon"))
		assert.Equal(t, testUserAgent, r.Header.Get("User-Agent"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(sampleForecast))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	readings, err := c.FetchForecast(context.Background(), testPoint)
	require.NoError(t, err)
	require.Len(t, readings, 3)

	noon := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, domain.ForecastReading{
		PointID: "point_7", Latitude: 11.5, Longitude: 43.0,
		Timestamp: noon, HoursAhead: 1, RainfallMM: 0.7,
	}, readings[0])
	assert.Equal(t, 6.0, readings[1].HoursAhead)
	assert.Equal(t, 4.5, readings[1].RainfallMM)
	assert.Equal(t, noon.Add(time.Hour), readings[2].Timestamp)
	assert.Equal(t, 0.0, readings[2].RainfallMM)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.APIRequests.WithLabelValues("success")))
}

func TestClient_Fetch_Expires(t *testing.T) {
	expires := time.Date(2024, 4, 26, 12, 30, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Expires", expires.Format(http.TimeFormat))
		_, _ = w.Write([]byte(sampleForecast))
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).Fetch(context.Background(), testPoint)
	require.NoError(t, err)
	assert.True(t, expires.Equal(resp.Expires))
}

func TestClient_FetchForecast_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"missing User-Agent"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchForecast(context.Background(), testPoint)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAPIFailure))

	var apiErr *domain.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "point_7", apiErr.PointID)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.APIRequests.WithLabelValues("error")))
}

func TestClient_FetchForecast_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	_, err := c.FetchForecast(context.Background(), testPoint)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAPIFailure))
}

func TestClient_FetchForecast_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"properties": `))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchForecast(context.Background(), testPoint)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAPIFailure))
}

func TestParseForecast_NoPrecipitation(t *testing.T) {
	readings, err := ParseForecast(testPoint, []byte(`{"properties":{"timeseries":[
		{"time":"2024-04-26T12:00:00Z","data":{"instant":{"details":{}}}}]}}`))
	require.NoError(t, err)
	assert.Empty(t, readings)
}
