package metno

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/couchcryptid/raincast/internal/observability"
)

// rawFetcher is the part of Client the cache decorates.
type rawFetcher interface {
	Fetch(ctx context.Context, point domain.GridPoint) (Response, error)
}

// CachedFetcher wraps a Client with an on-disk response cache. A cached
// response is reused until its Expires time, judged by the domain clock, so
// reruns within the API's update interval make no requests.
type CachedFetcher struct {
	inner      rawFetcher
	dir        string
	defaultTTL time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewCachedFetcher creates a cache decorator storing responses in dir.
// defaultTTL applies to responses without an Expires header.
func NewCachedFetcher(inner rawFetcher, dir string, defaultTTL time.Duration, metrics *observability.Metrics, logger *slog.Logger) *CachedFetcher {
	return &CachedFetcher{
		inner:      inner,
		dir:        dir,
		defaultTTL: defaultTTL,
		metrics:    metrics,
		logger:     logger,
	}
}

// FetchForecast returns the readings for point, from the cache when fresh.
func (c *CachedFetcher) FetchForecast(ctx context.Context, point domain.GridPoint) ([]domain.ForecastReading, error) {
	path := c.path(point)
	if resp, ok := c.load(path); ok {
		c.metrics.ForecastCache.WithLabelValues("hit").Inc()
		return ParseForecast(point, resp.Body)
	}
	c.metrics.ForecastCache.WithLabelValues("miss").Inc()

	resp, err := c.inner.Fetch(ctx, point)
	if err != nil {
		return nil, err
	}
	if resp.Expires.IsZero() {
		resp.Expires = domain.Now().Add(c.defaultTTL)
	}
	readings, err := ParseForecast(point, resp.Body)
	if err != nil {
		return nil, err
	}
	// Only decodable responses are cached.
	if err := c.store(path, resp); err != nil {
		c.logger.Warn("forecast cache write failed", "point_id", point.ID, "error", err)
	}
	return readings, nil
}

// path names the cache file after the request coordinates.
func (c *CachedFetcher) path(point domain.GridPoint) string {
	name := fmt.Sprintf("%s_%s.json",
		strconv.FormatFloat(point.Latitude, 'f', 4, 64),
		strconv.FormatFloat(point.Longitude, 'f', 4, 64))
	return filepath.Join(c.dir, name)
}

func (c *CachedFetcher) load(path string) (Response, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("forecast cache read failed", "path", path, "error", err)
		}
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("forecast cache entry corrupt", "path", path, "error", err)
		return Response{}, false
	}
	if !domain.Now().Before(resp.Expires) {
		return Response{}, false
	}
	return resp, true
}

func (c *CachedFetcher) store(path string, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WriteCacheEntry stores body as the cached response of point until expires.
func WriteCacheEntry(dir string, point domain.GridPoint, body []byte, expires time.Time) error {
	c := &CachedFetcher{dir: dir}
	return c.store(c.path(point), Response{Body: body, Expires: expires})
}
