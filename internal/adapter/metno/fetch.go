package metno

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/couchcryptid/raincast/internal/observability"
)

// FetchAll queries every grid point in order, one request at a time, and
// returns the flat reading table. The first failure aborts the whole fetch.
func FetchAll(ctx context.Context, fetcher domain.ForecastFetcher, points []domain.GridPoint, metrics *observability.Metrics, logger *slog.Logger) ([]domain.ForecastReading, error) {
	var readings []domain.ForecastReading
	for k, p := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := fetcher.FetchForecast(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("fetch forecast %d/%d: %w", k+1, len(points), err)
		}
		metrics.PointsFetched.Inc()
		metrics.ReadingsFetched.Add(float64(len(got)))
		logger.Debug("forecast fetched", "point_id", p.ID, "readings", len(got))
		readings = append(readings, got...)
	}
	logger.Info("forecasts fetched", "points", len(points), "readings", len(readings))
	return readings, nil
}
