package parquet

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReadings() []domain.ForecastReading {
	t0 := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	return []domain.ForecastReading{
		{PointID: "point_0", Latitude: 11.5, Longitude: 43, Timestamp: t0, HoursAhead: 1, RainfallMM: 0.7},
		{PointID: "point_0", Latitude: 11.5, Longitude: 43, Timestamp: t0, HoursAhead: 6, RainfallMM: 4.5},
	}
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord("run-1", testReadings()[1])
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, "point_0", rec.PointID)
	assert.Equal(t, int64(1714132800000), rec.TimeOfPrediction)
	assert.Equal(t, 6.0, rec.HoursAhead)
	assert.Equal(t, 4.5, rec.RainInMM)
}

func TestWriteReadings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.parquet")
	require.NoError(t, WriteReadings(path, "run-1", testReadings()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	// Parquet files start and end with the PAR1 magic.
	assert.Equal(t, "PAR1", string(data[:4]))
	assert.Equal(t, "PAR1", string(data[len(data)-4:]))
}
