package netcdf

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/raincast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRaster() *domain.Raster {
	t0 := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	r := domain.NewRaster([]time.Time{t0, t0.Add(time.Hour)}, []float64{43, 43.5, 44}, []float64{11, 11.5})
	for b := 0; b < 2; b++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 3; i++ {
				if b == 1 && j == 1 && i == 2 {
					continue // left as NaN
				}
				r.Data.Set(float64(b*100+j*10+i)+0.5, b, j, i)
			}
		}
	}
	return r
}

func TestWriteReadRaster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rain.nc")
	want := testRaster()

	require.NoError(t, WriteRaster(path, want, "rain_in_mm", []string{"hr-1", "hr-2"}))

	got, labels, err := ReadRaster(path, "rain_in_mm")
	require.NoError(t, err)
	assert.Equal(t, []string{"hr-1", "hr-2"}, labels)
	assert.Equal(t, want.Times, got.Times)
	assert.Equal(t, want.X, got.X)
	assert.Equal(t, want.Y, got.Y)
	assert.Equal(t, 2, got.Bands())

	assert.Equal(t, 0.5, got.At(0, 0, 0))
	assert.Equal(t, 111.5, got.At(1, 1, 1))
	assert.True(t, math.IsNaN(got.At(1, 1, 2)))
}

func TestWriteRaster_WithoutLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rain.nc")
	require.NoError(t, WriteRaster(path, testRaster(), "rain_in_mm", nil))

	_, labels, err := ReadRaster(path, "rain_in_mm")
	require.NoError(t, err)
	assert.Nil(t, labels)
}

func TestWriteRaster_LabelMismatch(t *testing.T) {
	err := WriteRaster(filepath.Join(t.TempDir(), "rain.nc"), testRaster(), "rain_in_mm", []string{"hr-1"})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestReadRaster_Missing(t *testing.T) {
	_, _, err := ReadRaster(filepath.Join(t.TempDir(), "nope.nc"), "rain_in_mm")
	assert.True(t, errors.Is(err, domain.ErrMissingInput))
}
