// Package parquet exports the raw forecast table as a Snappy-compressed
// Parquet file for downstream analytics.
package parquet

import (
	"bytes"
	"fmt"
	"os"

	pq "github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/couchcryptid/raincast/internal/domain"
)

// Record is the Parquet row layout of one forecast reading.
type Record struct {
	RunID            string  `parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	PointID          string  `parquet:"name=point_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	Latitude         float64 `parquet:"name=latitude,type=DOUBLE"`
	Longitude        float64 `parquet:"name=longitude,type=DOUBLE"`
	TimeOfPrediction int64   `parquet:"name=time_of_prediction,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	HoursAhead       float64 `parquet:"name=predicted_hrs_ahead,type=DOUBLE"`
	RainInMM         float64 `parquet:"name=rain_in_mm,type=DOUBLE"`
}

// NewRecord converts a reading into its Parquet row.
func NewRecord(runID string, r domain.ForecastReading) Record {
	return Record{
		RunID:            runID,
		PointID:          r.PointID,
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		TimeOfPrediction: r.Timestamp.UnixMilli(),
		HoursAhead:       r.HoursAhead,
		RainInMM:         r.RainfallMM,
	}
}

// Encode serialises readings into an in-memory Parquet file.
func Encode(runID string, readings []domain.ForecastReading) (buf *bytes.Buffer, err error) {
	buf = new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(Record), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = pq.CompressionCodec_SNAPPY

	for _, r := range readings {
		if err := pw.Write(NewRecord(runID, r)); err != nil {
			return nil, fmt.Errorf("write parquet record for %s: %w", r.PointID, err)
		}
	}

	// WriteStop can panic on internal writer errors.
	defer func() {
		if p := recover(); p != nil {
			buf, err = nil, fmt.Errorf("stop parquet writer: %v", p)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("stop parquet writer: %w", err)
	}
	return buf, nil
}

// WriteReadings writes readings to a Parquet file at path.
func WriteReadings(path, runID string, readings []domain.ForecastReading) error {
	buf, err := Encode(runID, readings)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
