// Package report writes and reads the tabular run outputs: the long-format
// zonal statistics CSV, the daily totals CSV and the trigger status file.
package report

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/raincast/internal/domain"
)

var dailyHeader = []string{"name", "hours_ahead", "tot_rainfall_mm", "trigger"}

func zonalHeader(percentile float64) []string {
	return []string{"name", "pcode", "mean", "std", "max", "min", fmt.Sprintf("q%g", percentile), "count", "time_of_prediction"}
}

// WriteZonalCSV writes one row per zone and band. NaN statistics of empty
// zones are written as empty fields.
func WriteZonalCSV(path string, stats []domain.ZonalStat, percentile float64) error {
	rows := make([][]string, 0, len(stats)+1)
	rows = append(rows, zonalHeader(percentile))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Name,
			s.Code,
			formatFloat(s.Mean),
			formatFloat(s.Std),
			formatFloat(s.Max),
			formatFloat(s.Min),
			formatFloat(s.Percentile),
			strconv.Itoa(s.Count),
			s.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return writeCSV(path, rows)
}

// WriteDailyCSV writes one row per entity and window.
func WriteDailyCSV(path string, totals []domain.DailyTotal) error {
	rows := make([][]string, 0, len(totals)+1)
	rows = append(rows, dailyHeader)
	for _, d := range totals {
		rows = append(rows, []string{d.Entity, d.Label(), formatFloat(d.TotalMM), formatBool(d.Trigger)})
	}
	return writeCSV(path, rows)
}

// AppendTriggers appends one "TRIGGER <WINDOW> <level>: True|False" line per
// status, creating the file if needed.
func AppendTriggers(path string, statuses []domain.TriggerStatus) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, s := range statuses {
		fmt.Fprintf(w, "TRIGGER %s %s: %s\n", s.Window, s.Level, formatBool(s.Triggered))
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseBool(s string) (bool, error) {
	switch s {
	case "True":
		return true, nil
	case "False":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}

// readCSV returns the data rows of a CSV file whose header matches want.
// An empty entry in want accepts any column name.
func readCSV(path string, want []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingInputError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(want)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrInvalidInput, path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrInvalidInput, path)
	}
	for k, h := range want {
		if h != "" && rows[0][k] != h {
			return nil, fmt.Errorf("%w: %s column %d is %q, want %q", domain.ErrInvalidInput, path, k, rows[0][k], h)
		}
	}
	return rows[1:], nil
}

// ReadZonalCSV reads a file written by WriteZonalCSV, whatever its
// percentile column.
func ReadZonalCSV(path string) ([]domain.ZonalStat, error) {
	header := zonalHeader(0)
	header[6] = ""
	rows, err := readCSV(path, header)
	if err != nil {
		return nil, err
	}
	stats := make([]domain.ZonalStat, 0, len(rows))
	for k, row := range rows {
		s := domain.ZonalStat{Name: row[0], Code: row[1]}
		fields := []*float64{&s.Mean, &s.Std, &s.Max, &s.Min, &s.Percentile}
		for i, dst := range fields {
			if *dst, err = parseFloat(row[2+i]); err != nil {
				return nil, fmt.Errorf("%w: %s row %d: %v", domain.ErrInvalidInput, path, k+1, err)
			}
		}
		if s.Count, err = strconv.Atoi(row[7]); err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", domain.ErrInvalidInput, path, k+1, err)
		}
		if s.Timestamp, err = time.Parse(time.RFC3339, row[8]); err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", domain.ErrInvalidInput, path, k+1, err)
		}
		s.Empty = s.Count == 0
		stats = append(stats, s)
	}
	return stats, nil
}

// ReadDailyCSV reads a file written by WriteDailyCSV. DayIndex is recovered
// from the row order of each entity.
func ReadDailyCSV(path string) ([]domain.DailyTotal, error) {
	rows, err := readCSV(path, dailyHeader)
	if err != nil {
		return nil, err
	}
	days := make(map[string]int)
	totals := make([]domain.DailyTotal, 0, len(rows))
	for k, row := range rows {
		d := domain.DailyTotal{Entity: row[0]}
		if _, err := fmt.Sscanf(row[1], "hr-%d", &d.HoursAhead); err != nil {
			return nil, fmt.Errorf("%w: %s row %d: hours_ahead %q", domain.ErrInvalidInput, path, k+1, row[1])
		}
		if d.TotalMM, err = parseFloat(row[2]); err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", domain.ErrInvalidInput, path, k+1, err)
		}
		if d.Trigger, err = parseBool(row[3]); err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", domain.ErrInvalidInput, path, k+1, err)
		}
		d.DayIndex = days[d.Entity]
		days[d.Entity]++
		totals = append(totals, d)
	}
	return totals, nil
}

// TriggerLine is one parsed line of the trigger status file.
type TriggerLine struct {
	Window    string
	Level     string
	Triggered bool
}

// ReadTriggers parses a trigger status file.
func ReadTriggers(path string) ([]TriggerLine, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingInputError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []TriggerLine
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		head, value, ok := strings.Cut(text, ":")
		parts := strings.Fields(head)
		if !ok || len(parts) != 3 || parts[0] != "TRIGGER" {
			return nil, fmt.Errorf("%w: %s line %d: %q", domain.ErrInvalidInput, path, n, text)
		}
		triggered, err := parseBool(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", domain.ErrInvalidInput, path, n, err)
		}
		lines = append(lines, TriggerLine{Window: parts[1], Level: parts[2], Triggered: triggered})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}
