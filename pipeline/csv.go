package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lucasjlepore/trackernorm/fitdecode"
)

// ParseCSV reads a vendor CSV export. A file without a usable timestamp
// column returns a *SchemaError.
func ParseCSV(path string) (Summary, []Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, nil, err
	}
	defer f.Close()

	summary, samples, err := parseCSV(f)
	var schemaErr *SchemaError
	if errors.As(err, &schemaErr) {
		schemaErr.Path = path
	}
	return summary, samples, err
}

// csvTable is the columnar view of a CSV file. Missing numeric cells are NaN.
type csvTable struct {
	headers    []string
	timestamps []string
	columns    map[string][]float64
}

func parseCSV(r io.Reader) (Summary, []Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return Summary{}, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return Summary{}, nil, errors.New("read csv: no header row")
	}

	table, err := buildTable(rows[0], rows[1:])
	if err != nil {
		return Summary{}, nil, err
	}
	table.forwardFill()
	table.convertUnits()
	return table.normalize()
}

func buildTable(header []string, rows [][]string) (*csvTable, error) {
	index := make(map[string]int, len(header))
	dateIdx := -1
	for i, h := range header {
		if dateIdx < 0 && normalizeHeader(h) == dateColumn {
			dateIdx = i
			continue
		}
		name, ok := canonicalColumn(h)
		if !ok {
			continue
		}
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}

	tsIdx, ok := index[colTimestamp]
	if !ok {
		tsIdx = -1
	}
	if tsIdx < 0 && dateIdx < 0 {
		found := make([]string, 0, len(header))
		for _, h := range header {
			found = append(found, strings.TrimSpace(h))
		}
		return nil, &SchemaError{Missing: colTimestamp, Found: found}
	}

	t := &csvTable{
		headers:    header,
		timestamps: make([]string, len(rows)),
		columns:    make(map[string][]float64),
	}
	for i, row := range rows {
		t.timestamps[i] = rowTimestamp(row, tsIdx, dateIdx)
	}
	for _, name := range numericColumns {
		idx, ok := index[name]
		if !ok {
			continue
		}
		values := make([]float64, len(rows))
		for i, row := range rows {
			values[i] = coerceNumber(cell(row, idx))
		}
		t.columns[name] = values
	}
	return t, nil
}

// rowTimestamp joins a separate date column with a time-of-day column.
// A timestamp cell that parses on its own wins over the date.
func rowTimestamp(row []string, tsIdx, dateIdx int) string {
	raw := cell(row, tsIdx)
	date := cell(row, dateIdx)
	switch {
	case date == "":
		return raw
	case raw == "":
		return date
	}
	if _, ok := parseTimestamp(raw); ok {
		return raw
	}
	return date + " " + raw
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// coerceNumber returns NaN for anything that is not a finite number.
func coerceNumber(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(v) {
		return math.NaN()
	}
	return v
}

func (t *csvTable) forwardFill() {
	for _, name := range forwardFilled {
		values, ok := t.columns[name]
		if !ok {
			continue
		}
		last := math.NaN()
		for i, v := range values {
			if math.IsNaN(v) {
				values[i] = last
				continue
			}
			last = v
		}
	}
}

func (t *csvTable) convertUnits() {
	for _, name := range []string{colPositionLat, colPositionLong} {
		values, ok := t.columns[name]
		if !ok || !holdsSemicircles(values) {
			continue
		}
		for i, v := range values {
			if !math.IsNaN(v) {
				values[i] = fitdecode.SemicirclesToDegrees(v)
			}
		}
	}

	if raw, ok := t.columns[colEnhancedAltitude]; ok {
		scaled := make([]float64, len(raw))
		for i, v := range raw {
			scaled[i] = math.NaN()
			if !math.IsNaN(v) {
				scaled[i], _ = fitdecode.ScaleField(fitdecode.MesgRecord, "enhanced_altitude", v)
			}
		}
		t.columns[colAltitude] = preferFirst(scaled, t.columns[colAltitude])
	}
	if enhanced, ok := t.columns[colEnhancedSpeed]; ok {
		t.columns[colSpeed] = preferFirst(enhanced, t.columns[colSpeed])
	}
}

// holdsSemicircles reports whether a coordinate column carries values
// outside the degree range.
func holdsSemicircles(values []float64) bool {
	for _, v := range values {
		if !math.IsNaN(v) && math.Abs(v) > 180 {
			return true
		}
	}
	return false
}

// preferFirst merges two columns row by row, taking primary where present.
func preferFirst(primary, fallback []float64) []float64 {
	out := make([]float64, len(primary))
	for i, v := range primary {
		if math.IsNaN(v) && i < len(fallback) {
			v = fallback[i]
		}
		out[i] = v
	}
	return out
}

func (t *csvTable) normalize() (Summary, []Sample, error) {
	var (
		samples    = make([]Sample, 0, len(t.timestamps))
		hr         heartRates
		first      time.Time
		last       time.Time
		lastMeters = math.NaN()
	)
	for i, raw := range t.timestamps {
		ts, ok := parseTimestamp(raw)
		if !ok {
			continue
		}
		if len(samples) == 0 {
			first = ts
		}
		last = ts

		s := Sample{
			Timestamp:       ts.UTC().Format(isoMicrosLayout),
			PositionLat:     t.value(colPositionLat, i),
			PositionLong:    t.value(colPositionLong, i),
			Altitude:        t.value(colAltitude, i),
			Speed:           t.value(colSpeed, i),
			Cadence:         t.value(colCadence, i),
			Distance:        t.value(colDistance, i),
			Power:           t.value(colPower, i),
			RespirationRate: t.value(colRespirationRate, i),
			Temperature:     t.value(colTemperature, i),
			GPSAccuracy:     t.value(colGPSAccuracy, i),
		}
		if v := t.value(colHeartRate, i); v != nil {
			bpm := int(math.RoundToEven(*v))
			hr.add(float64(bpm))
			s.HeartRate = intPtr(bpm)
		}
		if s.Distance != nil {
			lastMeters = *s.Distance
		}
		samples = append(samples, s)
	}

	if len(samples) == 0 {
		return Summary{}, nil, &SchemaError{Missing: colTimestamp, Found: t.headers}
	}

	summary := Summary{
		TotalDurationSecs: floatPtr(round2(last.Sub(first).Seconds())),
	}
	if !math.IsNaN(lastMeters) {
		summary.TotalDistanceKm = floatPtr(round2(lastMeters / 1000))
	}
	hr.fill(&summary)
	return summary, samples, nil
}

func (t *csvTable) value(name string, row int) *float64 {
	values, ok := t.columns[name]
	if !ok || row >= len(values) {
		return nil
	}
	return finitePtr(values[row])
}

// timestampLayouts are tried in order. Layouts without a zone parse as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02",
}

// parseTimestamp parses a timestamp in any supported layout and returns it in UTC.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
