package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const summaryFileName = "summary.json"

// Run analyzes one session file and writes summary.json plus the samples in
// the requested format into the output directory.
func Run(opts Options) (*Result, error) {
	if strings.TrimSpace(opts.InputPath) == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format, err := outputFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	summary, samples, err := Analyze(opts.InputPath)
	if err != nil {
		return nil, err
	}
	source, _ := DetectFormat(opts.InputPath)

	files, err := render(summary, samples, format)
	if err != nil {
		return nil, err
	}
	if err := ensureOutputDir(opts.OutDir, opts.Overwrite); err != nil {
		return nil, err
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(opts.OutDir, name), data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}

	return &Result{
		OutputDir:   opts.OutDir,
		SourceType:  source,
		SummaryPath: filepath.Join(opts.OutDir, summaryFileName),
		SamplesPath: filepath.Join(opts.OutDir, "samples."+format),
		SampleCount: len(samples),
		Summary:     summary,
	}, nil
}

// RunBytes is Run for an upload held in memory; the outputs are returned
// instead of written.
func RunBytes(opts BytesOptions) (*BytesResult, error) {
	if len(opts.Data) == 0 {
		return nil, fmt.Errorf("file bytes are required")
	}
	format, err := outputFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	summary, samples, err := AnalyzeBytes(opts.SourceFileName, opts.Data)
	if err != nil {
		return nil, err
	}
	source, _ := DetectFormat(opts.SourceFileName)

	files, err := render(summary, samples, format)
	if err != nil {
		return nil, err
	}
	return &BytesResult{
		SourceType:  source,
		Files:       files,
		SampleCount: len(samples),
		Summary:     summary,
	}, nil
}

func outputFormat(raw string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(raw))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" && format != "parquet" {
		return "", fmt.Errorf("unsupported output format %q (expected json|csv|parquet)", format)
	}
	return format, nil
}

func render(summary Summary, samples []Sample, format string) (map[string][]byte, error) {
	summaryJSON, err := encodeJSON(summary)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", summaryFileName, err)
	}

	var samplesData []byte
	switch format {
	case "json":
		samplesData, err = encodeJSON(samples)
	case "csv":
		samplesData, err = encodeSamplesCSV(samples)
	case "parquet":
		samplesData, err = EncodeSamplesParquet(samples)
	}
	if err != nil {
		return nil, fmt.Errorf("encode samples.%s: %w", format, err)
	}

	return map[string][]byte{
		summaryFileName:     summaryJSON,
		"samples." + format: samplesData,
	}, nil
}

func ensureOutputDir(path string, overwrite bool) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory is not empty: %s (set overwrite=true to allow)", path)
	}
	return nil
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var sampleCSVHeader = []string{
	"timestamp", "heart_rate", "position_lat", "position_long", "altitude", "speed", "cadence",
	"distance", "power", "respiration_rate", "temperature", "gps_accuracy", "anomaly",
}

func encodeSamplesCSV(samples []Sample) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(sampleCSVHeader); err != nil {
		return nil, err
	}
	for _, s := range samples {
		row := []string{
			s.Timestamp,
			formatIntPtr(s.HeartRate),
			formatFloatPtr(s.PositionLat),
			formatFloatPtr(s.PositionLong),
			formatFloatPtr(s.Altitude),
			formatFloatPtr(s.Speed),
			formatFloatPtr(s.Cadence),
			formatFloatPtr(s.Distance),
			formatFloatPtr(s.Power),
			formatFloatPtr(s.RespirationRate),
			formatFloatPtr(s.Temperature),
			formatFloatPtr(s.GPSAccuracy),
			strconv.Itoa(s.Anomaly),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloatPtr(v *float64) string {
	if v == nil || !finite(*v) {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
