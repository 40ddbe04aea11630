package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tormoder/fit"
)

func TestRunWritesJSONOutputs(t *testing.T) {
	session := fit.NewSessionMsg()
	session.Timestamp = fixtureStart.Add(2 * time.Second)
	session.TotalDistance = 1234567
	session.TotalElapsedTime = 3600500
	session.AvgHeartRate = 150
	session.MaxHeartRate = 180
	input := writeFIT(t, fitFixture{heartRates: []uint8{140, 150, 160}, session: session})
	outDir := filepath.Join(t.TempDir(), "out")

	result, err := Run(Options{InputPath: input, OutDir: outDir})
	require.NoError(t, err)
	require.Equal(t, FormatFIT, result.SourceType)
	require.Equal(t, 3, result.SampleCount)
	require.Equal(t, filepath.Join(outDir, "samples.json"), result.SamplesPath)

	var summary map[string]any
	readJSON(t, result.SummaryPath, &summary)
	require.InDelta(t, 12.35, summary["total_distance_km"], 1e-9)
	require.InDelta(t, 150.0, summary["avg_heart_rate"], 1e-9)
	require.Contains(t, summary, "session")

	var samples []map[string]any
	readJSON(t, result.SamplesPath, &samples)
	require.Len(t, samples, 3)
	require.Contains(t, samples[0], "respiration_rate")
	require.Nil(t, samples[0]["respiration_rate"])
	require.InDelta(t, 0.0, samples[0]["anomaly"], 1e-9)
}

func TestRunWritesCSVSamples(t *testing.T) {
	input := writeFile(t, "run.tcx", runTCX)
	outDir := t.TempDir()

	result, err := Run(Options{InputPath: input, OutDir: outDir, Format: "CSV"})
	require.NoError(t, err)
	require.Equal(t, FormatTCX, result.SourceType)

	f, err := os.Open(result.SamplesPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, sampleCSVHeader, rows[0])
	require.Equal(t, "2024-05-01T07:00:00+00:00", rows[1][0])
	require.Equal(t, "140", rows[1][1])
	require.Equal(t, "", rows[2][1])
	require.Equal(t, "0", rows[3][len(rows[3])-1])
}

func TestRunWritesParquetSamples(t *testing.T) {
	input := writeFIT(t, fitFixture{heartRates: []uint8{120, 121}})

	result, err := Run(Options{InputPath: input, OutDir: t.TempDir(), Format: "parquet"})
	require.NoError(t, err)

	data, err := os.ReadFile(result.SamplesPath)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("PAR1")))
	require.True(t, bytes.HasSuffix(data, []byte("PAR1")))
}

func TestRunRejectsBadOptions(t *testing.T) {
	input := writeFile(t, "run.tcx", runTCX)

	_, err := Run(Options{OutDir: t.TempDir()})
	require.Error(t, err)

	_, err = Run(Options{InputPath: input})
	require.Error(t, err)

	_, err = Run(Options{InputPath: input, OutDir: t.TempDir(), Format: "xml"})
	require.ErrorContains(t, err, "xml")
}

func TestRunRefusesNonEmptyOutputDir(t *testing.T) {
	input := writeFile(t, "run.tcx", runTCX)
	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "keep.txt"), []byte("x"), 0o644))

	_, err := Run(Options{InputPath: input, OutDir: outDir})
	require.ErrorContains(t, err, "not empty")

	_, err = Run(Options{InputPath: input, OutDir: outDir, Overwrite: true})
	require.NoError(t, err)
}

func TestRunPropagatesAnalyzeErrors(t *testing.T) {
	_, err := Run(Options{InputPath: "route.gpx", OutDir: t.TempDir()})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestRunBytesRendersFiles(t *testing.T) {
	result, err := RunBytes(BytesOptions{SourceFileName: "run.tcx", Data: []byte(runTCX), Format: "csv"})
	require.NoError(t, err)
	require.Equal(t, FormatTCX, result.SourceType)
	require.Equal(t, 3, result.SampleCount)
	require.Len(t, result.Files, 2)
	require.Contains(t, result.Files, "summary.json")
	require.True(t, bytes.HasPrefix(result.Files["samples.csv"], []byte("timestamp,heart_rate,")))

	_, err = RunBytes(BytesOptions{SourceFileName: "run.tcx"})
	require.Error(t, err)
}
