package pipeline

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"ride.fit":         FormatFIT,
		"RIDE.FIT":         FormatFIT,
		"run.Tcx":          FormatTCX,
		"/tmp/export.CSV":  FormatCSV,
		"dir.fit/file.csv": FormatCSV,
	}
	for path, want := range cases {
		got, err := DetectFormat(path)
		require.NoError(t, err, path)
		require.Equal(t, want, got, path)
	}
}

func TestAnalyzeUnsupportedFormat(t *testing.T) {
	for _, path := range []string{"track.gpx", "noextension", "archive.fit.zip"} {
		_, samples, err := Analyze(path)
		require.ErrorIs(t, err, ErrUnsupportedFormat, path)
		require.Nil(t, samples)

		var formatErr *UnsupportedFormatError
		require.True(t, errors.As(err, &formatErr))
		require.Equal(t, filepath.Ext(path), formatErr.Ext)
	}

	_, _, err := Analyze("track.gpx")
	require.Contains(t, err.Error(), ".gpx")
}

func TestAnalyzeCorruptFiles(t *testing.T) {
	cases := map[string]string{
		"garbage.fit": "this is not a fit file at all",
		"broken.tcx":  "<TrainingCenterDatabase><Activities>",
		"notxml.tcx":  "just text",
		"empty.fit":   "",
	}
	for name, content := range cases {
		path := writeFile(t, name, content)
		_, _, err := Analyze(path)
		require.ErrorIs(t, err, ErrCorruptFile, name)
		require.NotErrorIs(t, err, ErrInvalidCSVSchema, name)
		require.Contains(t, err.Error(), name)
	}

	_, _, err := Analyze(filepath.Join(t.TempDir(), "missing.fit"))
	require.ErrorIs(t, err, ErrCorruptFile)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestAnalyzeCSVSchemaErrorPassesThrough(t *testing.T) {
	path := writeFile(t, "noclock.csv", "heart_rate\n120\n")
	_, _, err := Analyze(path)
	require.ErrorIs(t, err, ErrInvalidCSVSchema)
	require.NotErrorIs(t, err, ErrCorruptFile)
}

func TestAnalyzeEveryFormatIsJSONSafe(t *testing.T) {
	paths := []string{
		writeFIT(t, fitFixture{heartRates: []uint8{120, 125}}),
		writeFile(t, "run.tcx", runTCX),
		writeFile(t, "run.csv", "timestamp,heart_rate,speed\n2024-05-01T07:00:00Z,120,NaN\n2024-05-01T07:00:01Z,,inf\n"),
	}
	for _, path := range paths {
		summary, samples, err := Analyze(path)
		require.NoError(t, err, path)
		require.NotEmpty(t, samples, path)

		for _, s := range samples {
			require.NotEmpty(t, s.Timestamp)
			require.Zero(t, s.Anomaly)
		}

		data, err := json.Marshal(map[string]any{"summary": summary, "samples": samples})
		require.NoError(t, err, path)
		require.NotContains(t, string(data), "NaN")
		require.NotContains(t, string(data), "Inf")
	}
}

func TestAnalyzeEmptyFITReturnsEmptySamples(t *testing.T) {
	path := writeFIT(t, fitFixture{})
	summary, samples, err := Analyze(path)
	require.NoError(t, err)
	require.NotNil(t, samples)
	require.Empty(t, samples)
	require.Nil(t, summary.AvgHeartRate)
}

func TestAnalyzeBytesMatchesAnalyze(t *testing.T) {
	data := buildFIT(t, fitFixture{heartRates: []uint8{130, 140}})
	path := filepath.Join(t.TempDir(), "ride.fit")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fromPath, samplesPath, err := Analyze(path)
	require.NoError(t, err)
	fromBytes, samplesBytes, err := AnalyzeBytes("RIDE.FIT", data)
	require.NoError(t, err)
	require.Equal(t, fromPath, fromBytes)
	require.Equal(t, samplesPath, samplesBytes)

	_, _, err = AnalyzeBytes("upload.csv", []byte("hr\n120\n"))
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	require.Equal(t, "upload.csv", schemaErr.Path)

	_, _, err = AnalyzeBytes("upload.tcx", []byte("<nope"))
	require.ErrorIs(t, err, ErrCorruptFile)
	require.Contains(t, err.Error(), "upload.tcx")

	_, _, err = AnalyzeBytes("upload.gpx", []byte("<gpx/>"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}
