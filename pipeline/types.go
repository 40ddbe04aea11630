package pipeline

// Format identifies a supported session export format.
type Format string

const (
	FormatFIT Format = "fit"
	FormatTCX Format = "tcx"
	FormatCSV Format = "csv"
)

// Sample is one normalized time-series point. Nil pointers are missing
// values and serialize as JSON null.
type Sample struct {
	Timestamp       string   `json:"timestamp"`
	HeartRate       *int     `json:"heart_rate"`
	PositionLat     *float64 `json:"position_lat"`
	PositionLong    *float64 `json:"position_long"`
	Altitude        *float64 `json:"altitude"`
	Speed           *float64 `json:"speed"`
	Cadence         *float64 `json:"cadence"`
	Distance        *float64 `json:"distance"`
	Power           *float64 `json:"power"`
	RespirationRate *float64 `json:"respiration_rate"`
	Temperature     *float64 `json:"temperature"`
	GPSAccuracy     *float64 `json:"gps_accuracy"`
	Anomaly         int      `json:"anomaly"`
}

// Summary holds session-level statistics. Absent statistics are nil and
// omitted from JSON.
type Summary struct {
	TotalDistanceKm   *float64 `json:"total_distance_km,omitempty"`
	TotalDurationSecs *float64 `json:"total_duration_secs,omitempty"`
	AvgHeartRate      *int     `json:"avg_heart_rate,omitempty"`
	MaxHeartRate      *int     `json:"max_heart_rate,omitempty"`

	// Session carries the merged FIT session message fields by name.
	Session map[string]any `json:"session,omitempty"`
}

// Options configures the export runner.
type Options struct {
	InputPath string
	OutDir    string
	Format    string // json|csv|parquet
	Overwrite bool
}

// Result returns generated output paths.
type Result struct {
	OutputDir   string  `json:"output_dir"`
	SourceType  Format  `json:"source_type"`
	SummaryPath string  `json:"summary_path"`
	SamplesPath string  `json:"samples_path"`
	SampleCount int     `json:"sample_count"`
	Summary     Summary `json:"summary"`
}

// BytesOptions configures RunBytes for an upload held in memory.
type BytesOptions struct {
	SourceFileName string
	Data           []byte
	Format         string // json|csv|parquet
}

// BytesResult holds the rendered outputs keyed by file name.
type BytesResult struct {
	SourceType  Format
	Files       map[string][]byte
	SampleCount int
	Summary     Summary
}
