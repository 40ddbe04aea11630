package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lucasjlepore/trackernorm/pipeline"
)

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("session not found")

// Status is the processing state of a session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const timeLayout = time.RFC3339Nano

type Session struct {
	ID              int64
	SourceFile      string
	SourceType      string
	Status          Status
	ProcessingError string
	Summary         pipeline.Summary
	SampleCount     int
	UploadedAt      time.Time
	ProcessedAt     time.Time // zero until completed or failed
}

const sessionColumns = `id, source_file, source_type, status, processing_error, summary_json, sample_count, uploaded_at, processed_at`

// CreateSession registers an uploaded file as a pending session.
func (db *DB) CreateSession(ctx context.Context, sourceFile, sourceType string) (int64, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO sessions(source_file, source_type, status, uploaded_at) VALUES(?,?,?,?)`,
		sourceFile, sourceType, StatusPending, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return res.LastInsertId()
}

func (db *DB) Session(ctx context.Context, id int64) (*Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return s, err
}

// PendingSessions returns up to limit pending session ids, oldest first.
func (db *DB) PendingSessions(ctx context.Context, limit int) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM sessions WHERE status = ? ORDER BY id LIMIT ?`, StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkProcessing moves a pending or failed session to processing. It
// reports false when the session was already claimed or completed.
func (db *DB) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, `UPDATE sessions SET status = ?, processing_error = NULL
		WHERE id = ? AND status IN (?, ?)`, StatusProcessing, id, StatusPending, StatusFailed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, err := db.Session(ctx, id); err != nil {
			return false, err
		}
	}
	return n == 1, nil
}

// RequeueProcessing returns sessions left in processing by an interrupted
// worker to pending and reports how many were reset. Call it before any
// processor starts.
func (db *DB) RequeueProcessing(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE sessions SET status = ? WHERE status = ?`, StatusPending, StatusProcessing)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkCompleted stores the analysis result and sets the session completed.
func (db *DB) MarkCompleted(ctx context.Context, id int64, sourceType string, summary pipeline.Summary, samples []pipeline.Sample) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if samples == nil {
		samples = []pipeline.Sample{}
	}
	timeseriesJSON, err := json.Marshal(samples)
	if err != nil {
		return fmt.Errorf("encode time series: %w", err)
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE sessions SET
			status = ?, processing_error = NULL, source_type = ?,
			total_distance_km = ?, total_duration_secs = ?, avg_heart_rate = ?, max_heart_rate = ?,
			summary_json = ?, timeseries_json = ?, sample_count = ?, processed_at = ?
		WHERE id = ?`,
			StatusCompleted, sourceType,
			nullFloat(summary.TotalDistanceKm), nullFloat(summary.TotalDurationSecs),
			nullInt(summary.AvgHeartRate), nullInt(summary.MaxHeartRate),
			string(summaryJSON), string(timeseriesJSON), len(samples), time.Now().UTC().Format(timeLayout), id)
		if err != nil {
			return err
		}
		return expectOne(res, id)
	})
}

// MarkFailed records a user-facing processing error.
func (db *DB) MarkFailed(ctx context.Context, id int64, message string) error {
	res, err := db.ExecContext(ctx, `UPDATE sessions SET status = ?, processing_error = ?, processed_at = ? WHERE id = ?`,
		StatusFailed, message, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return err
	}
	return expectOne(res, id)
}

// Timeseries returns the stored samples of a session. Sessions that have not
// completed yield an empty slice.
func (db *DB) Timeseries(ctx context.Context, id int64) ([]pipeline.Sample, error) {
	var raw sql.NullString
	err := db.QueryRowContext(ctx, `SELECT timeseries_json FROM sessions WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeSamples(raw)
}

// LabelRecords flags the samples at the given timestamps as anomalous and
// clears every other flag. It returns the number of samples flagged.
func (db *DB) LabelRecords(ctx context.Context, id int64, anomalous []string) (int, error) {
	var flagged int
	err := db.updateTimeseries(ctx, id, func(samples []pipeline.Sample) {
		flagged = pipeline.LabelAnomalies(samples, anomalous)
	})
	return flagged, err
}

// UpdateAnomalies applies per-timestamp anomaly values, leaving unlisted
// samples untouched. It returns the number of samples updated.
func (db *DB) UpdateAnomalies(ctx context.Context, id int64, updates map[string]int) (int, error) {
	var updated int
	err := db.updateTimeseries(ctx, id, func(samples []pipeline.Sample) {
		updated = pipeline.ApplyAnomalyUpdates(samples, updates)
	})
	return updated, err
}

func (db *DB) updateTimeseries(ctx context.Context, id int64, fn func([]pipeline.Sample)) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		var raw sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT timeseries_json FROM sessions WHERE id = ?`, id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("session %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		samples, err := decodeSamples(raw)
		if err != nil {
			return err
		}

		fn(samples)

		data, err := json.Marshal(samples)
		if err != nil {
			return fmt.Errorf("encode time series: %w", err)
		}
		_, err = tx.ExecContext(ctx, `UPDATE sessions SET timeseries_json = ? WHERE id = ?`, string(data), id)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s           Session
		status      string
		procErr     sql.NullString
		summaryJSON sql.NullString
		uploadedAt  string
		processedAt sql.NullString
	)
	if err := row.Scan(&s.ID, &s.SourceFile, &s.SourceType, &status, &procErr, &summaryJSON, &s.SampleCount, &uploadedAt, &processedAt); err != nil {
		return nil, err
	}
	s.Status = Status(status)
	s.ProcessingError = procErr.String

	var err error
	if s.UploadedAt, err = time.Parse(timeLayout, uploadedAt); err != nil {
		return nil, fmt.Errorf("session %d uploaded_at: %w", s.ID, err)
	}
	if processedAt.Valid {
		if s.ProcessedAt, err = time.Parse(timeLayout, processedAt.String); err != nil {
			return nil, fmt.Errorf("session %d processed_at: %w", s.ID, err)
		}
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		if err := json.Unmarshal([]byte(summaryJSON.String), &s.Summary); err != nil {
			return nil, fmt.Errorf("session %d summary: %w", s.ID, err)
		}
	}
	return &s, nil
}

func decodeSamples(raw sql.NullString) ([]pipeline.Sample, error) {
	samples := []pipeline.Sample{}
	if !raw.Valid || raw.String == "" {
		return samples, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &samples); err != nil {
		return nil, fmt.Errorf("decode time series: %w", err)
	}
	return samples, nil
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
