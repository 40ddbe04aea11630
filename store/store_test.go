package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/trackernorm/pipeline"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "trackernorm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func ptr[T any](v T) *T { return &v }

func TestMigrateIsRepeatable(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db))
}

func TestSessionLifecycleCompleted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.CreateSession(ctx, "/uploads/run.tcx", "tcx")
	require.NoError(t, err)

	s, err := db.Session(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusPending, s.Status)
	require.Equal(t, "/uploads/run.tcx", s.SourceFile)
	require.False(t, s.UploadedAt.IsZero())
	require.True(t, s.ProcessedAt.IsZero())

	pending, err := db.PendingSessions(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{id}, pending)

	claimed, err := db.MarkProcessing(ctx, id)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = db.MarkProcessing(ctx, id)
	require.NoError(t, err)
	require.False(t, claimed)

	pending, err = db.PendingSessions(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	summary := pipeline.Summary{
		TotalDistanceKm:   ptr(5.01),
		TotalDurationSecs: ptr(1800.46),
		AvgHeartRate:      ptr(151),
		MaxHeartRate:      ptr(160),
	}
	samples := []pipeline.Sample{
		{Timestamp: "2024-05-01T07:00:00+00:00", HeartRate: ptr(140), Speed: ptr(2.5)},
		{Timestamp: "2024-05-01T07:00:01+00:00"},
	}
	require.NoError(t, db.MarkCompleted(ctx, id, "tcx", summary, samples))

	s, err = db.Session(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, s.Status)
	require.Empty(t, s.ProcessingError)
	require.Equal(t, 2, s.SampleCount)
	require.Equal(t, summary, s.Summary)
	require.False(t, s.ProcessedAt.IsZero())

	var avgHR int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT avg_heart_rate FROM sessions WHERE id = ?`, id).Scan(&avgHR))
	require.Equal(t, 151, avgHR)

	got, err := db.Timeseries(ctx, id)
	require.NoError(t, err)
	require.Equal(t, samples, got)
}

func TestSessionLifecycleFailed(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.CreateSession(ctx, "/uploads/route.gpx", "")
	require.NoError(t, err)
	_, err = db.MarkProcessing(ctx, id)
	require.NoError(t, err)

	require.NoError(t, db.MarkFailed(ctx, id, "unsupported file format .gpx"))

	s, err := db.Session(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, s.Status)
	require.Equal(t, "unsupported file format .gpx", s.ProcessingError)
	require.Equal(t, pipeline.Summary{}, s.Summary)

	samples, err := db.Timeseries(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, samples)
	require.Empty(t, samples)

	// failed sessions can be retried
	claimed, err := db.MarkProcessing(ctx, id)
	require.NoError(t, err)
	require.True(t, claimed)
	s, err = db.Session(ctx, id)
	require.NoError(t, err)
	require.Empty(t, s.ProcessingError)
}

func TestMissingSession(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Session(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = db.MarkProcessing(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, db.MarkFailed(ctx, 42, "x"), ErrNotFound)
	require.ErrorIs(t, db.MarkCompleted(ctx, 42, "fit", pipeline.Summary{}, nil), ErrNotFound)

	_, err = db.Timeseries(ctx, 42)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = db.LabelRecords(ctx, 42, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLabelAndUpdateAnomalies(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.CreateSession(ctx, "/uploads/ride.fit", "fit")
	require.NoError(t, err)
	samples := []pipeline.Sample{
		{Timestamp: "t0"},
		{Timestamp: "t1"},
		{Timestamp: "t2"},
	}
	require.NoError(t, db.MarkCompleted(ctx, id, "fit", pipeline.Summary{}, samples))

	flagged, err := db.LabelRecords(ctx, id, []string{"t1", "t2"})
	require.NoError(t, err)
	require.Equal(t, 2, flagged)

	updated, err := db.UpdateAnomalies(ctx, id, map[string]int{"t0": 5, "t2": 0})
	require.NoError(t, err)
	require.Equal(t, 2, updated)

	got, err := db.Timeseries(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []int{1, 1, 0}, []int{got[0].Anomaly, got[1].Anomaly, got[2].Anomaly})
}

func TestPendingSessionsOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	var ids []int64
	for _, name := range []string{"a.fit", "b.fit", "c.fit"} {
		id, err := db.CreateSession(ctx, name, "fit")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	pending, err := db.PendingSessions(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, ids[:2], pending)
}

func TestRequeueProcessing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	stuck, err := db.CreateSession(ctx, "stuck.fit", "")
	require.NoError(t, err)
	done, err := db.CreateSession(ctx, "done.fit", "")
	require.NoError(t, err)
	for _, id := range []int64{stuck, done} {
		claimed, err := db.MarkProcessing(ctx, id)
		require.NoError(t, err)
		require.True(t, claimed)
	}
	require.NoError(t, db.MarkCompleted(ctx, done, "fit", pipeline.Summary{}, nil))

	n, err := db.RequeueProcessing(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	pending, err := db.PendingSessions(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{stuck}, pending)

	s, err := db.Session(ctx, done)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, s.Status)

	n, err = db.RequeueProcessing(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}
