package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/trackernorm/pipeline"
	"github.com/lucasjlepore/trackernorm/store"
)

const sampleTCX = `<TrainingCenterDatabase><Activities><Activity Sport="Running"><Lap>
  <TotalTimeSeconds>2</TotalTimeSeconds>
  <DistanceMeters>10</DistanceMeters>
  <Track>
    <Trackpoint><Time>2024-05-01T07:00:00Z</Time><HeartRateBpm><Value>120</Value></HeartRateBpm></Trackpoint>
    <Trackpoint><Time>2024-05-01T07:00:02Z</Time><HeartRateBpm><Value>124</Value></HeartRateBpm></Trackpoint>
  </Track>
</Lap></Activity></Activities></TrainingCenterDatabase>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db))
	return db
}

func writeUpload(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProcessCompletesSession(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	id, err := db.CreateSession(ctx, writeUpload(t, "run.tcx", sampleTCX), "")
	require.NoError(t, err)

	before := testutil.ToFloat64(processedCounter.WithLabelValues("tcx", outcomeCompleted))
	proc := NewProcessor(db, WithLogger(quietLogger()))
	require.NoError(t, proc.Process(ctx, id))

	sess, err := db.Session(ctx, id)
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, sess.Status)
	require.Equal(t, "tcx", sess.SourceType)
	require.Empty(t, sess.ProcessingError)
	require.Equal(t, 2, sess.SampleCount)
	require.NotNil(t, sess.Summary.AvgHeartRate)
	require.Equal(t, 122, *sess.Summary.AvgHeartRate)

	samples, err := db.Timeseries(ctx, id)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	require.Equal(t, before+1, testutil.ToFloat64(processedCounter.WithLabelValues("tcx", outcomeCompleted)))
	require.Greater(t, testutil.ToFloat64(lastProcessedGauge), 0.0)

	// completed sessions are not reprocessed
	require.NoError(t, proc.Process(ctx, id))
	require.Equal(t, before+1, testutil.ToFloat64(processedCounter.WithLabelValues("tcx", outcomeCompleted)))
}

func TestProcessRecordsFailureMessages(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)
	proc := NewProcessor(db, WithLogger(quietLogger()))

	cases := []struct {
		path string
		want string
	}{
		{path: writeUpload(t, "route.gpx", "<gpx/>"), want: ".gpx"},
		{path: writeUpload(t, "broken.fit", "not a fit file"), want: "broken.fit"},
		{path: writeUpload(t, "hr.csv", "heart_rate\n120\n"), want: "timestamp"},
	}
	for _, tc := range cases {
		id, err := db.CreateSession(ctx, tc.path, "")
		require.NoError(t, err)

		require.NoError(t, proc.Process(ctx, id), tc.path)

		sess, err := db.Session(ctx, id)
		require.NoError(t, err)
		require.Equal(t, store.StatusFailed, sess.Status, tc.path)
		require.Contains(t, sess.ProcessingError, tc.want, tc.path)
		require.False(t, sess.ProcessedAt.IsZero())
	}
}

func TestDrainProcessesPendingSessions(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	var paths []string
	proc := NewProcessor(db, WithLogger(quietLogger()), WithAnalyzer(func(path string) (pipeline.Summary, []pipeline.Sample, error) {
		paths = append(paths, path)
		return pipeline.Summary{}, []pipeline.Sample{{Timestamp: "t0"}}, nil
	}))

	for _, name := range []string{"a.fit", "b.fit", "c.fit"} {
		_, err := db.CreateSession(ctx, name, "")
		require.NoError(t, err)
	}

	n, err := proc.Drain(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"a.fit", "b.fit"}, paths)

	n, err = proc.Drain(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	pending, err := db.PendingSessions(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestProcessFinishesSessionAfterCancel(t *testing.T) {
	db := newTestStore(t)

	for _, fail := range []bool{false, true} {
		ctx, cancel := context.WithCancel(context.Background())
		id, err := db.CreateSession(ctx, "ride.fit", "")
		require.NoError(t, err)

		proc := NewProcessor(db, WithLogger(quietLogger()), WithAnalyzer(func(string) (pipeline.Summary, []pipeline.Sample, error) {
			cancel()
			if fail {
				return pipeline.Summary{}, nil, errors.New("boom")
			}
			return pipeline.Summary{}, []pipeline.Sample{{Timestamp: "t0"}}, nil
		}))
		require.NoError(t, proc.Process(ctx, id))

		sess, err := db.Session(context.Background(), id)
		require.NoError(t, err)
		want := store.StatusCompleted
		if fail {
			want = store.StatusFailed
		}
		require.Equal(t, want, sess.Status)
	}
}

func TestProcessReturnsStoreErrors(t *testing.T) {
	ctx := context.Background()
	st := &stubStore{sessionErr: errors.New("database is locked")}
	proc := NewProcessor(st, WithLogger(quietLogger()))

	err := proc.Process(ctx, 1)
	require.ErrorContains(t, err, "database is locked")

	db := newTestStore(t)
	proc = NewProcessor(db, WithLogger(quietLogger()))
	require.ErrorIs(t, proc.Process(ctx, 99), store.ErrNotFound)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := &stubStore{}
	proc := NewProcessor(st, WithLogger(quietLogger()))

	done := make(chan error, 1)
	go func() { done <- proc.Run(ctx, 5*time.Millisecond, 10) }()

	require.Eventually(t, func() bool { return st.pendingCalls() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFailureMessage(t *testing.T) {
	require.Contains(t, FailureMessage(&pipeline.UnsupportedFormatError{Ext: ".gpx"}), ".gpx")
	require.Contains(t, FailureMessage(&pipeline.SchemaError{Path: "/x/hr.csv", Missing: "timestamp"}), "hr.csv")
	require.Equal(t, "processing failed: boom", FailureMessage(errors.New("boom")))
}

type stubStore struct {
	sessionErr error
	pending    atomic.Int64
}

var _ Store = (*stubStore)(nil)

func (s *stubStore) Session(context.Context, int64) (*store.Session, error) {
	return nil, s.sessionErr
}

func (s *stubStore) PendingSessions(context.Context, int) ([]int64, error) {
	s.pending.Add(1)
	return nil, nil
}

func (s *stubStore) pendingCalls() int64 { return s.pending.Load() }

func (s *stubStore) MarkProcessing(context.Context, int64) (bool, error) { return true, nil }

func (s *stubStore) MarkCompleted(context.Context, int64, string, pipeline.Summary, []pipeline.Sample) error {
	return nil
}

func (s *stubStore) MarkFailed(context.Context, int64, string) error { return nil }
