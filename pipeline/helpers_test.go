package pipeline

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tormoder/fit"
)

var fixtureStart = time.Date(2026, 2, 26, 23, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type fitFixture struct {
	heartRates []uint8
	session    *fit.SessionMsg
}

// buildFIT encodes an activity with one record per heart rate, one second
// apart, and the optional session message.
func buildFIT(t *testing.T, fx fitFixture) []byte {
	t.Helper()

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	require.NoError(t, err)
	activity, err := file.Activity()
	require.NoError(t, err)

	event := fit.NewEventMsg()
	event.Timestamp = fixtureStart
	event.Event = fit.EventTimer
	event.EventType = fit.EventTypeStart
	activity.Events = append(activity.Events, event)

	for i, hr := range fx.heartRates {
		record := fit.NewRecordMsg()
		record.Timestamp = fixtureStart.Add(time.Duration(i) * time.Second)
		record.HeartRate = hr
		record.Cadence = 80
		record.Power = 200
		record.Altitude = 2500
		record.Speed = 3000
		record.Distance = uint32(i) * 100000
		activity.Records = append(activity.Records, record)
	}
	if fx.session != nil {
		activity.Sessions = append(activity.Sessions, fx.session)
	}

	var buf bytes.Buffer
	require.NoError(t, fit.Encode(&buf, file, binary.LittleEndian))
	return buf.Bytes()
}

func writeFIT(t *testing.T, fx fitFixture) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "activity.fit")
	require.NoError(t, os.WriteFile(path, buildFIT(t, fx), 0o644))
	return path
}

func ptrValue[T any](t *testing.T, p *T) T {
	t.Helper()
	require.NotNil(t, p)
	return *p
}
