package pipeline

import (
	"fmt"
	"os"

	"github.com/lucasjlepore/trackernorm/fitdecode"
)

// ParseFIT decodes a FIT activity file. Any structural or CRC failure is
// returned as an error.
func ParseFIT(path string) (Summary, []Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, nil, err
	}
	return parseFIT(data)
}

func parseFIT(data []byte) (Summary, []Sample, error) {
	file, err := fitdecode.Decode(data)
	if err != nil {
		return Summary{}, nil, fmt.Errorf("decode fit: %w", err)
	}
	summary, samples := normalizeFIT(file.Messages)
	return summary, samples, nil
}

// normalizeFIT turns decoded messages into samples, one per timestamped
// record message, and a summary built from the merged session messages.
func normalizeFIT(messages []fitdecode.Message) (Summary, []Sample) {
	var (
		samples = make([]Sample, 0, len(messages))
		session map[string]any
		hr      heartRates
	)
	for _, msg := range messages {
		switch msg.Global {
		case fitdecode.MesgRecord:
			s, ok := fitSample(msg)
			if !ok {
				continue
			}
			if s.HeartRate != nil {
				hr.add(float64(*s.HeartRate))
			}
			samples = append(samples, s)
		case fitdecode.MesgSession:
			if session == nil {
				session = make(map[string]any)
			}
			for k, v := range msg.Values() {
				session[k] = v
			}
		}
	}

	summary := Summary{Session: session}
	if meters, ok := sessionFloat(session, "total_distance"); ok {
		summary.TotalDistanceKm = floatPtr(round2(meters / 1000))
	}
	if secs, ok := sessionFloat(session, "total_elapsed_time"); ok {
		summary.TotalDurationSecs = floatPtr(round2(secs))
	}
	if v, ok := sessionFloat(session, "avg_heart_rate"); ok {
		summary.AvgHeartRate = intPtr(int(v))
	}
	if v, ok := sessionFloat(session, "max_heart_rate"); ok {
		summary.MaxHeartRate = intPtr(int(v))
	}
	hr.fill(&summary)
	return summary, samples
}

func fitSample(msg fitdecode.Message) (Sample, bool) {
	ts, ok := msg.Time("timestamp")
	if !ok {
		return Sample{}, false
	}

	s := Sample{
		Timestamp:       isoUTC(ts),
		PositionLat:     scaledField(msg, "position_lat"),
		PositionLong:    scaledField(msg, "position_long"),
		Altitude:        scaledField(msg, "enhanced_altitude", "altitude"),
		Speed:           scaledField(msg, "enhanced_speed", "speed"),
		Distance:        scaledField(msg, "distance"),
		Power:           scaledField(msg, "power"),
		RespirationRate: scaledField(msg, "enhanced_respiration_rate", "respiration_rate"),
		Temperature:     scaledField(msg, "temperature"),
		GPSAccuracy:     scaledField(msg, "gps_accuracy"),
	}
	if v, ok := msg.Raw("heart_rate"); ok {
		s.HeartRate = intPtr(int(v))
	}
	if cadence, ok := msg.Scaled("cadence"); ok {
		if frac, ok := msg.Scaled("fractional_cadence"); ok {
			cadence += frac
		}
		s.Cadence = finitePtr(cadence)
	}
	return s, true
}

// scaledField returns the first present field from a preference list.
func scaledField(msg fitdecode.Message, names ...string) *float64 {
	for _, name := range names {
		if v, ok := msg.Scaled(name); ok && finite(v) {
			return floatPtr(v)
		}
	}
	return nil
}

func sessionFloat(session map[string]any, key string) (float64, bool) {
	v, ok := session[key].(float64)
	if !ok || !finite(v) {
		return 0, false
	}
	return v, true
}
