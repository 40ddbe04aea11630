package fitdecode

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tormoder/fit"
)

// fieldSemantic carries the profile name and scaling of a field.
// Scaled value = raw/scale - offset. Semicircle fields convert to degrees.
type fieldSemantic struct {
	name      string
	units     string
	scale     float64
	offset    float64
	timestamp bool
}

var fitEpoch = time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)

const semicircleDegrees = 180.0 / (1 << 31)

func ts(name string) fieldSemantic {
	return fieldSemantic{name: name, units: "s", timestamp: true}
}

var semanticsByMessage = map[uint16]map[uint8]fieldSemantic{
	MesgFileID: {
		0: {name: "type"},
		1: {name: "manufacturer"},
		2: {name: "product"},
		3: {name: "serial_number"},
		4: ts("time_created"),
		5: {name: "number"},
		8: {name: "product_name"},
	},
	MesgSession: {
		253: ts("timestamp"),
		254: {name: "message_index"},
		0:   {name: "event"},
		1:   {name: "event_type"},
		2:   ts("start_time"),
		3:   {name: "start_position_lat", units: "semicircles"},
		4:   {name: "start_position_long", units: "semicircles"},
		5:   {name: "sport"},
		6:   {name: "sub_sport"},
		7:   {name: "total_elapsed_time", units: "s", scale: 1000},
		8:   {name: "total_timer_time", units: "s", scale: 1000},
		9:   {name: "total_distance", units: "m", scale: 100},
		10:  {name: "total_cycles", units: "cycles"},
		11:  {name: "total_calories", units: "kcal"},
		14:  {name: "avg_speed", units: "m/s", scale: 1000},
		15:  {name: "max_speed", units: "m/s", scale: 1000},
		16:  {name: "avg_heart_rate", units: "bpm"},
		17:  {name: "max_heart_rate", units: "bpm"},
		18:  {name: "avg_cadence", units: "rpm"},
		19:  {name: "max_cadence", units: "rpm"},
		20:  {name: "avg_power", units: "watts"},
		21:  {name: "max_power", units: "watts"},
		22:  {name: "total_ascent", units: "m"},
		23:  {name: "total_descent", units: "m"},
		25:  {name: "first_lap_index"},
		26:  {name: "num_laps"},
		34:  {name: "normalized_power", units: "watts"},
		57:  {name: "avg_temperature", units: "C"},
		58:  {name: "max_temperature", units: "C"},
		124: {name: "enhanced_avg_speed", units: "m/s", scale: 1000},
		125: {name: "enhanced_max_speed", units: "m/s", scale: 1000},
	},
	MesgLap: {
		253: ts("timestamp"),
		2:   ts("start_time"),
		7:   {name: "total_elapsed_time", units: "s", scale: 1000},
		8:   {name: "total_timer_time", units: "s", scale: 1000},
		9:   {name: "total_distance", units: "m", scale: 100},
		13:  {name: "avg_speed", units: "m/s", scale: 1000},
		14:  {name: "max_speed", units: "m/s", scale: 1000},
		15:  {name: "avg_heart_rate", units: "bpm"},
		16:  {name: "max_heart_rate", units: "bpm"},
		17:  {name: "avg_cadence", units: "rpm"},
		18:  {name: "max_cadence", units: "rpm"},
		19:  {name: "avg_power", units: "watts"},
		20:  {name: "max_power", units: "watts"},
	},
	MesgRecord: {
		253: ts("timestamp"),
		0:   {name: "position_lat", units: "semicircles"},
		1:   {name: "position_long", units: "semicircles"},
		2:   {name: "altitude", units: "m", scale: 5, offset: 500},
		3:   {name: "heart_rate", units: "bpm"},
		4:   {name: "cadence", units: "rpm"},
		5:   {name: "distance", units: "m", scale: 100},
		6:   {name: "speed", units: "m/s", scale: 1000},
		7:   {name: "power", units: "watts"},
		9:   {name: "grade", units: "%", scale: 100},
		13:  {name: "temperature", units: "C"},
		31:  {name: "gps_accuracy", units: "m"},
		53:  {name: "fractional_cadence", units: "rpm", scale: 128},
		73:  {name: "enhanced_speed", units: "m/s", scale: 1000},
		78:  {name: "enhanced_altitude", units: "m", scale: 5, offset: 500},
		99:  {name: "respiration_rate", units: "breaths/min", scale: 100},
		108: {name: "enhanced_respiration_rate", units: "breaths/min", scale: 100},
	},
	MesgEvent: {
		253: ts("timestamp"),
		0:   {name: "event"},
		1:   {name: "event_type"},
		2:   {name: "data16"},
		3:   {name: "data"},
		4:   {name: "event_group"},
	},
}

var semanticsByName = indexByName()

func indexByName() map[uint16]map[string]fieldSemantic {
	out := make(map[uint16]map[string]fieldSemantic, len(semanticsByMessage))
	for global, fields := range semanticsByMessage {
		byName := make(map[string]fieldSemantic, len(fields))
		for _, s := range fields {
			byName[s.name] = s
		}
		out[global] = byName
	}
	return out
}

func semanticFor(global uint16, field uint8) fieldSemantic {
	if m, ok := semanticsByMessage[global]; ok {
		if s, ok := m[field]; ok {
			return s
		}
	}
	return fieldSemantic{name: fmt.Sprintf("unknown_%d", field)}
}

func (s fieldSemantic) apply(raw float64) float64 {
	switch {
	case s.units == "semicircles":
		return raw * semicircleDegrees
	case s.scale != 0:
		return raw/s.scale - s.offset
	default:
		return raw
	}
}

// ScaleField applies the profile scaling of the named field of a global
// message to a raw value. It reports false for names it does not know.
func ScaleField(global uint16, name string, raw float64) (float64, bool) {
	s, ok := semanticsByName[global][name]
	if !ok {
		return 0, false
	}
	return s.apply(raw), true
}

// SemicirclesToDegrees converts a FIT semicircle coordinate to degrees.
func SemicirclesToDegrees(raw float64) float64 {
	return raw * semicircleDegrees
}

// TimeFromFIT converts seconds since the FIT epoch to UTC.
func TimeFromFIT(raw uint32) time.Time {
	return fitEpoch.Add(time.Duration(raw) * time.Second)
}

// MessageName returns the profile name of a global message number.
func MessageName(global uint16) string {
	name := fmt.Sprint(fit.MesgNum(global))
	if strings.HasPrefix(name, "MesgNum(") {
		return fmt.Sprintf("global_%d", global)
	}
	return name
}

func floatAny(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}
