package pipeline

import (
	"strings"
	"unicode"
)

// Canonical CSV column names.
const (
	colTimestamp        = "timestamp"
	colHeartRate        = "heart_rate"
	colPositionLat      = "position_lat"
	colPositionLong     = "position_long"
	colAltitude         = "altitude"
	colEnhancedAltitude = "enhanced_altitude"
	colSpeed            = "speed"
	colEnhancedSpeed    = "enhanced_speed"
	colCadence          = "cadence"
	colDistance         = "distance"
	colPower            = "power"
	colRespirationRate  = "respiration_rate"
	colTemperature      = "temperature"
	colGPSAccuracy      = "gps_accuracy"
)

// dateColumn is the normalized header of a calendar-date column that
// pairs with a time-of-day column.
const dateColumn = "date"

// columnAliases maps a normalized vendor header to its canonical column.
// Keys are lowercase with everything except letters and digits removed.
var columnAliases = map[string]string{
	"timestamp":    colTimestamp,
	"timestamputc": colTimestamp,
	"time":         colTimestamp,
	"timeutc":      colTimestamp,
	"datetime":     colTimestamp,
	"datetimeutc":  colTimestamp,
	"recordtime":   colTimestamp,
	"utc":          colTimestamp,

	"heartrate":    colHeartRate,
	"heartratebpm": colHeartRate,
	"hr":           colHeartRate,
	"hrbpm":        colHeartRate,
	"bpm":          colHeartRate,
	"pulse":        colHeartRate,

	"positionlat":      colPositionLat,
	"lat":              colPositionLat,
	"latitude":         colPositionLat,
	"latitudedegrees":  colPositionLat,
	"positionlong":     colPositionLong,
	"lon":              colPositionLong,
	"lng":              colPositionLong,
	"long":             colPositionLong,
	"longitude":        colPositionLong,
	"longitudedegrees": colPositionLong,

	"altitude":         colAltitude,
	"altitudem":        colAltitude,
	"altitudemeters":   colAltitude,
	"elevation":        colAltitude,
	"elevationm":       colAltitude,
	"ele":              colAltitude,
	"alt":              colAltitude,
	"enhancedaltitude": colEnhancedAltitude,

	"speed":           colSpeed,
	"speedms":         colSpeed,
	"speedmps":        colSpeed,
	"velocity":        colSpeed,
	"enhancedspeed":   colEnhancedSpeed,
	"enhancedspeedms": colEnhancedSpeed,

	"cadence":    colCadence,
	"cadencerpm": colCadence,
	"cadencespm": colCadence,
	"cad":        colCadence,

	"distance":       colDistance,
	"distancem":      colDistance,
	"distancemeters": colDistance,
	"dist":           colDistance,

	"power":      colPower,
	"powerw":     colPower,
	"powerwatts": colPower,
	"watts":      colPower,

	"respirationrate": colRespirationRate,
	"respiration":     colRespirationRate,
	"breathingrate":   colRespirationRate,
	"brpm":            colRespirationRate,

	"temperature":  colTemperature,
	"temperaturec": colTemperature,
	"temp":         colTemperature,
	"tempc":        colTemperature,

	"gpsaccuracy":        colGPSAccuracy,
	"accuracy":           colGPSAccuracy,
	"horizontalaccuracy": colGPSAccuracy,
}

// numericColumns lists every canonical column coerced to numbers.
var numericColumns = []string{
	colHeartRate, colPositionLat, colPositionLong, colAltitude, colEnhancedAltitude,
	colSpeed, colEnhancedSpeed, colCadence, colDistance, colPower,
	colRespirationRate, colTemperature, colGPSAccuracy,
}

// forwardFilled lists the columns whose gaps carry the previous value.
var forwardFilled = []string{
	colDistance, colHeartRate, colPositionLat, colPositionLong, colGPSAccuracy,
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")
	var b strings.Builder
	for _, r := range strings.ToLower(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// canonicalColumn resolves a raw header to its canonical name.
func canonicalColumn(h string) (string, bool) {
	name, ok := columnAliases[normalizeHeader(h)]
	return name, ok
}
