package pipeline

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/ianaindex"
)

// ParseTCX reads a Training Center XML file. Malformed XML is an error;
// unparseable numbers inside a well-formed document become missing values.
func ParseTCX(path string) (Summary, []Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, nil, err
	}
	defer f.Close()
	return parseTCX(f)
}

type tcxPoint struct {
	time       time.Time
	hasTime    bool
	heartRate  *float64
	lat, long  *float64
	altitude   *float64
	distance   *float64
	speed      *float64
	runCadence *float64
	cadence    *float64
	watts      *float64
}

func (p *tcxPoint) sample() Sample {
	s := Sample{
		Timestamp:    isoUTC(p.time),
		PositionLat:  p.lat,
		PositionLong: p.long,
		Altitude:     p.altitude,
		Distance:     p.distance,
		Speed:        p.speed,
		Power:        p.watts,
	}
	if p.heartRate != nil {
		s.HeartRate = intPtr(int(math.RoundToEven(*p.heartRate)))
	}
	switch {
	case p.runCadence != nil:
		// RunCadence counts one foot; steps per minute is double.
		s.Cadence = floatPtr(*p.runCadence * 2)
	case p.cadence != nil:
		s.Cadence = p.cadence
	}
	return s
}

// charsetReader decodes documents whose XML declaration names a non-UTF-8
// encoding such as ISO-8859-1 or windows-1252.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("xml encoding %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("xml encoding %q is not supported", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

func parseTCX(r io.Reader) (Summary, []Sample, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	var (
		stack    []string
		text     strings.Builder
		point    *tcxPoint
		laps     int
		sawRoot  bool
		summary  Summary
		hr       heartRates
		samples  = make([]Sample, 0, 1024)
		ancestor = func(depth int) string {
			if i := len(stack) - 1 - depth; i >= 0 {
				return stack[i]
			}
			return ""
		}
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Summary{}, nil, fmt.Errorf("decode tcx: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			sawRoot = true
			stack = append(stack, t.Name.Local)
			text.Reset()
			switch t.Name.Local {
			case "Lap":
				laps++
			case "Trackpoint":
				point = &tcxPoint{}
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			value := strings.TrimSpace(text.String())
			text.Reset()
			parent := ancestor(1)

			switch {
			case point != nil && t.Name.Local == "Trackpoint":
				if point.hasTime {
					s := point.sample()
					if s.HeartRate != nil {
						hr.add(float64(*s.HeartRate))
					}
					samples = append(samples, s)
				}
				point = nil
			case point != nil:
				point.assign(t.Name.Local, parent, ancestor(2), value)
			case laps == 1 && parent == "Lap":
				switch t.Name.Local {
				case "TotalTimeSeconds":
					if v := parseNumber(value); v != nil {
						summary.TotalDurationSecs = floatPtr(round2(*v))
					}
				case "DistanceMeters":
					if v := parseNumber(value); v != nil {
						summary.TotalDistanceKm = floatPtr(round2(*v / 1000))
					}
				}
			case laps == 1 && t.Name.Local == "Value" && ancestor(2) == "Lap":
				if v := parseNumber(value); v != nil {
					switch parent {
					case "AverageHeartRateBpm":
						summary.AvgHeartRate = intPtr(int(math.RoundToEven(*v)))
					case "MaximumHeartRateBpm":
						summary.MaxHeartRate = intPtr(int(*v))
					}
				}
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !sawRoot {
		return Summary{}, nil, errors.New("decode tcx: no root element")
	}
	hr.fill(&summary)
	return summary, samples, nil
}

func (p *tcxPoint) assign(name, parent, grandparent, value string) {
	switch name {
	case "Time":
		if parent == "Trackpoint" {
			p.time, p.hasTime = parseTimestamp(value)
		}
	case "Value":
		if parent == "HeartRateBpm" && grandparent == "Trackpoint" {
			p.heartRate = parseNumber(value)
		}
	case "LatitudeDegrees":
		p.lat = parseNumber(value)
	case "LongitudeDegrees":
		p.long = parseNumber(value)
	case "AltitudeMeters":
		p.altitude = parseNumber(value)
	case "DistanceMeters":
		if parent == "Trackpoint" {
			p.distance = parseNumber(value)
		}
	case "Cadence":
		if parent == "Trackpoint" {
			p.cadence = parseNumber(value)
		}
	case "Speed":
		if parent == "TPX" {
			p.speed = parseNumber(value)
		}
	case "RunCadence":
		if parent == "TPX" {
			p.runCadence = parseNumber(value)
		}
	case "Watts":
		if parent == "TPX" {
			p.watts = parseNumber(value)
		}
	}
}

// parseNumber returns nil for empty, unparseable or non-finite text.
func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return finitePtr(v)
}
