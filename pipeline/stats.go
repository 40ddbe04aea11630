package pipeline

import (
	"math"
	"time"
)

const (
	isoSecondsLayout = "2006-01-02T15:04:05-07:00"
	isoMicrosLayout  = "2006-01-02T15:04:05.000000-07:00"
)

// isoUTC renders t in UTC with a numeric offset, adding microseconds only
// when the instant has a sub-second part.
func isoUTC(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format(isoSecondsLayout)
	}
	return t.Format(isoMicrosLayout)
}

// round2 rounds half to even at two decimal places.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func floatPtr(v float64) *float64 {
	out := v
	return &out
}

func intPtr(v int) *int {
	out := v
	return &out
}

// finitePtr returns nil for NaN and infinities.
func finitePtr(v float64) *float64 {
	if !finite(v) {
		return nil
	}
	return floatPtr(v)
}

// heartRates accumulates per-sample heart rates for summary fallbacks.
type heartRates struct {
	sum   float64
	count int
	max   float64
}

func (h *heartRates) add(v float64) {
	if !finite(v) {
		return
	}
	if h.count == 0 || v > h.max {
		h.max = v
	}
	h.sum += v
	h.count++
}

func (h *heartRates) avg() (*int, bool) {
	if h.count == 0 {
		return nil, false
	}
	return intPtr(int(math.RoundToEven(h.sum / float64(h.count)))), true
}

func (h *heartRates) peak() (*int, bool) {
	if h.count == 0 {
		return nil, false
	}
	return intPtr(int(h.max)), true
}

// fill sets avg/max heart rate from the accumulator where the
// summary does not already carry them.
func (h *heartRates) fill(s *Summary) {
	if s.AvgHeartRate == nil {
		s.AvgHeartRate, _ = h.avg()
	}
	if s.MaxHeartRate == nil {
		s.MaxHeartRate, _ = h.peak()
	}
}
