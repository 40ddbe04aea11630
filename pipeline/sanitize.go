package pipeline

// Sanitize returns a copy of s in which every non-finite float is replaced
// by null. A nil summary yields an empty one. Sanitize is idempotent and
// never modifies its input.
func Sanitize(s *Summary) Summary {
	if s == nil {
		return Summary{}
	}
	out := Summary{
		TotalDistanceKm:   sanitizeFloat(s.TotalDistanceKm),
		TotalDurationSecs: sanitizeFloat(s.TotalDurationSecs),
	}
	if s.AvgHeartRate != nil {
		out.AvgHeartRate = intPtr(*s.AvgHeartRate)
	}
	if s.MaxHeartRate != nil {
		out.MaxHeartRate = intPtr(*s.MaxHeartRate)
	}
	if s.Session != nil {
		out.Session = sanitizeMap(s.Session)
	}
	return out
}

func sanitizeFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return finitePtr(*v)
}

func sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch x := v.(type) {
	case float64:
		if !finite(x) {
			return nil
		}
		return x
	case float32:
		if !finite(float64(x)) {
			return nil
		}
		return x
	case *float64:
		if x == nil || !finite(*x) {
			return nil
		}
		return floatPtr(*x)
	case map[string]any:
		return sanitizeMap(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}
