package fitdecode

import (
	"bufio"
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// NewMessage builds a data message from raw field values keyed by field
// number, resolving names the same way the decoder does.
func NewMessage(global uint16, raw map[uint8]any) Message {
	nums := make([]int, 0, len(raw))
	for num := range raw {
		nums = append(nums, int(num))
	}
	sort.Ints(nums)

	msg := Message{Global: global, Fields: make([]Field, 0, len(raw))}
	for _, n := range nums {
		num := uint8(n)
		sem := semanticFor(global, num)
		msg.Fields = append(msg.Fields, Field{Num: num, Name: sem.name, Units: sem.units, Value: raw[num]})
	}
	return msg
}

// Lookup returns the named field when it is present and valid.
func (m Message) Lookup(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name && !f.Invalid {
			return f, true
		}
	}
	return Field{}, false
}

// Raw returns the named field's raw numeric value.
func (m Message) Raw(name string) (float64, bool) {
	f, ok := m.Lookup(name)
	if !ok {
		return 0, false
	}
	return floatAny(f.Value)
}

// Scaled returns the named field's value with profile scaling applied.
func (m Message) Scaled(name string) (float64, bool) {
	f, ok := m.Lookup(name)
	if !ok {
		return 0, false
	}
	raw, ok := floatAny(f.Value)
	if !ok {
		return 0, false
	}
	return semanticFor(m.Global, f.Num).apply(raw), true
}

// Time returns the named timestamp field in UTC.
func (m Message) Time(name string) (time.Time, bool) {
	f, ok := m.Lookup(name)
	if !ok {
		return time.Time{}, false
	}
	raw, ok := f.Value.(uint32)
	if !ok {
		return time.Time{}, false
	}
	return TimeFromFIT(raw), true
}

// Values returns every valid field by name: timestamps as RFC 3339 strings,
// numbers with profile scaling, everything else as decoded.
func (m Message) Values() map[string]any {
	out := make(map[string]any, len(m.Fields))
	for _, f := range m.Fields {
		if f.Invalid {
			continue
		}
		sem := semanticFor(m.Global, f.Num)
		switch {
		case sem.timestamp:
			if t, ok := m.Time(f.Name); ok {
				out[f.Name] = t.Format(time.RFC3339)
			}
		default:
			if raw, ok := floatAny(f.Value); ok {
				out[f.Name] = sem.apply(raw)
			} else {
				out[f.Name] = f.Value
			}
		}
	}
	return out
}

type dumpLine struct {
	Index  int            `json:"index"`
	Offset int64          `json:"offset"`
	Global uint16         `json:"global"`
	Name   string         `json:"name"`
	Values map[string]any `json:"values"`
}

// MarshalJSONL renders messages as one JSON object per line, in file order.
func MarshalJSONL(messages []Message) ([]byte, error) {
	var buf bytes.Buffer
	w := bufio.NewWriterSize(&buf, 1<<20)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, m := range messages {
		line := dumpLine{
			Index:  m.Index,
			Offset: m.Offset,
			Global: m.Global,
			Name:   MessageName(m.Global),
			Values: m.Values(),
		}
		if err := enc.Encode(line); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
