// Package timestamp derives the canonical recorded-at instant of a provider record.
package timestamp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMissingTimestamp is returned when neither timestamp field is present.
var ErrMissingTimestamp = errors.New("record has no start_time or ts_utc")

// Candidate fields in priority order.
const (
	FieldStartTime = "metadata.start_time"
	FieldTSUTC     = "ts_utc"
)

// layouts accepted in addition to RFC 3339. Zone-less values are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseError describes a timestamp field that was present but unusable.
type ParseError struct {
	Field string
	Value any
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable %s: %v", e.Field, e.Value)
}

// Parse reads a provider timestamp string and returns it in UTC.
func Parse(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ParseError{Value: value}
}

// Resolve returns the first present timestamp of metadata.start_time and ts_utc.
// A present but malformed value yields a *ParseError; later candidates are not consulted.
func Resolve(raw map[string]any) (time.Time, error) {
	candidates := []struct {
		field string
		value any
	}{
		{FieldStartTime, nested(raw, "metadata", "start_time")},
		{FieldTSUTC, raw["ts_utc"]},
	}
	for _, c := range candidates {
		if absent(c.value) {
			continue
		}
		s, ok := c.value.(string)
		if !ok {
			return time.Time{}, &ParseError{Field: c.field, Value: c.value}
		}
		t, err := Parse(s)
		if err != nil {
			return time.Time{}, &ParseError{Field: c.field, Value: s}
		}
		return t, nil
	}
	return time.Time{}, ErrMissingTimestamp
}

// Resolution is the outcome of ResolveOrFallback.
type Resolution struct {
	At       time.Time
	Fallback bool
	Err      error
}

// ResolveOrFallback resolves the record timestamp, substituting now when resolution fails.
// The returned Resolution flags the substitution so callers can record it.
func ResolveOrFallback(raw map[string]any, now time.Time) Resolution {
	t, err := Resolve(raw)
	if err != nil {
		return Resolution{At: now.UTC(), Fallback: true, Err: err}
	}
	return Resolution{At: t}
}

func nested(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[k]
	}
	return cur
}

func absent(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
