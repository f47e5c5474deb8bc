// Package validation applies per-category plausibility checks to provider
// records and strips values that must not be persisted.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/timestamp"
)

// FieldError explains why a record was rejected.
type FieldError struct {
	Field  string
	Value  any
	Reason string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s (got %v)", e.Field, e.Reason, e.Value)
}

// bound is a numeric plausibility window. Open ends exclude the limit.
type bound struct {
	path     []string
	min, max float64
	minOpen  bool
	maxOpen  bool
}

var rules = map[domain.DataType][]bound{
	domain.DataTypeActivity: {
		{path: []string{"calories_data", "total_burned_calories"}, min: 0, max: 10000, maxOpen: true},
		{path: []string{"heart_rate_data", "summary", "avg_hr_bpm"}, min: 0, max: 300, minOpen: true, maxOpen: true},
	},
	domain.DataTypeSleep: {
		{path: []string{"sleep_duration_seconds"}, min: 0, max: 86400, minOpen: true},
	},
	domain.DataTypeBody: {
		{path: []string{"weight_kg"}, min: 0, max: 1000, minOpen: true, maxOpen: true},
		{path: []string{"body_fat_percentage"}, min: 0, max: 100},
	},
	domain.DataTypeDaily: {
		{path: []string{"steps"}, min: 0, max: 100000, maxOpen: true},
		{path: []string{"distance_meters"}, min: 0, max: 1000000, maxOpen: true},
	},
}

// Validate reports whether raw is plausible for dataType.
func Validate(dataType domain.DataType, raw any) bool {
	return Check(dataType, raw) == nil
}

// Check returns a *FieldError describing the first failed rule, or nil.
// Categories without rules accept any object. Null fields count as absent.
func Check(dataType domain.DataType, raw any) error {
	record, ok := raw.(map[string]any)
	if !ok {
		return &FieldError{Reason: "record is not an object"}
	}

	if dataType == domain.DataTypeActivity {
		start := lookup(record, "metadata", "start_time")
		s, ok := start.(string)
		if !ok || s == "" {
			return &FieldError{Field: "metadata.start_time", Value: start, Reason: "is required"}
		}
		if _, err := timestamp.Parse(s); err != nil {
			return &FieldError{Field: "metadata.start_time", Value: s, Reason: "is not a timestamp"}
		}
	}

	for _, rule := range rules[dataType] {
		v := lookup(record, rule.path...)
		if v == nil {
			continue
		}
		n, ok := number(v)
		if !ok || !rule.contains(n) {
			return &FieldError{Field: rule.name(), Value: v, Reason: "is out of range " + rule.describe()}
		}
	}
	return nil
}

func (b bound) contains(n float64) bool {
	if math.IsNaN(n) {
		return false
	}
	if n < b.min || (b.minOpen && n == b.min) {
		return false
	}
	if n > b.max || (b.maxOpen && n == b.max) {
		return false
	}
	return true
}

func (b bound) name() string {
	return strings.Join(b.path, ".")
}

func (b bound) describe() string {
	lo, hi := "[", "]"
	if b.minOpen {
		lo = "("
	}
	if b.maxOpen {
		hi = ")"
	}
	return fmt.Sprintf("%s%g, %g%s", lo, b.min, b.max, hi)
}

func lookup(m map[string]any, keys ...string) any {
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

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
