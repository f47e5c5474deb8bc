package summary

import (
	"fmt"
	"math"

	"example.com/healthsync/internal/timestamp"
)

// ActivityMetrics are the figures read from one activity payload. Nil means
// the provider did not report the value.
type ActivityMetrics struct {
	Type            string   `json:"type,omitempty"`
	StartTime       string   `json:"start_time,omitempty"`
	EndTime         string   `json:"end_time,omitempty"`
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
	Calories        *float64 `json:"calories,omitempty"`
	DistanceKM      *float64 `json:"distance_km,omitempty"`
	Steps           *float64 `json:"steps,omitempty"`
	AvgHeartRate    *float64 `json:"avg_heart_rate,omitempty"`
	MaxHeartRate    *float64 `json:"max_heart_rate,omitempty"`
	AvgSpeedKMH     *float64 `json:"avg_speed_kmh,omitempty"`
}

// ExtractActivity reads activity metrics from a provider payload.
func ExtractActivity(raw map[string]any) ActivityMetrics {
	var m ActivityMetrics
	if raw == nil {
		return m
	}
	m.Type = text(path(raw, "metadata", "name"))
	if m.Type == "" {
		m.Type = text(path(raw, "metadata", "type"))
	}
	m.StartTime = text(path(raw, "metadata", "start_time"))
	m.EndTime = text(path(raw, "metadata", "end_time"))
	m.DurationMinutes = durationMinutes(m.StartTime, m.EndTime)

	if v, ok := num(path(raw, "calories_data", "total_burned_calories")); ok {
		m.Calories = ptr(math.Round(v))
	}
	if v, ok := num(path(raw, "distance_data", "summary", "distance_meters")); ok {
		m.DistanceKM = ptr(round(v/1000, 2))
	}
	if v, ok := num(path(raw, "distance_data", "summary", "steps")); ok {
		m.Steps = ptr(v)
	}
	if v, ok := num(path(raw, "heart_rate_data", "summary", "avg_hr_bpm")); ok {
		m.AvgHeartRate = ptr(v)
	}
	if v, ok := num(path(raw, "heart_rate_data", "summary", "max_hr_bpm")); ok {
		m.MaxHeartRate = ptr(v)
	}
	if v, ok := num(path(raw, "movement_data", "avg_speed_meters_per_second")); ok {
		m.AvgSpeedKMH = ptr(round(v*3.6, 1))
	}
	return m
}

type heartRate struct {
	samples []float64
	resting *float64
}

func extractHeartRate(raw map[string]any) heartRate {
	var hr heartRate
	if samples, ok := path(raw, "heart_rate_data", "detailed", "hr_samples").([]any); ok {
		for _, s := range samples {
			sample, ok := s.(map[string]any)
			if !ok {
				continue
			}
			if bpm, ok := num(sample["bpm"]); ok {
				hr.samples = append(hr.samples, bpm)
			}
		}
	}
	if v, ok := num(path(raw, "heart_rate_data", "summary", "resting_hr_bpm")); ok {
		hr.resting = ptr(v)
	}
	return hr
}

type sleepMetrics struct {
	totalMinutes *float64
	deepMinutes  *float64
	remMinutes   *float64
	score        *float64
}

func extractSleep(raw map[string]any) sleepMetrics {
	var s sleepMetrics
	asleep := func(field string) *float64 {
		if v, ok := num(path(raw, "sleep_durations_data", "asleep", field)); ok {
			return ptr(v / 60)
		}
		return nil
	}
	s.totalMinutes = asleep("duration_asleep_state_seconds")
	if s.totalMinutes == nil {
		if v, ok := num(raw["sleep_duration_seconds"]); ok {
			s.totalMinutes = ptr(v / 60)
		}
	}
	s.deepMinutes = asleep("duration_deep_sleep_state_seconds")
	s.remMinutes = asleep("duration_REM_sleep_state_seconds")

	for _, p := range [][]string{{"data_enrichment", "sleep_score"}, {"scores", "sleep"}, {"sleep_score"}} {
		if v, ok := num(path(raw, p...)); ok {
			s.score = ptr(v)
			break
		}
	}
	return s
}

// extractBody returns every weight and body-fat reading in a body payload,
// preferring flat fields and falling back to the measurements list.
func extractBody(raw map[string]any) (weights, bodyFat []float64) {
	if v, ok := num(raw["weight_kg"]); ok {
		weights = append(weights, v)
	}
	if v, ok := num(raw["body_fat_percentage"]); ok {
		bodyFat = append(bodyFat, v)
	}
	if len(weights) > 0 || len(bodyFat) > 0 {
		return weights, bodyFat
	}

	list, _ := path(raw, "measurements_data", "measurements").([]any)
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := num(m["weight_kg"]); ok {
			weights = append(weights, v)
		}
		if v, ok := num(m["bodyfat_percentage"]); ok {
			bodyFat = append(bodyFat, v)
		}
	}
	return weights, bodyFat
}

func durationMinutes(start, end string) *float64 {
	if start == "" || end == "" {
		return nil
	}
	from, err := timestamp.Parse(start)
	if err != nil {
		return nil
	}
	to, err := timestamp.Parse(end)
	if err != nil {
		return nil
	}
	return ptr(math.Round(to.Sub(from).Minutes()))
}

func path(m map[string]any, keys ...string) any {
	var cur any = m
	for _, k := range keys {
		next, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = next[k]
	}
	return cur
}

func num(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func text(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return fmt.Sprintf("%g", s)
	default:
		return fmt.Sprint(s)
	}
}

func ptr[T any](v T) *T { return &v }

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
