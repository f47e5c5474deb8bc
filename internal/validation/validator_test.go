package validation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
)

func activity(extra map[string]any) map[string]any {
	rec := map[string]any{"metadata": map[string]any{"start_time": "2024-03-01T08:00:00Z"}}
	for k, v := range extra {
		rec[k] = v
	}
	return rec
}

func TestValidateActivity(t *testing.T) {
	cases := []struct {
		name string
		rec  any
		want bool
	}{
		{"minimal", activity(nil), true},
		{"missing start", map[string]any{"metadata": map[string]any{}}, false},
		{"unparseable start", map[string]any{"metadata": map[string]any{"start_time": "soon"}}, false},
		{"calories zero", activity(map[string]any{"calories_data": map[string]any{"total_burned_calories": 0.0}}), true},
		{"calories below limit", activity(map[string]any{"calories_data": map[string]any{"total_burned_calories": 9999.9}}), true},
		{"calories at limit", activity(map[string]any{"calories_data": map[string]any{"total_burned_calories": 10000.0}}), false},
		{"calories negative", activity(map[string]any{"calories_data": map[string]any{"total_burned_calories": -1.0}}), false},
		{"calories null", activity(map[string]any{"calories_data": map[string]any{"total_burned_calories": nil}}), true},
		{"hr 299", activity(map[string]any{"heart_rate_data": map[string]any{"summary": map[string]any{"avg_hr_bpm": 299.0}}}), true},
		{"hr 300", activity(map[string]any{"heart_rate_data": map[string]any{"summary": map[string]any{"avg_hr_bpm": 300.0}}}), false},
		{"hr zero", activity(map[string]any{"heart_rate_data": map[string]any{"summary": map[string]any{"avg_hr_bpm": 0.0}}}), false},
		{"hr string", activity(map[string]any{"heart_rate_data": map[string]any{"summary": map[string]any{"avg_hr_bpm": "fast"}}}), false},
		{"not an object", []any{1, 2}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Validate(domain.DataTypeActivity, tc.rec))
		})
	}
}

func TestValidateSleepBodyDaily(t *testing.T) {
	require.True(t, Validate(domain.DataTypeSleep, map[string]any{"sleep_duration_seconds": 86400.0}))
	require.False(t, Validate(domain.DataTypeSleep, map[string]any{"sleep_duration_seconds": 86401.0}))
	require.False(t, Validate(domain.DataTypeSleep, map[string]any{"sleep_duration_seconds": 0.0}))

	require.True(t, Validate(domain.DataTypeBody, map[string]any{"weight_kg": 80.5, "body_fat_percentage": 100.0}))
	require.False(t, Validate(domain.DataTypeBody, map[string]any{"weight_kg": 1000.0}))
	require.False(t, Validate(domain.DataTypeBody, map[string]any{"body_fat_percentage": -0.1}))

	require.True(t, Validate(domain.DataTypeDaily, map[string]any{"steps": 0.0, "distance_meters": 999999.0}))
	require.False(t, Validate(domain.DataTypeDaily, map[string]any{"steps": 100000.0}))
	require.False(t, Validate(domain.DataTypeDaily, map[string]any{"distance_meters": 1e6}))
}

func TestValidateUnknownCategoryPasses(t *testing.T) {
	require.True(t, Validate(domain.DataTypeAthlete, map[string]any{"anything": math.Inf(1)}))
	require.False(t, Validate(domain.DataTypeAthlete, "scalar"))
}

func TestCheckReportsField(t *testing.T) {
	err := Check(domain.DataTypeDaily, map[string]any{"steps": 250000.0})
	var ferr *FieldError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, "steps", ferr.Field)
}

func TestSanitize(t *testing.T) {
	raw := map[string]any{
		"user_email": "a@example.com",
		"calories":   math.Inf(1),
		"nested": map[string]any{
			"user_name": "Ada",
			"samples":   []any{1.0, math.NaN(), map[string]any{"user_email": "x", "bpm": 90.0}},
		},
	}
	got := Sanitize(raw)

	require.NotContains(t, got, "user_email")
	require.Contains(t, got, "calories")
	require.Nil(t, got["calories"])

	nested := got["nested"].(map[string]any)
	require.NotContains(t, nested, "user_name")
	samples := nested["samples"].([]any)
	require.Equal(t, 1.0, samples[0])
	require.Nil(t, samples[1])
	require.Equal(t, map[string]any{"bpm": 90.0}, samples[2])

	require.Contains(t, raw, "user_email", "input is not mutated")
	require.Equal(t, map[string]any{}, Sanitize(42))
}
