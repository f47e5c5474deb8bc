package summary

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/persistence/memory"
)

var fixedNow = time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)

func TestClassifyTrend(t *testing.T) {
	require.Equal(t, TrendDecreasing, ClassifyTrend([]float64{80, 79, 78, 70, 69, 68}))
	require.Equal(t, TrendStable, ClassifyTrend([]float64{80, 80.5, 79.8, 80.2, 80, 79.9}))
	require.Equal(t, TrendIncreasing, ClassifyTrend([]float64{60, 61, 62, 70, 71, 72}))
	require.Equal(t, TrendInsufficient, ClassifyTrend([]float64{80}))
	require.Equal(t, TrendInsufficient, ClassifyTrend(nil))
	require.Equal(t, TrendDecreasing, ClassifyTrend([]float64{100, 100, 100, 95, 95, 95}))
	require.Equal(t, TrendIncreasing, ClassifyTrend([]float64{100, 100, 100, 105, 105, 105}))
	require.Equal(t, TrendStable, ClassifyTrend([]float64{100, 104.9, 100, 104.9}))
	// Short series compare overlapping windows.
	require.Equal(t, TrendStable, ClassifyTrend([]float64{60, 30}))
}

func TestQualityScore(t *testing.T) {
	require.Equal(t, 50, QualityScore(5, 10))
	require.Equal(t, 100, QualityScore(12, 10))
	require.Equal(t, 0, QualityScore(0, 10))
	require.Equal(t, 0, QualityScore(3, 0))
}

func TestWindow(t *testing.T) {
	w, err := LastDays(fixedNow, 7)
	require.NoError(t, err)
	require.Equal(t, "2024-03-01 to 2024-03-07", w.String())
	require.Equal(t, 7, w.Days())
	require.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), w.To())

	_, err = LastDays(fixedNow, 0)
	require.ErrorIs(t, err, ErrInvalidWindow)
	_, err = NewWindow(fixedNow, fixedNow.AddDate(0, 0, -1))
	require.ErrorIs(t, err, ErrInvalidWindow)
}

func TestConsistencyScoreCountsDistinctDays(t *testing.T) {
	w, err := LastDays(fixedNow, 4)
	require.NoError(t, err)
	times := []time.Time{
		time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC),
	}
	require.Equal(t, 50, ConsistencyScore(times, w))
}

func TestExtractActivity(t *testing.T) {
	m := ExtractActivity(map[string]any{
		"metadata": map[string]any{
			"name":       "running",
			"start_time": "2024-03-05T08:00:00Z",
			"end_time":   "2024-03-05T08:45:00Z",
		},
		"calories_data":   map[string]any{"total_burned_calories": 412.6},
		"distance_data":   map[string]any{"summary": map[string]any{"distance_meters": 7345.0, "steps": 8100.0}},
		"heart_rate_data": map[string]any{"summary": map[string]any{"avg_hr_bpm": 151.0, "max_hr_bpm": 178.0}},
		"movement_data":   map[string]any{"avg_speed_meters_per_second": 2.72},
	})
	require.Equal(t, "running", m.Type)
	require.Equal(t, 45.0, *m.DurationMinutes)
	require.Equal(t, 413.0, *m.Calories)
	require.Equal(t, 7.35, *m.DistanceKM)
	require.Equal(t, 8100.0, *m.Steps)
	require.Equal(t, 151.0, *m.AvgHeartRate)
	require.Equal(t, 9.8, *m.AvgSpeedKMH)

	empty := ExtractActivity(map[string]any{"metadata": map[string]any{"start_time": "nope", "end_time": "2024-03-05T08:45:00Z"}})
	require.Nil(t, empty.DurationMinutes)
	require.Nil(t, empty.Calories)
}

type fixture struct {
	store  *memory.Store
	engine *Engine
	connID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	dob := time.Date(1990, 6, 1, 0, 0, 0, 0, time.UTC)
	height, weight := 180.0, 80.0
	store.PutUser(domain.User{
		ID:              "42",
		DateOfBirth:     &dob,
		HeightCM:        &height,
		WeightKG:        &weight,
		BiologicalSex:   "female",
		ActivityLevel:   "very_active",
		UnitsPreference: "metric",
	})
	connID := uuid.NewString()
	require.NoError(t, store.SaveConnection(context.Background(), domain.Connection{
		ID: connID, UserID: "42", Provider: domain.Provider("whoop"), ExternalUserID: "terra-1", Status: domain.ConnectionConnected,
	}))
	engine := NewEngine(store, store, store, WithClock(func() time.Time { return fixedNow }))
	return &fixture{store: store, engine: engine, connID: connID}
}

func (f *fixture) add(t *testing.T, dataType domain.DataType, at time.Time, payload map[string]any) {
	t.Helper()
	require.NoError(t, f.store.InsertRecord(context.Background(), domain.HealthRecord{
		ID:           uuid.NewString(),
		UserID:       "42",
		ConnectionID: f.connID,
		DataType:     dataType,
		RecordedAt:   at,
		Payload:      payload,
	}))
}

func TestSummarizeWithoutDataReturnsZeroRollups(t *testing.T) {
	f := newFixture(t)

	s, err := f.engine.SummarizeDays(context.Background(), "42", 7)
	require.NoError(t, err)

	body, err := json.Marshal(s)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	require.Equal(t, map[string]any{"total_activities": 0.0}, decoded["activity_summary"])
	require.Equal(t, map[string]any{"nights_recorded": 0.0}, decoded["sleep_summary"])
	require.Equal(t, map[string]any{"data_available": false}, decoded["heart_rate_summary"])
	require.Equal(t, map[string]any{"measurements": 0.0}, decoded["body_metrics_summary"])
	require.Equal(t, []any{"whoop"}, decoded["connected_providers"])
	require.Equal(t, 0, s.DataQuality.OverallScore)
	require.Equal(t, 7, s.DataQuality.ExpectedDays)

	text := Render(s)
	require.Contains(t, text, "No activity data available")
	require.Contains(t, text, "No heart rate data available")
}

func TestSummarizeUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.SummarizeDays(context.Background(), "nobody", 7)
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestSummarizeRollsUpCategories(t *testing.T) {
	f := newFixture(t)
	day := func(d, h int) time.Time { return time.Date(2024, 3, d, h, 0, 0, 0, time.UTC) }

	f.add(t, domain.DataTypeActivity, day(5, 8), map[string]any{
		"metadata":      map[string]any{"name": "running", "start_time": "2024-03-05T08:00:00Z", "end_time": "2024-03-05T09:00:00Z"},
		"calories_data": map[string]any{"total_burned_calories": 600.0},
		"distance_data": map[string]any{"summary": map[string]any{"distance_meters": 10000.0}},
		"heart_rate_data": map[string]any{
			"summary":  map[string]any{"resting_hr_bpm": 52.0},
			"detailed": map[string]any{"hr_samples": []any{map[string]any{"bpm": 140.0}, map[string]any{"bpm": 160.0}}},
		},
	})
	f.add(t, domain.DataTypeActivity, day(6, 8), map[string]any{
		"metadata":      map[string]any{"name": "cycling", "start_time": "2024-03-06T08:00:00Z", "end_time": "2024-03-06T08:30:00Z"},
		"calories_data": map[string]any{"total_burned_calories": 300.0},
	})
	f.add(t, domain.DataTypeSleep, day(5, 23), map[string]any{
		"sleep_durations_data": map[string]any{"asleep": map[string]any{
			"duration_asleep_state_seconds":     28800.0,
			"duration_deep_sleep_state_seconds": 5400.0,
		}},
		"data_enrichment": map[string]any{"sleep_score": 81.0},
	})
	for i, w := range []float64{80, 79, 78, 70, 69, 68} {
		f.add(t, domain.DataTypeBody, day(1+i, 7), map[string]any{"weight_kg": w, "body_fat_percentage": 20.0})
	}
	// outside the window
	f.add(t, domain.DataTypeActivity, day(1, 8).AddDate(0, 0, -10), map[string]any{})

	s, err := f.engine.SummarizeDays(context.Background(), "42", 7)
	require.NoError(t, err)

	require.Equal(t, 2, s.Activity.TotalActivities)
	require.Equal(t, 900.0, s.Activity.Totals.Calories)
	require.Equal(t, 10.0, s.Activity.Totals.DistanceKM)
	require.Equal(t, 1.5, s.Activity.Totals.DurationHours)
	require.Equal(t, 450.0, s.Activity.AvgPerActivity.Calories)
	require.Equal(t, 45.0, s.Activity.AvgPerActivity.DurationMinutes)
	require.Equal(t, 1, s.Activity.ByType["running"].Count)
	require.Equal(t, TrendStable, s.Trends.ActivityTrend)

	require.Equal(t, 1, s.Sleep.NightsRecorded)
	require.Equal(t, 8.0, *s.Sleep.AvgSleepHours)
	require.Equal(t, 90.0, *s.Sleep.AvgDeepSleepMinutes)
	require.Nil(t, s.Sleep.AvgREMSleepMinutes)
	require.Equal(t, 81.0, *s.Sleep.AvgSleepScore)
	require.Equal(t, TrendInsufficient, s.Trends.SleepTrend)

	require.True(t, s.HeartRate.DataAvailable)
	require.Equal(t, 150.0, *s.HeartRate.AvgExerciseHR)
	require.Equal(t, 160.0, *s.HeartRate.MaxHR)
	require.Equal(t, 140.0, *s.HeartRate.MinHR)
	require.Equal(t, 52.0, *s.HeartRate.AvgRestingHR)

	require.Equal(t, 6, s.Body.Measurements)
	require.Equal(t, 68.0, *s.Body.LatestWeightKG)
	require.Equal(t, 74.0, *s.Body.AvgWeightKG)
	require.Equal(t, TrendDecreasing, s.Body.WeightTrend)
	require.Equal(t, TrendStable, s.Body.BodyFatTrend)

	require.Equal(t, 9, s.DataQuality.TotalRecords)
	require.Equal(t, "2/7 days", s.DataQuality.ActivityCoverage)
	require.Equal(t, 29, s.DataQuality.OverallScore)
	require.Equal(t, 29, s.Trends.ConsistencyScore)

	require.NotNil(t, s.Profile.Age)
	require.Equal(t, 33, *s.Profile.Age)

	text := Render(s)
	for _, want := range []string{
		"## User Health Profile",
		"Age: 33, Sex: female, Height: 180 cm, Weight: 80 kg, Activity Level: Very active",
		"## Recent Activity Summary (7 days)",
		"Total activities: 2",
		"- Cycling: 1 sessions",
		"## Sleep Patterns",
		"Average sleep: 8 hours",
		"## Heart Rate & Recovery",
		"Resting heart rate: 52 bpm",
		"## Body Metrics",
		"Weight trend: decreasing",
		"## Health Trends",
		"## Data Sources",
		"Connected providers: whoop",
		"Data quality: 29% (9 records)",
	} {
		require.Contains(t, text, want)
	}
	require.Less(t, strings.Index(text, "## Sleep Patterns"), strings.Index(text, "## Body Metrics"))
}

func TestActivitiesForAnalysisFiltersByType(t *testing.T) {
	f := newFixture(t)
	f.add(t, domain.DataTypeActivity, time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC), map[string]any{"metadata": map[string]any{"name": "running"}})
	f.add(t, domain.DataTypeActivity, time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC), map[string]any{"metadata": map[string]any{"name": "yoga"}})

	all, err := f.engine.ActivitiesForAnalysis(context.Background(), "42", "", fixedNow.AddDate(0, 0, -6), fixedNow)
	require.NoError(t, err)
	require.Len(t, all, 2)

	runs, err := f.engine.ActivitiesForAnalysis(context.Background(), "42", "running", fixedNow.AddDate(0, 0, -6), fixedNow)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "2024-03-05", runs[0].Date)
	require.Equal(t, "whoop", runs[0].Provider)
}

func TestDigest(t *testing.T) {
	f := newFixture(t)
	text, err := f.engine.Digest(context.Background(), "42", 3)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(text, "## User Health Profile\n"))
	require.Contains(t, text, "## Recent Activity Summary (3 days)")
}
