// Package summary computes health rollups over a date window and renders
// them as a text digest for the conversational agent.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/logging"
)

// Summary is the computed snapshot for one user and window.
type Summary struct {
	UserID             string           `json:"user_id"`
	Profile            Profile          `json:"user_profile"`
	Activity           ActivitySummary  `json:"activity_summary"`
	Sleep              SleepSummary     `json:"sleep_summary"`
	HeartRate          HeartRateSummary `json:"heart_rate_summary"`
	Body               BodySummary      `json:"body_metrics_summary"`
	Trends             Trends           `json:"recent_trends"`
	DataQuality        DataQuality      `json:"data_quality"`
	ConnectedProviders []string         `json:"connected_providers"`
	AnalysisPeriod     string           `json:"analysis_period"`
	Window             Window           `json:"-"`
}

type Profile struct {
	Age           *int     `json:"age,omitempty"`
	BiologicalSex string   `json:"biological_sex,omitempty"`
	Height        *float64 `json:"height,omitempty"`
	Weight        *float64 `json:"weight,omitempty"`
	ActivityLevel string   `json:"activity_level,omitempty"`
	Units         string   `json:"units"`
}

// ActivitySummary holds only TotalActivities when the window has no activities.
type ActivitySummary struct {
	TotalActivities int                    `json:"total_activities"`
	ByType          map[string]*TypeRollup `json:"activities_by_type,omitempty"`
	Totals          *ActivityTotals        `json:"totals,omitempty"`
	AvgPerActivity  *ActivityAverages      `json:"avg_per_activity,omitempty"`
}

type TypeRollup struct {
	Count         int     `json:"count"`
	TotalCalories float64 `json:"total_calories"`
	TotalDistance float64 `json:"total_distance"`
	TotalDuration float64 `json:"total_duration"`
}

type ActivityTotals struct {
	Calories      float64 `json:"calories"`
	DistanceKM    float64 `json:"distance_km"`
	DurationHours float64 `json:"duration_hours"`
}

type ActivityAverages struct {
	Calories        float64 `json:"calories"`
	DistanceKM      float64 `json:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes"`
}

// SleepSummary holds only NightsRecorded when no nights were recorded.
type SleepSummary struct {
	NightsRecorded      int      `json:"nights_recorded"`
	AvgSleepHours       *float64 `json:"avg_sleep_hours,omitempty"`
	AvgDeepSleepMinutes *float64 `json:"avg_deep_sleep_minutes,omitempty"`
	AvgREMSleepMinutes  *float64 `json:"avg_rem_sleep_minutes,omitempty"`
	AvgSleepScore       *float64 `json:"avg_sleep_score,omitempty"`
}

// HeartRateSummary reports DataAvailable false rather than zeros when no samples exist.
type HeartRateSummary struct {
	DataAvailable  bool     `json:"data_available"`
	AvgExerciseHR  *float64 `json:"avg_exercise_hr,omitempty"`
	MaxHR          *float64 `json:"max_hr,omitempty"`
	MinHR          *float64 `json:"min_hr,omitempty"`
	AvgRestingHR   *float64 `json:"avg_resting_hr,omitempty"`
	TotalHRSamples int      `json:"total_hr_samples,omitempty"`
}

type BodySummary struct {
	Measurements         int      `json:"measurements"`
	LatestWeightKG       *float64 `json:"latest_weight_kg,omitempty"`
	AvgWeightKG          *float64 `json:"avg_weight_kg,omitempty"`
	WeightTrend          Trend    `json:"weight_trend,omitempty"`
	AvgBodyFatPercentage *float64 `json:"avg_body_fat_percentage,omitempty"`
	BodyFatTrend         Trend    `json:"body_fat_trend,omitempty"`
}

type Trends struct {
	ActivityTrend    Trend `json:"activity_trend"`
	SleepTrend       Trend `json:"sleep_trend"`
	ConsistencyScore int   `json:"consistency_score"`
}

type DataQuality struct {
	TotalRecords     int    `json:"total_records"`
	ExpectedDays     int    `json:"expected_days"`
	ActivityDays     int    `json:"activity_days"`
	SleepDays        int    `json:"sleep_days"`
	ActivityCoverage string `json:"activity_coverage"`
	SleepCoverage    string `json:"sleep_coverage"`
	OverallScore     int    `json:"overall_score"`
}

// ActivityEntry is one activity prepared for focused analysis.
type ActivityEntry struct {
	Date     string          `json:"date"`
	Provider string          `json:"provider,omitempty"`
	Activity ActivityMetrics `json:"activity"`
}

// Engine computes summaries from stored records. It never writes.
type Engine struct {
	users       domain.UserRepository
	connections domain.ConnectionRepository
	records     domain.RecordRepository
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the clock used for relative windows and ages.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(users domain.UserRepository, connections domain.ConnectionRepository, records domain.RecordRepository, opts ...Option) *Engine {
	e := &Engine{
		users:       users,
		connections: connections,
		records:     records,
		logger:      logging.Discard(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SummarizeDays summarizes the last days days, today included.
func (e *Engine) SummarizeDays(ctx context.Context, userID string, days int) (*Summary, error) {
	w, err := LastDays(e.now(), days)
	if err != nil {
		return nil, err
	}
	return e.summarize(ctx, userID, w)
}

// Summarize summarizes the inclusive date range [start, end].
func (e *Engine) Summarize(ctx context.Context, userID string, start, end time.Time) (*Summary, error) {
	w, err := NewWindow(start, end)
	if err != nil {
		return nil, err
	}
	return e.summarize(ctx, userID, w)
}

// Digest renders the summary of the last days days as text.
func (e *Engine) Digest(ctx context.Context, userID string, days int) (string, error) {
	s, err := e.SummarizeDays(ctx, userID, days)
	if err != nil {
		return "", err
	}
	return Render(s), nil
}

// ActivitiesForAnalysis lists activities in [start, end], optionally of one type.
func (e *Engine) ActivitiesForAnalysis(ctx context.Context, userID, activityType string, start, end time.Time) ([]ActivityEntry, error) {
	w, err := NewWindow(start, end)
	if err != nil {
		return nil, err
	}
	recs, err := e.load(ctx, userID, domain.DataTypeActivity, w)
	if err != nil {
		return nil, err
	}
	conns, err := e.connections.ListConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	providers := make(map[string]string, len(conns))
	for _, c := range conns {
		providers[c.ID] = string(c.Provider)
	}

	entries := make([]ActivityEntry, 0, len(recs))
	for _, rec := range recs {
		m := ExtractActivity(rec.Payload)
		if activityType != "" && m.Type != activityType {
			continue
		}
		entries = append(entries, ActivityEntry{
			Date:     rec.RecordedAt.UTC().Format(time.DateOnly),
			Provider: providers[rec.ConnectionID],
			Activity: m,
		})
	}
	return entries, nil
}

func (e *Engine) summarize(ctx context.Context, userID string, w Window) (*Summary, error) {
	user, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	activities, err := e.load(ctx, userID, domain.DataTypeActivity, w)
	if err != nil {
		return nil, err
	}
	sleeps, err := e.load(ctx, userID, domain.DataTypeSleep, w)
	if err != nil {
		return nil, err
	}
	bodies, err := e.load(ctx, userID, domain.DataTypeBody, w)
	if err != nil {
		return nil, err
	}
	total, err := e.records.CountRecords(ctx, domain.RecordQuery{UserID: userID, From: w.From(), To: w.To()})
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	providers, err := e.connectedProviders(ctx, userID)
	if err != nil {
		return nil, err
	}

	sleep, sleepSeries := summarizeSleep(sleeps)
	activity, durations := summarizeActivities(activities)
	s := &Summary{
		UserID:             userID,
		Profile:            profileOf(*user, e.now()),
		Activity:           activity,
		Sleep:              sleep,
		HeartRate:          summarizeHeartRate(activities),
		Body:               summarizeBody(bodies),
		ConnectedProviders: providers,
		AnalysisPeriod:     w.String(),
		Window:             w,
	}

	activityTimes := make([]time.Time, 0, len(activities))
	for _, rec := range activities {
		activityTimes = append(activityTimes, rec.RecordedAt)
	}
	s.Trends = Trends{
		ActivityTrend:    ClassifyTrend(durations),
		SleepTrend:       ClassifyTrend(sleepSeries),
		ConsistencyScore: ConsistencyScore(activityTimes, w),
	}

	expected := w.Days()
	s.DataQuality = DataQuality{
		TotalRecords:     total,
		ExpectedDays:     expected,
		ActivityDays:     len(activities),
		SleepDays:        len(sleeps),
		ActivityCoverage: fmt.Sprintf("%d/%d days", len(activities), expected),
		SleepCoverage:    fmt.Sprintf("%d/%d days", len(sleeps), expected),
		OverallScore:     QualityScore(len(activities), expected),
	}

	e.logger.Debug("summary computed", "user_id", userID, "window", w.String(), "records", total)
	return s, nil
}

func (e *Engine) load(ctx context.Context, userID string, dataType domain.DataType, w Window) ([]domain.HealthRecord, error) {
	recs, err := e.records.ListRecords(ctx, domain.RecordQuery{
		UserID:   userID,
		DataType: dataType,
		From:     w.From(),
		To:       w.To(),
	})
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", dataType, err)
	}
	return recs, nil
}

func (e *Engine) connectedProviders(ctx context.Context, userID string) ([]string, error) {
	conns, err := e.connections.ListConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	providers := []string{}
	for _, c := range conns {
		if c.Status != domain.ConnectionConnected {
			continue
		}
		if p := string(c.Provider); !slices.Contains(providers, p) {
			providers = append(providers, p)
		}
	}
	sort.Strings(providers)
	return providers, nil
}

func profileOf(u domain.User, now time.Time) Profile {
	return Profile{
		Age:           u.Age(now),
		BiologicalSex: u.BiologicalSex,
		Height:        u.HeightInPreferredUnits(),
		Weight:        u.WeightInPreferredUnits(),
		ActivityLevel: u.ActivityLevel,
		Units:         u.Units(),
	}
}

// summarizeActivities also returns the per-activity duration series, in record order.
func summarizeActivities(recs []domain.HealthRecord) (ActivitySummary, []float64) {
	if len(recs) == 0 {
		return ActivitySummary{TotalActivities: 0}, nil
	}

	byType := map[string]*TypeRollup{}
	var calories, distance, duration float64
	var durations []float64
	for _, rec := range recs {
		m := ExtractActivity(rec.Payload)
		kind := m.Type
		if kind == "" {
			kind = "unknown"
		}
		roll, ok := byType[kind]
		if !ok {
			roll = &TypeRollup{}
			byType[kind] = roll
		}
		c, d, t := deref(m.Calories), deref(m.DistanceKM), deref(m.DurationMinutes)
		roll.Count++
		roll.TotalCalories += c
		roll.TotalDistance += d
		roll.TotalDuration += t
		calories += c
		distance += d
		duration += t
		if m.DurationMinutes != nil {
			durations = append(durations, *m.DurationMinutes)
		}
	}

	n := float64(len(recs))
	return ActivitySummary{
		TotalActivities: len(recs),
		ByType:          byType,
		Totals: &ActivityTotals{
			Calories:      math.Round(calories),
			DistanceKM:    round(distance, 1),
			DurationHours: round(duration/60, 1),
		},
		AvgPerActivity: &ActivityAverages{
			Calories:        math.Round(calories / n),
			DistanceKM:      round(distance/n, 1),
			DurationMinutes: math.Round(duration / n),
		},
	}, durations
}

// summarizeSleep also returns the nightly sleep-minutes series.
func summarizeSleep(recs []domain.HealthRecord) (SleepSummary, []float64) {
	if len(recs) == 0 {
		return SleepSummary{NightsRecorded: 0}, nil
	}
	var (
		total, deep, rem float64
		hasDeep, hasREM  bool
		scores, nightly  []float64
	)
	for _, rec := range recs {
		s := extractSleep(rec.Payload)
		if s.totalMinutes != nil {
			total += *s.totalMinutes
			nightly = append(nightly, *s.totalMinutes)
		}
		if s.deepMinutes != nil {
			deep += *s.deepMinutes
			hasDeep = true
		}
		if s.remMinutes != nil {
			rem += *s.remMinutes
			hasREM = true
		}
		if s.score != nil {
			scores = append(scores, *s.score)
		}
	}

	nights := float64(len(recs))
	out := SleepSummary{
		NightsRecorded: len(recs),
		AvgSleepHours:  ptr(round(total/nights/60, 1)),
	}
	if hasDeep {
		out.AvgDeepSleepMinutes = ptr(math.Round(deep / nights))
	}
	if hasREM {
		out.AvgREMSleepMinutes = ptr(math.Round(rem / nights))
	}
	if len(scores) > 0 {
		out.AvgSleepScore = ptr(math.Round(mean(scores)))
	}
	return out, nightly
}

func summarizeHeartRate(activities []domain.HealthRecord) HeartRateSummary {
	var samples, resting []float64
	for _, rec := range activities {
		hr := extractHeartRate(rec.Payload)
		samples = append(samples, hr.samples...)
		if hr.resting != nil {
			resting = append(resting, *hr.resting)
		}
	}
	if len(samples) == 0 {
		return HeartRateSummary{DataAvailable: false}
	}

	out := HeartRateSummary{
		DataAvailable:  true,
		AvgExerciseHR:  ptr(math.Round(mean(samples))),
		MaxHR:          ptr(slices.Max(samples)),
		MinHR:          ptr(slices.Min(samples)),
		TotalHRSamples: len(samples),
	}
	if len(resting) > 0 {
		out.AvgRestingHR = ptr(math.Round(mean(resting)))
	}
	return out
}

func summarizeBody(recs []domain.HealthRecord) BodySummary {
	if len(recs) == 0 {
		return BodySummary{Measurements: 0}
	}
	var weights, fats []float64
	for _, rec := range recs {
		w, f := extractBody(rec.Payload)
		weights = append(weights, w...)
		fats = append(fats, f...)
	}

	out := BodySummary{
		Measurements: len(recs),
		WeightTrend:  ClassifyTrend(weights),
		BodyFatTrend: ClassifyTrend(fats),
	}
	if len(weights) > 0 {
		out.LatestWeightKG = ptr(weights[len(weights)-1])
		out.AvgWeightKG = ptr(round(mean(weights), 1))
	}
	if len(fats) > 0 {
		out.AvgBodyFatPercentage = ptr(round(mean(fats), 1))
	}
	return out
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
