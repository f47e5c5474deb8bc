package summary

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render formats s as the fixed-section text digest read by the agent.
func Render(s *Summary) string {
	var b strings.Builder
	section := func(title string, lines []string) {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## " + title + "\n")
		b.WriteString(strings.Join(lines, "\n"))
	}

	section("User Health Profile", []string{renderProfile(s.Profile)})
	section(fmt.Sprintf("Recent Activity Summary (%d days)", s.Window.Days()), renderActivity(s.Activity))
	section("Sleep Patterns", renderSleep(s.Sleep))
	section("Heart Rate & Recovery", renderHeartRate(s.HeartRate))
	section("Body Metrics", renderBody(s.Body))
	section("Health Trends", renderTrends(s.Trends))

	providers := "none"
	if len(s.ConnectedProviders) > 0 {
		providers = strings.Join(s.ConnectedProviders, ", ")
	}
	section("Data Sources", []string{
		"Connected providers: " + providers,
		fmt.Sprintf("Data quality: %d%% (%d records)", s.DataQuality.OverallScore, s.DataQuality.TotalRecords),
		fmt.Sprintf("Activity coverage: %s, sleep coverage: %s", s.DataQuality.ActivityCoverage, s.DataQuality.SleepCoverage),
	})
	return b.String()
}

func renderProfile(p Profile) string {
	imperial := p.Units == "imperial"
	var parts []string
	if p.Age != nil {
		parts = append(parts, fmt.Sprintf("Age: %d", *p.Age))
	}
	if p.BiologicalSex != "" {
		parts = append(parts, "Sex: "+p.BiologicalSex)
	}
	if p.Height != nil {
		unit := "cm"
		if imperial {
			unit = "inches"
		}
		parts = append(parts, "Height: "+formatNumber(*p.Height)+" "+unit)
	}
	if p.Weight != nil {
		unit := "kg"
		if imperial {
			unit = "lbs"
		}
		parts = append(parts, "Weight: "+formatNumber(*p.Weight)+" "+unit)
	}
	if p.ActivityLevel != "" {
		parts = append(parts, "Activity Level: "+humanize(p.ActivityLevel))
	}
	if len(parts) == 0 {
		return "No profile details available"
	}
	return strings.Join(parts, ", ")
}

func renderActivity(a ActivitySummary) []string {
	if a.TotalActivities == 0 || a.Totals == nil {
		return []string{"No activity data available"}
	}
	lines := []string{
		fmt.Sprintf("Total activities: %d", a.TotalActivities),
		"Total calories burned: " + formatNumber(a.Totals.Calories),
		"Total distance: " + formatNumber(a.Totals.DistanceKM) + " km",
		"Total exercise time: " + formatNumber(a.Totals.DurationHours) + " hours",
	}
	if a.AvgPerActivity != nil {
		lines = append(lines, fmt.Sprintf("Average per activity: %s kcal, %s km, %s minutes",
			formatNumber(a.AvgPerActivity.Calories), formatNumber(a.AvgPerActivity.DistanceKM), formatNumber(a.AvgPerActivity.DurationMinutes)))
	}
	if len(a.ByType) > 0 {
		types := make([]string, 0, len(a.ByType))
		for t := range a.ByType {
			types = append(types, t)
		}
		sort.Strings(types)
		lines = append(lines, "", "Activity breakdown:")
		for _, t := range types {
			lines = append(lines, fmt.Sprintf("- %s: %d sessions", humanize(t), a.ByType[t].Count))
		}
	}
	return lines
}

func renderSleep(s SleepSummary) []string {
	if s.NightsRecorded == 0 {
		return []string{"No sleep data available"}
	}
	lines := []string{fmt.Sprintf("Nights recorded: %d", s.NightsRecorded)}
	if s.AvgSleepHours != nil {
		lines = append(lines, "Average sleep: "+formatNumber(*s.AvgSleepHours)+" hours")
	}
	if s.AvgDeepSleepMinutes != nil {
		lines = append(lines, "Average deep sleep: "+formatNumber(*s.AvgDeepSleepMinutes)+" minutes")
	}
	if s.AvgREMSleepMinutes != nil {
		lines = append(lines, "Average REM sleep: "+formatNumber(*s.AvgREMSleepMinutes)+" minutes")
	}
	if s.AvgSleepScore != nil {
		lines = append(lines, "Average sleep score: "+formatNumber(*s.AvgSleepScore))
	}
	return lines
}

func renderHeartRate(h HeartRateSummary) []string {
	if !h.DataAvailable {
		return []string{"No heart rate data available"}
	}
	var lines []string
	if h.AvgExerciseHR != nil {
		lines = append(lines, "Average exercise heart rate: "+formatNumber(*h.AvgExerciseHR)+" bpm")
	}
	if h.MaxHR != nil {
		lines = append(lines, "Max heart rate: "+formatNumber(*h.MaxHR)+" bpm")
	}
	if h.AvgRestingHR != nil {
		lines = append(lines, "Resting heart rate: "+formatNumber(*h.AvgRestingHR)+" bpm")
	}
	return append(lines, fmt.Sprintf("Heart rate samples: %d", h.TotalHRSamples))
}

func renderBody(b BodySummary) []string {
	if b.Measurements == 0 {
		return []string{"No body metrics available"}
	}
	lines := []string{fmt.Sprintf("Body measurements: %d", b.Measurements)}
	if b.LatestWeightKG != nil {
		lines = append(lines, "Latest weight: "+formatNumber(*b.LatestWeightKG)+" kg")
	}
	if b.AvgWeightKG != nil {
		lines = append(lines, "Average weight: "+formatNumber(*b.AvgWeightKG)+" kg")
	}
	if b.WeightTrend != "" && b.WeightTrend != TrendInsufficient {
		lines = append(lines, "Weight trend: "+string(b.WeightTrend))
	}
	if b.AvgBodyFatPercentage != nil {
		lines = append(lines, "Body fat: "+formatNumber(*b.AvgBodyFatPercentage)+"%")
	}
	return lines
}

func renderTrends(t Trends) []string {
	var lines []string
	if t.ActivityTrend != "" {
		lines = append(lines, "Activity trend: "+string(t.ActivityTrend))
	}
	if t.SleepTrend != "" {
		lines = append(lines, "Sleep trend: "+string(t.SleepTrend))
	}
	return append(lines, fmt.Sprintf("Consistency score: %d%%", t.ConsistencyScore))
}

// humanize turns "strength_training" into "Strength training".
func humanize(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
