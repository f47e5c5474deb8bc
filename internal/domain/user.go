package domain

import (
	"math"
	"time"
)

// Units preferences.
const (
	UnitsMetric   = "metric"
	UnitsImperial = "imperial"
)

// User is the profile owned by the surrounding application. Ingestion only reads it.
type User struct {
	ID              string
	Email           string
	FirstName       string
	LastName        string
	DateOfBirth     *time.Time
	HeightCM        *float64
	WeightKG        *float64
	BiologicalSex   string
	ActivityLevel   string
	TimeZone        string
	UnitsPreference string
}

// Units returns the user's preferred unit system, defaulting to metric.
func (u User) Units() string {
	if u.UnitsPreference == UnitsImperial {
		return UnitsImperial
	}
	return UnitsMetric
}

// Age returns the user's age in whole years at now, or nil without a birth date.
func (u User) Age(now time.Time) *int {
	if u.DateOfBirth == nil {
		return nil
	}
	dob := u.DateOfBirth.UTC()
	now = now.UTC()
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return &age
}

// HeightInPreferredUnits returns height in cm or inches.
func (u User) HeightInPreferredUnits() *float64 {
	if u.HeightCM == nil {
		return nil
	}
	v := *u.HeightCM
	if u.Units() == UnitsImperial {
		v = math.Round(v/2.54*10) / 10
	}
	return &v
}

// WeightInPreferredUnits returns weight in kg or pounds.
func (u User) WeightInPreferredUnits() *float64 {
	if u.WeightKG == nil {
		return nil
	}
	v := *u.WeightKG
	if u.Units() == UnitsImperial {
		v = math.Round(v*2.20462*10) / 10
	}
	return &v
}
