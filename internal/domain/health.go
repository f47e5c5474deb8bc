// Package domain defines the health records, provider connections and users
// that the ingestion and summary layers operate on.
package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrUserNotFound is returned when a user cannot be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrConnectionNotFound is returned when a provider connection cannot be located.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrDuplicateRecord indicates the storage uniqueness constraint rejected an insert.
	ErrDuplicateRecord = errors.New("health record already exists")
)

// DataType classifies a health record.
type DataType string

const (
	DataTypeSteps                DataType = "steps"
	DataTypeHeartRate            DataType = "heart_rate"
	DataTypeHeartRateVariability DataType = "heart_rate_variability"
	DataTypeSleep                DataType = "sleep"
	DataTypeActivity             DataType = "activity"
	DataTypeWorkout              DataType = "workout"
	DataTypeBodyWeight           DataType = "body_weight"
	DataTypeBodyFat              DataType = "body_fat"
	DataTypeBloodPressure        DataType = "blood_pressure"
	DataTypeBloodGlucose         DataType = "blood_glucose"
	DataTypeActiveEnergy         DataType = "active_energy"
	DataTypeDistance             DataType = "distance"
	DataTypeFloorsClimbed        DataType = "floors_climbed"
	DataTypeVO2Max               DataType = "vo2_max"
	DataTypeRespiratoryRate      DataType = "respiratory_rate"
	DataTypeDaily                DataType = "daily"
	DataTypeBody                 DataType = "body"
	DataTypeAthlete              DataType = "athlete"
)

var knownDataTypes = map[DataType]struct{}{
	DataTypeSteps: {}, DataTypeHeartRate: {}, DataTypeHeartRateVariability: {},
	DataTypeSleep: {}, DataTypeActivity: {}, DataTypeWorkout: {},
	DataTypeBodyWeight: {}, DataTypeBodyFat: {}, DataTypeBloodPressure: {},
	DataTypeBloodGlucose: {}, DataTypeActiveEnergy: {}, DataTypeDistance: {},
	DataTypeFloorsClimbed: {}, DataTypeVO2Max: {}, DataTypeRespiratoryRate: {},
	DataTypeDaily: {}, DataTypeBody: {}, DataTypeAthlete: {},
}

// Valid reports whether t is one of the recognised data types.
func (t DataType) Valid() bool {
	_, ok := knownDataTypes[t]
	return ok
}

// Provider identifies the upstream wearable or platform a record came from.
type Provider string

const (
	ProviderAppleHealth Provider = "apple_health"
	ProviderWhoop       Provider = "whoop"
	ProviderFitbit      Provider = "fitbit"
	ProviderGarmin      Provider = "garmin"
	ProviderOura        Provider = "oura"
	ProviderPolar       Provider = "polar"
)

// NormalizeProvider lowercases the provider identifier delivered by the aggregator.
func NormalizeProvider(raw string) Provider {
	return Provider(strings.ToLower(strings.TrimSpace(raw)))
}

// IngestionSource records which path persisted a record.
type IngestionSource string

const (
	SourceWebhook  IngestionSource = "webhook"
	SourceBackfill IngestionSource = "backfill"
)

// IngestionMetadata is stored alongside each record.
type IngestionMetadata struct {
	Source            IngestionSource `json:"source"`
	WebhookType       string          `json:"webhook_type,omitempty"`
	ExternalUserID    string          `json:"terra_user_id,omitempty"`
	ReceivedAt        *time.Time      `json:"received_at,omitempty"`
	BackfilledAt      *time.Time      `json:"backfilled_at,omitempty"`
	Validated         bool            `json:"validated"`
	TimestampFallback bool            `json:"timestamp_fallback,omitempty"`
	TimestampError    string          `json:"timestamp_error,omitempty"`
}

// HealthRecord is a single persisted measurement or session.
type HealthRecord struct {
	ID           string
	UserID       string
	ConnectionID string
	DataType     DataType
	RecordedAt   time.Time
	Payload      map[string]any
	Metadata     IngestionMetadata
	CreatedAt    time.Time
}

// RecordKey is the identity tuple that storage keeps unique.
type RecordKey struct {
	UserID       string
	ConnectionID string
	DataType     DataType
	RecordedAt   time.Time
}

// Key returns the record's identity tuple with the timestamp normalised.
func (r HealthRecord) Key() RecordKey {
	return RecordKey{
		UserID:       r.UserID,
		ConnectionID: r.ConnectionID,
		DataType:     r.DataType,
		RecordedAt:   NormalizeTime(r.RecordedAt),
	}
}

// NormalizeTime converts t to UTC at the microsecond precision Postgres stores.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// RecordQuery filters records for a user. To is exclusive; a zero DataType matches all types.
type RecordQuery struct {
	UserID   string
	DataType DataType
	From     time.Time
	To       time.Time
	After    *Cursor
	Limit    int
}

// Cursor models the pagination token for record listings.
type Cursor struct {
	RecordedAt time.Time
	ID         string
}

// ConnectionStats summarises the records stored for a connection.
type ConnectionStats struct {
	Records      int
	LastRecordAt *time.Time
}
