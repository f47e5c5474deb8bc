package domain

import "context"

// UserRepository reads application users. Lookups return nil, nil when absent.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*User, error)
}

// ConnectionRepository captures provider connection persistence.
// Find and Get methods return nil, nil when no connection matches.
type ConnectionRepository interface {
	FindConnection(ctx context.Context, userID string, provider Provider, externalUserID string) (*Connection, error)
	FindConnectionByExternalID(ctx context.Context, userID, externalUserID string) (*Connection, error)
	GetConnection(ctx context.Context, connectionID string) (*Connection, error)
	SaveConnection(ctx context.Context, conn Connection) error
	ListConnections(ctx context.Context, userID string) ([]Connection, error)
}

// RecordRepository captures health record persistence.
type RecordRepository interface {
	RecordExists(ctx context.Context, key RecordKey) (bool, error)
	// InsertRecord returns ErrDuplicateRecord when the identity tuple is already stored.
	InsertRecord(ctx context.Context, record HealthRecord) error
	// ListRecords returns matches ordered by recorded_at then id.
	ListRecords(ctx context.Context, query RecordQuery) ([]HealthRecord, error)
	CountRecords(ctx context.Context, query RecordQuery) (int, error)
	ConnectionStats(ctx context.Context, connectionID string) (ConnectionStats, error)
}
