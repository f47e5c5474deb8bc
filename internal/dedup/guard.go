// Package dedup decides whether a provider record is already stored.
package dedup

import (
	"context"
	"fmt"

	"example.com/healthsync/internal/domain"
)

// Guard answers existence checks against the record store. Storage also
// enforces the identity tuple with a unique constraint, so a check that races
// a concurrent insert is caught there as domain.ErrDuplicateRecord.
type Guard struct {
	records domain.RecordRepository
}

// NewGuard constructs a Guard.
func NewGuard(records domain.RecordRepository) *Guard {
	return &Guard{records: records}
}

// Exists reports whether a record with the same user, connection, data type
// and recorded-at instant has been persisted.
func (g *Guard) Exists(ctx context.Context, key domain.RecordKey) (bool, error) {
	key.RecordedAt = domain.NormalizeTime(key.RecordedAt)
	exists, err := g.records.RecordExists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return exists, nil
}
