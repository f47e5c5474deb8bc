// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/healthsync/internal/domain"
)

// Store implements the user, connection and record repositories in memory.
type Store struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	connections map[string]domain.Connection
	records     map[string]domain.HealthRecord
	keys        map[domain.RecordKey]string
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		users:       make(map[string]domain.User),
		connections: make(map[string]domain.Connection),
		records:     make(map[string]domain.HealthRecord),
		keys:        make(map[domain.RecordKey]string),
	}
}

// PutUser adds or replaces a user. Users are owned by the host application, so
// this is only used to seed local environments and tests.
func (s *Store) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// GetUser implements domain.UserRepository.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// FindConnection implements domain.ConnectionRepository.
func (s *Store) FindConnection(ctx context.Context, userID string, provider domain.Provider, externalUserID string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conn := range s.connections {
		if conn.UserID == userID && conn.Provider == provider && conn.ExternalUserID == externalUserID {
			c := conn
			return &c, nil
		}
	}
	return nil, nil
}

// FindConnectionByExternalID implements domain.ConnectionRepository.
func (s *Store) FindConnectionByExternalID(ctx context.Context, userID, externalUserID string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conn := range s.connections {
		if conn.UserID == userID && conn.ExternalUserID == externalUserID {
			c := conn
			return &c, nil
		}
	}
	return nil, nil
}

// GetConnection implements domain.ConnectionRepository.
func (s *Store) GetConnection(ctx context.Context, connectionID string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[connectionID]
	if !ok {
		return nil, nil
	}
	return &conn, nil
}

// SaveConnection implements domain.ConnectionRepository.
func (s *Store) SaveConnection(ctx context.Context, conn domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(conn.ID) == "" {
		conn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	if conn.UpdatedAt.IsZero() {
		conn.UpdatedAt = now
	}
	s.connections[conn.ID] = conn
	return nil
}

// ListConnections implements domain.ConnectionRepository.
func (s *Store) ListConnections(ctx context.Context, userID string) ([]domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Connection
	for _, conn := range s.connections {
		if conn.UserID == userID {
			out = append(out, conn)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// RecordExists implements domain.RecordRepository.
func (s *Store) RecordExists(ctx context.Context, key domain.RecordKey) (bool, error) {
	key.RecordedAt = domain.NormalizeTime(key.RecordedAt)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[key]
	return ok, nil
}

// InsertRecord implements domain.RecordRepository.
func (s *Store) InsertRecord(ctx context.Context, record domain.HealthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := record.Key()
	if _, ok := s.keys[key]; ok {
		return domain.ErrDuplicateRecord
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.RecordedAt = key.RecordedAt
	s.records[record.ID] = record
	s.keys[key] = record.ID
	return nil
}

// ListRecords implements domain.RecordRepository.
func (s *Store) ListRecords(ctx context.Context, query domain.RecordQuery) ([]domain.HealthRecord, error) {
	matches := s.match(query)
	if query.After != nil {
		after := *query.After
		filtered := matches[:0]
		for _, rec := range matches {
			if rec.RecordedAt.After(after.RecordedAt) || (rec.RecordedAt.Equal(after.RecordedAt) && rec.ID > after.ID) {
				filtered = append(filtered, rec)
			}
		}
		matches = filtered
	}
	if query.Limit > 0 && len(matches) > query.Limit {
		matches = matches[:query.Limit]
	}
	return matches, nil
}

// CountRecords implements domain.RecordRepository.
func (s *Store) CountRecords(ctx context.Context, query domain.RecordQuery) (int, error) {
	return len(s.match(query)), nil
}

// ConnectionStats implements domain.RecordRepository.
func (s *Store) ConnectionStats(ctx context.Context, connectionID string) (domain.ConnectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats domain.ConnectionStats
	for _, rec := range s.records {
		if rec.ConnectionID != connectionID {
			continue
		}
		stats.Records++
		if stats.LastRecordAt == nil || rec.RecordedAt.After(*stats.LastRecordAt) {
			at := rec.RecordedAt
			stats.LastRecordAt = &at
		}
	}
	return stats, nil
}

func (s *Store) match(query domain.RecordQuery) []domain.HealthRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.HealthRecord
	for _, rec := range s.records {
		if rec.UserID != query.UserID {
			continue
		}
		if query.DataType != "" && rec.DataType != query.DataType {
			continue
		}
		if !query.From.IsZero() && rec.RecordedAt.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && !rec.RecordedAt.Before(query.To) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out
}
