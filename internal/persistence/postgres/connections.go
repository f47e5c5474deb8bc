package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthsync/internal/domain"
)

const connectionColumns = `connection_id, user_id, provider, external_user_id, reference_id, status, connected_at, metadata, created_at, updated_at`

// ConnectionRepository persists provider connections.
type ConnectionRepository struct {
	pool *pgxpool.Pool
}

// NewConnectionRepository constructs a ConnectionRepository.
func NewConnectionRepository(pool *pgxpool.Pool) *ConnectionRepository {
	return &ConnectionRepository{pool: pool}
}

// FindConnection implements domain.ConnectionRepository.
func (r *ConnectionRepository) FindConnection(ctx context.Context, userID string, provider domain.Provider, externalUserID string) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM health_connections
        WHERE user_id=$1 AND provider=$2 AND external_user_id=$3`
	return r.queryOne(ctx, query, userID, string(provider), externalUserID)
}

// FindConnectionByExternalID implements domain.ConnectionRepository.
func (r *ConnectionRepository) FindConnectionByExternalID(ctx context.Context, userID, externalUserID string) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM health_connections
        WHERE user_id=$1 AND external_user_id=$2
        ORDER BY updated_at DESC LIMIT 1`
	return r.queryOne(ctx, query, userID, externalUserID)
}

// GetConnection implements domain.ConnectionRepository.
func (r *ConnectionRepository) GetConnection(ctx context.Context, connectionID string) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM health_connections WHERE connection_id=$1`
	return r.queryOne(ctx, query, connectionID)
}

// SaveConnection implements domain.ConnectionRepository as an upsert on connection_id.
func (r *ConnectionRepository) SaveConnection(ctx context.Context, conn domain.Connection) error {
	metadata, err := json.Marshal(conn.Metadata)
	if err != nil {
		return fmt.Errorf("encode connection metadata: %w", err)
	}
	if conn.Metadata == nil {
		metadata = []byte(`{}`)
	}

	const stmt = `INSERT INTO health_connections (` + connectionColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (connection_id) DO UPDATE SET
            reference_id=EXCLUDED.reference_id,
            status=EXCLUDED.status,
            connected_at=EXCLUDED.connected_at,
            metadata=EXCLUDED.metadata,
            updated_at=EXCLUDED.updated_at`

	_, err = r.pool.Exec(ctx, stmt,
		conn.ID,
		conn.UserID,
		string(conn.Provider),
		conn.ExternalUserID,
		nullIfEmpty(conn.ReferenceID),
		string(conn.Status),
		conn.ConnectedAt,
		metadata,
		conn.CreatedAt,
		conn.UpdatedAt,
	)
	return err
}

// ListConnections implements domain.ConnectionRepository.
func (r *ConnectionRepository) ListConnections(ctx context.Context, userID string) ([]domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM health_connections WHERE user_id=$1 ORDER BY created_at, connection_id`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

func (r *ConnectionRepository) queryOne(ctx context.Context, query string, args ...any) (*domain.Connection, error) {
	conn, err := scanConnection(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func scanConnection(row pgx.Row) (domain.Connection, error) {
	var (
		conn      domain.Connection
		provider  string
		status    string
		reference sql.NullString
		metadata  []byte
	)
	if err := row.Scan(&conn.ID, &conn.UserID, &provider, &conn.ExternalUserID, &reference, &status,
		&conn.ConnectedAt, &metadata, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		return domain.Connection{}, err
	}
	conn.Provider = domain.Provider(provider)
	conn.Status = domain.ConnectionStatus(status)
	conn.ReferenceID = reference.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &conn.Metadata); err != nil {
			return domain.Connection{}, fmt.Errorf("decode connection metadata: %w", err)
		}
	}
	return conn, nil
}
