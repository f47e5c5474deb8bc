package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthsync/internal/domain"
)

const recordColumns = `record_id, user_id, connection_id, data_type, recorded_at, payload, ingestion_metadata, created_at`

// RecordRepository persists health records.
type RecordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository constructs a RecordRepository.
func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

// RecordExists implements domain.RecordRepository.
func (r *RecordRepository) RecordExists(ctx context.Context, key domain.RecordKey) (bool, error) {
	const query = `SELECT EXISTS (
            SELECT 1 FROM health_records
            WHERE user_id=$1 AND connection_id=$2 AND data_type=$3 AND recorded_at=$4)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, key.UserID, key.ConnectionID, string(key.DataType), domain.NormalizeTime(key.RecordedAt)).Scan(&exists)
	return exists, err
}

// InsertRecord implements domain.RecordRepository. A conflict on the identity
// constraint is reported as domain.ErrDuplicateRecord.
func (r *RecordRepository) InsertRecord(ctx context.Context, record domain.HealthRecord) error {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("encode ingestion metadata: %w", err)
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}

	const stmt = `INSERT INTO health_records (` + recordColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7, COALESCE($8, NOW()))
        ON CONFLICT ON CONSTRAINT health_records_identity DO NOTHING`

	var createdAt any
	if !record.CreatedAt.IsZero() {
		createdAt = record.CreatedAt
	}
	tag, err := r.pool.Exec(ctx, stmt,
		record.ID,
		record.UserID,
		record.ConnectionID,
		string(record.DataType),
		domain.NormalizeTime(record.RecordedAt),
		payload,
		metadata,
		createdAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateRecord
	}
	return nil
}

// ListRecords implements domain.RecordRepository.
func (r *RecordRepository) ListRecords(ctx context.Context, q domain.RecordQuery) ([]domain.HealthRecord, error) {
	where, args := filter(q)
	query := `SELECT ` + recordColumns + ` FROM health_records WHERE ` + where
	if q.After != nil {
		args = append(args, q.After.RecordedAt, q.After.ID)
		query += fmt.Sprintf(` AND (recorded_at, record_id) > ($%d, $%d::uuid)`, len(args)-1, len(args))
	}
	query += ` ORDER BY recorded_at, record_id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.HealthRecord, 0, q.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// CountRecords implements domain.RecordRepository.
func (r *RecordRepository) CountRecords(ctx context.Context, q domain.RecordQuery) (int, error) {
	where, args := filter(q)
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM health_records WHERE `+where, args...).Scan(&count)
	return count, err
}

// ConnectionStats implements domain.RecordRepository.
func (r *RecordRepository) ConnectionStats(ctx context.Context, connectionID string) (domain.ConnectionStats, error) {
	var stats domain.ConnectionStats
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(recorded_at) FROM health_records WHERE connection_id=$1`, connectionID,
	).Scan(&stats.Records, &stats.LastRecordAt)
	return stats, err
}

func filter(q domain.RecordQuery) (string, []any) {
	clauses := []string{"user_id=$1"}
	args := []any{q.UserID}
	if q.DataType != "" {
		args = append(args, string(q.DataType))
		clauses = append(clauses, fmt.Sprintf("data_type=$%d", len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, q.From.UTC())
		clauses = append(clauses, fmt.Sprintf("recorded_at >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To.UTC())
		clauses = append(clauses, fmt.Sprintf("recorded_at < $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func scanRecord(row pgx.Row) (domain.HealthRecord, error) {
	var (
		rec      domain.HealthRecord
		dataType string
		payload  []byte
		metadata []byte
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.ConnectionID, &dataType, &rec.RecordedAt, &payload, &metadata, &rec.CreatedAt); err != nil {
		return domain.HealthRecord{}, err
	}
	rec.DataType = domain.DataType(dataType)
	rec.RecordedAt = rec.RecordedAt.UTC()
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return domain.HealthRecord{}, fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
		return domain.HealthRecord{}, fmt.Errorf("decode ingestion metadata: %w", err)
	}
	return rec, nil
}
