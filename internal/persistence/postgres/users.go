package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthsync/internal/domain"
)

// UserRepository reads the users table owned by the host application.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetUser implements domain.UserRepository.
func (r *UserRepository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	const query = `SELECT user_id, email, first_name, last_name, date_of_birth, height_cm, weight_kg,
            biological_sex, activity_level, time_zone, units_preference
        FROM users WHERE user_id=$1`

	var (
		u                                  domain.User
		email, first, last, sex, level, tz sql.NullString
	)
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&u.ID, &email, &first, &last, &u.DateOfBirth, &u.HeightCM, &u.WeightKG,
		&sex, &level, &tz, &u.UnitsPreference,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Email, u.FirstName, u.LastName = email.String, first.String, last.String
	u.BiologicalSex, u.ActivityLevel, u.TimeZone = sex.String, level.String, tz.String
	return &u, nil
}

// UpsertUser writes a user row. Only used to seed local environments and tests.
func (r *UserRepository) UpsertUser(ctx context.Context, u domain.User) error {
	const stmt = `INSERT INTO users (user_id, email, first_name, last_name, date_of_birth, height_cm, weight_kg,
            biological_sex, activity_level, time_zone, units_preference)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (user_id) DO UPDATE SET
            email=EXCLUDED.email, first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name,
            date_of_birth=EXCLUDED.date_of_birth, height_cm=EXCLUDED.height_cm, weight_kg=EXCLUDED.weight_kg,
            biological_sex=EXCLUDED.biological_sex, activity_level=EXCLUDED.activity_level,
            time_zone=EXCLUDED.time_zone, units_preference=EXCLUDED.units_preference`

	_, err := r.pool.Exec(ctx, stmt,
		u.ID, nullIfEmpty(u.Email), nullIfEmpty(u.FirstName), nullIfEmpty(u.LastName), u.DateOfBirth,
		u.HeightCM, u.WeightKG, nullIfEmpty(u.BiologicalSex), nullIfEmpty(u.ActivityLevel),
		nullIfEmpty(u.TimeZone), u.Units(),
	)
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
