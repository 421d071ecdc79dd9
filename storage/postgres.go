package storage

import (
	"carwatch/pkg/tracker"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createProfilesTable = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id    TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresBackend keeps one JSONB row per user.
type PostgresBackend struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresBackend connects, verifies the connection and ensures the table exists.
func NewPostgresBackend(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createProfilesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create profiles table: %w", err)
	}
	return &PostgresBackend{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}

// Save upserts the profile row.
func (b *PostgresBackend) Save(ctx context.Context, p *tracker.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	_, err = b.pool.Exec(ctx, `
		INSERT INTO profiles (user_id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		p.UserID, data)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	b.logger.Debug("Profile saved to database", "user_id", p.UserID, "listing_count", len(p.Listings))
	return nil
}

// Load reads a profile by user ID.
func (b *PostgresBackend) Load(ctx context.Context, userID string) (*tracker.Profile, error) {
	var data []byte
	err := b.pool.QueryRow(ctx, `SELECT data FROM profiles WHERE user_id = $1`, userID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select profile: %w", err)
	}

	return decodeProfile(data)
}

// List loads every profile row.
func (b *PostgresBackend) List(ctx context.Context) ([]*tracker.Profile, error) {
	rows, err := b.pool.Query(ctx, `SELECT user_id, data FROM profiles ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}
	defer rows.Close()

	var (
		profiles []*tracker.Profile
		corrupt  []string
	)
	for rows.Next() {
		var (
			userID string
			data   []byte
		)
		if err := rows.Scan(&userID, &data); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}

		p, err := decodeProfile(data)
		if err != nil {
			b.logger.Warn("Failed to decode profile", "user_id", userID, "error", err)
			corrupt = append(corrupt, RecordKey(userID))
			continue
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}

	if len(corrupt) > 0 {
		return profiles, &CorruptRecordsError{Keys: corrupt}
	}
	return profiles, nil
}
