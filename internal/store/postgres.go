package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloisterworks/cloister-server-go/internal/game"
)

// Postgres stores records in a shared database, for deployments where
// several server processes or restarts need the same match table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database at url and runs the schema
// migration.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS matches (
			id         TEXT PRIMARY KEY,
			mode       TEXT NOT NULL,
			status     TEXT NOT NULL,
			version    INTEGER NOT NULL,
			checksum   TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			record     BYTEA NOT NULL
		);
	`)
	return err
}

func (s *Postgres) SaveMatch(ctx context.Context, rec *game.MatchRecord) error {
	data, err := game.EncodeRecord(rec)
	if err != nil {
		return err
	}
	sum, err := rec.ComputeChecksum()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO matches (id, mode, status, version, checksum, updated_at, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			mode       = EXCLUDED.mode,
			status     = EXCLUDED.status,
			version    = EXCLUDED.version,
			checksum   = EXCLUDED.checksum,
			updated_at = EXCLUDED.updated_at,
			record     = EXCLUDED.record
	`, rec.MatchID, rec.Mode, rec.Status, rec.Version, sum.Hash, rec.UpdatedAt, data)
	return err
}

func (s *Postgres) LoadMatch(ctx context.Context, id string) (*game.MatchRecord, error) {
	var data []byte
	var checksum string
	err := s.pool.QueryRow(ctx,
		"SELECT record, checksum FROM matches WHERE id = $1", id).Scan(&data, &checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeVerified(id, data, checksum)
}

func (s *Postgres) ListMatches(ctx context.Context) ([]*game.MatchRecord, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, record, checksum FROM matches ORDER BY updated_at DESC, id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*game.MatchRecord
	for rows.Next() {
		var id, checksum string
		var data []byte
		if err := rows.Scan(&id, &data, &checksum); err != nil {
			return nil, err
		}
		rec, err := decodeVerified(id, data, checksum)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteMatch(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM matches WHERE id = $1", id)
	return err
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
