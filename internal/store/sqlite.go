package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cloisterworks/cloister-server-go/internal/game"
)

// SQLite stores records in a single-file database. WAL mode keeps
// reads from blocking the save path.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and runs the
// schema migration. ":memory:" gives a throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS matches (
			id         TEXT PRIMARY KEY,
			mode       TEXT NOT NULL,
			status     TEXT NOT NULL,
			version    INTEGER NOT NULL,
			checksum   TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			record     BLOB NOT NULL
		);
	`)
	return err
}

func (s *SQLite) SaveMatch(ctx context.Context, rec *game.MatchRecord) error {
	data, err := game.EncodeRecord(rec)
	if err != nil {
		return err
	}
	sum, err := rec.ComputeChecksum()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO matches (id, mode, status, version, checksum, updated_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mode       = excluded.mode,
			status     = excluded.status,
			version    = excluded.version,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at,
			record     = excluded.record
	`, rec.MatchID, rec.Mode, rec.Status, rec.Version, sum.Hash,
		rec.UpdatedAt.UTC().Format(time.RFC3339Nano), data)
	return err
}

func (s *SQLite) LoadMatch(ctx context.Context, id string) (*game.MatchRecord, error) {
	var data []byte
	var checksum string
	err := s.db.QueryRowContext(ctx,
		"SELECT record, checksum FROM matches WHERE id = ?", id).Scan(&data, &checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeVerified(id, data, checksum)
}

func (s *SQLite) ListMatches(ctx context.Context) ([]*game.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
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

func (s *SQLite) DeleteMatch(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM matches WHERE id = ?", id)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// decodeVerified decodes stored record bytes and checks them against
// the checksum written at save time.
func decodeVerified(id string, data []byte, checksum string) (*game.MatchRecord, error) {
	rec, err := game.DecodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", id, err)
	}
	ok, err := rec.VerifyChecksum(&game.RecordChecksum{Hash: checksum, Version: rec.Version})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("match %s: stored record fails checksum", id)
	}
	return rec, nil
}
