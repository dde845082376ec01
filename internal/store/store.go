// Package store persists match records. Backends hold the record as
// opaque encoded bytes next to a few queryable columns; all game
// semantics stay in the engine. Every backend satisfies the engine's
// Recorder interface.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloisterworks/cloister-server-go/internal/game"
)

// ErrNotFound reports a match id with no stored record.
var ErrNotFound = errors.New("match record not found")

// Store reads and writes match records.
type Store interface {
	SaveMatch(ctx context.Context, rec *game.MatchRecord) error
	LoadMatch(ctx context.Context, id string) (*game.MatchRecord, error)
	ListMatches(ctx context.Context) ([]*game.MatchRecord, error)
	DeleteMatch(ctx context.Context, id string) error
	Close() error
}

// Open selects a backend by driver name. The dsn is the sqlite file
// path or the postgres connection URL; memory ignores it.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		if dsn == "" {
			dsn = "cloister.db"
		}
		return OpenSQLite(dsn)
	case "postgres":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
