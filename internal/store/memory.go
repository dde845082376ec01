package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloisterworks/cloister-server-go/internal/game"
)

type memoryRow struct {
	data      []byte
	updatedAt time.Time
}

// Memory is the in-process backend. Records survive restarts of
// nothing but the tests; it exists as the zero-setup default.
type Memory struct {
	mu   sync.RWMutex
	rows map[string]memoryRow
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[string]memoryRow)}
}

func (s *Memory) SaveMatch(ctx context.Context, rec *game.MatchRecord) error {
	data, err := game.EncodeRecord(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rows[rec.MatchID] = memoryRow{data: data, updatedAt: rec.UpdatedAt}
	s.mu.Unlock()
	return nil
}

func (s *Memory) LoadMatch(ctx context.Context, id string) (*game.MatchRecord, error) {
	s.mu.RLock()
	row, ok := s.rows[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return game.DecodeRecord(row.data)
}

func (s *Memory) ListMatches(ctx context.Context) ([]*game.MatchRecord, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.rows[ids[i]], s.rows[ids[j]]
		if !a.updatedAt.Equal(b.updatedAt) {
			return a.updatedAt.After(b.updatedAt)
		}
		return ids[i] < ids[j]
	})
	data := make([][]byte, len(ids))
	for i, id := range ids {
		data[i] = s.rows[id].data
	}
	s.mu.RUnlock()

	out := make([]*game.MatchRecord, 0, len(data))
	for _, d := range data {
		rec, err := game.DecodeRecord(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Memory) DeleteMatch(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.rows, id)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Close() error {
	return nil
}
