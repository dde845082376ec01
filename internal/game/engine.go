// Package game runs matches: seating, draws, turns, parallel rounds,
// scoring and persistence records. Board legality and feature
// analysis live in the rules subpackage; this package owns everything
// stateful.
package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloisterworks/cloister-server-go/internal/catalog"
)

var (
	// ErrMatchNotFound reports an unknown match id.
	ErrMatchNotFound = errors.New("match not found")
	// ErrNotSeated reports a session token with no seat in the match.
	ErrNotSeated = errors.New("not a player in this match")
)

// Recorder persists match records. The store package provides
// implementations; the engine only needs saving.
type Recorder interface {
	SaveMatch(ctx context.Context, rec *MatchRecord) error
}

const persistTimeout = 5 * time.Second

// Engine owns all live matches. Engine methods are safe for
// concurrent use: the engine lock guards only the match table, and
// each match serializes its own operations behind a per-match mutex.
type Engine struct {
	logger  *zap.Logger
	catalog *catalog.Catalog

	mu       sync.RWMutex
	matches  map[string]*matchState
	recorder Recorder

	bus    *EventBus
	seedFn func() int64
}

// NewEngine creates an engine over the given tile catalog. A nil
// logger disables logging.
func NewEngine(logger *zap.Logger, cat *catalog.Catalog) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:  logger,
		catalog: cat,
		matches: make(map[string]*matchState),
		bus:     NewEventBus(),
		seedFn:  func() int64 { return time.Now().UnixNano() },
	}
}

// Bus exposes the engine's event stream.
func (e *Engine) Bus() *EventBus {
	return e.bus
}

// Catalog returns the tile catalog matches run on.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// SetRecorder installs the persistence hook. Pass nil to disable.
func (e *Engine) SetRecorder(r Recorder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recorder = r
}

func (e *Engine) match(id string) (*matchState, error) {
	e.mu.RLock()
	m, ok := e.matches[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, ErrMatchNotFound)
	}
	return m, nil
}

// commit renders the caller's view and flushes events and persistence
// after a successful mutation. Call with the match lock held; commit
// releases it.
func (e *Engine) commit(m *matchState, token string) *MatchView {
	m.touch()
	view := m.view(token)
	rec := m.record()
	evs := m.takeEvents()
	m.mu.Unlock()
	e.bus.PublishBatch(evs)
	e.persist(rec)
	return view
}

// persist saves the record when a recorder is installed. Failures are
// logged, not returned: gameplay never blocks on storage.
func (e *Engine) persist(rec *MatchRecord) {
	e.mu.RLock()
	r := e.recorder
	e.mu.RUnlock()
	if r == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.SaveMatch(ctx, rec); err != nil {
		e.logger.Warn("match record save failed",
			zap.String("match_id", rec.MatchID),
			zap.Error(err))
	}
}

// CreateMatch opens a match in the waiting state with the creator in
// seat 1.
func (e *Engine) CreateMatch(cfg Config, token, name string) (*MatchView, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, fmt.Errorf("session token required")
	}

	id := uuid.NewString()
	m := newMatchState(id, cfg, e.catalog, e.seedFn())
	if _, err := m.seat(token, name); err != nil {
		return nil, err
	}
	m.emit(Event{Type: EventMatchCreated})
	m.emit(Event{Type: EventPlayerJoined, Player: 1, Data: name})

	e.mu.Lock()
	e.matches[id] = m
	e.mu.Unlock()

	e.logger.Info("match created",
		zap.String("match_id", id),
		zap.String("mode", cfg.Mode.String()),
		zap.String("player", name))

	m.mu.Lock()
	return e.commit(m, token), nil
}

// JoinMatch seats the session in the match; the match starts as soon
// as the second seat fills. Rejoining with an already seated token
// just returns the current view.
func (e *Engine) JoinMatch(matchID, token, name string) (*MatchView, error) {
	if token == "" {
		return nil, fmt.Errorf("session token required")
	}
	m, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	if _, err := m.playerByToken(token); err == nil {
		view := m.view(token)
		m.mu.Unlock()
		return view, nil
	}
	if m.status != StatusWaiting {
		m.mu.Unlock()
		return nil, fmt.Errorf("match is not open for joining")
	}
	slot, err := m.seat(token, name)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.emit(Event{Type: EventPlayerJoined, Player: slot.Number, Data: slot.Name})
	if len(m.players) == MaxPlayers {
		m.activate(e.catalog)
	}

	e.logger.Info("player joined",
		zap.String("match_id", matchID),
		zap.Int("player", slot.Number),
		zap.String("name", slot.Name))

	return e.commit(m, token), nil
}

// View renders the match for the given session token. An empty or
// unseated token yields the spectator view.
func (e *Engine) View(matchID, token string) (*MatchView, error) {
	m, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view(token), nil
}

// MatchSummary is one row of the lobby listing.
type MatchSummary struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Status    string    `json:"status"`
	Players   []string  `json:"players"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListMatches summarizes every match, most recently updated first.
func (e *Engine) ListMatches() []MatchSummary {
	e.mu.RLock()
	ms := make([]*matchState, 0, len(e.matches))
	for _, m := range e.matches {
		ms = append(ms, m)
	}
	e.mu.RUnlock()

	out := make([]MatchSummary, 0, len(ms))
	for _, m := range ms {
		m.mu.Lock()
		s := MatchSummary{
			ID:        m.id,
			Mode:      m.cfg.Mode.String(),
			Status:    m.status.String(),
			UpdatedAt: m.updatedAt,
		}
		for _, p := range m.players {
			s.Players = append(s.Players, p.Name)
		}
		m.mu.Unlock()
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SubmitTurn places the turn player's current tile, with an optional
// meeple claim, and advances the match.
func (e *Engine) SubmitTurn(matchID, token string, x, y, rotation int, meeple string) (*MatchView, error) {
	m, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	p, err := m.actingPlayer(token)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.placeTile(e.catalog, p.Number, x, y, rotation, meeple); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	return e.commit(m, token), nil
}

// PublishIntent shares an advisory placement preview with the other
// player.
func (e *Engine) PublishIntent(matchID, token string, x, y, rotation int, meeple string) (*MatchView, error) {
	m, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	p, err := m.actingPlayer(token)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.setIntent(p.Number, x, y, rotation, meeple); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	return e.commit(m, token), nil
}

// ClearIntent withdraws the player's published intent in the current
// match.
func (e *Engine) ClearIntent(matchID, token string) (*MatchView, error) {
	m, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	p, err := m.actingPlayer(token)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.clearIntent(p.Number); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	return e.commit(m, token), nil
}

// Resign aborts the match on behalf of the player.
func (e *Engine) Resign(matchID, token string) (*MatchView, error) {
	m, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	p, err := m.playerByToken(token)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.resign(p.Number); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	e.logger.Info("player resigned",
		zap.String("match_id", matchID),
		zap.Int("player", p.Number))
	return e.commit(m, token), nil
}

// PickTile takes the indexed tile from the player's offer in the
// current parallel round.
func (e *Engine) PickTile(matchID, token string, index int) (*MatchView, error) {
	m, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	p, err := m.actingPlayer(token)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.pickTile(p.Number, index); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	return e.commit(m, token), nil
}

// PublishParallelIntent publishes, and with lock set validates and
// locks, the player's placement for the round.
func (e *Engine) PublishParallelIntent(matchID, token string, x, y, rotation int, lock bool) (*MatchView, error) {
	m, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	p, err := m.actingPlayer(token)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.setParallelIntent(e.catalog, p.Number, x, y, rotation, lock); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	return e.commit(m, token), nil
}

// ResolveConflict applies the token holder's ruling on the standing
// conflict.
func (e *Engine) ResolveConflict(matchID, token string, action ResolveAction) (*MatchView, error) {
	m, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	p, err := m.actingPlayer(token)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.resolveConflict(p.Number, action); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	return e.commit(m, token), nil
}

// ChooseMeeple records the player's meeple claim for the committed
// round; an empty feature id claims nothing.
func (e *Engine) ChooseMeeple(matchID, token, feature string) (*MatchView, error) {
	m, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	p, err := m.actingPlayer(token)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.chooseMeeple(e.catalog, p.Number, feature); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	return e.commit(m, token), nil
}

// ConfirmMeeple finalizes the player's claim; once both players have
// confirmed the round is scored and the next one opens. Confirming
// again after that is a no-op.
func (e *Engine) ConfirmMeeple(matchID, token string) (*MatchView, error) {
	m, err := e.match(matchID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	p, err := m.actingPlayer(token)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if err := m.confirmMeeple(e.catalog, p.Number); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	return e.commit(m, token), nil
}

// ClearIntents drops every advisory or unlocked intent the session
// still has published, across all matches. The session layer calls
// this when a lease expires. Locked parallel intents stay; the
// conflict protocol owns those.
func (e *Engine) ClearIntents(token string) {
	e.mu.RLock()
	ms := make([]*matchState, 0, len(e.matches))
	for _, m := range e.matches {
		ms = append(ms, m)
	}
	e.mu.RUnlock()

	for _, m := range ms {
		m.mu.Lock()
		p, err := m.playerByToken(token)
		if err != nil || m.status != StatusActive {
			m.mu.Unlock()
			continue
		}
		changed := false
		if m.intent != nil && m.intent.Player == p.Number {
			m.intent = nil
			changed = true
		}
		if r := m.round; r != nil && r.Phase == PhasePlace {
			if in := r.Intents[p.Number]; in != nil && !in.Locked {
				delete(r.Intents, p.Number)
				changed = true
			}
		}
		if !changed {
			m.mu.Unlock()
			continue
		}
		m.emit(Event{Type: EventIntentCleared, Player: p.Number})
		m.touch()
		rec := m.record()
		evs := m.takeEvents()
		m.mu.Unlock()
		e.bus.PublishBatch(evs)
		e.persist(rec)
	}
}

// RestoreMatch loads a persisted record into the live table,
// replacing any match with the same id. Draw queues are rebuilt
// lazily on the next draw.
func (e *Engine) RestoreMatch(rec *MatchRecord) error {
	m, err := matchFromRecord(rec, e.seedFn())
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.matches[m.id] = m
	e.mu.Unlock()

	e.logger.Info("match restored",
		zap.String("match_id", m.id),
		zap.String("status", m.status.String()))
	return nil
}
