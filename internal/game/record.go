package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/cloisterworks/cloister-server-go/internal/game/rules"
)

// RecordVersion is bumped whenever the record layout changes in a way
// old readers cannot handle.
const RecordVersion = 1

type RecordMeeple struct {
	Player  int
	Feature string
}

type RecordCell struct {
	X, Y     int
	Tile     string
	Rotation int
	Instance int
	Meeples  []RecordMeeple
}

type RecordPlayer struct {
	Number      int
	Token       string
	Name        string
	Score       int
	MeeplesLeft int
}

type RecordCount struct {
	Tile  string
	Count int
}

type RecordReserved struct {
	Player int
	Tile   string
}

type RecordIntent struct {
	Player   int
	Tile     string
	X, Y     int
	Rotation int
	Meeple   string
	Locked   bool
}

type RecordOffer struct {
	Player int
	Tiles  []string
}

type RecordPick struct {
	Player int
	Tile   string
}

type RecordInstance struct {
	Player   int
	Instance int
}

type RecordChoice struct {
	Player    int
	Feature   string
	Confirmed bool
}

type RecordConflict struct {
	Kind    string
	Players []int
	Detail  string
}

type RecordRound struct {
	Number      int
	Phase       string
	TokenHolder int
	Committed   bool
	Offers      []RecordOffer
	Picks       []RecordPick
	Intents     []RecordIntent
	Conflict    *RecordConflict
	Instances   []RecordInstance
	Choices     []RecordChoice
}

// MatchRecord is the flat, versioned snapshot of a match that goes to
// storage. Everything needed to resume play mid-round is in here; the
// draw queue and rng state are rebuildable caches and stay out.
type MatchRecord struct {
	Version int
	MatchID string
	Mode    string
	Status  string

	MeepleBudget  int
	MoveLimit     int
	SelectionSize int

	CreatedAt time.Time
	UpdatedAt time.Time

	Players []RecordPlayer
	Cells   []RecordCell

	NextInstance int
	Remaining    []RecordCount
	TurnPlayer   int
	TurnNumber   int
	CurrentTile  string
	Reserved     []RecordReserved
	Burned       []string
	ScoredKeys   []string
	Intent       *RecordIntent
	Round        *RecordRound

	LastEvent string
	Winners   []int
}

// record builds the persistence snapshot. Call with the match lock
// held. Slices derived from maps come out sorted so two snapshots of
// the same state are byte-identical.
func (m *matchState) record() *MatchRecord {
	rec := &MatchRecord{
		Version:       RecordVersion,
		MatchID:       m.id,
		Mode:          m.cfg.Mode.String(),
		Status:        m.status.String(),
		MeepleBudget:  m.cfg.MeepleBudget,
		MoveLimit:     m.cfg.MoveLimit,
		SelectionSize: m.cfg.SelectionSize,
		CreatedAt:     m.createdAt,
		UpdatedAt:     m.updatedAt,
		NextInstance:  m.nextInstance,
		TurnPlayer:    m.turnPlayer,
		TurnNumber:    m.turnNumber,
		CurrentTile:   m.currentTile,
		LastEvent:     m.lastEvent,
	}
	rec.Burned = append([]string(nil), m.burned...)
	rec.Winners = append([]int(nil), m.winners...)
	for _, p := range m.players {
		rec.Players = append(rec.Players, RecordPlayer{
			Number:      p.Number,
			Token:       p.Token,
			Name:        p.Name,
			Score:       p.Score,
			MeeplesLeft: p.MeeplesLeft,
		})
	}
	for _, c := range m.board.Cells() {
		pt := m.board[c]
		cell := RecordCell{
			X:        c.X,
			Y:        c.Y,
			Tile:     pt.TileID,
			Rotation: pt.Rotation,
			Instance: pt.Instance,
		}
		for _, mp := range pt.Meeples {
			cell.Meeples = append(cell.Meeples, RecordMeeple{Player: mp.Player, Feature: mp.FeatureID})
		}
		rec.Cells = append(rec.Cells, cell)
	}
	for _, id := range sortedTileIDs(m.remaining) {
		rec.Remaining = append(rec.Remaining, RecordCount{Tile: id, Count: m.remaining[id]})
	}
	for p := 1; p <= len(m.players); p++ {
		if tile, ok := m.reserved[p]; ok {
			rec.Reserved = append(rec.Reserved, RecordReserved{Player: p, Tile: tile})
		}
	}
	rec.ScoredKeys = make([]string, 0, len(m.scoredKeys))
	for key := range m.scoredKeys {
		rec.ScoredKeys = append(rec.ScoredKeys, key)
	}
	sort.Strings(rec.ScoredKeys)
	if m.intent != nil {
		rec.Intent = &RecordIntent{
			Player:   m.intent.Player,
			Tile:     m.intent.TileID,
			X:        m.intent.X,
			Y:        m.intent.Y,
			Rotation: m.intent.Rotation,
			Meeple:   m.intent.Meeple,
		}
	}
	if m.round != nil {
		rec.Round = roundRecord(m.round)
	}
	return rec
}

func roundRecord(r *parallelRound) *RecordRound {
	rr := &RecordRound{
		Number:      r.Number,
		Phase:       r.Phase.String(),
		TokenHolder: r.TokenHolder,
		Committed:   r.Committed,
	}
	for _, p := range sortedOfferKeys(r.Offers) {
		rr.Offers = append(rr.Offers, RecordOffer{Player: p, Tiles: append([]string(nil), r.Offers[p]...)})
	}
	for _, p := range sortedIntKeys(r.Picks) {
		rr.Picks = append(rr.Picks, RecordPick{Player: p, Tile: r.Picks[p]})
	}
	for _, p := range r.playerNumbers() {
		in := r.Intents[p]
		rr.Intents = append(rr.Intents, RecordIntent{
			Player:   p,
			X:        in.X,
			Y:        in.Y,
			Rotation: in.Rotation,
			Locked:   in.Locked,
		})
	}
	if r.Conflict != nil {
		rr.Conflict = &RecordConflict{
			Kind:    r.Conflict.Kind.String(),
			Players: append([]int(nil), r.Conflict.Players...),
			Detail:  r.Conflict.Detail,
		}
	}
	for p, inst := range r.Instances {
		rr.Instances = append(rr.Instances, RecordInstance{Player: p, Instance: inst})
	}
	sort.Slice(rr.Instances, func(i, j int) bool { return rr.Instances[i].Player < rr.Instances[j].Player })
	for p, c := range r.Choices {
		rr.Choices = append(rr.Choices, RecordChoice{Player: p, Feature: c.Feature, Confirmed: c.Confirmed})
	}
	sort.Slice(rr.Choices, func(i, j int) bool { return rr.Choices[i].Player < rr.Choices[j].Player })
	return rr
}

func sortedOfferKeys(offers map[int][]string) []int {
	out := make([]int, 0, len(offers))
	for p := range offers {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func sortedIntKeys(m map[int]string) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// matchFromRecord rebuilds live state from a snapshot. The rng is
// reseeded; draw order after a restore differs from the run that was
// interrupted, which the queue-as-cache design allows.
func matchFromRecord(rec *MatchRecord, seed int64) (*matchState, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil match record")
	}
	if rec.Version != RecordVersion {
		return nil, fmt.Errorf("unsupported record version %d", rec.Version)
	}
	mode, err := ParseMode(rec.Mode)
	if err != nil {
		return nil, err
	}
	status, err := ParseMatchStatus(rec.Status)
	if err != nil {
		return nil, err
	}
	m := &matchState{
		id: rec.MatchID,
		cfg: Config{
			Mode:          mode,
			MeepleBudget:  rec.MeepleBudget,
			MoveLimit:     rec.MoveLimit,
			SelectionSize: rec.SelectionSize,
		},
		status:       status,
		createdAt:    rec.CreatedAt,
		updatedAt:    rec.UpdatedAt,
		board:        rules.Board{},
		nextInstance: rec.NextInstance,
		remaining:    make(map[string]int),
		turnPlayer:   rec.TurnPlayer,
		turnNumber:   rec.TurnNumber,
		currentTile:  rec.CurrentTile,
		reserved:     make(map[int]string),
		scoredKeys:   make(map[string]bool),
		lastEvent:    rec.LastEvent,
		rng:          rand.New(rand.NewSource(seed)),
	}
	m.burned = append([]string(nil), rec.Burned...)
	m.winners = append([]int(nil), rec.Winners...)
	for i, p := range rec.Players {
		if p.Number != i+1 {
			return nil, fmt.Errorf("player numbers out of order in record %s", rec.MatchID)
		}
		m.players = append(m.players, &playerSlot{
			Token:       p.Token,
			Name:        p.Name,
			Number:      p.Number,
			Score:       p.Score,
			MeeplesLeft: p.MeeplesLeft,
		})
	}
	for _, cell := range rec.Cells {
		c := rules.Coord{X: cell.X, Y: cell.Y}
		if _, dup := m.board[c]; dup {
			return nil, fmt.Errorf("duplicate cell %s in record %s", c, rec.MatchID)
		}
		pt := &rules.PlacedTile{
			Instance: cell.Instance,
			TileID:   cell.Tile,
			Rotation: cell.Rotation,
		}
		for _, mp := range cell.Meeples {
			pt.Meeples = append(pt.Meeples, rules.Meeple{Player: mp.Player, FeatureID: mp.Feature})
		}
		m.board[c] = pt
	}
	for _, rc := range rec.Remaining {
		m.remaining[rc.Tile] = rc.Count
	}
	for _, rr := range rec.Reserved {
		m.reserved[rr.Player] = rr.Tile
	}
	for _, key := range rec.ScoredKeys {
		m.scoredKeys[key] = true
	}
	if rec.Intent != nil {
		m.intent = &turnIntent{
			Player:   rec.Intent.Player,
			TileID:   rec.Intent.Tile,
			X:        rec.Intent.X,
			Y:        rec.Intent.Y,
			Rotation: rec.Intent.Rotation,
			Meeple:   rec.Intent.Meeple,
		}
	}
	if rec.Round != nil {
		round, err := roundFromRecord(rec.Round)
		if err != nil {
			return nil, err
		}
		m.round = round
	}
	return m, nil
}

func roundFromRecord(rr *RecordRound) (*parallelRound, error) {
	phase, err := ParseRoundPhase(rr.Phase)
	if err != nil {
		return nil, err
	}
	r := &parallelRound{
		Number:      rr.Number,
		Phase:       phase,
		TokenHolder: rr.TokenHolder,
		Committed:   rr.Committed,
		Offers:      make(map[int][]string),
		Picks:       make(map[int]string),
		Intents:     make(map[int]*parallelIntent),
		Instances:   make(map[int]int),
		Choices:     make(map[int]*meepleChoice),
	}
	for _, o := range rr.Offers {
		r.Offers[o.Player] = append([]string(nil), o.Tiles...)
	}
	for _, p := range rr.Picks {
		r.Picks[p.Player] = p.Tile
	}
	for _, in := range rr.Intents {
		r.Intents[in.Player] = &parallelIntent{X: in.X, Y: in.Y, Rotation: in.Rotation, Locked: in.Locked}
	}
	if rr.Conflict != nil {
		kind, err := ParseConflictKind(rr.Conflict.Kind)
		if err != nil {
			return nil, err
		}
		r.Conflict = &conflictState{
			Kind:    kind,
			Players: append([]int(nil), rr.Conflict.Players...),
			Detail:  rr.Conflict.Detail,
		}
	}
	for _, ri := range rr.Instances {
		r.Instances[ri.Player] = ri.Instance
	}
	for _, rc := range rr.Choices {
		r.Choices[rc.Player] = &meepleChoice{Feature: rc.Feature, Confirmed: rc.Confirmed}
	}
	return r, nil
}

// EncodeRecord serializes a record with gob, the format stored and
// shipped between processes.
func EncodeRecord(rec *MatchRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("failed to encode match record: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRecord deserializes a gob-encoded record and gates it on the
// supported version.
func DecodeRecord(data []byte) (*MatchRecord, error) {
	var rec MatchRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode match record: %w", err)
	}
	if rec.Version != RecordVersion {
		return nil, fmt.Errorf("unsupported record version %d", rec.Version)
	}
	return &rec, nil
}

// RecordChecksum pins a record's content for integrity checks across
// storage and transmission.
type RecordChecksum struct {
	Hash    string // SHA-256 over the canonical representation
	Version int
}

// ComputeChecksum hashes the canonical representation of the record.
// Two records describing the same match state produce the same hash
// regardless of how their maps iterated while building.
func (rec *MatchRecord) ComputeChecksum() (*RecordChecksum, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(rec.canonical())); err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}
	return &RecordChecksum{
		Hash:    hex.EncodeToString(hash.Sum(nil)),
		Version: rec.Version,
	}, nil
}

// canonical renders the record as a deterministic line-per-fact
// string. Ordered state (placement order, burn order) keeps its
// order; everything map-derived was already sorted by record().
func (rec *MatchRecord) canonical() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "MATCH:%s|%s|%s|%d|%d|%d|%d|%d|%s|%d\n",
		rec.MatchID, rec.Mode, rec.Status,
		rec.MeepleBudget, rec.MoveLimit, rec.SelectionSize,
		rec.TurnPlayer, rec.TurnNumber, rec.CurrentTile, rec.NextInstance)

	for _, p := range rec.Players {
		fmt.Fprintf(&buf, "PLAYER:%d|%s|%s|%d|%d\n", p.Number, p.Token, p.Name, p.Score, p.MeeplesLeft)
	}
	for _, c := range rec.Cells {
		fmt.Fprintf(&buf, "CELL:%d,%d|%s|%d|%d\n", c.X, c.Y, c.Tile, c.Rotation, c.Instance)
		for _, mp := range c.Meeples {
			fmt.Fprintf(&buf, "  MEEPLE:%d|%s\n", mp.Player, mp.Feature)
		}
	}
	for _, rc := range rec.Remaining {
		fmt.Fprintf(&buf, "POOL:%s=%d\n", rc.Tile, rc.Count)
	}
	for _, rr := range rec.Reserved {
		fmt.Fprintf(&buf, "RESERVED:%d=%s\n", rr.Player, rr.Tile)
	}
	fmt.Fprintf(&buf, "BURNED:%s\n", strings.Join(rec.Burned, ","))
	fmt.Fprintf(&buf, "SCORED:%s\n", strings.Join(rec.ScoredKeys, ";"))
	if in := rec.Intent; in != nil {
		fmt.Fprintf(&buf, "INTENT:%d|%s|%d,%d|%d|%s\n", in.Player, in.Tile, in.X, in.Y, in.Rotation, in.Meeple)
	}
	if r := rec.Round; r != nil {
		fmt.Fprintf(&buf, "ROUND:%d|%s|%d|%t\n", r.Number, r.Phase, r.TokenHolder, r.Committed)
		for _, o := range r.Offers {
			fmt.Fprintf(&buf, "  OFFER:%d=%s\n", o.Player, strings.Join(o.Tiles, ","))
		}
		for _, p := range r.Picks {
			fmt.Fprintf(&buf, "  PICK:%d=%s\n", p.Player, p.Tile)
		}
		for _, in := range r.Intents {
			fmt.Fprintf(&buf, "  RINTENT:%d=%d,%d|%d|%t\n", in.Player, in.X, in.Y, in.Rotation, in.Locked)
		}
		if c := r.Conflict; c != nil {
			players := make([]string, len(c.Players))
			for i, p := range c.Players {
				players[i] = fmt.Sprintf("%d", p)
			}
			fmt.Fprintf(&buf, "  CONFLICT:%s|%s|%s\n", c.Kind, strings.Join(players, ","), c.Detail)
		}
		for _, ri := range r.Instances {
			fmt.Fprintf(&buf, "  INSTANCE:%d=%d\n", ri.Player, ri.Instance)
		}
		for _, rc := range r.Choices {
			fmt.Fprintf(&buf, "  CHOICE:%d=%s|%t\n", rc.Player, rc.Feature, rc.Confirmed)
		}
	}
	winners := make([]string, len(rec.Winners))
	for i, w := range rec.Winners {
		winners[i] = fmt.Sprintf("%d", w)
	}
	fmt.Fprintf(&buf, "WINNERS:%s\n", strings.Join(winners, ","))

	return buf.String()
}

// VerifyChecksum reports whether the record still matches the stored
// checksum.
func (rec *MatchRecord) VerifyChecksum(expected *RecordChecksum) (bool, error) {
	computed, err := rec.ComputeChecksum()
	if err != nil {
		return false, err
	}
	return computed.Hash == expected.Hash, nil
}

// ValidateRecordRoundtrip encodes and decodes the record and compares
// checksums, proving the byte format loses nothing.
func ValidateRecordRoundtrip(rec *MatchRecord) error {
	original, err := rec.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("failed to compute original checksum: %w", err)
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	decoded, err := DecodeRecord(data)
	if err != nil {
		return err
	}
	roundtrip, err := decoded.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("failed to compute roundtrip checksum: %w", err)
	}
	if original.Hash != roundtrip.Hash {
		return fmt.Errorf("record checksum changed across roundtrip: %s != %s", original.Hash, roundtrip.Hash)
	}
	return nil
}
