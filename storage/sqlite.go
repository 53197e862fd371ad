package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"sentinel_director_server/logic"

	_ "github.com/mattn/go-sqlite3"
)

var ErrClosed = errors.New("journal closed")

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
	round_id     TEXT PRIMARY KEY,
	seed         INTEGER NOT NULL,
	profile      TEXT,
	base_room    TEXT,
	rift_room    TEXT,
	started_at   REAL NOT NULL,
	ended_at     REAL,
	success      INTEGER,
	aggression   REAL DEFAULT 0,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	decision_id  TEXT PRIMARY KEY,
	round_id     TEXT NOT NULL,
	type         TEXT NOT NULL,
	room_id      TEXT NOT NULL,
	tier         INTEGER NOT NULL,
	magnitude    REAL NOT NULL,
	duration     REAL NOT NULL,
	instigator   TEXT,
	at           REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS decisions_round ON decisions (round_id, at);

CREATE TABLE IF NOT EXISTS evidence_windows (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	round_id     TEXT NOT NULL,
	open         INTEGER NOT NULL,
	forced       INTEGER NOT NULL DEFAULT 0,
	type         TEXT,
	started_at   REAL NOT NULL,
	duration     REAL NOT NULL,
	at           REAL NOT NULL
);
`

type journalOp func(db *sql.DB) error

// Journal records rounds, decisions and evidence windows to sqlite. Writes
// are queued and applied by one writer goroutine so the game loop never
// waits on disk.
type Journal struct {
	db    *sql.DB
	queue chan journalOp
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// OpenJournal opens (or creates) the database at path and starts the writer.
func OpenJournal(path string, queueSize int) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	j := &Journal{
		db:    db,
		queue: make(chan journalOp, queueSize),
		done:  make(chan struct{}),
	}
	go j.run()
	log.Println("SQLite Journal Initialized.")
	return j, nil
}

func (j *Journal) run() {
	defer close(j.done)
	for op := range j.queue {
		if err := op(j.db); err != nil {
			log.Printf("[Journal] write failed: %v", err)
		}
	}
}

func (j *Journal) enqueue(op journalOp) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}
	select {
	case j.queue <- op:
		return nil
	default:
		return fmt.Errorf("journal queue full")
	}
}

func (j *Journal) record(what string, op journalOp) {
	if err := j.enqueue(op); err != nil {
		log.Printf("[Journal] dropped %s: %v", what, err)
	}
}

// createdLayout is fixed width so created_at sorts as text.
const createdLayout = "2006-01-02T15:04:05.000000000Z"

func nowText() string {
	return time.Now().UTC().Format(createdLayout)
}

func (j *Journal) RecordRoundStart(r logic.RoundState) {
	created := nowText()
	j.record("round start", func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO rounds (round_id, seed, profile, base_room, rift_room, started_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(round_id) DO NOTHING`,
			r.ID, r.Seed, r.Profile, r.Rooms.BaseID, r.Rooms.RiftID, r.StartedAt, created,
		)
		if err != nil {
			return fmt.Errorf("insert round %s: %w", r.ID, err)
		}
		return nil
	})
}

func (j *Journal) RecordRoundEnd(r logic.RoundState, success bool, endedAt float64) {
	j.record("round end", func(db *sql.DB) error {
		_, err := db.Exec(
			`UPDATE rounds SET ended_at = ?, success = ?, aggression = ? WHERE round_id = ?`,
			endedAt, success, r.Aggression, r.ID,
		)
		if err != nil {
			return fmt.Errorf("end round %s: %w", r.ID, err)
		}
		return nil
	})
}

func (j *Journal) RecordDecision(p logic.DecisionPayload) {
	j.record("decision", func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO decisions (decision_id, round_id, type, room_id, tier, magnitude, duration, instigator, at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.RoundID, string(p.Type), p.RoomID, p.Tier, p.Magnitude, p.Duration, nullIfEmpty(p.Instigator.UID), p.At,
		)
		if err != nil {
			return fmt.Errorf("insert decision %s: %w", p.ID, err)
		}
		return nil
	})
}

func (j *Journal) RecordEvidence(ev logic.EvidenceEvent) {
	j.record("evidence", func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO evidence_windows (round_id, open, forced, type, started_at, duration, at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.RoundID, ev.Open, ev.Forced, string(ev.Type), ev.StartedAt, ev.Duration, ev.At,
		)
		if err != nil {
			return fmt.Errorf("insert evidence: %w", err)
		}
		return nil
	})
}

// Sync blocks until every write queued before the call has been applied.
func (j *Journal) Sync(ctx context.Context) error {
	flushed := make(chan struct{})
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrClosed
	}
	select {
	case j.queue <- func(*sql.DB) error { close(flushed); return nil }:
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}
	j.mu.RUnlock()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending writes and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return ErrClosed
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	return j.db.Close()
}

// RoundRecord is one row of the rounds table.
type RoundRecord struct {
	RoundID    string   `json:"round_id"`
	Seed       int64    `json:"seed"`
	Profile    string   `json:"profile"`
	BaseRoom   string   `json:"base_room"`
	RiftRoom   string   `json:"rift_room"`
	StartedAt  float64  `json:"started_at"`
	EndedAt    *float64 `json:"ended_at,omitempty"`
	Success    *bool    `json:"success,omitempty"`
	Aggression float64  `json:"aggression"`
	CreatedAt  string   `json:"created_at"`
}

// RecentRounds returns up to limit rounds, newest first.
func (j *Journal) RecentRounds(ctx context.Context, limit int) ([]RoundRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT round_id, seed, COALESCE(profile, ''), COALESCE(base_room, ''), COALESCE(rift_room, ''),
		        started_at, ended_at, success, COALESCE(aggression, 0), created_at
		 FROM rounds ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundRecord
	for rows.Next() {
		var r RoundRecord
		var ended sql.NullFloat64
		var success sql.NullBool
		if err := rows.Scan(&r.RoundID, &r.Seed, &r.Profile, &r.BaseRoom, &r.RiftRoom,
			&r.StartedAt, &ended, &success, &r.Aggression, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		if ended.Valid {
			v := ended.Float64
			r.EndedAt = &v
		}
		if success.Valid {
			v := success.Bool
			r.Success = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DecisionsForRound returns the round's dispatched decisions in fire order.
func (j *Journal) DecisionsForRound(ctx context.Context, roundID string) ([]logic.DecisionPayload, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT decision_id, round_id, type, room_id, tier, magnitude, duration, COALESCE(instigator, ''), at
		 FROM decisions WHERE round_id = ? ORDER BY at, decision_id`, roundID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []logic.DecisionPayload
	for rows.Next() {
		var p logic.DecisionPayload
		var typ string
		if err := rows.Scan(&p.ID, &p.RoundID, &typ, &p.RoomID, &p.Tier, &p.Magnitude, &p.Duration, &p.Instigator.UID, &p.At); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		p.Type = logic.DecisionType(typ)
		out = append(out, p)
	}
	return out, rows.Err()
}

// EvidenceForRound returns the round's evidence open/close events in order.
func (j *Journal) EvidenceForRound(ctx context.Context, roundID string) ([]logic.EvidenceEvent, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT round_id, open, forced, COALESCE(type, ''), started_at, duration, at
		 FROM evidence_windows WHERE round_id = ? ORDER BY id`, roundID)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer rows.Close()

	var out []logic.EvidenceEvent
	for rows.Next() {
		var ev logic.EvidenceEvent
		var typ string
		if err := rows.Scan(&ev.RoundID, &ev.Open, &ev.Forced, &typ, &ev.StartedAt, &ev.Duration, &ev.At); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		ev.Type = logic.EvidenceType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
