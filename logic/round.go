package logic

import (
	"errors"
)

var ErrRoundInactive = errors.New("no active round")

// EvidenceWindow is the timed sub-state during which a clue is observable.
type EvidenceWindow struct {
	Active    bool         `json:"active"`
	StartedAt float64      `json:"started_at"`
	Duration  float64      `json:"duration_sec"`
	Type      EvidenceType `json:"type,omitempty"`
}

// Expired reports whether an open window has run its duration at now.
func (w EvidenceWindow) Expired(now float64) bool {
	return w.Active && now-w.StartedAt >= w.Duration
}

// RoundState is the authoritative per-round aggregate. Only the game loop
// goroutine mutates it; observers get RoundSnapshot copies.
type RoundState struct {
	ID         string         `json:"id"`
	Active     bool           `json:"active"`
	StartedAt  float64        `json:"started_at"`
	Seed       int64          `json:"seed"`
	Profile    string         `json:"profile,omitempty"`
	Rooms      RoomPick       `json:"rooms"`
	Aggression float64        `json:"aggression"`
	Collapsed  bool           `json:"collapsed"`
	Evidence   EvidenceWindow `json:"evidence"`
	// LastEvidenceAt is the last open time, or the round start if none opened yet.
	LastEvidenceAt float64 `json:"last_evidence_at"`
	EvidenceOpened int     `json:"evidence_opened"`
}

// RoundSnapshot is the read-only broadcast view of a round.
type RoundSnapshot struct {
	RoundState
	Now float64 `json:"now"`
}

func (r *RoundState) Snapshot(now float64) RoundSnapshot {
	return RoundSnapshot{RoundState: *r, Now: now}
}

// Reset returns the state to its zero, inactive form.
func (r *RoundState) Reset() {
	*r = RoundState{}
}
