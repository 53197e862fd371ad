package logic

import (
	"fmt"
	"math"
)

// Vector2 represents a 2D position
type Vector2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance helper
func Distance(p1, p2 Vector2) float64 {
	dx := p1.X - p2.X
	dy := p1.Y - p2.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Bounds is an axis-aligned region footprint.
type Bounds struct {
	Min Vector2 `json:"min"`
	Max Vector2 `json:"max"`
}

func (b Bounds) Center() Vector2 {
	return Vector2{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2}
}

func (b Bounds) Contains(p Vector2) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// RoomType tags a region for targeting.
type RoomType string

const (
	RoomOrdinary      RoomType = "ordinary"
	RoomSafe          RoomType = "safe"
	RoomHallway       RoomType = "hallway"
	RoomBaseCandidate RoomType = "base_candidate"
	RoomRiftCandidate RoomType = "rift_candidate"
)

func (t RoomType) Valid() bool {
	switch t {
	case RoomOrdinary, RoomSafe, RoomHallway, RoomBaseCandidate, RoomRiftCandidate:
		return true
	}
	return false
}

// Region is a bounded room of the site. Regions are immutable after load.
type Region struct {
	ID     string   `json:"id"`
	Type   RoomType `json:"type"`
	Safe   bool     `json:"safe"`
	Bounds Bounds   `json:"bounds"`
	// Excluded marks a region the director must never pick as base or rift.
	Excluded bool `json:"excluded,omitempty"`
}

// IsSafe mirrors the safe flag from the room type.
func (r Region) IsSafe() bool {
	return r.Safe || r.Type == RoomSafe
}

// Targetable reports whether the region may become a base or rift room.
func (r Region) Targetable() bool {
	return !r.IsSafe() && r.Type != RoomHallway && !r.Excluded
}

// Player is a pawn reported by the spatial collaborator.
type Player struct {
	ID         string  `json:"id"`
	Pos        Vector2 `json:"pos"`
	Radius     float64 `json:"radius"`
	Sanity     float64 `json:"sanity"`
	Tier       int     `json:"tier"` // 0 = unknown
	Controlled bool    `json:"controlled"`
}

// EffectiveTier clamps the reported tier to 1..3; unknown counts as 1.
func (p Player) EffectiveTier() int {
	if p.Tier < 1 || p.Tier > 3 {
		return 1
	}
	return p.Tier
}

// Entity is a director-spawned actor tracked by kind.
type Entity struct {
	UID       string  `json:"uid"`
	Kind      string  `json:"kind"`
	RoomID    string  `json:"room_id"`
	SpawnedAt float64 `json:"spawned_at"`
}

// EntityRef is a non-owning handle to an entity that may already be gone.
type EntityRef struct {
	UID string `json:"uid,omitempty"`
}

func (r EntityRef) IsZero() bool { return r.UID == "" }

// Resolve looks the entity up; callers must check ok before use.
func (r EntityRef) Resolve(reg *EntityRegistry) (Entity, bool) {
	if r.UID == "" || reg == nil {
		return Entity{}, false
	}
	return reg.Resolve(r.UID)
}

// DecisionType enumerates what the scheduler can dispatch.
type DecisionType string

const (
	DecisionIdle           DecisionType = "idle"
	DecisionFlicker        DecisionType = "flicker"
	DecisionBlackout       DecisionType = "blackout"
	DecisionLockDoor       DecisionType = "lock_door"
	DecisionJamDoor        DecisionType = "jam_door"
	DecisionOpenDoor       DecisionType = "open_door"
	DecisionCloseDoor      DecisionType = "close_door"
	DecisionKnockDoor      DecisionType = "knock_door"
	DecisionJumpScare      DecisionType = "jump_scare"
	DecisionTeleport       DecisionType = "teleport"
	DecisionTrap           DecisionType = "trap"
	DecisionPatrol         DecisionType = "patrol"
	DecisionHunt           DecisionType = "hunt"
	DecisionEvidenceT1     DecisionType = "evidence_t1"
	DecisionEvidenceT2     DecisionType = "evidence_t2"
	DecisionCharacteristic DecisionType = "characteristic"
)

var decisionTypes = []DecisionType{
	DecisionIdle, DecisionFlicker, DecisionBlackout,
	DecisionLockDoor, DecisionJamDoor, DecisionOpenDoor, DecisionCloseDoor, DecisionKnockDoor,
	DecisionJumpScare, DecisionTeleport, DecisionTrap, DecisionPatrol, DecisionHunt,
	DecisionEvidenceT1, DecisionEvidenceT2, DecisionCharacteristic,
}

func (d DecisionType) Valid() bool {
	for _, t := range decisionTypes {
		if t == d {
			return true
		}
	}
	return false
}

// IsDoor groups the door-controller decisions.
func (d DecisionType) IsDoor() bool {
	switch d {
	case DecisionLockDoor, DecisionJamDoor, DecisionOpenDoor, DecisionCloseDoor, DecisionKnockDoor:
		return true
	}
	return false
}

// IsLight groups the decisions routed to the power grid.
func (d DecisionType) IsLight() bool {
	return d == DecisionFlicker || d == DecisionBlackout
}

// ActionID names a director action row.
type ActionID string

const (
	ActionDoNothing    ActionID = "do_nothing"
	ActionSpawnEntity  ActionID = "spawn_entity"
	ActionOpenEvidence ActionID = "open_evidence_window"
)

func (a ActionID) Valid() bool {
	return a == ActionDoNothing || a == ActionSpawnEntity || a == ActionOpenEvidence
}

// EvidenceType identifies a player-observable clue.
type EvidenceType string

// LampState is the mode of one light fixture.
type LampState uint8

const (
	LampOn LampState = iota
	LampFlicker
	LampOff
)

func (s LampState) String() string {
	switch s {
	case LampOn:
		return "on"
	case LampFlicker:
		return "flicker"
	case LampOff:
		return "off"
	default:
		return "unknown"
	}
}

func (s LampState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *LampState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "on":
		*s = LampOn
	case "flicker":
		*s = LampFlicker
	case "off":
		*s = LampOff
	default:
		return fmt.Errorf("unknown lamp state %q", string(b))
	}
	return nil
}
