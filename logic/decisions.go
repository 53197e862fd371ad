package logic

import (
	"github.com/oklog/ulid/v2"
)

// DecisionRow is one static entry in the decision table.
type DecisionRow struct {
	Tier      int          `json:"tier"`
	Type      DecisionType `json:"type"`
	Weight    float64      `json:"weight"`
	Cooldown  float64      `json:"cooldown_sec"`
	Magnitude float64      `json:"magnitude"`
	Duration  float64      `json:"duration_sec"`
}

// DecisionPayload is what listeners receive per dispatch.
type DecisionPayload struct {
	ID         string       `json:"id"`
	RoundID    string       `json:"round_id,omitempty"`
	Type       DecisionType `json:"type"`
	RoomID     string       `json:"room_id"`
	Tier       int          `json:"tier"`
	Magnitude  float64      `json:"magnitude"`
	Duration   float64      `json:"duration_sec"`
	Instigator EntityRef    `json:"instigator"`
	At         float64      `json:"at"`
}

func newPayload(row DecisionRow, roomID string, tier int, at float64) DecisionPayload {
	return DecisionPayload{
		ID:        ulid.Make().String(),
		Type:      row.Type,
		RoomID:    roomID,
		Tier:      tier,
		Magnitude: row.Magnitude,
		Duration:  row.Duration,
		At:        at,
	}
}

// AnomalyProfile skews door and light decisions for one entity personality.
type AnomalyProfile struct {
	Name      string  `json:"name"`
	Class     string  `json:"class"`
	DoorBias  float64 `json:"door_bias"`
	LightBias float64 `json:"light_bias"`
}

// Bias is the weight multiplier for t. A zero bias leaves the weight alone.
func (p AnomalyProfile) Bias(t DecisionType) float64 {
	switch {
	case t.IsDoor() && p.DoorBias > 0:
		return p.DoorBias
	case t.IsLight() && p.LightBias > 0:
		return p.LightBias
	}
	return 1
}
