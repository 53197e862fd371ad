package network

import (
	"encoding/json"

	"sentinel_director_server/logic"
)

// Message type codes on the wire.
const (
	MsgWelcome       = 1001
	MsgStartRound    = 1002
	MsgEndRound      = 1003
	MsgError         = 1004
	MsgPresence      = 2001
	MsgLeave         = 2002
	MsgEntityGone    = 2003
	MsgRoundSnapshot = 3001
	MsgFrame         = 3002
)

// Envelope wraps every message in both directions.
type Envelope struct {
	Type    int             `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type startRoundPayload struct {
	Seed *int64 `json:"seed,omitempty"`
}

type endRoundPayload struct {
	Success bool `json:"success"`
}

type presencePayload struct {
	PlayerID   string        `json:"player_id"`
	Pos        logic.Vector2 `json:"pos"`
	Radius     float64       `json:"radius"`
	Sanity     float64       `json:"sanity"`
	Tier       int           `json:"tier"`
	Controlled bool          `json:"controlled"`
}

type leavePayload struct {
	PlayerID string `json:"player_id"`
}

type entityGonePayload struct {
	UID string `json:"uid"`
}

type welcomePayload struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Site      string `json:"site"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// decodeInput turns an inbound envelope into a loop input.
func decodeInput(env Envelope) (logic.DirectorInput, bool) {
	switch env.Type {
	case MsgStartRound:
		var p startRoundPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return logic.DirectorInput{}, false
			}
		}
		return logic.DirectorInput{Type: logic.InputStartRound, Seed: p.Seed}, true

	case MsgEndRound:
		var p endRoundPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return logic.DirectorInput{}, false
		}
		return logic.DirectorInput{Type: logic.InputEndRound, Success: p.Success}, true

	case MsgPresence:
		var p presencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.PlayerID == "" {
			return logic.DirectorInput{}, false
		}
		return logic.DirectorInput{Type: logic.InputPresence, Player: logic.Player{
			ID:         p.PlayerID,
			Pos:        p.Pos,
			Radius:     p.Radius,
			Sanity:     p.Sanity,
			Tier:       p.Tier,
			Controlled: p.Controlled,
		}}, true

	case MsgLeave:
		var p leavePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.PlayerID == "" {
			return logic.DirectorInput{}, false
		}
		return logic.DirectorInput{Type: logic.InputLeave, PlayerID: p.PlayerID}, true

	case MsgEntityGone:
		var p entityGonePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.UID == "" {
			return logic.DirectorInput{}, false
		}
		return logic.DirectorInput{Type: logic.InputEntityDespawned, UID: p.UID}, true
	}
	return logic.DirectorInput{}, false
}

func encode(msgType int, payload interface{}) []byte {
	raw, _ := json.Marshal(payload)
	b, _ := json.Marshal(Envelope{Type: msgType, Payload: raw})
	return b
}
