package logic

import (
	"log"
	"math"
	"math/rand"
)

// SelectorConfig tunes the rift distance weighting.
type SelectorConfig struct {
	// Sigma is the preferred closeness in world units; larger spreads picks further out.
	Sigma float64 `json:"sigma"`
	// Epsilon floors every weight so far rooms are never locked out.
	Epsilon float64 `json:"epsilon"`
}

// RoomPick is the per-round targeting result. Empty ids mean unset.
type RoomPick struct {
	BaseID string `json:"base_id"`
	RiftID string `json:"rift_id"`
}

func (p RoomPick) HasBase() bool { return p.BaseID != "" }
func (p RoomPick) HasRift() bool { return p.RiftID != "" }

type RoomSelector struct {
	rooms RoomModel
	cfg   SelectorConfig
	rng   *rand.Rand
}

func NewRoomSelector(rooms RoomModel, cfg SelectorConfig, rng *rand.Rand) *RoomSelector {
	if cfg.Sigma <= 0 {
		cfg.Sigma = 1200
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 1e-6
	}
	return &RoomSelector{rooms: rooms, cfg: cfg, rng: rng}
}

// PickRooms chooses a base uniformly from the base candidates and a rift by
// distance-weighted roulette. Missing candidates leave fields unset.
func (s *RoomSelector) PickRooms() RoomPick {
	var pick RoomPick

	bases := s.candidates(RoomBaseCandidate, "")
	if len(bases) == 0 {
		log.Println("[Selector] WARN no base candidates, round runs without base or rift")
		return pick
	}
	base := bases[s.rng.Intn(len(bases))]
	pick.BaseID = base.ID

	rifts := s.candidates(RoomRiftCandidate, base.ID)
	if len(rifts) == 0 {
		rifts = s.candidates(RoomBaseCandidate, base.ID)
	}
	if len(rifts) == 0 {
		log.Printf("[Selector] WARN no rift candidates besides base %s, round runs without rift", base.ID)
		return pick
	}

	weights := s.RiftWeights(base.ID, rifts)
	idx := make([]int, len(rifts))
	for i := range idx {
		idx[i] = i
	}
	i, _ := PickWeighted(s.rng, idx, func(i int) float64 { return weights[i] })
	pick.RiftID = rifts[i].ID

	log.Printf("[Selector] base=%s rift=%s (%d rift candidates)", pick.BaseID, pick.RiftID, len(rifts))
	return pick
}

// RiftWeights returns max(exp(-d/sigma), epsilon) for each candidate, where d
// is the path distance from the base.
func (s *RoomSelector) RiftWeights(baseID string, rifts []Region) []float64 {
	out := make([]float64, len(rifts))
	for i, r := range rifts {
		d := s.rooms.PathDistance(baseID, r.ID)
		out[i] = math.Max(math.Exp(-d/s.cfg.Sigma), s.cfg.Epsilon)
	}
	return out
}

func (s *RoomSelector) candidates(t RoomType, exclude string) []Region {
	var out []Region
	for _, r := range s.rooms.Regions() {
		if r.Type != t || r.ID == exclude || !r.Targetable() {
			continue
		}
		out = append(out, r)
	}
	return out
}
