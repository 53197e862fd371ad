package logic

import (
	"errors"
	"fmt"
	"log"
	"slices"

	"github.com/zyedidia/generic/mapset"
)

var ErrUnknownRoom = errors.New("unknown room")

// RoomModel is the read-only query surface over regions that the selector,
// scheduler and action engine consume.
type RoomModel interface {
	Regions() []Region
	Region(id string) (Region, bool)
	// Occupants returns the player-controlled pawns overlapping the region,
	// ordered by id.
	Occupants(id string) []Player
	// PathDistance is the navigable distance between region centers, falling
	// back to straight-line distance.
	PathDistance(fromID, toID string) float64
}

// PresenceChange is emitted when a pawn enters or leaves a region.
type PresenceChange struct {
	PlayerID string `json:"player_id"`
	RoomID   string `json:"room_id"`
	Enter    bool   `json:"enter"`
}

// RoomGraph holds the regions loaded with the level plus live pawn positions.
// Occupancy is derived from overlap on every query, never stored.
type RoomGraph struct {
	regions []Region
	byID    map[string]int
	players map[string]*Player
	nav     *GameMap
	inside  map[string]mapset.Set[string] // player -> rooms at last report, for presence logs
}

func NewRoomGraph(regions []Region, nav *GameMap) (*RoomGraph, error) {
	g := &RoomGraph{
		regions: make([]Region, 0, len(regions)),
		byID:    make(map[string]int, len(regions)),
		players: make(map[string]*Player),
		nav:     nav,
		inside:  make(map[string]mapset.Set[string]),
	}
	for _, r := range regions {
		if r.ID == "" {
			return nil, fmt.Errorf("region without id")
		}
		if _, dup := g.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate region id %q", r.ID)
		}
		if r.Type == "" {
			r.Type = RoomOrdinary
		}
		if r.Type == RoomSafe {
			r.Safe = true
		}
		g.byID[r.ID] = len(g.regions)
		g.regions = append(g.regions, r)
	}
	return g, nil
}

func (g *RoomGraph) Regions() []Region {
	return slices.Clone(g.regions)
}

func (g *RoomGraph) Region(id string) (Region, bool) {
	i, ok := g.byID[id]
	if !ok {
		return Region{}, false
	}
	return g.regions[i], true
}

func (g *RoomGraph) Occupants(id string) []Player {
	r, ok := g.Region(id)
	if !ok {
		return nil
	}
	var out []Player
	for _, pid := range g.playerIDs() {
		p := g.players[pid]
		if p.Controlled && CircleAABB(p.Pos, p.Radius, r.Bounds) {
			out = append(out, *p)
		}
	}
	return out
}

func (g *RoomGraph) PathDistance(fromID, toID string) float64 {
	a, okA := g.Region(fromID)
	b, okB := g.Region(toID)
	if !okA || !okB {
		return 0
	}
	if g.nav != nil {
		if d, ok := g.nav.PathLength(a.Bounds.Center(), b.Bounds.Center()); ok {
			return d
		}
	}
	return Distance(a.Bounds.Center(), b.Bounds.Center())
}

func (g *RoomGraph) playerIDs() []string {
	ids := make([]string, 0, len(g.players))
	for id := range g.players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Players returns a copy of every reported pawn ordered by id.
func (g *RoomGraph) Players() []Player {
	out := make([]Player, 0, len(g.players))
	for _, id := range g.playerIDs() {
		out = append(out, *g.players[id])
	}
	return out
}

// UpdatePlayer upserts a pawn report and returns the region enter/exit
// transitions it caused.
func (g *RoomGraph) UpdatePlayer(p Player) []PresenceChange {
	if p.ID == "" {
		return nil
	}
	cp := p
	g.players[p.ID] = &cp

	now := mapset.New[string]()
	if p.Controlled {
		for _, r := range g.regions {
			if CircleAABB(p.Pos, p.Radius, r.Bounds) {
				now.Put(r.ID)
			}
		}
	}
	return g.diffPresence(p.ID, now)
}

// RemovePlayer forgets a pawn and reports the exits.
func (g *RoomGraph) RemovePlayer(id string) []PresenceChange {
	if _, ok := g.players[id]; !ok {
		return nil
	}
	delete(g.players, id)
	changes := g.diffPresence(id, mapset.New[string]())
	delete(g.inside, id)
	return changes
}

func (g *RoomGraph) diffPresence(playerID string, now mapset.Set[string]) []PresenceChange {
	before, ok := g.inside[playerID]
	if !ok {
		before = mapset.New[string]()
	}
	var changes []PresenceChange
	for _, r := range g.regions {
		was, is := before.Has(r.ID), now.Has(r.ID)
		if was == is {
			continue
		}
		changes = append(changes, PresenceChange{PlayerID: playerID, RoomID: r.ID, Enter: is})
		verb := "EXIT"
		if is {
			verb = "ENTER"
		}
		log.Printf("[RoomPresence] %s %s %s", playerID, verb, r.ID)
	}
	g.inside[playerID] = now
	return changes
}

// OccupiedRegions lists the non-safe regions holding at least one
// player-controlled pawn, in load order.
func OccupiedRegions(m RoomModel) []Region {
	var out []Region
	for _, r := range m.Regions() {
		if r.IsSafe() {
			continue
		}
		if len(m.Occupants(r.ID)) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// RoomTier is the worst occupant tier in the region, 1 when empty or unknown.
func RoomTier(m RoomModel, roomID string) int {
	tier := 1
	for _, p := range m.Occupants(roomID) {
		if t := p.EffectiveTier(); t > tier {
			tier = t
		}
	}
	return tier
}

// SanityConfig buckets the per-player sanity scalar into tiers.
type SanityConfig struct {
	Max        float64 `json:"max"`
	Tier1Above float64 `json:"tier1_above"`
	Tier2Above float64 `json:"tier2_above"`
}

// TierForSanity maps sanity to 1 (calm) .. 3 (breaking).
func TierForSanity(sanity float64, cfg SanityConfig) int {
	switch {
	case sanity > cfg.Tier1Above:
		return 1
	case sanity > cfg.Tier2Above:
		return 2
	default:
		return 3
	}
}
