package logic

import (
	"fmt"
	"log"
	"math/rand"
	"slices"

	"github.com/zyedidia/generic/mapset"
)

// EffectorConfig holds the fallback durations for batch light commands.
type EffectorConfig struct {
	BlackoutSec float64 `json:"blackout_sec"`
	FlickerSec  float64 `json:"flicker_sec"`
}

// LampSpec places one fixture in a room.
type LampSpec struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
}

// PowerGrid owns every lamp of a site. The authority grid accepts commands;
// a mirror grid only follows snapshots.
type PowerGrid struct {
	authority bool
	lampCfg   LampConfig
	cfg       EffectorConfig
	timers    *TimerQueue
	rng       *rand.Rand

	lamps   []*Lamp
	byID    map[string]*Lamp
	changed mapset.Set[string]
}

func NewPowerGrid(lampCfg LampConfig, cfg EffectorConfig, timers *TimerQueue, rng *rand.Rand) *PowerGrid {
	return &PowerGrid{
		authority: true,
		lampCfg:   lampCfg,
		cfg:       cfg,
		timers:    timers,
		rng:       rng,
		byID:      make(map[string]*Lamp),
		changed:   mapset.New[string](),
	}
}

// NewMirrorGrid builds a read-only replica that follows ApplySnapshots.
func NewMirrorGrid(lampCfg LampConfig) *PowerGrid {
	return &PowerGrid{
		lampCfg: lampCfg,
		byID:    make(map[string]*Lamp),
		changed: mapset.New[string](),
	}
}

func (g *PowerGrid) Authority() bool { return g.authority }

func (g *PowerGrid) AddLamp(spec LampSpec) (*Lamp, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("lamp without id")
	}
	if _, dup := g.byID[spec.ID]; dup {
		return nil, fmt.Errorf("duplicate lamp id %q", spec.ID)
	}
	var l *Lamp
	if g.authority {
		l = NewLamp(spec.ID, spec.RoomID, g.lampCfg, g.timers, g.rng)
	} else {
		l = NewMirrorLamp(spec.ID, spec.RoomID, g.lampCfg)
	}
	l.onChange = func(l *Lamp) { g.changed.Put(l.ID) }
	g.lamps = append(g.lamps, l)
	g.byID[l.ID] = l
	return l, nil
}

func (g *PowerGrid) Lamp(id string) (*Lamp, bool) {
	l, ok := g.byID[id]
	return l, ok
}

func (g *PowerGrid) Len() int { return len(g.lamps) }

// BlackoutRoom switches the room's lamps off for duration seconds.
func (g *PowerGrid) BlackoutRoom(roomID string, duration float64) int {
	if duration <= 0 {
		duration = g.cfg.BlackoutSec
	}
	return g.apply("BlackoutRoom", roomID, LampOff, duration)
}

// BlackoutSite switches every lamp off for duration seconds.
func (g *PowerGrid) BlackoutSite(duration float64) int {
	if duration <= 0 {
		duration = g.cfg.BlackoutSec
	}
	return g.apply("BlackoutSite", "", LampOff, duration)
}

// FlickerRoom flickers the room's lamps for duration seconds.
func (g *PowerGrid) FlickerRoom(roomID string, duration float64) int {
	if duration <= 0 {
		duration = g.cfg.FlickerSec
	}
	return g.apply("FlickerRoom", roomID, LampFlicker, duration)
}

// RestoreSite turns every lamp permanently on, cancelling pending restores.
func (g *PowerGrid) RestoreSite() int {
	return g.apply("RestoreSite", "", LampOn, 0)
}

func (g *PowerGrid) apply(op, roomID string, s LampState, duration float64) int {
	if !g.authority {
		log.Printf("[Power] WARN %s ignored on mirror grid", op)
		return 0
	}
	touched := 0
	for _, l := range g.lamps {
		if roomID != "" && l.RoomID != roomID {
			continue
		}
		if err := l.SetState(s, duration); err != nil {
			log.Printf("[Power] %s: lamp %s: %v", op, l.ID, err)
			continue
		}
		touched++
	}
	target := roomID
	if target == "" {
		target = "site"
	}
	log.Printf("[Power] %s %s dur=%.2f total=%d matched=%d", op, target, duration, len(g.lamps), touched)
	return touched
}

// Snapshots returns every lamp's state ordered by id.
func (g *PowerGrid) Snapshots() []LampSnapshot {
	out := make([]LampSnapshot, 0, len(g.lamps))
	for _, l := range g.lamps {
		out = append(out, l.Snapshot())
	}
	slices.SortFunc(out, func(a, b LampSnapshot) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// DrainChanged returns snapshots of lamps whose state changed since the last
// drain, ordered by id.
func (g *PowerGrid) DrainChanged() []LampSnapshot {
	if g.changed.Size() == 0 {
		return nil
	}
	var out []LampSnapshot
	for _, s := range g.Snapshots() {
		if g.changed.Has(s.ID) {
			out = append(out, s)
		}
	}
	g.changed.Clear()
	return out
}

// ApplySnapshots mirrors published lamp state, creating replicas for lamps
// not seen before. Authority grids reject it.
func (g *PowerGrid) ApplySnapshots(snaps []LampSnapshot) error {
	if g.authority {
		return ErrNotAuthority
	}
	for _, s := range snaps {
		l, ok := g.byID[s.ID]
		if !ok {
			var err error
			if l, err = g.AddLamp(LampSpec{ID: s.ID, RoomID: s.RoomID}); err != nil {
				return err
			}
		}
		if err := l.ApplySnapshot(s); err != nil {
			return err
		}
		g.changed.Put(s.ID)
	}
	return nil
}
