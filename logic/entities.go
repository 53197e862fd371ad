package logic

import (
	"fmt"
	"log"
	"slices"
	"sync/atomic"
	"time"
)

var globalUIDCounter int64

func NewUID() string {
	val := atomic.AddInt64(&globalUIDCounter, 1)
	return fmt.Sprintf("ent_%d_%d", time.Now().UnixNano(), val)
}

// Spawner is the entity collaborator used by the action engine.
type Spawner interface {
	Spawn(kind, roomID string) (Entity, error)
	AliveCount(kind string) int
}

// EntityRegistry tracks director-spawned entities until the game reports
// them gone.
type EntityRegistry struct {
	entities map[string]Entity
	now      func() float64
}

func NewEntityRegistry(now func() float64) *EntityRegistry {
	if now == nil {
		now = func() float64 { return 0 }
	}
	return &EntityRegistry{entities: make(map[string]Entity), now: now}
}

func (r *EntityRegistry) Spawn(kind, roomID string) (Entity, error) {
	if kind == "" {
		return Entity{}, fmt.Errorf("spawn: empty entity kind")
	}
	if roomID == "" {
		return Entity{}, fmt.Errorf("spawn %s: %w", kind, ErrUnknownRoom)
	}
	e := Entity{UID: NewUID(), Kind: kind, RoomID: roomID, SpawnedAt: r.now()}
	r.entities[e.UID] = e
	log.Printf("[Entities] spawned %s (%s) in %s", e.UID, kind, roomID)
	return e, nil
}

// Despawn removes an entity; false when it was already gone.
func (r *EntityRegistry) Despawn(uid string) bool {
	if _, ok := r.entities[uid]; !ok {
		return false
	}
	delete(r.entities, uid)
	return true
}

func (r *EntityRegistry) AliveCount(kind string) int {
	n := 0
	for _, e := range r.entities {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *EntityRegistry) Resolve(uid string) (Entity, bool) {
	e, ok := r.entities[uid]
	return e, ok
}

// Alive returns the living entities of kind ordered by spawn time.
func (r *EntityRegistry) Alive(kind string) []Entity {
	var out []Entity
	for _, e := range r.entities {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b Entity) int {
		switch {
		case a.SpawnedAt < b.SpawnedAt:
			return -1
		case a.SpawnedAt > b.SpawnedAt:
			return 1
		}
		if a.UID < b.UID {
			return -1
		}
		if a.UID > b.UID {
			return 1
		}
		return 0
	})
	return out
}

// Clear drops every tracked entity, used when a round resets.
func (r *EntityRegistry) Clear() {
	clear(r.entities)
}
