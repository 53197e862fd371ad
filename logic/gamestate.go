package logic

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"log"
	"math/rand"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Recorder persists round history. Implementations must not block the caller.
type Recorder interface {
	RecordRoundStart(r RoundState)
	RecordRoundEnd(r RoundState, success bool, endedAt float64)
	RecordDecision(p DecisionPayload)
	RecordEvidence(ev EvidenceEvent)
}

// Frame is everything observers need since the previous frame.
type Frame struct {
	Round     RoundSnapshot     `json:"round"`
	Lamps     []LampSnapshot    `json:"lamps,omitempty"`
	Decisions []DecisionPayload `json:"decisions,omitempty"`
	Evidence  []EvidenceEvent   `json:"evidence,omitempty"`
	Actions   []ActionRecord    `json:"actions,omitempty"`
	Presence  []PresenceChange  `json:"presence,omitempty"`
}

// SiteSnapshot is the full state a late-joining observer starts from.
type SiteSnapshot struct {
	Round RoundSnapshot  `json:"round"`
	Lamps []LampSnapshot `json:"lamps"`
}

// GameState owns the authoritative director state of one site. It is not
// safe for concurrent use; GameLoop serializes every call.
type GameState struct {
	Config   *DirectorConfig
	Timers   *TimerQueue
	Rooms    *RoomGraph
	Grid     *PowerGrid
	Entities *EntityRegistry
	Bus      *DecisionBus
	Round    RoundState

	rng       *rand.Rand
	selector  *RoomSelector
	scheduler *DecisionScheduler
	director  *ActionEngine
	recorder  Recorder
	tracer    trace.Tracer

	pending   Frame
	lastRound RoundState
	sentOnce  bool
}

func NewGameState(cfg *DirectorConfig, recorder Recorder) (*GameState, error) {
	var nav *GameMap
	if len(cfg.Rooms.NavGrid) > 0 {
		m, err := NewGameMapFromRows(cfg.Rooms.NavGrid, cfg.Rooms.TileSize)
		if err != nil {
			return nil, fmt.Errorf("nav grid: %w", err)
		}
		nav = m
	}
	rooms, err := NewRoomGraph(cfg.Rooms.Regions, nav)
	if err != nil {
		return nil, fmt.Errorf("rooms: %w", err)
	}

	gs := &GameState{
		Config:   cfg,
		Timers:   NewTimerQueue(),
		Rooms:    rooms,
		Bus:      NewDecisionBus(),
		rng:      rand.New(rand.NewSource(1)),
		recorder: recorder,
		tracer:   otel.Tracer(tracerName),
	}
	gs.Entities = NewEntityRegistry(gs.Timers.Now)
	gs.Grid = NewPowerGrid(cfg.Lamps.LampConfig, cfg.Effector, gs.Timers, gs.rng)
	for _, spec := range cfg.Lamps.Fixtures {
		if _, ok := rooms.Region(spec.RoomID); !ok {
			return nil, fmt.Errorf("lamp %s: %w %q", spec.ID, ErrUnknownRoom, spec.RoomID)
		}
		if _, err := gs.Grid.AddLamp(spec); err != nil {
			return nil, fmt.Errorf("lamps: %w", err)
		}
	}

	gs.selector = NewRoomSelector(rooms, cfg.Selector, gs.rng)
	gs.scheduler = NewDecisionScheduler(rooms, cfg.Scheduler, gs.Timers, gs.rng, gs.Bus, gs.Grid)
	gs.scheduler.Instigator = gs.currentInstigator
	gs.director = NewActionEngine(rooms, cfg.Director, gs.Timers, gs.rng, gs.Entities, &gs.Round)
	gs.director.OnEvidence = gs.onEvidence
	gs.director.OnAction = func(rec ActionRecord) {
		gs.pending.Actions = append(gs.pending.Actions, rec)
	}
	gs.Bus.Subscribe(gs.onDecision)

	log.Printf("[Round] site ready: %d regions, %d lamps", len(cfg.Rooms.Regions), gs.Grid.Len())
	return gs, nil
}

func (gs *GameState) Scheduler() *DecisionScheduler { return gs.scheduler }
func (gs *GameState) Director() *ActionEngine       { return gs.director }

// Now is the authoritative virtual clock in seconds.
func (gs *GameState) Now() float64 {
	return gs.Timers.Now()
}

// StartRound ends any running round, then starts a new one with a fresh
// crypto-random seed.
func (gs *GameState) StartRound(ctx context.Context) RoundSnapshot {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		log.Printf("[Round] WARN crypto seed unavailable: %v", err)
	}
	return gs.StartRoundWithSeed(ctx, int64(binary.LittleEndian.Uint64(b[:])))
}

// StartRoundWithSeed is StartRound with a caller-chosen seed, so a round can
// be replayed.
func (gs *GameState) StartRoundWithSeed(ctx context.Context, seed int64) RoundSnapshot {
	if gs.Round.Active {
		log.Printf("[Round] restarting: tearing down round %s", gs.Round.ID)
		_ = gs.EndRound(ctx, false)
	}
	_, span := gs.tracer.Start(ctx, "round.start")
	defer span.End()

	gs.rng.Seed(seed)
	now := gs.Now()
	profile := gs.Config.ActiveProfile()

	gs.Round = RoundState{
		ID:             uuid.NewString(),
		Active:         true,
		StartedAt:      now,
		Seed:           seed,
		Profile:        profile.Name,
		Rooms:          gs.selector.PickRooms(),
		LastEvidenceAt: now,
	}
	gs.Entities.Clear()

	gs.scheduler.SetProfile(profile)
	gs.director.SetEntityClass(profile.Class)
	gs.scheduler.Start(gs.Round.ID)
	gs.director.Start()

	span.SetAttributes(
		attribute.String("round.id", gs.Round.ID),
		attribute.String("room.base", gs.Round.Rooms.BaseID),
		attribute.String("room.rift", gs.Round.Rooms.RiftID),
	)
	if gs.recorder != nil {
		gs.recorder.RecordRoundStart(gs.Round)
	}
	log.Printf("[Round] started %s seed=%d base=%q rift=%q profile=%s",
		gs.Round.ID, seed, gs.Round.Rooms.BaseID, gs.Round.Rooms.RiftID, profile.Name)
	return gs.Round.Snapshot(now)
}

// EndRound halts both ticks, closes any evidence window, restores the lights
// and clears the round.
func (gs *GameState) EndRound(ctx context.Context, success bool) error {
	if !gs.Round.Active {
		return ErrRoundInactive
	}
	_, span := gs.tracer.Start(ctx, "round.end")
	defer span.End()
	span.SetAttributes(attribute.String("round.id", gs.Round.ID), attribute.Bool("round.success", success))

	now := gs.Now()
	gs.scheduler.Stop()
	gs.director.Stop()

	if w := gs.Round.Evidence; w.Active {
		gs.Round.Evidence = EvidenceWindow{}
		gs.onEvidence(EvidenceEvent{RoundID: gs.Round.ID, Type: w.Type, StartedAt: w.StartedAt, Duration: w.Duration, At: now})
	}
	gs.Grid.RestoreSite()

	ended := gs.Round
	ended.Active = false
	if gs.recorder != nil {
		gs.recorder.RecordRoundEnd(ended, success, now)
	}
	gs.Entities.Clear()
	gs.Round.Reset()
	log.Printf("[Round] ended %s success=%v after %.1fs", ended.ID, success, now-ended.StartedAt)
	return nil
}

// Advance moves the virtual clock, firing every due tick and lamp timer.
func (gs *GameState) Advance(dt float64) int {
	return gs.Timers.Advance(dt)
}

// UpdatePlayer applies a presence report. A zero tier is derived from sanity.
func (gs *GameState) UpdatePlayer(p Player) {
	if p.Tier == 0 {
		p.Tier = TierForSanity(p.Sanity, gs.Config.Sanity)
	}
	gs.notePresence(gs.Rooms.UpdatePlayer(p))
}

func (gs *GameState) RemovePlayer(id string) {
	gs.notePresence(gs.Rooms.RemovePlayer(id))
}

func (gs *GameState) notePresence(changes []PresenceChange) {
	for _, c := range changes {
		if gs.Round.Active && c.RoomID == gs.Round.Rooms.RiftID {
			if c.Enter {
				log.Printf("[Round] %s entered rift %s", c.PlayerID, c.RoomID)
			} else {
				log.Printf("[Round] %s left rift %s", c.PlayerID, c.RoomID)
			}
		}
	}
	gs.pending.Presence = append(gs.pending.Presence, changes...)
}

// DespawnEntity forgets an entity the game reports gone.
func (gs *GameState) DespawnEntity(uid string) bool {
	ok := gs.Entities.Despawn(uid)
	if ok {
		log.Printf("[Round] entity %s despawned", uid)
	}
	return ok
}

func (gs *GameState) currentInstigator() EntityRef {
	alive := gs.Entities.Alive(gs.Config.Director.TrackedKind)
	if len(alive) == 0 {
		return EntityRef{}
	}
	return EntityRef{UID: alive[0].UID}
}

func (gs *GameState) onDecision(p DecisionPayload) {
	gs.pending.Decisions = append(gs.pending.Decisions, p)
	if gs.recorder != nil {
		gs.recorder.RecordDecision(p)
	}
}

func (gs *GameState) onEvidence(ev EvidenceEvent) {
	gs.pending.Evidence = append(gs.pending.Evidence, ev)
	if gs.recorder != nil {
		gs.recorder.RecordEvidence(ev)
	}
}

// DrainFrame returns what changed since the last drain. ok is false when
// nothing did.
func (gs *GameState) DrainFrame() (Frame, bool) {
	f := gs.pending
	gs.pending = Frame{}
	f.Lamps = gs.Grid.DrainChanged()
	f.Round = gs.Round.Snapshot(gs.Now())

	roundChanged := !gs.sentOnce || gs.Round != gs.lastRound
	gs.lastRound = gs.Round
	gs.sentOnce = true

	empty := len(f.Lamps) == 0 && len(f.Decisions) == 0 && len(f.Evidence) == 0 &&
		len(f.Actions) == 0 && len(f.Presence) == 0
	return f, roundChanged || !empty
}

func (gs *GameState) Snapshot() SiteSnapshot {
	return SiteSnapshot{Round: gs.Round.Snapshot(gs.Now()), Lamps: gs.Grid.Snapshots()}
}
