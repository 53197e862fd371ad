package logic

import (
	"context"
	"log"
	"math"
	"math/rand"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EvidenceGeneric is opened when the active class has no policy entry.
const EvidenceGeneric EvidenceType = "generic"

// ActionRow is one static entry in the director action table.
type ActionRow struct {
	ID                    ActionID `json:"id"`
	SanityMin             float64  `json:"sanity_min"`
	SanityMax             float64  `json:"sanity_max"`
	RequiresRiftOccupancy bool     `json:"requires_rift_occupancy"`
	MinAlive              int      `json:"min_alive"`
	MaxAlive              int      `json:"max_alive"`
	Cooldown              float64  `json:"cooldown_sec"`
	Weight                float64  `json:"weight"`
}

// EvidenceConfig drives the evidence window state machine.
type EvidenceConfig struct {
	DurationSec float64 `json:"duration_sec"`
	CooldownSec float64 `json:"cooldown_sec"`
	FailsafeSec float64 `json:"failsafe_sec"`
	SanityMin   float64 `json:"sanity_min"`
	SanityMax   float64 `json:"sanity_max"`
	// Policy maps an entity class to the evidence types it may leave.
	Policy map[string][]EvidenceType `json:"policy"`
}

type ActionEngineConfig struct {
	IntervalSec          float64        `json:"interval_sec"`
	Actions              []ActionRow    `json:"actions"`
	Evidence             EvidenceConfig `json:"evidence"`
	SpawnSanityThreshold float64        `json:"spawn_sanity_threshold"`
	TrackedKind          string         `json:"tracked_kind"`
	NeutralSanity        float64        `json:"neutral_sanity"`
	AggressionPerTick    float64        `json:"aggression_per_tick"`
	CollapseThreshold    float64        `json:"collapse_threshold"`
}

// EvidenceEvent records one open or close of the evidence window.
type EvidenceEvent struct {
	RoundID   string       `json:"round_id"`
	Open      bool         `json:"open"`
	Forced    bool         `json:"forced,omitempty"`
	Type      EvidenceType `json:"type"`
	StartedAt float64      `json:"started_at"`
	Duration  float64      `json:"duration_sec"`
	At        float64      `json:"at"`
}

// ActionRecord records one executed director action.
type ActionRecord struct {
	RoundID   string   `json:"round_id"`
	Action    ActionID `json:"action"`
	RoomID    string   `json:"room_id,omitempty"`
	EntityUID string   `json:"entity_uid,omitempty"`
	At        float64  `json:"at"`
}

// Observation is what one action tick sees of the site.
type Observation struct {
	AnyOccupied  bool
	RiftOccupied bool
	LowestSanity float64
	Alive        int
}

// ActionEngine is the director's second tick: it runs the evidence window and
// picks high-level actions from the action table.
type ActionEngine struct {
	rooms   RoomModel
	cfg     ActionEngineConfig
	timers  *TimerQueue
	rng     *rand.Rand
	spawner Spawner
	round   *RoundState
	tracer  trace.Tracer

	OnEvidence func(EvidenceEvent)
	OnAction   func(ActionRecord)

	handle      TimerHandle
	class       string
	lastFired   map[ActionID]float64
	policyIndex map[string]int
}

func NewActionEngine(rooms RoomModel, cfg ActionEngineConfig, timers *TimerQueue, rng *rand.Rand, spawner Spawner, round *RoundState) *ActionEngine {
	return &ActionEngine{
		rooms:       rooms,
		cfg:         cfg,
		timers:      timers,
		rng:         rng,
		spawner:     spawner,
		round:       round,
		tracer:      otel.Tracer(tracerName),
		lastFired:   make(map[ActionID]float64),
		policyIndex: make(map[string]int),
	}
}

// SetEntityClass selects the evidence policy row.
func (e *ActionEngine) SetEntityClass(class string) {
	e.class = class
}

// Start arms the action tick and clears per-action cooldowns.
func (e *ActionEngine) Start() {
	e.Stop()
	clear(e.lastFired)
	clear(e.policyIndex)
	e.handle = e.timers.Every(e.cfg.IntervalSec, func() {
		e.Tick(context.Background())
	})
	log.Printf("[Director] armed every %.2fs for round %s", e.cfg.IntervalSec, e.round.ID)
}

func (e *ActionEngine) Stop() {
	if e.handle != 0 {
		e.timers.Cancel(e.handle)
		e.handle = 0
	}
}

func (e *ActionEngine) Running() bool {
	return e.handle != 0 && e.timers.Active(e.handle)
}

// Observe gathers the per-tick inputs. Lowest sanity counts only rift
// occupants and is NeutralSanity when the rift is empty or unset.
func (e *ActionEngine) Observe() Observation {
	obs := Observation{
		AnyOccupied:  len(OccupiedRegions(e.rooms)) > 0,
		LowestSanity: e.cfg.NeutralSanity,
	}
	if e.round.Rooms.HasRift() {
		occ := e.rooms.Occupants(e.round.Rooms.RiftID)
		obs.RiftOccupied = len(occ) > 0
		for i, p := range occ {
			if i == 0 || p.Sanity < obs.LowestSanity {
				obs.LowestSanity = p.Sanity
			}
		}
	}
	if e.spawner != nil {
		obs.Alive = e.spawner.AliveCount(e.cfg.TrackedKind)
	}
	return obs
}

// Tick runs one director pass.
func (e *ActionEngine) Tick(ctx context.Context) {
	if !e.round.Active {
		return
	}
	now := e.timers.Now()
	_, span := e.tracer.Start(ctx, "director.tick")
	defer span.End()

	e.expireEvidence(now)

	obs := e.Observe()
	span.SetAttributes(
		attribute.Bool("rift.occupied", obs.RiftOccupied),
		attribute.Float64("sanity.lowest", obs.LowestSanity),
		attribute.Int("entities.alive", obs.Alive),
	)
	e.bumpAggression()

	if !obs.AnyOccupied {
		return
	}

	e.maybeOpenEvidence(now, obs)

	row, ok := e.PickAction(now, obs)
	if !ok {
		log.Printf("[Director] WARN no eligible action (sanity=%.1f alive=%d rift=%v)",
			obs.LowestSanity, obs.Alive, obs.RiftOccupied)
		return
	}
	span.SetAttributes(attribute.String("action.id", string(row.ID)))
	e.execute(now, row, obs)
}

func (e *ActionEngine) bumpAggression() {
	if e.cfg.AggressionPerTick <= 0 {
		return
	}
	before := e.round.Aggression
	e.round.Aggression = math.Min(before+e.cfg.AggressionPerTick, e.cfg.CollapseThreshold)
	if !e.round.Collapsed && e.round.Aggression >= e.cfg.CollapseThreshold {
		e.round.Collapsed = true
		log.Printf("[Round] aggression reached collapse threshold %.2f in round %s", e.cfg.CollapseThreshold, e.round.ID)
	}
}

func (e *ActionEngine) expireEvidence(now float64) {
	w := e.round.Evidence
	if !w.Expired(now) {
		return
	}
	e.round.Evidence = EvidenceWindow{}
	log.Printf("[Director] evidence window %s closed after %.2fs", w.Type, now-w.StartedAt)
	e.emitEvidence(EvidenceEvent{Open: false, Type: w.Type, StartedAt: w.StartedAt, Duration: w.Duration, At: now})
}

// EvidenceDue reports whether a closed window may open now, and whether the
// opening is forced by the failsafe.
func (e *ActionEngine) EvidenceDue(now float64, lowest float64) (open, forced bool) {
	if e.round.Evidence.Active {
		return false, false
	}
	ev := e.cfg.Evidence
	since := now - e.round.LastEvidenceAt
	inBand := lowest >= ev.SanityMin && lowest <= ev.SanityMax
	cooled := e.round.EvidenceOpened == 0 || since >= ev.CooldownSec
	if inBand && cooled {
		return true, false
	}
	if ev.FailsafeSec > 0 && since >= ev.FailsafeSec {
		return true, true
	}
	return false, false
}

func (e *ActionEngine) maybeOpenEvidence(now float64, obs Observation) {
	open, forced := e.EvidenceDue(now, obs.LowestSanity)
	if open {
		e.openEvidence(now, forced)
	}
}

func (e *ActionEngine) openEvidence(now float64, forced bool) {
	t := e.nextEvidenceType()
	e.round.Evidence = EvidenceWindow{Active: true, StartedAt: now, Duration: e.cfg.Evidence.DurationSec, Type: t}
	e.round.LastEvidenceAt = now
	e.round.EvidenceOpened++
	if forced {
		log.Printf("[Director] evidence window %s forced open by failsafe", t)
	} else {
		log.Printf("[Director] evidence window %s opened for %.2fs", t, e.cfg.Evidence.DurationSec)
	}
	e.emitEvidence(EvidenceEvent{Open: true, Forced: forced, Type: t, StartedAt: now, Duration: e.cfg.Evidence.DurationSec, At: now})
}

// nextEvidenceType walks the class policy list in order, wrapping around.
func (e *ActionEngine) nextEvidenceType() EvidenceType {
	types := e.cfg.Evidence.Policy[e.class]
	if len(types) == 0 {
		types = e.cfg.Evidence.Policy[""]
	}
	if len(types) == 0 {
		return EvidenceGeneric
	}
	i := e.policyIndex[e.class] % len(types)
	e.policyIndex[e.class] = i + 1
	return types[i]
}

func (e *ActionEngine) emitEvidence(ev EvidenceEvent) {
	ev.RoundID = e.round.ID
	if e.OnEvidence != nil {
		e.OnEvidence(ev)
	}
}

// ActionReady reports whether row is out of its own cooldown at now.
func (e *ActionEngine) ActionReady(row ActionRow, now float64) bool {
	last, ok := e.lastFired[row.ID]
	if !ok {
		return true
	}
	return now-last >= row.Cooldown
}

// Eligible applies the action row predicates to one observation.
func (e *ActionEngine) Eligible(row ActionRow, now float64, obs Observation) bool {
	if row.Weight <= 0 {
		return false
	}
	if obs.LowestSanity < row.SanityMin || obs.LowestSanity > row.SanityMax {
		return false
	}
	if row.RequiresRiftOccupancy && !obs.RiftOccupied {
		return false
	}
	if obs.Alive < row.MinAlive || obs.Alive > row.MaxAlive {
		return false
	}
	return e.ActionReady(row, now)
}

func (e *ActionEngine) PickAction(now float64, obs Observation) (ActionRow, bool) {
	var eligible []ActionRow
	for _, row := range e.cfg.Actions {
		if e.Eligible(row, now, obs) {
			eligible = append(eligible, row)
		}
	}
	return PickWeighted(e.rng, eligible, func(r ActionRow) float64 { return r.Weight })
}

func (e *ActionEngine) execute(now float64, row ActionRow, obs Observation) {
	switch row.ID {
	case ActionDoNothing:
		e.lastFired[row.ID] = now
		e.emitAction(ActionRecord{Action: row.ID, At: now})

	case ActionSpawnEntity:
		e.spawnEntity(now, row, obs)

	case ActionOpenEvidence:
		// The row only requests a window; the evidence band and cooldown
		// still decide. Forced opens belong to the failsafe alone.
		open, forced := e.EvidenceDue(now, obs.LowestSanity)
		if !open || forced {
			return
		}
		e.lastFired[row.ID] = now
		e.openEvidence(now, false)
		e.emitAction(ActionRecord{Action: row.ID, At: now})

	default:
		log.Printf("[Director] WARN unknown action %q", row.ID)
	}
}

// spawnEntity re-checks the strict gate immediately before spawning: sanity
// at or below threshold, nothing alive, rift occupied.
func (e *ActionEngine) spawnEntity(now float64, row ActionRow, obs Observation) {
	if e.spawner == nil || !e.round.Rooms.HasRift() {
		return
	}
	if obs.LowestSanity > e.cfg.SpawnSanityThreshold || !obs.RiftOccupied {
		return
	}
	if e.spawner.AliveCount(e.cfg.TrackedKind) != 0 {
		return
	}
	ent, err := e.spawner.Spawn(e.cfg.TrackedKind, e.round.Rooms.RiftID)
	if err != nil {
		log.Printf("[Director] spawn aborted: %v", err)
		return
	}
	e.lastFired[row.ID] = now
	log.Printf("[Director] spawned %s %s in rift %s (sanity=%.1f)", ent.Kind, ent.UID, ent.RoomID, obs.LowestSanity)
	e.emitAction(ActionRecord{Action: row.ID, RoomID: ent.RoomID, EntityUID: ent.UID, At: now})
}

func (e *ActionEngine) emitAction(rec ActionRecord) {
	rec.RoundID = e.round.ID
	if e.OnAction != nil {
		e.OnAction(rec)
	}
}
