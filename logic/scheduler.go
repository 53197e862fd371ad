package logic

import (
	"context"
	"log"
	"math/rand"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "sentinel_director_server/logic"

// Effector is the built-in handler for light decisions.
type Effector interface {
	BlackoutRoom(roomID string, duration float64) int
	FlickerRoom(roomID string, duration float64) int
}

type SchedulerConfig struct {
	IntervalSec float64       `json:"interval_sec"`
	Decisions   []DecisionRow `json:"decisions"`
}

// DecisionScheduler periodically picks an occupied room and dispatches one
// decision for it.
type DecisionScheduler struct {
	rooms    RoomModel
	cfg      SchedulerConfig
	rng      *rand.Rand
	bus      *DecisionBus
	effector Effector
	profile  AnomalyProfile
	tracer   trace.Tracer

	// Instigator, when set, names the entity credited with each dispatch.
	Instigator func() EntityRef

	timers    *TimerQueue
	handle    TimerHandle
	roundID   string
	lastFired map[DecisionType]float64
	lastTick  float64
	ticked    bool
}

func NewDecisionScheduler(rooms RoomModel, cfg SchedulerConfig, timers *TimerQueue, rng *rand.Rand, bus *DecisionBus, effector Effector) *DecisionScheduler {
	return &DecisionScheduler{
		rooms:     rooms,
		cfg:       cfg,
		rng:       rng,
		bus:       bus,
		effector:  effector,
		tracer:    otel.Tracer(tracerName),
		timers:    timers,
		lastFired: make(map[DecisionType]float64),
	}
}

// SetProfile switches the active anomaly personality.
func (s *DecisionScheduler) SetProfile(p AnomalyProfile) {
	s.profile = p
}

// Start arms the periodic tick for a round and clears cooldowns.
func (s *DecisionScheduler) Start(roundID string) {
	s.Stop()
	s.roundID = roundID
	clear(s.lastFired)
	s.ticked = false
	s.handle = s.timers.Every(s.cfg.IntervalSec, func() {
		s.Tick(context.Background())
	})
	log.Printf("[Scheduler] armed every %.2fs for round %s", s.cfg.IntervalSec, roundID)
}

func (s *DecisionScheduler) Stop() {
	if s.handle != 0 {
		s.timers.Cancel(s.handle)
		s.handle = 0
	}
}

func (s *DecisionScheduler) Running() bool {
	return s.handle != 0 && s.timers.Active(s.handle)
}

// Ready reports whether row's type is out of cooldown at now.
func (s *DecisionScheduler) Ready(row DecisionRow, now float64) bool {
	last, ok := s.lastFired[row.Type]
	if !ok {
		return true
	}
	return now-last >= row.Cooldown
}

// PickDecision filters the rows for tier by cooldown and weight, applies the
// profile bias, and runs the roulette.
func (s *DecisionScheduler) PickDecision(tier int, now float64) (DecisionRow, bool) {
	var eligible []DecisionRow
	for _, row := range s.cfg.Decisions {
		if row.Tier != tier || row.Weight <= 0 || !s.Ready(row, now) {
			continue
		}
		eligible = append(eligible, row)
	}
	return PickWeighted(s.rng, eligible, func(r DecisionRow) float64 {
		return r.Weight * s.profile.Bias(r.Type)
	})
}

// Tick runs one scheduling pass. It returns the dispatched payload, or false
// when the pass was a no-op.
func (s *DecisionScheduler) Tick(ctx context.Context) (DecisionPayload, bool) {
	now := s.timers.Now()
	if s.ticked && now == s.lastTick {
		return DecisionPayload{}, false
	}
	s.ticked = true
	s.lastTick = now

	_, span := s.tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	occupied := OccupiedRegions(s.rooms)
	if len(occupied) == 0 {
		return DecisionPayload{}, false
	}
	room := occupied[s.rng.Intn(len(occupied))]
	tier := RoomTier(s.rooms, room.ID)
	span.SetAttributes(attribute.String("room.id", room.ID), attribute.Int("room.tier", tier))

	row, ok := s.PickDecision(tier, now)
	if !ok {
		log.Printf("[Scheduler] WARN no eligible decision for tier %d in %s", tier, room.ID)
		return DecisionPayload{}, false
	}

	s.lastFired[row.Type] = now
	p := newPayload(row, room.ID, tier, now)
	p.RoundID = s.roundID
	if s.Instigator != nil {
		p.Instigator = s.Instigator()
	}
	span.SetAttributes(attribute.String("decision.type", string(row.Type)))

	s.dispatch(p)
	return p, true
}

func (s *DecisionScheduler) dispatch(p DecisionPayload) {
	if s.effector != nil {
		switch p.Type {
		case DecisionBlackout:
			s.effector.BlackoutRoom(p.RoomID, p.Duration)
		case DecisionFlicker:
			s.effector.FlickerRoom(p.RoomID, p.Duration)
		}
	}
	n := 0
	if s.bus != nil {
		n = s.bus.Publish(p)
	}
	log.Printf("[Scheduler] dispatched %s to %s tier=%d mag=%.2f dur=%.2f listeners=%d",
		p.Type, p.RoomID, p.Tier, p.Magnitude, p.Duration, n)
}
