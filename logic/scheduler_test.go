package logic

import (
	"context"
	"math"
	"math/rand"
	"testing"
)

type effectorCall struct {
	op       string
	roomID   string
	duration float64
}

type recordingEffector struct {
	calls []effectorCall
}

func (e *recordingEffector) BlackoutRoom(roomID string, duration float64) int {
	e.calls = append(e.calls, effectorCall{"blackout", roomID, duration})
	return 1
}

func (e *recordingEffector) FlickerRoom(roomID string, duration float64) int {
	e.calls = append(e.calls, effectorCall{"flicker", roomID, duration})
	return 1
}

type schedulerFixture struct {
	rooms    *RoomGraph
	timers   *TimerQueue
	bus      *DecisionBus
	effector *recordingEffector
	sched    *DecisionScheduler
	got      []DecisionPayload
}

func newSchedulerFixture(t *testing.T, rows ...DecisionRow) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		rooms: newTestGraph(t, nil,
			Region{ID: "lobby", Type: RoomSafe, Bounds: box(0, 0, 100, 100)},
			Region{ID: "a", Bounds: box(100, 0, 200, 100)},
			Region{ID: "b", Bounds: box(200, 0, 300, 100)},
		),
		timers:   NewTimerQueue(),
		bus:      NewDecisionBus(),
		effector: &recordingEffector{},
	}
	f.bus.Subscribe(func(p DecisionPayload) { f.got = append(f.got, p) })
	f.sched = NewDecisionScheduler(f.rooms, SchedulerConfig{IntervalSec: 3, Decisions: rows},
		f.timers, rand.New(rand.NewSource(4)), f.bus, f.effector)
	return f
}

func (f *schedulerFixture) enter(id, room string, tier int) {
	x := map[string]float64{"lobby": 50, "a": 150, "b": 250}[room]
	f.rooms.UpdatePlayer(Player{ID: id, Pos: Vector2{X: x, Y: 50}, Tier: tier, Controlled: true})
}

func TestSchedulerNoOccupancyIsNoop(t *testing.T) {
	f := newSchedulerFixture(t, DecisionRow{Tier: 1, Type: DecisionFlicker, Weight: 1})
	if _, ok := f.sched.Tick(context.Background()); ok {
		t.Fatal("dispatched with nobody present")
	}
	f.enter("p1", "lobby", 3)
	f.timers.Advance(1)
	if _, ok := f.sched.Tick(context.Background()); ok {
		t.Fatal("dispatched for a pawn in a safe room")
	}
	if len(f.got) != 0 || len(f.effector.calls) != 0 {
		t.Fatal("no-op tick had side effects")
	}
}

func TestSchedulerRespectsCooldown(t *testing.T) {
	f := newSchedulerFixture(t, DecisionRow{Tier: 1, Type: DecisionKnockDoor, Weight: 1, Cooldown: 10})
	f.enter("p1", "a", 1)

	var fired []float64
	for step := 0; step <= 20; step++ {
		if p, ok := f.sched.Tick(context.Background()); ok {
			fired = append(fired, p.At)
		}
		f.timers.Advance(1)
	}
	want := []float64{0, 10, 20}
	if len(fired) != len(want) {
		t.Fatalf("expected dispatches at %v, got %v", want, fired)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("expected dispatches at %v, got %v", want, fired)
		}
	}
}

func TestSchedulerSameInstantTickIsDeduplicated(t *testing.T) {
	f := newSchedulerFixture(t, DecisionRow{Tier: 1, Type: DecisionIdle, Weight: 1})
	f.enter("p1", "a", 1)
	if _, ok := f.sched.Tick(context.Background()); !ok {
		t.Fatal("expected first tick to dispatch")
	}
	if _, ok := f.sched.Tick(context.Background()); ok {
		t.Fatal("second tick at the same instant dispatched")
	}
}

func TestSchedulerPicksRowsForRoomTier(t *testing.T) {
	f := newSchedulerFixture(t,
		DecisionRow{Tier: 1, Type: DecisionIdle, Weight: 1},
		DecisionRow{Tier: 3, Type: DecisionHunt, Weight: 1},
		DecisionRow{Tier: 3, Type: DecisionTrap, Weight: 0},
	)
	f.enter("calm", "a", 1)
	f.enter("broken", "a", 3)
	for i := 0; i < 50; i++ {
		p, ok := f.sched.Tick(context.Background())
		if !ok {
			t.Fatalf("tick %d did not dispatch", i)
		}
		if p.Type != DecisionHunt || p.Tier != 3 || p.RoomID != "a" {
			t.Fatalf("unexpected decision %+v", p)
		}
		f.timers.Advance(1)
	}
}

func TestSchedulerRoutesLightsAndPublishesOnce(t *testing.T) {
	f := newSchedulerFixture(t, DecisionRow{Tier: 2, Type: DecisionBlackout, Weight: 1, Magnitude: 0.5, Duration: 4})
	var order []string
	f.bus.Subscribe(func(DecisionPayload) { order = append(order, "second") })
	f.sched.Instigator = func() EntityRef { return EntityRef{UID: "ent_1"} }
	f.sched.Start("round-1")
	f.enter("p1", "b", 2)

	f.timers.Advance(3)
	if len(f.got) != 1 || len(order) != 1 {
		t.Fatalf("expected one delivery per listener, got %d/%d", len(f.got), len(order))
	}
	p := f.got[0]
	if p.RoundID != "round-1" || p.Instigator.UID != "ent_1" || p.RoomID != "b" || p.Duration != 4 || p.ID == "" {
		t.Fatalf("unexpected payload %+v", p)
	}
	if len(f.effector.calls) != 1 || f.effector.calls[0] != (effectorCall{"blackout", "b", 4}) {
		t.Fatalf("unexpected effector calls %+v", f.effector.calls)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	f := newSchedulerFixture(t, DecisionRow{Tier: 1, Type: DecisionFlicker, Weight: 1})
	f.enter("p1", "a", 1)
	f.sched.Start("r")
	if !f.sched.Running() {
		t.Fatal("expected scheduler running")
	}
	f.timers.Advance(9)
	if len(f.got) != 3 {
		t.Fatalf("expected 3 dispatches, got %d", len(f.got))
	}
	f.sched.Stop()
	if f.sched.Running() {
		t.Fatal("scheduler still running after stop")
	}
	f.timers.Advance(9)
	if len(f.got) != 3 {
		t.Fatalf("dispatched after stop: %d", len(f.got))
	}
}

func TestSchedulerProfileBiasSkewsPicks(t *testing.T) {
	f := newSchedulerFixture(t,
		DecisionRow{Tier: 1, Type: DecisionFlicker, Weight: 1},
		DecisionRow{Tier: 1, Type: DecisionKnockDoor, Weight: 1},
	)
	f.sched.SetProfile(AnomalyProfile{Name: "wraith", DoorBias: 1, LightBias: 9})
	counts := make(map[DecisionType]int)
	const trials = 10000
	for i := 0; i < trials; i++ {
		row, ok := f.sched.PickDecision(1, 0)
		if !ok {
			t.Fatal("expected a pick")
		}
		counts[row.Type]++
	}
	if freq := float64(counts[DecisionFlicker]) / trials; math.Abs(freq-0.9) > 0.02 {
		t.Fatalf("expected light bias to give ~0.9, got %.3f", freq)
	}
}

func TestAnomalyProfileZeroBiasIsNeutral(t *testing.T) {
	p := AnomalyProfile{}
	if p.Bias(DecisionLockDoor) != 1 || p.Bias(DecisionFlicker) != 1 || p.Bias(DecisionHunt) != 1 {
		t.Fatal("zero profile should not change weights")
	}
	p = AnomalyProfile{DoorBias: 2, LightBias: 0.5}
	if p.Bias(DecisionJamDoor) != 2 || p.Bias(DecisionBlackout) != 0.5 || p.Bias(DecisionTeleport) != 1 {
		t.Fatal("bias applied to the wrong group")
	}
}

func TestDecisionBusUnsubscribeDuringPublish(t *testing.T) {
	bus := NewDecisionBus()
	var calls []string
	var second SubscriptionID
	bus.Subscribe(func(DecisionPayload) {
		calls = append(calls, "first")
		bus.Unsubscribe(second)
	})
	second = bus.Subscribe(func(DecisionPayload) { calls = append(calls, "second") })

	if n := bus.Publish(DecisionPayload{}); n != 2 {
		t.Fatalf("expected 2 listeners at publish time, got %d", n)
	}
	if len(calls) != 2 {
		t.Fatalf("listener removed mid-publish missed the current payload: %v", calls)
	}
	bus.Publish(DecisionPayload{})
	if len(calls) != 3 || bus.Len() != 1 {
		t.Fatalf("unsubscribe did not take effect: %v", calls)
	}
	if bus.Subscribe(nil) != 0 {
		t.Fatal("nil listener should not subscribe")
	}
}
