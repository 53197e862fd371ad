package logic

import (
	"errors"
	"math/rand"
	"slices"
	"testing"
)

var testLampCfg = LampConfig{OnEmissive: 2, OffEmissive: 0, FlickerMinSec: 0.05, FlickerMaxSec: 0.2}

func newTestLamp(t *testing.T) (*Lamp, *TimerQueue, *[]LampState) {
	t.Helper()
	timers := NewTimerQueue()
	l := NewLamp("lamp", "room", testLampCfg, timers, rand.New(rand.NewSource(1)))
	var seen []LampState
	l.onChange = func(l *Lamp) { seen = append(seen, l.State()) }
	return l, timers, &seen
}

func TestLampStartsOn(t *testing.T) {
	l, _, _ := newTestLamp(t)
	if l.State() != LampOn || l.Emissive() != 2 || !l.Authority() {
		t.Fatalf("unexpected initial lamp %+v", l.Snapshot())
	}
}

func TestLampTimedOffRestoresPreviousWithoutFlicker(t *testing.T) {
	l, timers, seen := newTestLamp(t)
	if err := l.SetState(LampOff, 5); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if l.State() != LampOff || l.Emissive() != 0 {
		t.Fatalf("expected lamp off immediately, got %v", l.State())
	}
	if snap := l.Snapshot(); snap.RestoreAt != 5 || snap.Prev != LampOn {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	timers.Advance(4.5)
	if l.State() != LampOff {
		t.Fatalf("restored early: %v", l.State())
	}
	timers.Advance(1)
	if l.State() != LampOn || l.Emissive() != 2 {
		t.Fatalf("expected lamp back on, got %v", l.State())
	}
	if want := []LampState{LampOff, LampOn}; !slices.Equal(*seen, want) {
		t.Fatalf("expected transitions %v, got %v", want, *seen)
	}
	if l.RestorePending() {
		t.Fatal("restore still pending after firing")
	}
}

func TestLampTimedFlickerRestoresToOff(t *testing.T) {
	l, timers, _ := newTestLamp(t)
	l.SetState(LampFlicker, 3)
	if l.State() != LampFlicker {
		t.Fatalf("expected flicker, got %v", l.State())
	}

	levels := make(map[float64]bool)
	for i := 0; i < 20; i++ {
		timers.Advance(0.1)
		e := l.Emissive()
		if e < 0 || e > 2 {
			t.Fatalf("flicker emissive out of range: %v", e)
		}
		levels[e] = true
	}
	if len(levels) < 2 {
		t.Fatal("flicker never changed emissive")
	}

	timers.Advance(2)
	if l.State() != LampOff {
		t.Fatalf("expected timed flicker to end off, got %v", l.State())
	}
	if timers.Len() != 0 {
		t.Fatalf("flicker loop still scheduled: %d timers", timers.Len())
	}
}

func TestLampNewTimedEffectReplacesPendingRestore(t *testing.T) {
	l, timers, _ := newTestLamp(t)
	l.SetState(LampOff, 5)
	timers.Advance(2)
	l.SetState(LampFlicker, 10)

	timers.Advance(4) // past the original blackout restore
	if l.State() != LampFlicker {
		t.Fatalf("old restore fired over the newer effect: %v", l.State())
	}
	timers.Advance(6.5)
	if l.State() != LampOff {
		t.Fatalf("expected newer restore to land off, got %v", l.State())
	}
}

func TestLampBlackoutDuringFlickerReturnsToFlicker(t *testing.T) {
	l, timers, _ := newTestLamp(t)
	l.SetState(LampFlicker, 0)
	l.SetState(LampOff, 2)
	if l.Snapshot().Prev != LampFlicker {
		t.Fatalf("expected prev flicker, got %v", l.Snapshot().Prev)
	}
	timers.Advance(2.5)
	if l.State() != LampFlicker {
		t.Fatalf("expected flicker after blackout, got %v", l.State())
	}
}

func TestLampUntimedCommandCancelsRestore(t *testing.T) {
	l, timers, _ := newTestLamp(t)
	l.SetState(LampOff, 5)
	l.SetState(LampOn, 0)
	if l.RestorePending() {
		t.Fatal("untimed command left a restore pending")
	}
	l.SetState(LampOff, 0)
	timers.Advance(10)
	if l.State() != LampOff {
		t.Fatalf("untimed off should hold, got %v", l.State())
	}
}

func TestLampRepeatedOffKeepsOriginalPrev(t *testing.T) {
	l, timers, _ := newTestLamp(t)
	l.SetState(LampOff, 5)
	l.SetState(LampOff, 5)
	timers.Advance(6)
	if l.State() != LampOn {
		t.Fatalf("expected on after stacked blackouts, got %v", l.State())
	}
}

func TestMirrorLampFollowsSnapshots(t *testing.T) {
	m := NewMirrorLamp("lamp", "room", testLampCfg)
	if err := m.SetState(LampOff, 1); !errors.Is(err, ErrNotAuthority) {
		t.Fatalf("expected ErrNotAuthority, got %v", err)
	}
	if err := m.ApplySnapshot(LampSnapshot{ID: "lamp", State: LampOff, Prev: LampOn, RestoreAt: 4}); err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}
	if m.State() != LampOff || m.Emissive() != 0 || m.Snapshot().RestoreAt != 4 {
		t.Fatalf("mirror did not follow snapshot: %+v", m.Snapshot())
	}

	l, _, _ := newTestLamp(t)
	if err := l.ApplySnapshot(LampSnapshot{State: LampOff}); !errors.Is(err, ErrNotAuthority) {
		t.Fatalf("authority lamp accepted snapshot: %v", err)
	}
}

func TestLampStateText(t *testing.T) {
	for _, s := range []LampState{LampOn, LampFlicker, LampOff} {
		b, _ := s.MarshalText()
		var back LampState
		if err := back.UnmarshalText(b); err != nil || back != s {
			t.Fatalf("%v: round trip gave %v (%v)", s, back, err)
		}
	}
	var s LampState
	if err := s.UnmarshalText([]byte("dim")); err == nil {
		t.Fatal("expected error for unknown state")
	}
}
