package logic

import (
	"errors"
	"math/rand"
)

var ErrNotAuthority = errors.New("lamp transitions require authority")

// LampConfig holds emissive levels and the flicker cadence band.
type LampConfig struct {
	OnEmissive    float64 `json:"on_emissive"`
	OffEmissive   float64 `json:"off_emissive"`
	FlickerMinSec float64 `json:"flicker_min_sec"`
	FlickerMaxSec float64 `json:"flicker_max_sec"`
}

// LampSnapshot is the replicated view of one lamp.
type LampSnapshot struct {
	ID     string    `json:"id"`
	RoomID string    `json:"room_id"`
	State  LampState `json:"state"`
	Prev   LampState `json:"prev"`
	// RestoreAt is the scheduled auto-restore time, zero when none is pending.
	RestoreAt float64 `json:"restore_at,omitempty"`
}

// Lamp is a three-state fixture. Only an authority lamp accepts SetState;
// mirrors follow snapshots.
type Lamp struct {
	ID     string
	RoomID string

	authority bool
	cfg       LampConfig
	timers    *TimerQueue
	rng       *rand.Rand
	onChange  func(*Lamp)

	state     LampState
	prev      LampState
	emissive  float64
	restore   TimerHandle
	restoreAt float64
	flicker   TimerHandle
}

// NewLamp creates an authority lamp, initially On.
func NewLamp(id, roomID string, cfg LampConfig, timers *TimerQueue, rng *rand.Rand) *Lamp {
	return &Lamp{
		ID:        id,
		RoomID:    roomID,
		authority: true,
		cfg:       cfg,
		timers:    timers,
		rng:       rng,
		state:     LampOn,
		prev:      LampOn,
		emissive:  cfg.OnEmissive,
	}
}

// NewMirrorLamp creates a read-only replica.
func NewMirrorLamp(id, roomID string, cfg LampConfig) *Lamp {
	return &Lamp{ID: id, RoomID: roomID, cfg: cfg, state: LampOn, prev: LampOn, emissive: cfg.OnEmissive}
}

func (l *Lamp) State() LampState  { return l.state }
func (l *Lamp) Emissive() float64 { return l.emissive }
func (l *Lamp) Authority() bool   { return l.authority }
func (l *Lamp) RestorePending() bool {
	return l.restore != 0 && l.timers != nil && l.timers.Active(l.restore)
}

// SetState transitions the lamp. With duration > 0 the state is timed: Off
// restores to the last non-Off state, anything else restores to Off. Timed
// effects share one restore slot; any new command replaces a pending restore.
func (l *Lamp) SetState(s LampState, duration float64) error {
	if !l.authority {
		return ErrNotAuthority
	}
	l.cancelRestore()

	target := LampOff
	if s == LampOff && l.state != LampOff {
		l.prev = l.state
	}
	if s == LampOff {
		target = l.prev
	}

	l.apply(s)

	if duration > 0 {
		l.restoreAt = l.timers.Now() + duration
		l.restore = l.timers.After(duration, func() {
			l.restore = 0
			l.restoreAt = 0
			l.apply(target)
		})
	}
	return nil
}

func (l *Lamp) cancelRestore() {
	if l.restore != 0 {
		l.timers.Cancel(l.restore)
		l.restore = 0
		l.restoreAt = 0
	}
}

func (l *Lamp) apply(s LampState) {
	changed := s != l.state
	l.state = s
	switch s {
	case LampFlicker:
		if l.flicker == 0 {
			l.flickerStep()
		}
	case LampOn:
		l.stopFlicker()
		l.emissive = l.cfg.OnEmissive
	case LampOff:
		l.stopFlicker()
		l.emissive = l.cfg.OffEmissive
	}
	if changed && l.onChange != nil {
		l.onChange(l)
	}
}

func (l *Lamp) flickerStep() {
	lo, hi := l.cfg.OffEmissive, l.cfg.OnEmissive
	l.emissive = lo + l.rng.Float64()*(hi-lo)

	next := l.cfg.FlickerMinSec
	if span := l.cfg.FlickerMaxSec - l.cfg.FlickerMinSec; span > 0 {
		next += l.rng.Float64() * span
	}
	if next <= 0 {
		next = 0.05
	}
	l.flicker = l.timers.After(next, l.flickerStep)
}

func (l *Lamp) stopFlicker() {
	if l.flicker != 0 {
		l.timers.Cancel(l.flicker)
		l.flicker = 0
	}
}

func (l *Lamp) Snapshot() LampSnapshot {
	return LampSnapshot{ID: l.ID, RoomID: l.RoomID, State: l.state, Prev: l.prev, RestoreAt: l.restoreAt}
}

// ApplySnapshot mirrors published state onto a replica. Authority lamps
// reject it.
func (l *Lamp) ApplySnapshot(s LampSnapshot) error {
	if l.authority {
		return ErrNotAuthority
	}
	l.state = s.State
	l.prev = s.Prev
	l.restoreAt = s.RestoreAt
	switch s.State {
	case LampOn:
		l.emissive = l.cfg.OnEmissive
	case LampOff:
		l.emissive = l.cfg.OffEmissive
	case LampFlicker:
		l.emissive = (l.cfg.OnEmissive + l.cfg.OffEmissive) / 2
	}
	return nil
}
