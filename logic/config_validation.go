package logic

import (
	"fmt"
	"log"
	"math"
)

func clampInt(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func clampFloat(v, minV, maxV float64) float64 {
	if math.IsNaN(v) {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// ClampDirectorConfig enforces hard safety bounds on a site config.
// It mutates cfg in-place so operators can hand-edit tables without breaking the tick loop.
func ClampDirectorConfig(cfg *DirectorConfig) {
	if cfg == nil {
		return
	}

	// --- server ---
	cfg.Server.TickRateMs = clampInt(cfg.Server.TickRateMs, 10, 200)
	cfg.Server.MaxObservers = clampInt(cfg.Server.MaxObservers, 1, 1024)

	// --- rooms ---
	cfg.Rooms.TileSize = clampFloat(cfg.Rooms.TileSize, 1, 10000)

	// --- lamps ---
	cfg.Lamps.OnEmissive = clampFloat(cfg.Lamps.OnEmissive, 0, 100)
	cfg.Lamps.OffEmissive = clampFloat(cfg.Lamps.OffEmissive, 0, cfg.Lamps.OnEmissive)
	cfg.Lamps.FlickerMinSec = clampFloat(cfg.Lamps.FlickerMinSec, 0.01, 5)
	cfg.Lamps.FlickerMaxSec = clampFloat(cfg.Lamps.FlickerMaxSec, cfg.Lamps.FlickerMinSec, 5)

	// --- sanity ---
	cfg.Sanity.Max = clampFloat(cfg.Sanity.Max, 1, 1000)
	cfg.Sanity.Tier2Above = clampFloat(cfg.Sanity.Tier2Above, 0, cfg.Sanity.Max)
	cfg.Sanity.Tier1Above = clampFloat(cfg.Sanity.Tier1Above, cfg.Sanity.Tier2Above, cfg.Sanity.Max)

	// --- selector ---
	cfg.Selector.Sigma = clampFloat(cfg.Selector.Sigma, 1, 1e6)
	cfg.Selector.Epsilon = clampFloat(cfg.Selector.Epsilon, 1e-12, 1e-2)

	// --- scheduler ---
	cfg.Scheduler.IntervalSec = clampFloat(cfg.Scheduler.IntervalSec, 0.1, 60)
	for i := range cfg.Scheduler.Decisions {
		row := &cfg.Scheduler.Decisions[i]
		row.Tier = clampInt(row.Tier, 1, 3)
		row.Weight = clampFloat(row.Weight, 0, 1000)
		row.Cooldown = clampFloat(row.Cooldown, 0, 3600)
		row.Magnitude = clampFloat(row.Magnitude, 0, 100)
		row.Duration = clampFloat(row.Duration, 0, 600)
	}

	// --- director ---
	d := &cfg.Director
	d.IntervalSec = clampFloat(d.IntervalSec, 0.1, 60)
	d.NeutralSanity = clampFloat(d.NeutralSanity, 0, cfg.Sanity.Max)
	d.SpawnSanityThreshold = clampFloat(d.SpawnSanityThreshold, 0, cfg.Sanity.Max)
	d.CollapseThreshold = clampFloat(d.CollapseThreshold, 0, 1e6)
	if d.AggressionPerTick > d.CollapseThreshold {
		log.Printf("[Config] WARN aggression_per_tick %.2f exceeds collapse_threshold, clamping", d.AggressionPerTick)
	}
	d.AggressionPerTick = clampFloat(d.AggressionPerTick, 0, d.CollapseThreshold)
	for i := range d.Actions {
		row := &d.Actions[i]
		row.SanityMin = clampFloat(row.SanityMin, 0, cfg.Sanity.Max)
		row.SanityMax = clampFloat(row.SanityMax, row.SanityMin, cfg.Sanity.Max)
		row.MinAlive = clampInt(row.MinAlive, 0, 64)
		row.MaxAlive = clampInt(row.MaxAlive, row.MinAlive, 64)
		row.Cooldown = clampFloat(row.Cooldown, 0, 3600)
		row.Weight = clampFloat(row.Weight, 0, 1000)
	}

	ev := &d.Evidence
	ev.DurationSec = clampFloat(ev.DurationSec, 1, 600)
	ev.CooldownSec = clampFloat(ev.CooldownSec, 0, 3600)
	ev.FailsafeSec = clampFloat(ev.FailsafeSec, 0, 7200)
	if ev.FailsafeSec > 0 && ev.FailsafeSec < ev.CooldownSec {
		ev.FailsafeSec = ev.CooldownSec
	}
	ev.SanityMin = clampFloat(ev.SanityMin, 0, cfg.Sanity.Max)
	ev.SanityMax = clampFloat(ev.SanityMax, ev.SanityMin, cfg.Sanity.Max)

	// --- effector ---
	cfg.Effector.BlackoutSec = clampFloat(cfg.Effector.BlackoutSec, 0.1, 600)
	cfg.Effector.FlickerSec = clampFloat(cfg.Effector.FlickerSec, 0.1, 600)

	// --- profiles ---
	for i := range cfg.Profiles.List {
		p := &cfg.Profiles.List[i]
		p.DoorBias = clampFloat(p.DoorBias, 0, 10)
		p.LightBias = clampFloat(p.LightBias, 0, 10)
	}
}

// ValidateDirectorConfig rejects tables that reference unknown enums or rooms.
// Unlike clamping, these cannot be repaired silently.
func ValidateDirectorConfig(cfg *DirectorConfig) error {
	rooms := make(map[string]bool, len(cfg.Rooms.Regions))
	for _, r := range cfg.Rooms.Regions {
		if r.Type != "" && !r.Type.Valid() {
			return fmt.Errorf("region %s: unknown type %q", r.ID, r.Type)
		}
		rooms[r.ID] = true
	}
	for _, l := range cfg.Lamps.Fixtures {
		if !rooms[l.RoomID] {
			return fmt.Errorf("lamp %s: %w %q", l.ID, ErrUnknownRoom, l.RoomID)
		}
	}
	for i, row := range cfg.Scheduler.Decisions {
		if !row.Type.Valid() {
			return fmt.Errorf("decision row %d: unknown type %q", i, row.Type)
		}
	}
	for i, row := range cfg.Director.Actions {
		if !row.ID.Valid() {
			return fmt.Errorf("action row %d: unknown action %q", i, row.ID)
		}
	}
	if cfg.Director.TrackedKind == "" {
		return fmt.Errorf("director: tracked_kind is empty")
	}
	return nil
}
