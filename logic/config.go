package logic

import (
	"encoding/json"
	"fmt"
	"os"
)

// DirectorConfig is the externally editable configuration of one site.
type DirectorConfig struct {
	Server struct {
		TickRateMs   int `json:"tick_rate_ms"`
		MaxObservers int `json:"max_observers"`
	} `json:"server"`
	Rooms struct {
		Regions  []Region `json:"regions"`
		NavGrid  []string `json:"nav_grid,omitempty"`
		TileSize float64  `json:"tile_size"`
	} `json:"rooms"`
	Lamps struct {
		LampConfig
		Fixtures []LampSpec `json:"fixtures"`
	} `json:"lamps"`
	Sanity    SanityConfig       `json:"sanity"`
	Selector  SelectorConfig     `json:"selector"`
	Scheduler SchedulerConfig    `json:"scheduler"`
	Director  ActionEngineConfig `json:"director"`
	Effector  EffectorConfig     `json:"effector"`
	Profiles  struct {
		Active string           `json:"active"`
		List   []AnomalyProfile `json:"list"`
	} `json:"profiles"`
}

// ActiveProfile returns the configured active profile, or a neutral one.
func (c *DirectorConfig) ActiveProfile() AnomalyProfile {
	for _, p := range c.Profiles.List {
		if p.Name == c.Profiles.Active {
			return p
		}
	}
	return AnomalyProfile{Name: "neutral", DoorBias: 1, LightBias: 1}
}

// LoadConfig reads a JSON config over the defaults and clamps it.
func LoadConfig(path string) (*DirectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	ClampDirectorConfig(cfg)
	if err := ValidateDirectorConfig(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func DefaultConfig() *DirectorConfig {
	cfg := &DirectorConfig{}

	cfg.Server.TickRateMs = 50
	cfg.Server.MaxObservers = 64

	cfg.Rooms.TileSize = 100
	cfg.Rooms.Regions = []Region{
		{ID: "lobby", Type: RoomSafe, Bounds: Bounds{Min: Vector2{X: 0, Y: 0}, Max: Vector2{X: 600, Y: 600}}},
		{ID: "hall", Type: RoomHallway, Bounds: Bounds{Min: Vector2{X: 600, Y: 0}, Max: Vector2{X: 3000, Y: 300}}},
		{ID: "lab", Type: RoomBaseCandidate, Bounds: Bounds{Min: Vector2{X: 600, Y: 300}, Max: Vector2{X: 1200, Y: 900}}},
		{ID: "office", Type: RoomBaseCandidate, Bounds: Bounds{Min: Vector2{X: 1200, Y: 300}, Max: Vector2{X: 1800, Y: 900}}},
		{ID: "archive", Type: RoomRiftCandidate, Bounds: Bounds{Min: Vector2{X: 1800, Y: 300}, Max: Vector2{X: 2400, Y: 900}}},
		{ID: "boiler", Type: RoomRiftCandidate, Bounds: Bounds{Min: Vector2{X: 2400, Y: 300}, Max: Vector2{X: 3000, Y: 900}}},
	}

	cfg.Lamps.LampConfig = LampConfig{OnEmissive: 2, OffEmissive: 0, FlickerMinSec: 0.05, FlickerMaxSec: 0.20}
	for _, r := range cfg.Rooms.Regions {
		for i := 1; i <= 2; i++ {
			cfg.Lamps.Fixtures = append(cfg.Lamps.Fixtures, LampSpec{ID: fmt.Sprintf("%s_lamp_%d", r.ID, i), RoomID: r.ID})
		}
	}

	cfg.Sanity = SanityConfig{Max: 100, Tier1Above: 66, Tier2Above: 33}
	cfg.Selector = SelectorConfig{Sigma: 1200, Epsilon: 1e-6}

	cfg.Scheduler.IntervalSec = 3
	cfg.Scheduler.Decisions = []DecisionRow{
		{Tier: 1, Type: DecisionIdle, Weight: 3},
		{Tier: 1, Type: DecisionFlicker, Weight: 4, Cooldown: 6, Magnitude: 0.3, Duration: 3},
		{Tier: 1, Type: DecisionKnockDoor, Weight: 2, Cooldown: 8, Magnitude: 0.2},

		{Tier: 2, Type: DecisionFlicker, Weight: 3, Cooldown: 6, Magnitude: 0.5, Duration: 4},
		{Tier: 2, Type: DecisionBlackout, Weight: 2, Cooldown: 12, Magnitude: 0.5, Duration: 5},
		{Tier: 2, Type: DecisionLockDoor, Weight: 2, Cooldown: 10, Magnitude: 0.5, Duration: 6},
		{Tier: 2, Type: DecisionOpenDoor, Weight: 1, Cooldown: 8, Magnitude: 0.4},
		{Tier: 2, Type: DecisionCloseDoor, Weight: 1, Cooldown: 8, Magnitude: 0.4},
		{Tier: 2, Type: DecisionJumpScare, Weight: 1, Cooldown: 20, Magnitude: 0.6, Duration: 1.5},
		{Tier: 2, Type: DecisionEvidenceT1, Weight: 1, Cooldown: 15, Magnitude: 0.5, Duration: 8},

		{Tier: 3, Type: DecisionBlackout, Weight: 3, Cooldown: 10, Magnitude: 1, Duration: 8},
		{Tier: 3, Type: DecisionJamDoor, Weight: 2, Cooldown: 12, Magnitude: 1, Duration: 10},
		{Tier: 3, Type: DecisionTeleport, Weight: 1, Cooldown: 30, Magnitude: 1},
		{Tier: 3, Type: DecisionTrap, Weight: 1, Cooldown: 25, Magnitude: 1, Duration: 6},
		{Tier: 3, Type: DecisionPatrol, Weight: 2, Cooldown: 15, Magnitude: 0.8, Duration: 12},
		{Tier: 3, Type: DecisionHunt, Weight: 1, Cooldown: 45, Magnitude: 1, Duration: 20},
		{Tier: 3, Type: DecisionEvidenceT2, Weight: 1, Cooldown: 20, Magnitude: 0.8, Duration: 8},
		{Tier: 3, Type: DecisionCharacteristic, Weight: 1, Cooldown: 30, Magnitude: 0.8, Duration: 5},
	}

	cfg.Director = ActionEngineConfig{
		IntervalSec: 1,
		Actions: []ActionRow{
			{ID: ActionDoNothing, SanityMin: 0, SanityMax: 100, MinAlive: 0, MaxAlive: 1, Weight: 5},
			{ID: ActionSpawnEntity, SanityMin: 0, SanityMax: 40, RequiresRiftOccupancy: true, MinAlive: 0, MaxAlive: 0, Cooldown: 20, Weight: 3},
			{ID: ActionOpenEvidence, SanityMin: 0, SanityMax: 60, RequiresRiftOccupancy: true, MinAlive: 0, MaxAlive: 1, Cooldown: 30, Weight: 1},
		},
		Evidence: EvidenceConfig{
			DurationSec: 20,
			CooldownSec: 45,
			FailsafeSec: 120,
			SanityMin:   20,
			SanityMax:   60,
			Policy: map[string][]EvidenceType{
				"":            {"emf"},
				"wraith":      {"emf", "uv"},
				"poltergeist": {"emf", "spirit_box"},
			},
		},
		SpawnSanityThreshold: 40,
		TrackedKind:          "anomaly",
		NeutralSanity:        100,
		AggressionPerTick:    0.5,
		CollapseThreshold:    100,
	}

	cfg.Effector = EffectorConfig{BlackoutSec: 5, FlickerSec: 3}

	cfg.Profiles.Active = "wraith"
	cfg.Profiles.List = []AnomalyProfile{
		{Name: "wraith", Class: "wraith", DoorBias: 0.5, LightBias: 1.5},
		{Name: "poltergeist", Class: "poltergeist", DoorBias: 2, LightBias: 1},
	}
	return cfg
}
