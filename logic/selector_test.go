package logic

import (
	"math"
	"math/rand"
	"testing"
)

// fixedRooms is a RoomModel with hand-set distances from every base.
type fixedRooms struct {
	regions []Region
	dist    map[string]float64 // target id -> distance
}

func (f *fixedRooms) Regions() []Region { return f.regions }

func (f *fixedRooms) Region(id string) (Region, bool) {
	for _, r := range f.regions {
		if r.ID == id {
			return r, true
		}
	}
	return Region{}, false
}

func (f *fixedRooms) Occupants(string) []Player { return nil }

func (f *fixedRooms) PathDistance(_, toID string) float64 { return f.dist[toID] }

func sampleRifts(t *testing.T, sel *RoomSelector, trials int) map[string]int {
	t.Helper()
	counts := make(map[string]int)
	for i := 0; i < trials; i++ {
		pick := sel.PickRooms()
		if !pick.HasRift() {
			t.Fatal("expected a rift on every pick")
		}
		counts[pick.RiftID]++
	}
	return counts
}

func TestRiftFrequenciesMatchDistanceWeights(t *testing.T) {
	rooms := &fixedRooms{
		regions: []Region{
			{ID: "base", Type: RoomBaseCandidate},
			{ID: "r1", Type: RoomRiftCandidate},
			{ID: "r2", Type: RoomRiftCandidate},
			{ID: "r3", Type: RoomRiftCandidate},
		},
		dist: map[string]float64{"r1": 100, "r2": 100, "r3": 1000},
	}
	sel := NewRoomSelector(rooms, SelectorConfig{Sigma: 200}, rand.New(rand.NewSource(3)))

	weights := sel.RiftWeights("base", rooms.regions[1:])
	probs := SelectionProbabilities(weights)

	const trials = 20000
	counts := sampleRifts(t, sel, trials)
	for i, id := range []string{"r1", "r2", "r3"} {
		freq := float64(counts[id]) / trials
		if math.Abs(freq-probs[i]) > 0.02 {
			t.Fatalf("%s: expected frequency ~%.4f, got %.4f", id, probs[i], freq)
		}
	}
}

func TestRiftCloserRoomFavouredByAnalyticRatio(t *testing.T) {
	rooms := &fixedRooms{
		regions: []Region{
			{ID: "base", Type: RoomBaseCandidate},
			{ID: "near", Type: RoomRiftCandidate},
			{ID: "far", Type: RoomRiftCandidate},
		},
		dist: map[string]float64{"near": 600, "far": 1800},
	}
	sel := NewRoomSelector(rooms, SelectorConfig{Sigma: 1200}, rand.New(rand.NewSource(11)))

	w := sel.RiftWeights("base", rooms.regions[1:])
	want := math.Exp(-0.5) / math.Exp(-1.5)
	if math.Abs(w[0]/w[1]-want) > 1e-9 {
		t.Fatalf("expected weight ratio %.4f, got %.4f", want, w[0]/w[1])
	}
	if math.Abs(want-math.E) > 1e-9 {
		t.Fatalf("ratio should be e, got %v", want)
	}

	counts := sampleRifts(t, sel, 20000)
	ratio := float64(counts["near"]) / float64(counts["far"])
	if math.Abs(ratio-want) > 0.2 {
		t.Fatalf("expected sampled ratio ~%.3f, got %.3f", want, ratio)
	}
}

func TestRiftWeightsFlooredAtEpsilon(t *testing.T) {
	rooms := &fixedRooms{
		regions: []Region{{ID: "base", Type: RoomBaseCandidate}, {ID: "r", Type: RoomRiftCandidate}},
		dist:    map[string]float64{"r": 1e9},
	}
	sel := NewRoomSelector(rooms, SelectorConfig{Sigma: 1, Epsilon: 0.01}, rand.New(rand.NewSource(1)))
	if w := sel.RiftWeights("base", rooms.regions[1:]); w[0] != 0.01 {
		t.Fatalf("expected epsilon floor, got %v", w[0])
	}
}

func TestPickRoomsNeverTargetsSafeHallwayOrExcluded(t *testing.T) {
	rooms := &fixedRooms{
		regions: []Region{
			{ID: "lobby", Type: RoomSafe},
			{ID: "hall", Type: RoomHallway},
			{ID: "b1", Type: RoomBaseCandidate},
			{ID: "b2", Type: RoomBaseCandidate, Excluded: true},
			{ID: "bsafe", Type: RoomBaseCandidate, Safe: true},
			{ID: "r1", Type: RoomRiftCandidate},
			{ID: "r2", Type: RoomRiftCandidate, Excluded: true},
		},
		dist: map[string]float64{},
	}
	sel := NewRoomSelector(rooms, SelectorConfig{}, rand.New(rand.NewSource(5)))
	for i := 0; i < 200; i++ {
		pick := sel.PickRooms()
		if pick.BaseID != "b1" || pick.RiftID != "r1" {
			t.Fatalf("unexpected pick %+v", pick)
		}
	}
}

func TestPickRoomsFallsBackToOtherBases(t *testing.T) {
	rooms := &fixedRooms{
		regions: []Region{
			{ID: "b1", Type: RoomBaseCandidate},
			{ID: "b2", Type: RoomBaseCandidate},
		},
		dist: map[string]float64{},
	}
	sel := NewRoomSelector(rooms, SelectorConfig{}, rand.New(rand.NewSource(9)))
	for i := 0; i < 100; i++ {
		pick := sel.PickRooms()
		if !pick.HasBase() || !pick.HasRift() {
			t.Fatalf("expected both rooms set, got %+v", pick)
		}
		if pick.BaseID == pick.RiftID {
			t.Fatalf("rift equals base: %+v", pick)
		}
	}
}

func TestPickRoomsMissingCandidates(t *testing.T) {
	none := &fixedRooms{regions: []Region{{ID: "r1", Type: RoomRiftCandidate}, {ID: "o", Type: RoomOrdinary}}}
	pick := NewRoomSelector(none, SelectorConfig{}, rand.New(rand.NewSource(1))).PickRooms()
	if pick.HasBase() || pick.HasRift() {
		t.Fatalf("expected both unset without base candidates, got %+v", pick)
	}

	lone := &fixedRooms{regions: []Region{{ID: "b1", Type: RoomBaseCandidate}}}
	pick = NewRoomSelector(lone, SelectorConfig{}, rand.New(rand.NewSource(1))).PickRooms()
	if pick.BaseID != "b1" || pick.HasRift() {
		t.Fatalf("expected base only, got %+v", pick)
	}
}

func TestPickRoomsBaseUniform(t *testing.T) {
	rooms := &fixedRooms{
		regions: []Region{
			{ID: "b1", Type: RoomBaseCandidate},
			{ID: "b2", Type: RoomBaseCandidate},
			{ID: "r", Type: RoomRiftCandidate},
		},
		dist: map[string]float64{},
	}
	sel := NewRoomSelector(rooms, SelectorConfig{}, rand.New(rand.NewSource(21)))
	counts := make(map[string]int)
	const trials = 10000
	for i := 0; i < trials; i++ {
		counts[sel.PickRooms().BaseID]++
	}
	if f := float64(counts["b1"]) / trials; math.Abs(f-0.5) > 0.03 {
		t.Fatalf("expected uniform base choice, b1 frequency %.3f", f)
	}
}
