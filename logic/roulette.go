package logic

import "math/rand"

// PickWeighted runs cumulative-weight roulette over the items whose weight is
// positive. The roll lands in [0, total); the first item that drives the
// remainder to zero or below wins. If rounding exhausts the roulette the last
// eligible item is returned so the pick always terminates.
func PickWeighted[T any](rng *rand.Rand, items []T, weight func(T) float64) (T, bool) {
	var zero T
	eligible := make([]T, 0, len(items))
	weights := make([]float64, 0, len(items))
	total := 0.0
	for _, it := range items {
		w := weight(it)
		if w <= 0 {
			continue
		}
		eligible = append(eligible, it)
		weights = append(weights, w)
		total += w
	}
	if len(eligible) == 0 || total <= 0 {
		return zero, false
	}

	pick := rng.Float64() * total
	for i, it := range eligible {
		pick -= weights[i]
		if pick <= 0 {
			return it, true
		}
	}
	return eligible[len(eligible)-1], true
}

// SelectionProbabilities returns the chance each weight has of winning the
// roulette. Non-positive weights get zero; the rest sum to 1.
func SelectionProbabilities(weights []float64) []float64 {
	out := make([]float64, len(weights))
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return out
	}
	for i, w := range weights {
		if w > 0 {
			out[i] = w / total
		}
	}
	return out
}
