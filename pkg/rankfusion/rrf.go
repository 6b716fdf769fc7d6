// Package rankfusion merges ranked result lists with reciprocal rank fusion.
package rankfusion

import "sort"

// DefaultK is the usual RRF smoothing constant.
const DefaultK = 60

// Scored is an item with its fused score.
type Scored[T comparable] struct {
	ID    T
	Score float64
}

// Fuse combines ranked lists into one ranking. Each appearance of an id
// at 0-based rank r contributes 1/(r+k) to its score. The result is sorted
// by score, highest first; equal scores keep the order in which ids were
// first seen, scanning lists in order. A non-positive k means DefaultK.
func Fuse[T comparable](lists [][]T, k float64) []Scored[T] {
	if k <= 0 {
		k = DefaultK
	}

	scores := make(map[T]float64)
	var order []T

	for _, list := range lists {
		for rank, id := range list {
			if _, seen := scores[id]; !seen {
				order = append(order, id)
			}
			scores[id] += 1 / (float64(rank) + k)
		}
	}

	results := make([]Scored[T], len(order))
	for i, id := range order {
		results[i] = Scored[T]{ID: id, Score: scores[id]}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results
}

// IDs returns the ids of a fused ranking, best first.
func IDs[T comparable](scored []Scored[T]) []T {
	out := make([]T, len(scored))
	for i, s := range scored {
		out[i] = s.ID
	}
	return out
}
