package vectorindex

import (
	"fmt"
	"sort"
	"sync"
)

// Ensure Flat implements the interface.
var _ Index = (*Flat)(nil)

// Flat is an exhaustive squared-L2 index. Every search scans all stored
// vectors, which is fine for a single document's worth of data.
type Flat struct {
	mu   sync.RWMutex
	dim  int
	data []float32 // row-major, len(data) == count*dim
}

// NewFlat creates an empty index fixed to dim.
func NewFlat(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	return &Flat{dim: dim}, nil
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int {
	return f.dim
}

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.data) / f.dim
}

// Add appends vectors after checking every one of them, so a bad vector
// anywhere in the batch leaves the index untouched.
func (f *Flat) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has %d values, index expects %d",
				ErrDimensionMismatch, i, len(v), f.dim)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.data = grow(f.data, len(vectors)*f.dim)
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Search ranks every stored vector by squared Euclidean distance to query
// and returns the k nearest. Equal distances keep insertion order. An
// empty index answers any query with no hits.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		k = DefaultK
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	count := len(f.data) / f.dim
	if count == 0 {
		return []Hit{}, nil
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d",
			ErrDimensionMismatch, len(query), f.dim)
	}

	hits := make([]Hit, count)
	for pos := 0; pos < count; pos++ {
		row := f.data[pos*f.dim : (pos+1)*f.dim]
		hits[pos] = Hit{Position: pos, Distance: SquaredL2(query, row)}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Reset drops all vectors.
func (f *Flat) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = nil
}

// SquaredL2 returns the squared Euclidean distance between a and b.
// Both slices must have the same length.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func grow(s []float32, n int) []float32 {
	if cap(s)-len(s) >= n {
		return s
	}
	out := make([]float32, len(s), len(s)+n)
	copy(out, s)
	return out
}
