// Package vectorindex holds fixed-dimension float vectors and answers
// k-nearest-neighbour queries against them.
package vectorindex

import "errors"

// DefaultK is used when Search is called with a non-positive k.
const DefaultK = 5

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidDimension is returned when an index is created with a non-positive dimension.
	ErrInvalidDimension = errors.New("invalid dimension")
)

// Hit is a single search result. Position is the insertion position of the
// matched vector; callers use it to look up their own metadata.
type Hit struct {
	Position int
	Distance float32
}

// Index is the contract every backend implements. Positions are assigned in
// insertion order starting at zero and are stable until Reset.
type Index interface {
	// Dim returns the fixed vector dimension.
	Dim() int

	// Len returns the number of stored vectors.
	Len() int

	// Add appends vectors. Either all vectors are added or none are.
	Add(vectors [][]float32) error

	// Search returns up to k hits, nearest first. An empty index yields an
	// empty result and no error.
	Search(query []float32, k int) ([]Hit, error)

	// Reset drops all vectors but keeps the dimension.
	Reset()
}

// Factory creates an empty index of the given dimension.
type Factory func(dim int) (Index, error)

// FlatFactory builds brute-force indexes.
func FlatFactory(dim int) (Index, error) {
	return NewFlat(dim)
}
