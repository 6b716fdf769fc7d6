package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlat(t *testing.T, dim int) *Flat {
	t.Helper()
	idx, err := NewFlat(dim)
	require.NoError(t, err)
	return idx
}

func positions(hits []Hit) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Position
	}
	return out
}

func TestNewFlat_InvalidDimension(t *testing.T) {
	for _, dim := range []int{0, -3} {
		idx, err := NewFlat(dim)
		assert.ErrorIs(t, err, ErrInvalidDimension)
		assert.Nil(t, idx)
	}
}

func TestFlat_SearchNearestFirst(t *testing.T) {
	idx := newFlat(t, 2)
	require.NoError(t, idx.Add([][]float32{
		{10, 10},
		{0, 0},
		{3, 4},
		{1, 1},
	}))

	hits, err := idx.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, []int{1, 3, 2}, positions(hits))
	assert.Equal(t, float32(0), hits[0].Distance)
	assert.Equal(t, float32(2), hits[1].Distance)
	assert.Equal(t, float32(25), hits[2].Distance)

	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
}

func TestFlat_SearchFewerThanK(t *testing.T) {
	idx := newFlat(t, 1)
	require.NoError(t, idx.Add([][]float32{{5}, {1}}))

	hits, err := idx.Search([]float32{0}, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, positions(hits))
}

func TestFlat_SearchDefaultK(t *testing.T) {
	idx := newFlat(t, 1)
	vecs := make([][]float32, 8)
	for i := range vecs {
		vecs[i] = []float32{float32(i)}
	}
	require.NoError(t, idx.Add(vecs))

	hits, err := idx.Search([]float32{0}, 0)
	require.NoError(t, err)
	assert.Len(t, hits, DefaultK)
}

func TestFlat_TiesKeepInsertionOrder(t *testing.T) {
	idx := newFlat(t, 2)
	require.NoError(t, idx.Add([][]float32{
		{1, 0},
		{0, 1},
		{-1, 0},
		{0, -1},
	}))

	hits, err := idx.Search([]float32{0, 0}, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, positions(hits))
}

func TestFlat_SearchEmpty(t *testing.T) {
	idx := newFlat(t, 3)

	hits, err := idx.Search([]float32{1, 2, 3}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFlat_SearchEmptyIgnoresQueryDimension(t *testing.T) {
	idx := newFlat(t, 512)

	hits, err := idx.Search(make([]float32, 768), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, idx.Add([][]float32{make([]float32, 512)}))
	_, err = idx.Search(make([]float32, 768), 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlat_SearchQueryDimensionMismatch(t *testing.T) {
	idx := newFlat(t, 3)
	require.NoError(t, idx.Add([][]float32{{1, 2, 3}}))

	_, err := idx.Search([]float32{1, 2}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlat_ResetEmptiesIndex(t *testing.T) {
	idx := newFlat(t, 2)
	require.NoError(t, idx.Add([][]float32{{1, 1}, {2, 2}}))

	idx.Reset()

	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, 2, idx.Dim())
	hits, err := idx.Search([]float32{1, 1}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Positions restart from zero after a reset.
	require.NoError(t, idx.Add([][]float32{{9, 9}}))
	hits, err = idx.Search([]float32{9, 9}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, positions(hits))
}

func TestFlat_AddInTwoBatchesMatchesOneBatch(t *testing.T) {
	v1 := [][]float32{{0, 1}, {4, 4}}
	v2 := [][]float32{{2, 2}, {0, 0}, {1, 0}}

	split := newFlat(t, 2)
	require.NoError(t, split.Add(v1))
	require.NoError(t, split.Add(v2))

	whole := newFlat(t, 2)
	require.NoError(t, whole.Add(append(append([][]float32{}, v1...), v2...)))

	assert.Equal(t, whole.Len(), split.Len())
	assert.Equal(t, whole.data, split.data)

	for _, q := range [][]float32{{0, 0}, {3, 3}, {1, 1}} {
		a, err := split.Search(q, 5)
		require.NoError(t, err)
		b, err := whole.Search(q, 5)
		require.NoError(t, err)
		assert.Equal(t, b, a)
	}
}

func TestFlat_DimensionMismatchAddsNothing(t *testing.T) {
	idx := newFlat(t, 3)
	require.NoError(t, idx.Add([][]float32{{1, 2, 3}}))

	err := idx.Add([][]float32{
		{1, 1, 1},
		{1, 1},
		{2, 2, 2},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, idx.Len())
}

func TestFlat_AddCopiesVectors(t *testing.T) {
	idx := newFlat(t, 2)
	v := []float32{1, 1}
	require.NoError(t, idx.Add([][]float32{v}))

	v[0] = 100

	hits, err := idx.Search([]float32{1, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, float32(0), hits[0].Distance)
}

func TestFlatFactory(t *testing.T) {
	idx, err := FlatFactory(4)
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Dim())
	assert.IsType(t, &Flat{}, idx)
}
