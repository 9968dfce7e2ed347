package gotdd

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/go-tdd/tensor"
)

func TestConstruct_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	tests := []struct {
		name  string
		shape tensor.Shape
		order []int
	}{
		{"scalar", tensor.Shape{}, nil},
		{"vector", tensor.Shape{3}, nil},
		{"matrix", tensor.Shape{2, 3}, nil},
		{"matrix transposed", tensor.Shape{2, 3}, []int{1, 0}},
		{"rank 3", tensor.Shape{2, 3, 2}, []int{2, 0, 1}},
		{"rank 4", tensor.Shape{2, 2, 2, 2}, []int{3, 1, 0, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine()
			d := randomDense(rng, tt.shape)

			x, err := e.Construct(t.Context(), d, 0, tt.order)
			require.NoError(t, err)
			requireClose(t, d, materialize(t, x))
		})
	}
}

func TestConstruct_AllPermutations(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	d := randomDense(rng, tensor.Shape{2, 3, 2})
	e := newTestEngine()

	for _, order := range permutations(3) {
		x, err := e.Construct(t.Context(), d, 0, order)
		require.NoError(t, err)
		assert.Equal(t, order, x.StorageOrder())
		requireClose(t, d, materialize(t, x))
	}
}

func TestConstruct_Batched(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	d := randomDense(rng, tensor.Shape{3, 2, 2})
	e := newTestEngine()

	x, err := e.Construct(t.Context(), d, 1, []int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3}, x.BatchShape())
	assert.Equal(t, tensor.Shape{2, 2}, x.Shape())
	assert.Len(t, x.Weight(), 3)
	requireClose(t, d, materialize(t, x))
}

func TestConstruct_BatchWithZeroElement(t *testing.T) {
	d := dense(tensor.Shape{2, 2},
		1, 2,
		0, 0)
	e := newTestEngine()

	x, err := e.Construct(t.Context(), d, 1, nil)
	require.NoError(t, err)
	requireClose(t, d, materialize(t, x))
}

func TestConstruct_Parallel(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	d := randomDense(rng, tensor.Shape{2, 2, 2, 2, 2})

	seq := newTestEngine()
	par := newTestEngine(WithParallel(4))

	xs, err := seq.Construct(t.Context(), d, 0, nil)
	require.NoError(t, err)
	xp, err := par.Construct(t.Context(), d, 0, nil)
	require.NoError(t, err)

	requireClose(t, d, materialize(t, xp))
	assert.Equal(t, size(t, xs), size(t, xp))
	assert.Equal(t, seq.Nodes(), par.Nodes())

	again, err := par.Construct(t.Context(), d, 0, nil)
	require.NoError(t, err)
	assert.True(t, xp.Equal(again), "parallel construction is canonical")
}

func TestConstruct_CanonicalUniqueness(t *testing.T) {
	e := newTestEngine()
	a := dense(tensor.Shape{2, 2}, 0.5, 0.25i, -0.75, 1)
	b := a.Scale(2)

	x, err := e.Construct(t.Context(), a, 0, nil)
	require.NoError(t, err)
	y, err := e.Construct(t.Context(), b, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, x.Root(), y.Root(), "scaled tensors share the diagram")
	assert.Equal(t, complex(2, 0)*x.Weight()[0], y.Weight()[0])

	again, err := e.Construct(t.Context(), a.Clone(), 0, nil)
	require.NoError(t, err)
	assert.True(t, x.Equal(again))
}

func TestConstruct_RedundancyCompaction(t *testing.T) {
	m := dense(tensor.Shape{2, 2}, 1, 2i, -1, 0.5)

	sizes := make([]int, 0, 2)
	for _, n := range []int{8, 16} {
		e := newTestEngine()
		b, err := m.ExpandAt(0, []int{n})
		require.NoError(t, err)

		x, err := e.Construct(t.Context(), b, 0, nil)
		require.NoError(t, err)
		requireClose(t, b, materialize(t, x))
		sizes = append(sizes, size(t, x))
	}

	e := newTestEngine()
	base, err := e.Construct(t.Context(), m, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, size(t, base), sizes[0])
	assert.Equal(t, sizes[0], sizes[1])
}

func TestConstruct_Identity(t *testing.T) {
	e := newTestEngine()
	x, err := e.Construct(t.Context(), tensor.Eye(4), 0, nil)
	require.NoError(t, err)
	requireClose(t, tensor.Eye(4), materialize(t, x))
	// one row node plus one column node per row
	assert.Equal(t, 5, size(t, x))
}

func TestConstruct_Errors(t *testing.T) {
	e := newTestEngine()
	d := tensor.Zeros(tensor.Shape{2, 2})

	_, err := e.Construct(t.Context(), d, 3, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = e.Construct(t.Context(), d, 0, []int{0, 0})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = e.Construct(t.Context(), d, 0, []int{0})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = e.Construct(t.Context(), nil, 0, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	assert.Equal(t, 0, e.Nodes(), "nothing interned on error")
}

func TestConstruct_Cancelled(t *testing.T) {
	e := newTestEngine()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := e.Construct(ctx, tensor.Eye(2), 0, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaterialize_ZeroTensor(t *testing.T) {
	e := newTestEngine()
	d := tensor.Zeros(tensor.Shape{2, 3})

	x, err := e.Construct(t.Context(), d, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, Terminal, x.Root())
	requireClose(t, d, materialize(t, x))
}

func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for pos := 0; pos <= len(p); pos++ {
			q := make([]int, 0, n)
			q = append(q, p[:pos]...)
			q = append(q, n-1)
			q = append(q, p[pos:]...)
			out = append(out, q)
		}
	}
	return out
}
