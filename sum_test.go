package gotdd

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/go-tdd/tensor"
)

func TestSum_SwapScenario(t *testing.T) {
	e := newTestEngine()
	half := dense(tensor.Shape{2, 2}, 0, 0.5, 0.5, 0)

	x, err := e.Construct(t.Context(), half, 0, []int{0, 1})
	require.NoError(t, err)

	s, err := x.Sum(t.Context(), x)
	require.NoError(t, err)
	requireClose(t, dense(tensor.Shape{2, 2}, 0, 1, 1, 0), materialize(t, s))
}

func TestSum_Random(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	shape := tensor.Shape{2, 3, 2}

	for _, order := range permutations(3) {
		e := newTestEngine()
		a := randomDense(rng, shape)
		b := randomDense(rng, shape)

		x, err := e.Construct(t.Context(), a, 0, order)
		require.NoError(t, err)
		y, err := e.Construct(t.Context(), b, 0, order)
		require.NoError(t, err)

		s, err := x.Sum(t.Context(), y)
		require.NoError(t, err)

		want, err := tensor.Add(a, b)
		require.NoError(t, err)
		requireClose(t, want, materialize(t, s))
	}
}

func TestSum_DifferentDepths(t *testing.T) {
	e := newTestEngine()
	// a does not depend on axis 0, b does not depend on axis 1
	a := dense(tensor.Shape{2, 2}, 1, 2, 1, 2)
	b := dense(tensor.Shape{2, 2}, 3i, 3i, -1, -1)

	x, err := e.Construct(t.Context(), a, 0, nil)
	require.NoError(t, err)
	y, err := e.Construct(t.Context(), b, 0, nil)
	require.NoError(t, err)

	s, err := x.Sum(t.Context(), y)
	require.NoError(t, err)
	requireClose(t, dense(tensor.Shape{2, 2}, 1+3i, 2+3i, 0, 1), materialize(t, s))
}

func TestSum_Canonical(t *testing.T) {
	e := newTestEngine()
	d := dense(tensor.Shape{2, 2}, 0.5, 0.25i, -0.75, 1)

	full, err := e.Construct(t.Context(), d, 0, nil)
	require.NoError(t, err)
	half, err := e.Construct(t.Context(), d.Scale(0.5), 0, nil)
	require.NoError(t, err)

	s, err := half.Sum(t.Context(), half)
	require.NoError(t, err)
	assert.True(t, full.Equal(s))
}

func TestSum_Cancellation(t *testing.T) {
	e := newTestEngine()
	d := dense(tensor.Shape{2}, 1, -1)

	x, err := e.Construct(t.Context(), d, 0, nil)
	require.NoError(t, err)

	s, err := x.Sum(t.Context(), x.mustScale(t, -1))
	require.NoError(t, err)
	assert.Equal(t, Terminal, s.Root())
	requireClose(t, tensor.Zeros(tensor.Shape{2}), materialize(t, s))
}

func TestSum_Batched(t *testing.T) {
	rng := rand.New(rand.NewPCG(13, 14))
	e := newTestEngine()
	a := randomDense(rng, tensor.Shape{2, 2, 2})
	b := randomDense(rng, tensor.Shape{2, 2, 2})

	x, err := e.Construct(t.Context(), a, 1, nil)
	require.NoError(t, err)
	y, err := e.Construct(t.Context(), b, 1, nil)
	require.NoError(t, err)

	s, err := x.Sum(t.Context(), y)
	require.NoError(t, err)
	want, err := tensor.Add(a, b)
	require.NoError(t, err)
	requireClose(t, want, materialize(t, s))
}

func TestSum_Errors(t *testing.T) {
	e := newTestEngine()
	x, err := e.Construct(t.Context(), tensor.Eye(2), 0, nil)
	require.NoError(t, err)

	y, err := e.Construct(t.Context(), tensor.Zeros(tensor.Shape{2, 3}), 0, nil)
	require.NoError(t, err)
	_, err = x.Sum(t.Context(), y)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	z, err := e.Construct(t.Context(), tensor.Eye(2), 0, []int{1, 0})
	require.NoError(t, err)
	_, err = x.Sum(t.Context(), z)
	assert.ErrorIs(t, err, ErrShapeMismatch, "index orders must agree")

	w, err := e.Construct(t.Context(), tensor.Zeros(tensor.Shape{3, 2, 2}), 1, nil)
	require.NoError(t, err)
	_, err = x.Sum(t.Context(), w)
	assert.ErrorIs(t, err, ErrBatchShapeMismatch)

	other := newTestEngine()
	v, err := other.Construct(t.Context(), tensor.Eye(2), 0, nil)
	require.NoError(t, err)
	_, err = x.Sum(t.Context(), v)
	assert.ErrorIs(t, err, ErrInvalidNode, "operands from another engine")
}

func TestSum_SharedCache(t *testing.T) {
	rng := rand.New(rand.NewPCG(15, 16))
	e := newTestEngine(WithSharedSumCache(true))
	a := randomDense(rng, tensor.Shape{2, 2, 2})

	x, err := e.Construct(t.Context(), a, 0, nil)
	require.NoError(t, err)

	s1, err := x.Sum(t.Context(), x)
	require.NoError(t, err)
	require.Positive(t, e.sums.len())

	s2, err := x.Sum(t.Context(), x)
	require.NoError(t, err)
	assert.True(t, s1.Equal(s2))
	requireClose(t, a.Scale(2), materialize(t, s2))

	e.ClearCache()
	assert.Zero(t, e.sums.len())
}

func (t *TDD) mustScale(tb testing.TB, s complex128) *TDD {
	tb.Helper()
	out, err := t.Scale(s)
	require.NoError(tb, err)
	return out
}
