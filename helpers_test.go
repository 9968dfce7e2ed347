package gotdd

import (
	"io"
	"log/slog"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/go-tdd/tensor"
)

const tol = 1e-6

var approx = cmp.Comparer(func(x, y complex128) bool { return cmplx.Abs(x-y) <= tol })

func newTestEngine(opts ...Option) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(append([]Option{WithLogger(logger)}, opts...)...)
}

func randomDense(rng *rand.Rand, shape tensor.Shape) *tensor.Dense {
	data := make([]complex128, shape.NumElements())
	for i := range data {
		data[i] = complex(rng.Float64()*2-1, rng.Float64()*2-1)
	}
	return tensor.MustNew(shape, data)
}

func dense(shape tensor.Shape, data ...complex128) *tensor.Dense {
	return tensor.MustNew(shape, data)
}

// requireClose compares shapes exactly and elements within tol.
func requireClose(t *testing.T, want, got *tensor.Dense) {
	t.Helper()
	require.NotNil(t, got)
	if diff := cmp.Diff([]int(want.Shape()), []int(got.Shape()), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Data(), got.Data(), approx); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

// materialize expands x and fails the test on error.
func materialize(t *testing.T, x *TDD) *tensor.Dense {
	t.Helper()
	d, err := x.Materialize(t.Context())
	require.NoError(t, err)
	return d
}

func size(t *testing.T, x *TDD) int {
	t.Helper()
	n, err := x.Size()
	require.NoError(t, err)
	return n
}

// denseTrace sums d over the diagonals of the axis pairs (xs[i], ys[i])
// and removes those axes.
func denseTrace(d *tensor.Dense, xs, ys []int) *tensor.Dense {
	shape := d.Shape()
	drop := make([]bool, len(shape))
	for i := range xs {
		drop[xs[i]], drop[ys[i]] = true, true
	}
	var outShape tensor.Shape
	for ax, n := range shape {
		if !drop[ax] {
			outShape = append(outShape, n)
		}
	}
	out := tensor.Zeros(outShape)
	outIdx := make([]int, len(outShape))

	idx := make([]int, len(shape))
	for k := 0; k < d.NumElements(); k++ {
		diagonal := true
		for i := range xs {
			if idx[xs[i]] != idx[ys[i]] {
				diagonal = false
				break
			}
		}
		if diagonal {
			j := 0
			for ax := range shape {
				if !drop[ax] {
					outIdx[j] = idx[ax]
					j++
				}
			}
			out.Set(out.At(outIdx...)+d.At(idx...), outIdx...)
		}
		for ax := len(shape) - 1; ax >= 0; ax-- {
			idx[ax]++
			if idx[ax] < shape[ax] {
				break
			}
			idx[ax] = 0
		}
	}
	return out
}
