package tensor

import (
	"fmt"
	"math/cmplx"
)

func elementwise(a, b *Dense, f func(x, y complex128) complex128) (*Dense, error) {
	shape, needs, err := BroadcastShapes(a.shape, b.shape)
	if err != nil {
		return nil, err
	}
	if needs {
		if a, err = a.BroadcastTo(shape); err != nil {
			return nil, err
		}
		if b, err = b.BroadcastTo(shape); err != nil {
			return nil, err
		}
	}
	out := make([]complex128, len(a.data))
	for i := range out {
		out[i] = f(a.data[i], b.data[i])
	}
	return wrap(shape, out), nil
}

// Add returns a + b with broadcasting.
func Add(a, b *Dense) (*Dense, error) {
	return elementwise(a, b, func(x, y complex128) complex128 { return x + y })
}

// Mul returns the elementwise product a * b with broadcasting.
func Mul(a, b *Dense) (*Dense, error) {
	return elementwise(a, b, func(x, y complex128) complex128 { return x * y })
}

// Scale returns s * d.
func (d *Dense) Scale(s complex128) *Dense {
	out := make([]complex128, len(d.data))
	for i, v := range d.data {
		out[i] = v * s
	}
	return wrap(d.shape.Clone(), out)
}

// ScaleBatch multiplies each leading block of d by the matching entry of w.
// len(w) must equal the product of the leading (batch) dimensions, so that
// element i is scaled by w[i / (NumElements/len(w))].
func (d *Dense) ScaleBatch(w []complex128) (*Dense, error) {
	if len(w) == 0 || len(d.data)%len(w) != 0 {
		return nil, fmt.Errorf("batch weight of length %d does not divide %d elements", len(w), len(d.data))
	}
	block := len(d.data) / len(w)
	out := make([]complex128, len(d.data))
	for i, v := range d.data {
		out[i] = v * w[i/block]
	}
	return wrap(d.shape.Clone(), out), nil
}

// Conj returns the elementwise complex conjugate.
func (d *Dense) Conj() *Dense {
	out := make([]complex128, len(d.data))
	for i, v := range d.data {
		out[i] = cmplx.Conj(v)
	}
	return wrap(d.shape.Clone(), out)
}

// Tensordot contracts axesA of a with axesB of b, in the manner of
// numpy.tensordot. The result axes are the free axes of a followed by the
// free axes of b, each in ascending order.
func Tensordot(a, b *Dense, axesA, axesB []int) (*Dense, error) {
	if len(axesA) != len(axesB) {
		return nil, fmt.Errorf("tensordot: %d axes for a, %d axes for b", len(axesA), len(axesB))
	}
	usedA := make([]bool, a.Dim())
	usedB := make([]bool, b.Dim())
	k := 1
	for i := range axesA {
		ia, ib := axesA[i], axesB[i]
		if ia < 0 || ia >= a.Dim() || ib < 0 || ib >= b.Dim() {
			return nil, fmt.Errorf("tensordot: axis pair (%d, %d) out of range", ia, ib)
		}
		if usedA[ia] || usedB[ib] {
			return nil, fmt.Errorf("tensordot: axis pair (%d, %d) repeats an axis", ia, ib)
		}
		if a.shape[ia] != b.shape[ib] {
			return nil, fmt.Errorf("tensordot: axis %d of a has size %d, axis %d of b has size %d", ia, a.shape[ia], ib, b.shape[ib])
		}
		usedA[ia], usedB[ib] = true, true
		k *= a.shape[ia]
	}

	var freeA, freeB []int
	var outShape Shape
	for ax, used := range usedA {
		if !used {
			freeA = append(freeA, ax)
			outShape = append(outShape, a.shape[ax])
		}
	}
	for ax, used := range usedB {
		if !used {
			freeB = append(freeB, ax)
			outShape = append(outShape, b.shape[ax])
		}
	}

	pa, err := a.Permute(append(append([]int{}, freeA...), axesA...))
	if err != nil {
		return nil, err
	}
	pb, err := b.Permute(append(append([]int{}, axesB...), freeB...))
	if err != nil {
		return nil, err
	}

	m := len(pa.data) / k
	n := len(pb.data) / k
	out := make([]complex128, m*n)
	for i := 0; i < m; i++ {
		row := pa.data[i*k : (i+1)*k]
		for l, av := range row {
			if av == 0 {
				continue
			}
			col := pb.data[l*n : (l+1)*n]
			dst := out[i*n : (i+1)*n]
			for j, bv := range col {
				dst[j] += av * bv
			}
		}
	}
	return wrap(outShape, out), nil
}
