// Package tensor provides the dense complex array used at the boundary of the
// decision diagram engine.
//
// A Dense tensor stores complex128 values in row-major order. Operations
// never mutate their receivers; every transformation returns a new tensor
// with its own backing slice. Batched ("parallel") tensors follow the
// leading-dimension convention: the first batchRank axes index independent
// tensors evaluated together.
package tensor

import (
	"fmt"
	"math/cmplx"
	"strings"
)

// Dense is a dense, row-major complex tensor.
type Dense struct {
	shape   Shape
	strides []int
	data    []complex128
}

// New creates a tensor of the given shape over a copy of data.
func New(shape Shape, data []complex128) (*Dense, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	buf := make([]complex128, len(data))
	copy(buf, data)
	return wrap(shape.Clone(), buf), nil
}

// FromFloat64 creates a tensor with the given real parts and zero imaginary parts.
func FromFloat64(shape Shape, real []float64) (*Dense, error) {
	data := make([]complex128, len(real))
	for i, v := range real {
		data[i] = complex(v, 0)
	}
	return New(shape, data)
}

// MustNew is like New but panics on error. Intended for literals in tests and examples.
func MustNew(shape Shape, data []complex128) *Dense {
	d, err := New(shape, data)
	if err != nil {
		panic(err)
	}
	return d
}

// Zeros returns a tensor of zeros.
func Zeros(shape Shape) *Dense {
	return wrap(shape.Clone(), make([]complex128, shape.NumElements()))
}

// Full returns a tensor filled with v.
func Full(shape Shape, v complex128) *Dense {
	data := make([]complex128, shape.NumElements())
	for i := range data {
		data[i] = v
	}
	return wrap(shape.Clone(), data)
}

// Ones returns a tensor of ones.
func Ones(shape Shape) *Dense {
	return Full(shape, 1)
}

// Eye returns the n×n identity matrix.
func Eye(n int) *Dense {
	d := Zeros(Shape{n, n})
	for i := 0; i < n; i++ {
		d.data[i*n+i] = 1
	}
	return d
}

func wrap(shape Shape, data []complex128) *Dense {
	return &Dense{shape: shape, strides: shape.ComputeStrides(), data: data}
}

// Shape returns a copy of the tensor's shape.
func (d *Dense) Shape() Shape {
	return d.shape.Clone()
}

// Dim returns the number of axes.
func (d *Dense) Dim() int {
	return len(d.shape)
}

// NumElements returns the total number of elements.
func (d *Dense) NumElements() int {
	return len(d.data)
}

// Data returns the underlying row-major buffer. Callers must not modify it.
func (d *Dense) Data() []complex128 {
	return d.data
}

// Strides returns the row-major strides of the tensor.
func (d *Dense) Strides() []int {
	out := make([]int, len(d.strides))
	copy(out, d.strides)
	return out
}

// At returns the element at the given multi-index.
func (d *Dense) At(idx ...int) complex128 {
	return d.data[d.offset(idx)]
}

// Set writes v at the given multi-index.
func (d *Dense) Set(v complex128, idx ...int) {
	d.data[d.offset(idx)] = v
}

func (d *Dense) offset(idx []int) int {
	if len(idx) != len(d.shape) {
		panic(fmt.Sprintf("tensor: index %v has %d axes, tensor has %d", idx, len(idx), len(d.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= d.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, d.shape))
		}
		off += v * d.strides[i]
	}
	return off
}

// Clone returns a deep copy.
func (d *Dense) Clone() *Dense {
	data := make([]complex128, len(d.data))
	copy(data, d.data)
	return wrap(d.shape.Clone(), data)
}

// String renders the tensor shape and flat data.
func (d *Dense) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dense%v[", []int(d.shape))
	for i, v := range d.data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.4g", v)
	}
	b.WriteByte(']')
	return b.String()
}

// AllClose reports whether a and b have the same shape and every pair of
// elements differs by at most tol in magnitude.
func AllClose(a, b *Dense, tol float64) bool {
	if !a.shape.Equal(b.shape) {
		return false
	}
	for i := range a.data {
		if cmplx.Abs(a.data[i]-b.data[i]) > tol {
			return false
		}
	}
	return true
}
