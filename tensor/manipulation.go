package tensor

import (
	"errors"
	"fmt"
)

// gather builds a tensor of outShape where element idx reads
// src[base + sum(idx[i]*srcStrides[i])]. A zero stride repeats the source.
func gather(outShape Shape, srcStrides []int, base int, src []complex128) *Dense {
	n := outShape.NumElements()
	out := make([]complex128, n)
	idx := make([]int, len(outShape))
	off := base
	for k := 0; k < n; k++ {
		out[k] = src[off]
		// odometer increment, rightmost axis fastest
		for ax := len(outShape) - 1; ax >= 0; ax-- {
			idx[ax]++
			off += srcStrides[ax]
			if idx[ax] < outShape[ax] {
				break
			}
			off -= idx[ax] * srcStrides[ax]
			idx[ax] = 0
		}
	}
	return wrap(outShape, out)
}

// Reshape returns a copy with a new shape of the same element count.
func (d *Dense) Reshape(shape Shape) (*Dense, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(d.data) {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", d.shape, len(d.data), shape)
	}
	data := make([]complex128, len(d.data))
	copy(data, d.data)
	return wrap(shape.Clone(), data), nil
}

// Permute reorders the axes: axis i of the result is axis perm[i] of d.
func (d *Dense) Permute(perm []int) (*Dense, error) {
	if err := validatePermutation(perm, len(d.shape)); err != nil {
		return nil, err
	}
	outShape := make(Shape, len(perm))
	srcStrides := make([]int, len(perm))
	for i, p := range perm {
		outShape[i] = d.shape[p]
		srcStrides[i] = d.strides[p]
	}
	return gather(outShape, srcStrides, 0, d.data), nil
}

func validatePermutation(perm []int, n int) error {
	if len(perm) != n {
		return fmt.Errorf("permutation %v has %d entries, want %d", perm, len(perm), n)
	}
	seen := make([]bool, n)
	for _, p := range perm {
		if p < 0 || p >= n {
			return fmt.Errorf("permutation %v: axis %d out of range [0, %d)", perm, p, n)
		}
		if seen[p] {
			return fmt.Errorf("permutation %v: axis %d repeated", perm, p)
		}
		seen[p] = true
	}
	return nil
}

// BroadcastTo expands d to shape following NumPy broadcasting rules.
func (d *Dense) BroadcastTo(shape Shape) (*Dense, error) {
	if len(shape) < len(d.shape) {
		return nil, fmt.Errorf("cannot broadcast %v to lower rank %v", d.shape, shape)
	}
	lead := len(shape) - len(d.shape)
	srcStrides := make([]int, len(shape))
	for i := range d.shape {
		switch d.shape[i] {
		case shape[lead+i]:
			srcStrides[lead+i] = d.strides[i]
		case 1:
			srcStrides[lead+i] = 0
		default:
			return nil, fmt.Errorf("cannot broadcast %v to %v (axis %d: %d vs %d)", d.shape, shape, i, d.shape[i], shape[lead+i])
		}
	}
	return gather(shape.Clone(), srcStrides, 0, d.data), nil
}

// ExpandAt inserts new axes of the given sizes before axis pos and repeats
// the data along them.
func (d *Dense) ExpandAt(pos int, sizes []int) (*Dense, error) {
	if pos < 0 || pos > len(d.shape) {
		return nil, fmt.Errorf("expand position %d out of range for rank %d", pos, len(d.shape))
	}
	if len(sizes) == 0 {
		return d, nil
	}
	outShape := make(Shape, 0, len(d.shape)+len(sizes))
	outShape = append(outShape, d.shape[:pos]...)
	outShape = append(outShape, sizes...)
	outShape = append(outShape, d.shape[pos:]...)

	srcStrides := make([]int, 0, len(outShape))
	srcStrides = append(srcStrides, d.strides[:pos]...)
	srcStrides = append(srcStrides, make([]int, len(sizes))...)
	srcStrides = append(srcStrides, d.strides[pos:]...)
	return gather(outShape, srcStrides, 0, d.data), nil
}

// Select fixes axis to index i and removes that axis.
func (d *Dense) Select(axis, i int) (*Dense, error) {
	if axis < 0 || axis >= len(d.shape) {
		return nil, fmt.Errorf("axis %d out of range for rank %d", axis, len(d.shape))
	}
	if i < 0 || i >= d.shape[axis] {
		return nil, fmt.Errorf("index %d out of range for axis %d of size %d", i, axis, d.shape[axis])
	}
	outShape := make(Shape, 0, len(d.shape)-1)
	srcStrides := make([]int, 0, len(d.shape)-1)
	for ax := range d.shape {
		if ax == axis {
			continue
		}
		outShape = append(outShape, d.shape[ax])
		srcStrides = append(srcStrides, d.strides[ax])
	}
	return gather(outShape, srcStrides, i*d.strides[axis], d.data), nil
}

// Split slices d along axis into d.Shape()[axis] tensors with that axis removed.
func (d *Dense) Split(axis int) ([]*Dense, error) {
	if axis < 0 || axis >= len(d.shape) {
		return nil, fmt.Errorf("axis %d out of range for rank %d", axis, len(d.shape))
	}
	parts := make([]*Dense, d.shape[axis])
	for i := range parts {
		p, err := d.Select(axis, i)
		if err != nil {
			return nil, err
		}
		parts[i] = p
	}
	return parts, nil
}

// Stack joins equally shaped tensors along a new axis inserted at position axis.
func Stack(ts []*Dense, axis int) (*Dense, error) {
	if len(ts) == 0 {
		return nil, errors.New("stack of zero tensors")
	}
	base := ts[0].shape
	if axis < 0 || axis > len(base) {
		return nil, fmt.Errorf("stack axis %d out of range for rank %d", axis, len(base))
	}
	for i, t := range ts {
		if !t.shape.Equal(base) {
			return nil, fmt.Errorf("stack: tensor %d has shape %v, want %v", i, t.shape, base)
		}
	}

	outer := Shape(base[:axis]).NumElements()
	inner := Shape(base[axis:]).NumElements()
	out := make([]complex128, 0, outer*inner*len(ts))
	for o := 0; o < outer; o++ {
		for _, t := range ts {
			out = append(out, t.data[o*inner:(o+1)*inner]...)
		}
	}

	outShape := make(Shape, 0, len(base)+1)
	outShape = append(outShape, base[:axis]...)
	outShape = append(outShape, len(ts))
	outShape = append(outShape, base[axis:]...)
	return wrap(outShape, out), nil
}
