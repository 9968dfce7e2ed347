package gotdd

import (
	"fmt"

	"github.com/zzenonn/go-tdd/tensor"
)

func identityOrder(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// invertOrder returns the inverse of a permutation.
func invertOrder(perm []int) []int {
	out := make([]int, len(perm))
	for i, p := range perm {
		out[p] = i
	}
	return out
}

func validatePermutation(perm []int, n int) error {
	if len(perm) != n {
		return fmt.Errorf("%w: permutation %v has %d entries, want %d", ErrShapeMismatch, perm, len(perm), n)
	}
	seen := make([]bool, n)
	for _, p := range perm {
		if p < 0 || p >= n {
			return fmt.Errorf("%w: permutation %v: axis %d out of range", ErrShapeMismatch, perm, p)
		}
		if seen[p] {
			return fmt.Errorf("%w: permutation %v: axis %d repeated", ErrShapeMismatch, perm, p)
		}
		seen[p] = true
	}
	return nil
}

// validateAxisPairs checks the axis lists of a contraction between shapeA
// and shapeB. With single set both lists address the same tensor, so an
// axis may not appear in either list twice.
//
// The returned mask marks the contracted axes of the first operand (both
// lists when single is set).
func validateAxisPairs(shapeA, shapeB tensor.Shape, axesA, axesB []int, single bool) ([]bool, error) {
	if len(axesA) != len(axesB) {
		return nil, fmt.Errorf("%w: %d axes paired with %d axes", ErrShapeMismatch, len(axesA), len(axesB))
	}
	usedA := make([]bool, len(shapeA))
	usedB := usedA
	if !single {
		usedB = make([]bool, len(shapeB))
	}
	for i := range axesA {
		x, y := axesA[i], axesB[i]
		if x < 0 || x >= len(shapeA) {
			return nil, fmt.Errorf("%w: axis %d out of range for rank %d", ErrShapeMismatch, x, len(shapeA))
		}
		if y < 0 || y >= len(shapeB) {
			return nil, fmt.Errorf("%w: axis %d out of range for rank %d", ErrShapeMismatch, y, len(shapeB))
		}
		if usedA[x] {
			return nil, fmt.Errorf("%w: axis %d repeated", ErrShapeMismatch, x)
		}
		usedA[x] = true
		if usedB[y] {
			return nil, fmt.Errorf("%w: axis %d repeated", ErrShapeMismatch, y)
		}
		usedB[y] = true
		if shapeA[x] != shapeB[y] {
			return nil, fmt.Errorf("%w: axis %d of size %d paired with axis %d of size %d",
				ErrShapeMismatch, x, shapeA[x], y, shapeB[y])
		}
	}
	return usedA, nil
}
