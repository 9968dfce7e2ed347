package gotdd

import (
	"math"
	"math/cmplx"
)

// Weight is a batched complex weight: one value per batch element, laid out
// in row-major order of the batch shape. An unbatched weight has length 1.
type Weight []complex128

func onesWeight(n int) Weight {
	w := make(Weight, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

func zerosWeight(n int) Weight {
	return make(Weight, n)
}

// Clone returns a copy of the weight.
func (w Weight) Clone() Weight {
	out := make(Weight, len(w))
	copy(out, w)
	return out
}

// mul returns the element-wise product. A length-1 operand broadcasts.
func (w Weight) mul(o Weight) Weight {
	switch {
	case len(o) == 1 && len(w) != 1:
		out := make(Weight, len(w))
		for i := range w {
			out[i] = w[i] * o[0]
		}
		return out
	case len(w) == 1 && len(o) != 1:
		return o.mul(w)
	}
	out := make(Weight, len(w))
	for i := range w {
		out[i] = w[i] * o[i]
	}
	return out
}

func (w Weight) add(o Weight) Weight {
	out := make(Weight, len(w))
	for i := range w {
		out[i] = w[i] + o[i]
	}
	return out
}

func (w Weight) scale(s complex128) Weight {
	out := make(Weight, len(w))
	for i := range w {
		out[i] = w[i] * s
	}
	return out
}

func (w Weight) conj() Weight {
	out := make(Weight, len(w))
	for i := range w {
		out[i] = cmplx.Conj(w[i])
	}
	return out
}

// quantize maps a float component onto the EPS grid used for keys.
func quantize(v, eps float64) int64 {
	return int64(math.Round(v / eps))
}

// isZero reports whether every batch element quantizes to zero.
func (w Weight) isZero(eps float64) bool {
	for _, v := range w {
		if quantize(real(v), eps) != 0 || quantize(imag(v), eps) != 0 {
			return false
		}
	}
	return true
}

// equal compares two weights on the EPS grid.
func (w Weight) equal(o Weight, eps float64) bool {
	if len(w) != len(o) {
		return false
	}
	for i := range w {
		if quantize(real(w[i]), eps) != quantize(real(o[i]), eps) ||
			quantize(imag(w[i]), eps) != quantize(imag(o[i]), eps) {
			return false
		}
	}
	return true
}

// coNormalize divides both weights by whichever has the larger magnitude,
// per batch element, and returns the divisor. Elements where both are below
// eps keep a divisor of 1.
func coNormalize(w1, w2 Weight, eps float64) (Weight, Weight, Weight) {
	n1 := make(Weight, len(w1))
	n2 := make(Weight, len(w1))
	coef := make(Weight, len(w1))
	for i := range w1 {
		a1, a2 := cmplx.Abs(w1[i]), cmplx.Abs(w2[i])
		c := w2[i]
		if a1 > a2 {
			c = w1[i]
		}
		if math.Max(a1, a2) < eps {
			c = 1
		}
		coef[i] = c
		n1[i] = w1[i] / c
		n2[i] = w2[i] / c
	}
	return n1, n2, coef
}

// broadcastWeight repeats w over a larger batch. With ahead set, w indexes
// the leading part of the combined batch [w..., other...]; otherwise it
// indexes the trailing part [other..., w...].
func broadcastWeight(w Weight, other int, ahead bool) Weight {
	out := make(Weight, len(w)*other)
	for i := range out {
		if ahead {
			out[i] = w[i/other]
		} else {
			out[i] = w[i%len(w)]
		}
	}
	return out
}
