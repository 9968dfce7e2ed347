package gotdd

import "math/cmplx"

// wnode is a weighted subtree: a root handle and the batched weight that
// multiplies everything below it. Every operator consumes and produces
// wnodes in normalized form.
type wnode struct {
	node NodeID
	w    Weight
}

// settle redirects a subtree whose weight vanishes on the EPS grid to the
// terminal with an exact zero weight.
func (nt *NodeTable) settle(wn wnode) wnode {
	if wn.node != Terminal && wn.w.isZero(nt.eps) {
		return wnode{node: Terminal, w: zerosWeight(len(wn.w))}
	}
	return wn
}

// normalize reduces a raw node at order, whose successors are already in
// canonical form, to its unique representation and extracts its weight.
//
// Reduction rules, applied in order:
//  1. A zero dangling weight collapses the whole subtree to (Terminal, 0).
//  2. Edges whose weight is zero on the grid point at the terminal with an
//     exact zero weight.
//  3. If every edge is the same (successor, weight) pair the node is
//     redundant for this axis and is skipped.
//  4. Otherwise, per batch element, the edge of largest magnitude (lowest
//     index among those within EPS of the maximum) is divided out of every
//     edge and multiplied into the dangling weight.
//
// The caller's slices are not retained.
func (nt *NodeTable) normalize(order int, weights []Weight, successors []NodeID, dangle Weight) wnode {
	eps := nt.eps
	bn := len(dangle)

	if dangle.isZero(eps) {
		return wnode{node: Terminal, w: zerosWeight(bn)}
	}

	ws := make([]Weight, len(weights))
	succ := make([]NodeID, len(successors))
	allZero := true
	for k := range weights {
		if weights[k].isZero(eps) {
			ws[k] = zerosWeight(bn)
			succ[k] = Terminal
			continue
		}
		ws[k] = weights[k]
		succ[k] = successors[k]
		allZero = false
	}
	if allZero {
		return wnode{node: Terminal, w: zerosWeight(bn)}
	}

	redundant := true
	for k := 1; k < len(succ); k++ {
		if succ[k] != succ[0] || !ws[k].equal(ws[0], eps) {
			redundant = false
			break
		}
	}
	if redundant {
		return nt.settle(wnode{node: succ[0], w: dangle.mul(ws[0])})
	}

	extracted := make(Weight, bn)
	normed := make([]Weight, len(ws))
	for k := range normed {
		normed[k] = make(Weight, bn)
	}
	for b := 0; b < bn; b++ {
		maxAbs := 0.0
		for k := range ws {
			if a := cmplx.Abs(ws[k][b]); a > maxAbs {
				maxAbs = a
			}
		}
		pick := 0
		for k := range ws {
			if cmplx.Abs(ws[k][b]) >= maxAbs-eps {
				pick = k
				break
			}
		}
		wmax := ws[pick][b]
		extracted[b] = wmax
		if maxAbs < eps {
			// column stays exactly zero
			continue
		}
		for k := range ws {
			normed[k][b] = ws[k][b] / wmax
		}
	}
	for k := range normed {
		if normed[k].isZero(eps) {
			succ[k] = Terminal
		}
	}

	id := nt.Intern(order, normed, succ)
	return nt.settle(wnode{node: id, w: dangle.mul(extracted)})
}
