package gotdd

import "context"

// rewriter re-interns every node under a root with its order passed
// through a monotone map and its edge weights through an element-wise map.
// Both maps keep a canonical subtree canonical, so no renormalization is
// needed.
type rewriter struct {
	nt     *NodeTable
	order  func(int) int
	weight func(Weight) Weight
	memo   map[NodeID]NodeID
}

func newRewriter(nt *NodeTable, order func(int) int, weight func(Weight) Weight) *rewriter {
	if order == nil {
		order = func(o int) int { return o }
	}
	if weight == nil {
		weight = func(w Weight) Weight { return w }
	}
	return &rewriter{nt: nt, order: order, weight: weight, memo: make(map[NodeID]NodeID)}
}

// shiftBy returns a rewriter adding delta to every order.
func shiftBy(nt *NodeTable, delta int) *rewriter {
	return newRewriter(nt, func(o int) int { return o + delta }, nil)
}

// compact returns a rewriter that closes the gaps left by removed
// internal axes. removed must be sorted ascending.
func compact(nt *NodeTable, removed []int) *rewriter {
	return newRewriter(nt, func(o int) int {
		n := 0
		for _, r := range removed {
			if r >= o {
				break
			}
			n++
		}
		return o - n
	}, nil)
}

func (r *rewriter) apply(ctx context.Context, id NodeID) (NodeID, error) {
	if id == Terminal {
		return Terminal, nil
	}
	if out, ok := r.memo[id]; ok {
		return out, nil
	}

	select {
	case <-ctx.Done():
		return Terminal, ctx.Err()
	default:
	}

	n := r.nt.node(id)
	weights := make([]Weight, n.Range())
	succ := make([]NodeID, n.Range())
	for k, s := range n.Successors {
		out, err := r.apply(ctx, s)
		if err != nil {
			return Terminal, err
		}
		weights[k] = r.weight(n.Weights[k])
		succ[k] = out
	}
	out := r.nt.Intern(r.order(n.Order), weights, succ)
	r.memo[id] = out
	return out, nil
}
