package gotdd

import "context"

// splicer grafts a root in place of every live terminal edge of a
// subtree. Edges with a zero weight keep pointing at the terminal.
type splicer struct {
	nt     *NodeTable
	graft  NodeID
	weight func(Weight) Weight
	memo   map[NodeID]NodeID
}

func (s *splicer) apply(ctx context.Context, id NodeID) (NodeID, error) {
	if id == Terminal {
		return s.graft, nil
	}
	if out, ok := s.memo[id]; ok {
		return out, nil
	}

	select {
	case <-ctx.Done():
		return Terminal, ctx.Err()
	default:
	}

	n := s.nt.node(id)
	weights := make([]Weight, n.Range())
	succ := make([]NodeID, n.Range())
	for k, sc := range n.Successors {
		weights[k] = s.weight(n.Weights[k])
		if sc == Terminal && n.Weights[k].isZero(s.nt.eps) {
			succ[k] = Terminal
			continue
		}
		out, err := s.apply(ctx, sc)
		if err != nil {
			return Terminal, err
		}
		succ[k] = out
	}
	out := s.nt.Intern(n.Order, weights, succ)
	s.memo[id] = out
	return out, nil
}

// batchPlan describes how the batch shapes of two operands combine.
type batchPlan struct {
	bnA, bnB int
	out      int
	// a and b rebatch weights of each operand onto the combined batch
	a, b func(Weight) Weight
}

func planBatch(bnA, bnB int, batchedA, batchedB, parallel bool) batchPlan {
	id := func(w Weight) Weight { return w }
	switch {
	case parallel:
		return batchPlan{
			bnA: bnA, bnB: bnB, out: bnA * bnB,
			a: func(w Weight) Weight { return broadcastWeight(w, bnB, true) },
			b: func(w Weight) Weight { return broadcastWeight(w, bnA, false) },
		}
	case !batchedA && batchedB:
		return batchPlan{
			bnA: bnA, bnB: bnB, out: bnB,
			a: func(w Weight) Weight { return broadcastWeight(w, bnB, true) },
			b: id,
		}
	case batchedA && !batchedB:
		return batchPlan{
			bnA: bnA, bnB: bnB, out: bnA,
			a: id,
			b: func(w Weight) Weight { return broadcastWeight(w, bnA, true) },
		}
	default:
		return batchPlan{bnA: bnA, bnB: bnB, out: bnA, a: id, b: id}
	}
}

// directProduct returns the outer product of a (dimA internal axes) and b,
// with b's axes placed after a's.
func (nt *NodeTable) directProduct(ctx context.Context, a, b wnode, dimA int, plan batchPlan) (wnode, error) {
	dangle := plan.a(a.w).mul(plan.b(b.w))
	if dangle.isZero(nt.eps) {
		return wnode{node: Terminal, w: zerosWeight(plan.out)}, nil
	}

	shifted, err := newRewriter(nt, func(o int) int { return o + dimA }, plan.b).apply(ctx, b.node)
	if err != nil {
		return wnode{}, err
	}
	sp := &splicer{nt: nt, graft: shifted, weight: plan.a, memo: make(map[NodeID]NodeID)}
	root, err := sp.apply(ctx, a.node)
	if err != nil {
		return wnode{}, err
	}
	return wnode{node: root, w: dangle}, nil
}
