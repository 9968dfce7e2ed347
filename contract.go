package gotdd

import (
	"context"
	"slices"
)

// axisPair is a pair of internal axes to trace, first < second.
type axisPair struct {
	first, second int
}

// pendingAxis is the second axis of an opened pair and the value chosen
// for its first axis.
type pendingAxis struct {
	axis, value int
}

// tracer sums a subtree over the diagonal of axis pairs in one DFS.
//
// remained holds the pairs not opened yet, sorted by first axis. waiting
// holds the second axes of opened pairs, sorted by axis. Orders are not
// compacted here.
type tracer struct {
	nt    *NodeTable
	sums  *summer
	inner []int
	bn    int
	memo  map[string]wnode
}

func newTracer(nt *NodeTable, sums *summer, inner []int, bn int) *tracer {
	return &tracer{nt: nt, sums: sums, inner: inner, bn: bn, memo: make(map[string]wnode)}
}

// run traces pairs on root and returns the result with the traced axes
// still present as gaps in the order sequence.
func (t *tracer) run(ctx context.Context, root wnode, pairs []axisPair) (wnode, error) {
	remained := slices.Clone(pairs)
	slices.SortFunc(remained, func(a, b axisPair) int { return a.first - b.first })

	below, err := t.trace(ctx, root.node, remained, nil)
	if err != nil {
		return wnode{}, err
	}
	return t.nt.settle(wnode{node: below.node, w: below.w.mul(root.w)}), nil
}

// trace returns the traced subtree of id under a unit dangling weight.
func (t *tracer) trace(ctx context.Context, id NodeID, remained []axisPair, waiting []pendingAxis) (wnode, error) {
	if id == Terminal {
		// The terminal is constant along every axis still open
		scale := 1
		for _, p := range remained {
			scale *= t.inner[p.first]
		}
		return wnode{node: Terminal, w: onesWeight(t.bn).scale(complex(float64(scale), 0))}, nil
	}

	select {
	case <-ctx.Done():
		return wnode{}, ctx.Err()
	default:
	}

	n := t.nt.node(id)

	// Pairs whose both axes lie above this node were skipped entirely: the
	// subtree is constant along them.
	scale := 1
	rem := make([]axisPair, 0, len(remained))
	for _, p := range remained {
		if p.second < n.Order {
			scale *= t.inner[p.first]
			continue
		}
		rem = append(rem, p)
	}
	// A skipped second axis accepts any value.
	wait := make([]pendingAxis, 0, len(waiting))
	for _, w := range waiting {
		if w.axis >= n.Order {
			wait = append(wait, w)
		}
	}

	key := t.key(id, rem, wait)
	res, ok := t.memo[key]
	if !ok {
		var err error
		if res, err = t.step(ctx, id, n, rem, wait); err != nil {
			return wnode{}, err
		}
		t.memo[key] = res
	}
	if scale == 1 {
		return res, nil
	}
	return wnode{node: res.node, w: res.w.scale(complex(float64(scale), 0))}, nil
}

func (t *tracer) step(ctx context.Context, id NodeID, n Node, rem []axisPair, wait []pendingAxis) (wnode, error) {
	switch {
	case len(rem) == 0 && len(wait) == 0:
		return wnode{node: id, w: onesWeight(t.bn)}, nil

	case len(wait) > 0 && wait[0].axis == n.Order:
		// Close the pair: only the successor matching the opened value
		v := wait[0].value
		below, err := t.trace(ctx, n.Successors[v], rem, wait[1:])
		if err != nil {
			return wnode{}, err
		}
		return t.nt.settle(wnode{node: below.node, w: below.w.mul(n.Weights[v])}), nil

	case len(rem) > 0 && rem[0].first <= n.Order:
		p, rest := rem[0], rem[1:]
		var branches []wnode
		if p.first == n.Order {
			branches = make([]wnode, n.Range())
			for i, s := range n.Successors {
				below, err := t.trace(ctx, s, rest, openAxis(wait, pendingAxis{p.second, i}))
				if err != nil {
					return wnode{}, err
				}
				branches[i] = wnode{node: below.node, w: below.w.mul(n.Weights[i])}
			}
		} else {
			// The first axis was skipped above this node; open it here
			// with every value it can take.
			branches = make([]wnode, t.inner[p.first])
			for i := range branches {
				below, err := t.trace(ctx, id, rest, openAxis(wait, pendingAxis{p.second, i}))
				if err != nil {
					return wnode{}, err
				}
				branches[i] = below
			}
		}

		acc := t.nt.settle(branches[0])
		for _, b := range branches[1:] {
			var err error
			if acc, err = t.sums.sum(ctx, acc, t.nt.settle(b)); err != nil {
				return wnode{}, err
			}
		}
		return t.nt.settle(acc), nil

	default:
		// Nothing to do at this axis; descend
		weights := make([]Weight, n.Range())
		succ := make([]NodeID, n.Range())
		for k, s := range n.Successors {
			below, err := t.trace(ctx, s, rem, wait)
			if err != nil {
				return wnode{}, err
			}
			weights[k] = below.w.mul(n.Weights[k])
			succ[k] = below.node
		}
		return t.nt.normalize(n.Order, weights, succ, onesWeight(t.bn)), nil
	}
}

// openAxis returns waiting with w inserted in axis order.
func openAxis(waiting []pendingAxis, w pendingAxis) []pendingAxis {
	out := make([]pendingAxis, 0, len(waiting)+1)
	i := 0
	for i < len(waiting) && waiting[i].axis < w.axis {
		i++
	}
	out = append(out, waiting[:i]...)
	out = append(out, w)
	return append(out, waiting[i:]...)
}

func (t *tracer) key(id NodeID, rem []axisPair, wait []pendingAxis) string {
	kb := newKeyBuilder(t.nt.eps, 4+4*len(rem)+4*len(wait))
	kb.node(id).int(len(rem))
	for _, p := range rem {
		kb.int(p.first).int(p.second)
	}
	kb.int(len(wait))
	for _, w := range wait {
		kb.int(w.axis).int(w.value)
	}
	return kb.string()
}

// tracedAxes lists every axis of pairs in ascending order.
func tracedAxes(pairs []axisPair) []int {
	out := make([]int, 0, 2*len(pairs))
	for _, p := range pairs {
		out = append(out, p.first, p.second)
	}
	slices.Sort(out)
	return out
}
