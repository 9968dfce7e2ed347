package gotdd

import "context"

// fixer fixes internal axes to concrete values. Orders are left in place;
// callers compact them afterwards.
type fixer struct {
	nt    *NodeTable
	bn    int
	fixed map[int]int // internal axis -> value
	last  int         // highest fixed axis
	memo  map[NodeID]wnode
}

func newFixer(nt *NodeTable, bn int, fixed map[int]int) *fixer {
	f := &fixer{nt: nt, bn: bn, fixed: fixed, last: -1, memo: make(map[NodeID]wnode)}
	for axis := range fixed {
		f.last = max(f.last, axis)
	}
	return f
}

// fix returns the subtree of id with every fixed axis resolved, under a
// unit dangling weight.
//
// A node past every fixed axis is unaffected. A node on a fixed axis is
// replaced by its selected successor. A node above a fixed axis is
// rebuilt from its fixed successors and renormalized. Axes skipped by the
// redundancy rule need no work: the subtree does not depend on them.
func (f *fixer) fix(ctx context.Context, id NodeID) (wnode, error) {
	if id == Terminal {
		return wnode{node: Terminal, w: onesWeight(f.bn)}, nil
	}
	if wn, ok := f.memo[id]; ok {
		return wn, nil
	}

	select {
	case <-ctx.Done():
		return wnode{}, ctx.Err()
	default:
	}

	n := f.nt.node(id)
	if n.Order > f.last {
		return wnode{node: id, w: onesWeight(f.bn)}, nil
	}

	var res wnode
	if v, ok := f.fixed[n.Order]; ok {
		below, err := f.fix(ctx, n.Successors[v])
		if err != nil {
			return wnode{}, err
		}
		res = f.nt.settle(wnode{node: below.node, w: below.w.mul(n.Weights[v])})
	} else {
		weights := make([]Weight, n.Range())
		succ := make([]NodeID, n.Range())
		for k, s := range n.Successors {
			below, err := f.fix(ctx, s)
			if err != nil {
				return wnode{}, err
			}
			weights[k] = below.w.mul(n.Weights[k])
			succ[k] = below.node
		}
		res = f.nt.normalize(n.Order, weights, succ, onesWeight(f.bn))
	}

	f.memo[id] = res
	return res, nil
}
