package gotdd

import (
	"context"
	"sync"
)

// sumCache memoizes sub-sums keyed by (node1, q(w1), node2, q(w2)).
// Stored results assume a co-normalization coefficient of 1.
// A sumCache may be shared between calls and goroutines.
type sumCache struct {
	mu      sync.Mutex
	entries map[string]wnode
}

func newSumCache() *sumCache {
	return &sumCache{entries: make(map[string]wnode)}
}

func (c *sumCache) get(key string) (wnode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wn, ok := c.entries[key]
	return wn, ok
}

func (c *sumCache) put(key, swapped string, wn wnode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = wn
	c.entries[swapped] = wn
}

func (c *sumCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *sumCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]wnode)
}

// summer adds weighted subtrees over the same internal axes.
type summer struct {
	nt    *NodeTable
	cache *sumCache
}

// sum returns the canonical form of a + b.
func (s *summer) sum(ctx context.Context, a, b wnode) (wnode, error) {
	n1, n2, coef := coNormalize(a.w, b.w, s.nt.eps)
	return s.sumNormed(ctx, wnode{a.node, n1}, wnode{b.node, n2}, coef)
}

// sumNormed computes coef * (a + b) where a.w and b.w have already been
// co-normalized.
func (s *summer) sumNormed(ctx context.Context, a, b wnode, coef Weight) (wnode, error) {
	if a.node == Terminal && b.node == Terminal {
		return wnode{node: Terminal, w: a.w.add(b.w).mul(coef)}, nil
	}
	if a.w.isZero(s.nt.eps) {
		return s.nt.settle(wnode{node: b.node, w: b.w.mul(coef)}), nil
	}
	if b.w.isZero(s.nt.eps) {
		return s.nt.settle(wnode{node: a.node, w: a.w.mul(coef)}), nil
	}

	select {
	case <-ctx.Done():
		return wnode{}, ctx.Err()
	default:
	}

	part1 := s.keyPart(a)
	part2 := s.keyPart(b)
	if hit, ok := s.cache.get(part1 + part2); ok {
		return s.nt.settle(wnode{node: hit.node, w: hit.w.mul(coef)}), nil
	}

	// The lower order side is expanded; the terminal ranks last.
	var lo Node
	var weights []Weight
	var succ []NodeID
	bn := len(a.w)

	switch {
	case a.node != Terminal && b.node != Terminal && s.nt.node(a.node).Order == s.nt.node(b.node).Order:
		na, nb := s.nt.node(a.node), s.nt.node(b.node)
		lo = na
		weights = make([]Weight, na.Range())
		succ = make([]NodeID, na.Range())
		for i := range na.Successors {
			w1, w2, c := coNormalize(a.w.mul(na.Weights[i]), b.w.mul(nb.Weights[i]), s.nt.eps)
			r, err := s.sumNormed(ctx, wnode{na.Successors[i], w1}, wnode{nb.Successors[i], w2}, c)
			if err != nil {
				return wnode{}, err
			}
			weights[i], succ[i] = r.w, r.node
		}

	default:
		x, y := a, b
		if x.node == Terminal || (y.node != Terminal && s.nt.node(y.node).Order < s.nt.node(x.node).Order) {
			x, y = y, x
		}
		lo = s.nt.node(x.node)
		weights = make([]Weight, lo.Range())
		succ = make([]NodeID, lo.Range())
		for i := range lo.Successors {
			w1, w2, c := coNormalize(x.w.mul(lo.Weights[i]), y.w, s.nt.eps)
			r, err := s.sumNormed(ctx, wnode{lo.Successors[i], w1}, wnode{y.node, w2}, c)
			if err != nil {
				return wnode{}, err
			}
			weights[i], succ[i] = r.w, r.node
		}
	}

	res := s.nt.normalize(lo.Order, weights, succ, onesWeight(bn))
	s.cache.put(part1+part2, part2+part1, res)
	return s.nt.settle(wnode{node: res.node, w: res.w.mul(coef)}), nil
}

func (s *summer) keyPart(wn wnode) string {
	kb := newKeyBuilder(s.nt.eps, 3+len(wn.w)*4)
	return kb.int(len(wn.w)).node(wn.node).weight(wn.w).string()
}
