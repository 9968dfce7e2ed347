package gotdd

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/zzenonn/go-tdd/tensor"
)

// builder splits a dense tensor top-down into a weighted subtree.
//
// The dense data is laid out as [batch..., data...]; batch element b of the
// data entry at offset off lives at data[b*dataN+off].
type builder struct {
	nt *NodeTable

	data    []complex128
	bn      int
	dataN   int
	inner   []int // inner[depth] = size of the axis visited at depth
	strides []int // strides[depth] = data stride of that axis

	// parDepth is the first depth constructed sequentially
	parDepth int
}

func newBuilder(nt *NodeTable, dense *tensor.Dense, batchRank int, storageOrder []int, workers int) *builder {
	shape := dense.Shape()
	dataShape := shape[batchRank:]
	dataStrides := dataShape.ComputeStrides()

	b := &builder{
		nt:      nt,
		data:    dense.Data(),
		bn:      shape[:batchRank].NumElements(),
		dataN:   dataShape.NumElements(),
		inner:   make([]int, len(storageOrder)),
		strides: make([]int, len(storageOrder)),
	}
	for depth, axis := range storageOrder {
		b.inner[depth] = dataShape[axis]
		b.strides[depth] = dataStrides[axis]
	}

	// Fan out until there are at least as many branches as workers
	if workers > 1 {
		branches := 1
		for b.parDepth < len(b.inner) && branches < workers {
			branches *= b.inner[b.parDepth]
			b.parDepth++
		}
	}
	return b
}

// build constructs the subtree for the data block starting at off, visiting
// the axis of depth next.
func (b *builder) build(ctx context.Context, depth, off int) (wnode, error) {
	if depth == len(b.inner) {
		w := make(Weight, b.bn)
		for i := range w {
			w[i] = b.data[i*b.dataN+off]
		}
		return wnode{node: Terminal, w: w}, nil
	}

	select {
	case <-ctx.Done():
		return wnode{}, ctx.Err()
	default:
	}

	children := make([]wnode, b.inner[depth])
	if depth < b.parDepth {
		g, gctx := errgroup.WithContext(ctx)
		for i := range children {
			g.Go(func() error {
				child, err := b.build(gctx, depth+1, off+i*b.strides[depth])
				if err != nil {
					return err
				}
				children[i] = child
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return wnode{}, err
		}
	} else {
		for i := range children {
			child, err := b.build(ctx, depth+1, off+i*b.strides[depth])
			if err != nil {
				return wnode{}, err
			}
			children[i] = child
		}
	}

	weights := make([]Weight, len(children))
	succ := make([]NodeID, len(children))
	for i, c := range children {
		weights[i] = c.w
		succ[i] = c.node
	}
	return b.nt.normalize(depth, weights, succ, onesWeight(b.bn)), nil
}

// materializer expands a weighted subtree back to a dense tensor.
//
// memo maps a node to its expansion under a unit dangling weight, shaped
// [batch..., inner[order:]...]. It lives for one call.
type materializer struct {
	nt         *NodeTable
	batchShape tensor.Shape
	inner      []int
	memo       map[NodeID]*tensor.Dense
}

func newMaterializer(nt *NodeTable, batchShape tensor.Shape, inner []int) *materializer {
	return &materializer{
		nt:         nt,
		batchShape: batchShape,
		inner:      inner,
		memo:       make(map[NodeID]*tensor.Dense),
	}
}

// expand returns the tensor for root under weight w, with every internal
// axis present, shaped [batch..., inner...].
func (m *materializer) expand(ctx context.Context, root wnode) (*tensor.Dense, error) {
	t, order, err := m.sub(ctx, root.node)
	if err != nil {
		return nil, err
	}
	if t, err = t.ExpandAt(len(m.batchShape), m.inner[:order]); err != nil {
		return nil, err
	}
	return t.ScaleBatch(root.w)
}

// sub returns the unit-weight expansion of id and the order it starts at.
func (m *materializer) sub(ctx context.Context, id NodeID) (*tensor.Dense, int, error) {
	if id == Terminal {
		return tensor.Ones(m.batchShape), len(m.inner), nil
	}
	n := m.nt.node(id)
	t, err := m.node(ctx, id, n)
	return t, n.Order, err
}

func (m *materializer) node(ctx context.Context, id NodeID, n Node) (*tensor.Dense, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if t, ok := m.memo[id]; ok {
		return t, nil
	}

	br := len(m.batchShape)
	parts := make([]*tensor.Dense, n.Range())
	for k, s := range n.Successors {
		t, next, err := m.sub(ctx, s)
		if err != nil {
			return nil, err
		}
		if t, err = t.ScaleBatch(n.Weights[k]); err != nil {
			return nil, err
		}
		// Re-expand axes elided by the redundancy rule
		if t, err = t.ExpandAt(br, m.inner[n.Order+1:next]); err != nil {
			return nil, err
		}
		parts[k] = t
	}

	t, err := tensor.Stack(parts, br)
	if err != nil {
		return nil, fmt.Errorf("materialize node %d: %w", id, err)
	}
	m.memo[id] = t
	return t, nil
}
