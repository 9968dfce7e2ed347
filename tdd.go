package gotdd

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/zzenonn/go-tdd/tensor"
)

// TDD is a tensor held as a weighted decision diagram.
//
// A TDD pairs a canonical weighted subtree with its external layout: the
// data shape, the batch shape, and indexOrder, which maps every external
// axis to the internal order the diagram decides it at.
//
// TDDs are immutable; every operation returns a new TDD. A TDD is valid
// until the engine that built it is reset.
type TDD struct {
	// engine owns the node table the root lives in
	engine *Engine

	// gen is the table generation the root belongs to
	gen uint64

	// root is the canonical weighted subtree
	root wnode

	// batchShape holds the leading parallel dimensions
	batchShape tensor.Shape

	// shape holds the external data dimensions
	shape tensor.Shape

	// indexOrder[external axis] = internal order
	indexOrder []int
}

// IndexPair fixes one external axis to a value.
type IndexPair struct {
	Axis  int
	Value int
}

// Shape returns the external data shape.
func (t *TDD) Shape() tensor.Shape {
	return t.shape.Clone()
}

// BatchShape returns the batch shape.
func (t *TDD) BatchShape() tensor.Shape {
	return t.batchShape.Clone()
}

// Dim returns the number of data axes.
func (t *TDD) Dim() int {
	return len(t.shape)
}

// IndexOrder returns, for each external axis, the internal order at which
// the diagram decides it.
func (t *TDD) IndexOrder() []int {
	return slices.Clone(t.indexOrder)
}

// StorageOrder returns, for each internal order, the external axis decided
// there. It is the inverse of IndexOrder.
func (t *TDD) StorageOrder() []int {
	return invertOrder(t.indexOrder)
}

// Root returns the root node handle; Terminal for a constant tensor.
func (t *TDD) Root() NodeID {
	return t.root.node
}

// Weight returns a copy of the dangling weight.
func (t *TDD) Weight() Weight {
	return t.root.w.Clone()
}

// String renders the layout and root of the TDD.
func (t *TDD) String() string {
	return fmt.Sprintf("TDD{shape: %v, batch: %v, indexOrder: %v, root: %d, weight: %v}",
		[]int(t.shape), []int(t.batchShape), t.indexOrder, t.root.node, []complex128(t.root.w))
}

// inner returns the data shape in internal order.
func (t *TDD) inner() []int {
	out := make([]int, len(t.shape))
	for ext, o := range t.indexOrder {
		out[o] = t.shape[ext]
	}
	return out
}

func (t *TDD) check() error {
	return t.engine.owns(t)
}

// sameLayout reports whether t and o can be summed or stacked.
func (t *TDD) sameLayout(o *TDD) error {
	if t.engine != o.engine {
		return fmt.Errorf("%w: operands belong to different engines", ErrInvalidNode)
	}
	if !t.shape.Equal(o.shape) || !slices.Equal(t.indexOrder, o.indexOrder) {
		return fmt.Errorf("%w: shape %v order %v vs shape %v order %v",
			ErrShapeMismatch, []int(t.shape), t.indexOrder, []int(o.shape), o.indexOrder)
	}
	if !t.batchShape.Equal(o.batchShape) {
		return fmt.Errorf("%w: %v vs %v", ErrBatchShapeMismatch, []int(t.batchShape), []int(o.batchShape))
	}
	return nil
}

// Materialize expands the TDD into a dense tensor shaped
// [batch..., shape...].
func (t *TDD) Materialize(ctx context.Context) (*tensor.Dense, error) {
	defer observe("materialize", time.Now())
	if err := t.check(); err != nil {
		return nil, err
	}
	ctx, cancel := t.engine.withTimeout(ctx)
	defer cancel()

	m := newMaterializer(t.engine.table, t.batchShape, t.inner())
	dense, err := m.expand(ctx, t.root)
	if err != nil {
		return nil, fmt.Errorf("materialize failed: %w", err)
	}

	br := len(t.batchShape)
	perm := make([]int, br+len(t.shape))
	for i := 0; i < br; i++ {
		perm[i] = i
	}
	for ext, o := range t.indexOrder {
		perm[br+ext] = br + o
	}
	return dense.Permute(perm)
}

// Sum returns t + o. Both operands must share shape, index order and batch
// shape.
func (t *TDD) Sum(ctx context.Context, o *TDD) (*TDD, error) {
	defer observe("sum", time.Now())
	if err := t.check(); err != nil {
		return nil, err
	}
	if err := o.check(); err != nil {
		return nil, err
	}
	if err := t.sameLayout(o); err != nil {
		return nil, err
	}
	ctx, cancel := t.engine.withTimeout(ctx)
	defer cancel()

	root, err := t.engine.summer().sum(ctx, t.root, o.root)
	if err != nil {
		return nil, fmt.Errorf("sum failed: %w", err)
	}
	return t.derive(root, t.shape.Clone(), slices.Clone(t.indexOrder)), nil
}

// Index fixes external axes to values and removes them. The remaining
// axes keep their relative order.
//
// Returns ErrShapeMismatch for an out-of-range or repeated axis and
// ErrInvalidIndex for a value outside the axis range.
func (t *TDD) Index(ctx context.Context, pairs ...IndexPair) (*TDD, error) {
	defer observe("index", time.Now())
	if err := t.check(); err != nil {
		return nil, err
	}

	fixed := make(map[int]int, len(pairs))
	drop := make([]bool, len(t.shape))
	for _, p := range pairs {
		if p.Axis < 0 || p.Axis >= len(t.shape) {
			return nil, fmt.Errorf("%w: index axis %d out of range for rank %d", ErrShapeMismatch, p.Axis, len(t.shape))
		}
		if drop[p.Axis] {
			return nil, fmt.Errorf("%w: index axis %d repeated", ErrShapeMismatch, p.Axis)
		}
		if p.Value < 0 || p.Value >= t.shape[p.Axis] {
			return nil, fmt.Errorf("%w: value %d for axis %d of size %d", ErrInvalidIndex, p.Value, p.Axis, t.shape[p.Axis])
		}
		drop[p.Axis] = true
		fixed[t.indexOrder[p.Axis]] = p.Value
	}
	if len(pairs) == 0 {
		return t, nil
	}

	ctx, cancel := t.engine.withTimeout(ctx)
	defer cancel()

	nt := t.engine.table
	f := newFixer(nt, len(t.root.w), fixed)
	below, err := f.fix(ctx, t.root.node)
	if err != nil {
		return nil, fmt.Errorf("index failed: %w", err)
	}
	root := nt.settle(wnode{node: below.node, w: below.w.mul(t.root.w)})

	removed := make([]int, 0, len(fixed))
	for o := range fixed {
		removed = append(removed, o)
	}
	slices.Sort(removed)
	return t.finishRemoval(ctx, root, drop, removed)
}

// Trace sums t over the diagonals of the external axis pairs
// (axesA[i], axesB[i]) and removes those axes.
func (t *TDD) Trace(ctx context.Context, axesA, axesB []int) (*TDD, error) {
	defer observe("trace", time.Now())
	if err := t.check(); err != nil {
		return nil, err
	}
	drop, err := validateAxisPairs(t.shape, t.shape, axesA, axesB, true)
	if err != nil {
		return nil, err
	}
	pairs := make([]axisPair, len(axesA))
	for i := range axesA {
		x, y := t.indexOrder[axesA[i]], t.indexOrder[axesB[i]]
		pairs[i] = axisPair{first: min(x, y), second: max(x, y)}
	}

	ctx, cancel := t.engine.withTimeout(ctx)
	defer cancel()
	return t.contract(ctx, t.root, pairs, drop)
}

// contract traces internal pairs on root, which lives in t's layout, and
// removes the external axes marked in drop.
func (t *TDD) contract(ctx context.Context, root wnode, pairs []axisPair, drop []bool) (*TDD, error) {
	e := t.engine
	if len(pairs) == 0 {
		return t.derive(root, t.shape.Clone(), slices.Clone(t.indexOrder)), nil
	}
	tr := newTracer(e.table, e.summer(), t.inner(), len(root.w))
	traced, err := tr.run(ctx, root, pairs)
	if err != nil {
		return nil, fmt.Errorf("contract failed: %w", err)
	}
	e.logger.Debug("traced axis pairs",
		slog.Int("pairs", len(pairs)),
		slog.Int("memo", len(tr.memo)),
		slog.Int("table_nodes", e.table.Len()))
	return t.finishRemoval(ctx, traced, drop, tracedAxes(pairs))
}

// finishRemoval compacts the internal orders of root after the internal
// axes in removed are gone, and drops the matching external axes.
func (t *TDD) finishRemoval(ctx context.Context, root wnode, drop []bool, removed []int) (*TDD, error) {
	id, err := compact(t.engine.table, removed).apply(ctx, root.node)
	if err != nil {
		return nil, err
	}
	shape := make(tensor.Shape, 0, len(t.shape)-len(removed))
	indexOrder := make([]int, 0, len(t.shape)-len(removed))
	for ext, o := range t.indexOrder {
		if drop[ext] {
			continue
		}
		n, _ := slices.BinarySearch(removed, o)
		shape = append(shape, t.shape[ext])
		indexOrder = append(indexOrder, o-n)
	}
	return t.derive(wnode{node: id, w: root.w}, shape, indexOrder), nil
}

// Permute reorders the external axes: axis i of the result is axis
// perm[i] of t. Only the layout changes; the diagram is shared.
func (t *TDD) Permute(perm []int) (*TDD, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if err := validatePermutation(perm, len(t.shape)); err != nil {
		return nil, err
	}
	shape := make(tensor.Shape, len(perm))
	indexOrder := make([]int, len(perm))
	for i, p := range perm {
		shape[i] = t.shape[p]
		indexOrder[i] = t.indexOrder[p]
	}
	return t.derive(t.root, shape, indexOrder), nil
}

// Conj returns the element-wise complex conjugate.
func (t *TDD) Conj(ctx context.Context) (*TDD, error) {
	defer observe("conj", time.Now())
	if err := t.check(); err != nil {
		return nil, err
	}
	ctx, cancel := t.engine.withTimeout(ctx)
	defer cancel()

	id, err := newRewriter(t.engine.table, nil, Weight.conj).apply(ctx, t.root.node)
	if err != nil {
		return nil, fmt.Errorf("conj failed: %w", err)
	}
	return t.derive(wnode{node: id, w: t.root.w.conj()}, t.shape.Clone(), slices.Clone(t.indexOrder)), nil
}

// Scale returns s * t.
func (t *TDD) Scale(s complex128) (*TDD, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	root := t.engine.table.settle(wnode{node: t.root.node, w: t.root.w.scale(s)})
	return t.derive(root, t.shape.Clone(), slices.Clone(t.indexOrder)), nil
}

// ScaleBatch multiplies each batch element of t by the matching entry of w,
// given in row-major batch order.
func (t *TDD) ScaleBatch(w Weight) (*TDD, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if len(w) != len(t.root.w) {
		return nil, fmt.Errorf("%w: %d weights for batch %v", ErrBatchShapeMismatch, len(w), []int(t.batchShape))
	}
	root := t.engine.table.settle(wnode{node: t.root.node, w: t.root.w.mul(w)})
	return t.derive(root, t.shape.Clone(), slices.Clone(t.indexOrder)), nil
}

// Size returns the number of distinct non-terminal nodes reachable from
// the root.
func (t *TDD) Size() (int, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	nt := t.engine.table
	seen := make(map[NodeID]bool)
	stack := []NodeID{t.root.node}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == Terminal || seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, nt.node(id).Successors...)
	}
	return len(seen), nil
}

// Equal reports whether t and o hold the same canonical diagram in the same
// layout, comparing weights on the EPS grid.
func (t *TDD) Equal(o *TDD) bool {
	if o == nil || t.engine != o.engine || t.gen != o.gen || t.check() != nil {
		return false
	}
	return t.shape.Equal(o.shape) &&
		t.batchShape.Equal(o.batchShape) &&
		slices.Equal(t.indexOrder, o.indexOrder) &&
		t.root.node == o.root.node &&
		t.root.w.equal(o.root.w, t.engine.table.eps)
}

func (t *TDD) derive(root wnode, shape tensor.Shape, indexOrder []int) *TDD {
	return &TDD{
		engine:     t.engine,
		gen:        t.gen,
		root:       root,
		batchShape: t.batchShape.Clone(),
		shape:      shape,
		indexOrder: indexOrder,
	}
}

// DirectProduct returns the outer product of a and b: the result axes are
// a's followed by b's.
//
// With parallelTensor false the batch shapes must be equal, or one of them
// empty, and batch elements are paired. With parallelTensor true the result
// batch is [a.batch..., b.batch...] holding every combination.
func DirectProduct(ctx context.Context, a, b *TDD, parallelTensor bool) (*TDD, error) {
	defer observe("direct_product", time.Now())
	if err := checkOperands(a, b); err != nil {
		return nil, err
	}
	ctx, cancel := a.engine.withTimeout(ctx)
	defer cancel()
	return directProduct(ctx, a, b, parallelTensor)
}

func directProduct(ctx context.Context, a, b *TDD, parallelTensor bool) (*TDD, error) {
	plan, batchShape, err := combineBatch(a, b, parallelTensor)
	if err != nil {
		return nil, err
	}
	dimA := len(a.shape)
	root, err := a.engine.table.directProduct(ctx, a.root, b.root, dimA, plan)
	if err != nil {
		return nil, fmt.Errorf("direct product failed: %w", err)
	}

	shape := a.shape.Concat(b.shape)
	indexOrder := make([]int, 0, len(shape))
	indexOrder = append(indexOrder, a.indexOrder...)
	for _, o := range b.indexOrder {
		indexOrder = append(indexOrder, o+dimA)
	}
	return &TDD{
		engine:     a.engine,
		gen:        a.gen,
		root:       root,
		batchShape: batchShape,
		shape:      shape,
		indexOrder: indexOrder,
	}, nil
}

// Tensordot contracts axesA of a with axesB of b, like numpy.tensordot:
// the result axes are a's remaining axes followed by b's remaining axes.
// See DirectProduct for the meaning of parallelTensor.
//
// Returns ErrShapeMismatch if the axis lists differ in length, repeat an
// axis, fall out of range or pair axes of different sizes, and
// ErrBatchShapeMismatch if the batch shapes cannot be combined.
func Tensordot(ctx context.Context, a, b *TDD, axesA, axesB []int, parallelTensor bool) (*TDD, error) {
	defer observe("tensordot", time.Now())
	if err := checkOperands(a, b); err != nil {
		return nil, err
	}
	dropA, err := validateAxisPairs(a.shape, b.shape, axesA, axesB, false)
	if err != nil {
		return nil, err
	}
	if _, _, err := combineBatch(a, b, parallelTensor); err != nil {
		return nil, err
	}

	ctx, cancel := a.engine.withTimeout(ctx)
	defer cancel()

	prod, err := directProduct(ctx, a, b, parallelTensor)
	if err != nil {
		return nil, err
	}
	dimA := len(a.shape)
	drop := make([]bool, dimA+len(b.shape))
	copy(drop, dropA[:dimA])
	pairs := make([]axisPair, len(axesA))
	for i := range axesA {
		drop[dimA+axesB[i]] = true
		pairs[i] = axisPair{first: a.indexOrder[axesA[i]], second: dimA + b.indexOrder[axesB[i]]}
	}
	return prod.contract(ctx, prod.root, pairs, drop)
}

// TensordotNum contracts the last n axes of a with the first n axes of b.
func TensordotNum(ctx context.Context, a, b *TDD, n int, parallelTensor bool) (*TDD, error) {
	if n < 0 || n > a.Dim() || n > b.Dim() {
		return nil, fmt.Errorf("%w: cannot contract %d axes of ranks %d and %d", ErrShapeMismatch, n, a.Dim(), b.Dim())
	}
	axesA := make([]int, n)
	axesB := make([]int, n)
	for i := 0; i < n; i++ {
		axesA[i] = a.Dim() - n + i
		axesB[i] = i
	}
	return Tensordot(ctx, a, b, axesA, axesB, parallelTensor)
}

func checkOperands(a, b *TDD) error {
	if a == nil || b == nil {
		return fmt.Errorf("%w: nil TDD", ErrInvalidNode)
	}
	if err := a.check(); err != nil {
		return err
	}
	if err := b.check(); err != nil {
		return err
	}
	if a.engine != b.engine {
		return fmt.Errorf("%w: operands belong to different engines", ErrInvalidNode)
	}
	return nil
}

// combineBatch decides the result batch shape of a binary product.
func combineBatch(a, b *TDD, parallelTensor bool) (batchPlan, tensor.Shape, error) {
	bnA, bnB := len(a.root.w), len(b.root.w)
	batchedA, batchedB := len(a.batchShape) > 0, len(b.batchShape) > 0
	switch {
	case parallelTensor:
		return planBatch(bnA, bnB, batchedA, batchedB, true), a.batchShape.Concat(b.batchShape), nil
	case batchedA && batchedB && !a.batchShape.Equal(b.batchShape):
		return batchPlan{}, nil, fmt.Errorf("%w: %v vs %v", ErrBatchShapeMismatch, []int(a.batchShape), []int(b.batchShape))
	case batchedB && !batchedA:
		return planBatch(bnA, bnB, false, true, false), b.batchShape.Clone(), nil
	default:
		return planBatch(bnA, bnB, batchedA, batchedB, false), a.batchShape.Clone(), nil
	}
}
