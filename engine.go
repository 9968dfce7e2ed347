// Package gotdd provides a Go-native Tensor Decision Diagram (TDD) library
// for compact tensor algebra.
//
// # Overview
//
// A TDD represents a dense complex tensor as a reduced, canonical, weighted
// decision diagram. Every axis is a decision variable; equal sub-tensors
// share one node and a sub-tensor repeated along an axis drops that axis
// altogether. Sums, index fixing, permutation, direct products and axis
// contraction (tensordot) all run on the compact form without expanding the
// tensor.
//
// # Key Features
//
//   - Hash-consed node table with integer handles and explicit Reset
//   - Batched ("parallel") tensors carried in the edge weights
//   - Context-aware operations with timeout and cancellation support
//   - Parallel construction with errgroup
//   - Prometheus metrics for node allocation and operation latency
//
// # Basic Usage
//
//	engine := gotdd.NewEngine(gotdd.WithParallel(4))
//
//	ctx := context.Background()
//	a, err := engine.Construct(ctx, tensor.Eye(2), 0, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	prod, err := gotdd.TensordotNum(ctx, a, a, 1, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dense, _ := prod.Materialize(ctx)
//
// # Numerical Equality
//
// Weights are compared after rounding each complex component to a grid of
// spacing EPS (WithEPS). Canonical forms are therefore unique up to that
// tolerance, not exactly.
package gotdd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zzenonn/go-tdd/tensor"
)

// Engine owns a node table and the settings every TDD built from it uses.
//
// All TDDs produced by an engine share its table. Operands of a binary
// operation must come from the same engine. An Engine is safe for
// concurrent use, except that Reset must not run while any of its TDDs is
// in use.
type Engine struct {
	// table interns every node built by this engine
	table *NodeTable

	// config holds engine parameters
	config *Config

	// logger receives diagnostics
	logger *slog.Logger

	// sums is reused across operations when SharedSumCache is set
	sums *sumCache
}

// NewEngine creates an engine with an empty node table.
//
// Example:
//
//	engine := NewEngine(WithEPS(1e-8), WithTimeout(time.Minute))
func NewEngine(opts ...Option) *Engine {
	cfg := newConfig(opts...)
	e := &Engine{
		table:  NewNodeTable(cfg.EPS),
		config: cfg,
		logger: cfg.Logger,
	}
	if cfg.SharedSumCache {
		e.sums = newSumCache()
	}
	return e
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return *e.config
}

// Nodes returns the number of nodes currently interned.
func (e *Engine) Nodes() int {
	return e.table.Len()
}

// GetNode retrieves a node by its ID.
//
// Returns ErrInvalidNode if the ID is Terminal or out of bounds.
func (e *Engine) GetNode(id NodeID) (Node, error) {
	return e.table.GetNode(id)
}

// Reset drops every node and cache. TDDs built before the reset fail with
// ErrUseAfterReset afterwards.
func (e *Engine) Reset() {
	dropped := e.table.Reset()
	e.ClearCache()
	e.logger.Debug("node table reset",
		slog.Int("dropped", dropped),
		slog.Uint64("generation", e.table.Generation()))
}

// ClearCache drops the shared sum cache. The node table is kept.
func (e *Engine) ClearCache() {
	if e.sums != nil {
		e.sums.clear()
	}
}

// withTimeout applies the configured timeout to a top-level operation.
func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Timeout > 0 {
		return context.WithTimeout(ctx, e.config.Timeout)
	}
	return ctx, func() {}
}

// summer returns a summer over the shared cache, or a fresh cache when
// sharing is disabled.
func (e *Engine) summer() *summer {
	cache := e.sums
	if cache == nil {
		cache = newSumCache()
	}
	return &summer{nt: e.table, cache: cache}
}

// newTDD wraps a subtree built in the current generation.
func (e *Engine) newTDD(root wnode, batchShape, shape tensor.Shape, indexOrder []int) *TDD {
	return &TDD{
		engine:     e,
		gen:        e.table.Generation(),
		root:       root,
		batchShape: batchShape,
		shape:      shape,
		indexOrder: indexOrder,
	}
}

// Construct builds the TDD of a dense tensor.
//
// Parameters:
//   - dense: tensor shaped [batch..., data...]
//   - batchRank: number of leading batch axes
//   - storageOrder: storageOrder[depth] is the data axis decided at that
//     depth of the diagram; nil means the data axes in order
//
// Returns ErrShapeMismatch if batchRank or storageOrder do not fit the
// tensor. Nothing is interned on error.
func (e *Engine) Construct(ctx context.Context, dense *tensor.Dense, batchRank int, storageOrder []int) (*TDD, error) {
	defer observe("construct", time.Now())

	if dense == nil {
		return nil, fmt.Errorf("%w: nil tensor", ErrShapeMismatch)
	}
	shape := dense.Shape()
	if batchRank < 0 || batchRank > len(shape) {
		return nil, fmt.Errorf("%w: batch rank %d for tensor of rank %d", ErrShapeMismatch, batchRank, len(shape))
	}
	dim := len(shape) - batchRank
	if storageOrder == nil {
		storageOrder = identityOrder(dim)
	}
	if err := validatePermutation(storageOrder, dim); err != nil {
		return nil, fmt.Errorf("storage order: %w", err)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	b := newBuilder(e.table, dense, batchRank, storageOrder, e.config.Workers)
	root, err := b.build(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("construct failed: %w", err)
	}

	e.logger.Debug("constructed tdd",
		slog.Any("shape", []int(shape)),
		slog.Int("batch_rank", batchRank),
		slog.Int("table_nodes", e.table.Len()))

	return e.newTDD(root, shape[:batchRank].Clone(), shape[batchRank:].Clone(), invertOrder(storageOrder)), nil
}

// Zeros returns the all-zero TDD of the given batch and data shapes.
func (e *Engine) Zeros(batchShape, shape tensor.Shape, storageOrder []int) (*TDD, error) {
	return e.constant(batchShape, shape, storageOrder, zerosWeight(batchShape.NumElements()))
}

// Ones returns the all-one TDD of the given batch and data shapes.
func (e *Engine) Ones(batchShape, shape tensor.Shape, storageOrder []int) (*TDD, error) {
	return e.constant(batchShape, shape, storageOrder, onesWeight(batchShape.NumElements()))
}

func (e *Engine) constant(batchShape, shape tensor.Shape, storageOrder []int, w Weight) (*TDD, error) {
	if err := batchShape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: batch shape: %v", ErrShapeMismatch, err)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: data shape: %v", ErrShapeMismatch, err)
	}
	if storageOrder == nil {
		storageOrder = identityOrder(len(shape))
	}
	if err := validatePermutation(storageOrder, len(shape)); err != nil {
		return nil, fmt.Errorf("storage order: %w", err)
	}
	return e.newTDD(wnode{node: Terminal, w: w}, batchShape.Clone(), shape.Clone(), invertOrder(storageOrder)), nil
}

// Stack joins TDDs of equal shape under a new leading axis. The new axis
// is the first one decided by the diagram.
//
// Returns ErrShapeMismatch if the operands differ in shape or index order
// and ErrBatchShapeMismatch if their batch shapes differ.
func (e *Engine) Stack(ctx context.Context, tdds []*TDD) (*TDD, error) {
	defer observe("stack", time.Now())

	if len(tdds) == 0 {
		return nil, fmt.Errorf("%w: stack of zero tensors", ErrShapeMismatch)
	}
	first := tdds[0]
	for i, t := range tdds {
		if err := e.owns(t); err != nil {
			return nil, err
		}
		if i == 0 {
			continue
		}
		if err := first.sameLayout(t); err != nil {
			return nil, fmt.Errorf("stack operand %d: %w", i, err)
		}
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	shift := shiftBy(e.table, 1)
	weights := make([]Weight, len(tdds))
	succ := make([]NodeID, len(tdds))
	for i, t := range tdds {
		id, err := shift.apply(ctx, t.root.node)
		if err != nil {
			return nil, fmt.Errorf("stack failed: %w", err)
		}
		weights[i] = t.root.w
		succ[i] = id
	}
	bn := first.batchShape.NumElements()
	root := e.table.normalize(0, weights, succ, onesWeight(bn))

	shape := append(tensor.Shape{len(tdds)}, first.shape...)
	indexOrder := make([]int, 0, len(shape))
	indexOrder = append(indexOrder, 0)
	for _, o := range first.indexOrder {
		indexOrder = append(indexOrder, o+1)
	}
	return e.newTDD(root, first.batchShape.Clone(), shape, indexOrder), nil
}

// owns checks that t was built by e in its current generation.
func (e *Engine) owns(t *TDD) error {
	if t == nil {
		return fmt.Errorf("%w: nil TDD", ErrInvalidNode)
	}
	if t.engine != e {
		return fmt.Errorf("%w: TDD belongs to another engine", ErrInvalidNode)
	}
	if g := e.table.Generation(); t.gen != g {
		return fmt.Errorf("%w: TDD from generation %d, table is at %d", ErrUseAfterReset, t.gen, g)
	}
	return nil
}
