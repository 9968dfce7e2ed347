package gotdd

import (
	"fmt"
	"sync"
)

// NodeID is a handle into a NodeTable.
// NodeIDs are assigned sequentially on allocation and remain valid until
// the table is reset.
type NodeID uint32

// Terminal is the sentinel leaf: no further axes, the value is the weight
// carried on the edge that reaches it.
const Terminal NodeID = 0

// Node is one decision variable (tensor axis) of a diagram.
//
// Node invariants:
//   - Order is the internal axis position; it strictly increases along any
//     root-to-terminal path.
//   - Weights[k] is the batched weight of the edge to Successors[k].
//   - Nodes are immutable once interned; callers must treat the slices
//     returned by GetNode as read-only.
type Node struct {
	// Order is the internal axis this node decides.
	Order int

	// Weights holds one batched weight per successor.
	Weights []Weight

	// Successors holds the successor handles; Terminal marks a leaf edge.
	Successors []NodeID
}

// Range returns how many values this node's axis can take.
func (n Node) Range() int {
	return len(n.Successors)
}

// NodeTable interns diagram nodes: structurally equal nodes share one
// NodeID, which is what makes node identity usable as a cache key.
//
// The NodeTable ensures that:
//   - Nodes equal up to EPS are shared (hash-consing)
//   - Thread-safe concurrent interning and lookup
//   - Nodes are never freed individually; Reset drops the whole table
//
// Memory usage grows with the number of unique nodes until Reset.
type NodeTable struct {
	// mu protects nodes, hash and gen
	mu sync.RWMutex

	// nodes stores the actual node data indexed by NodeID
	nodes []Node

	// hash maps the canonical key of a node to its NodeID
	hash map[string]NodeID

	// gen increases on every Reset
	gen uint64

	// eps is the quantization tolerance for keys
	eps float64
}

// NewNodeTable creates an empty node table whose index 0 is the terminal.
func NewNodeTable(eps float64) *NodeTable {
	if eps <= 0 {
		eps = DefaultEPS
	}
	return &NodeTable{
		nodes: make([]Node, 1), // Reserve Terminal
		hash:  make(map[string]NodeID),
		eps:   eps,
	}
}

// EPS returns the table's quantization tolerance.
func (nt *NodeTable) EPS() float64 {
	return nt.eps
}

// GetNode retrieves a node by its ID with bounds checking.
//
// Returns ErrInvalidNode for Terminal or IDs beyond the allocated nodes.
func (nt *NodeTable) GetNode(id NodeID) (Node, error) {
	nt.mu.RLock()
	defer nt.mu.RUnlock()

	if id == Terminal || int(id) >= len(nt.nodes) {
		return Node{}, fmt.Errorf("%w: node ID %d", ErrInvalidNode, id)
	}

	return nt.nodes[id], nil
}

// node is GetNode for IDs the caller obtained from this table generation.
func (nt *NodeTable) node(id NodeID) Node {
	nt.mu.RLock()
	n := nt.nodes[id]
	nt.mu.RUnlock()
	return n
}

// Intern returns the canonical node for (order, weights, successors).
//
// Weights are compared on the EPS grid. On a miss the weights and
// successors are deep-copied, so callers may reuse their buffers.
// Intern does not normalize; see normalize for the reduction rules.
func (nt *NodeTable) Intern(order int, weights []Weight, successors []NodeID) NodeID {
	key := nt.key(order, weights, successors)

	nt.mu.RLock()
	existing, ok := nt.hash[key]
	nt.mu.RUnlock()
	if ok {
		internHits.Inc()
		return existing
	}

	nt.mu.Lock()
	defer nt.mu.Unlock()

	// Check again: another goroutine may have interned it meanwhile
	if existing, ok := nt.hash[key]; ok {
		internHits.Inc()
		return existing
	}

	ws := make([]Weight, len(weights))
	for i, w := range weights {
		ws[i] = w.Clone()
	}
	succ := make([]NodeID, len(successors))
	copy(succ, successors)

	id := NodeID(len(nt.nodes))
	nt.nodes = append(nt.nodes, Node{Order: order, Weights: ws, Successors: succ})
	nt.hash[key] = id

	nodesInterned.Inc()
	liveNodes.Inc()
	return id
}

func (nt *NodeTable) key(order int, weights []Weight, successors []NodeID) string {
	batch := 0
	if len(weights) > 0 {
		batch = len(weights[0])
	}
	kb := newKeyBuilder(nt.eps, 4+len(successors)*(3+batch*4))
	kb.int(order).int(len(successors))
	for i, s := range successors {
		kb.node(s).weight(weights[i])
	}
	return kb.string()
}

// Len returns the number of interned nodes, excluding Terminal.
func (nt *NodeTable) Len() int {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	return len(nt.nodes) - 1
}

// Generation returns the number of resets performed on this table.
func (nt *NodeTable) Generation() uint64 {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	return nt.gen
}

// Reset drops every node and starts a new generation. NodeIDs handed out
// before the reset must not be used afterwards.
func (nt *NodeTable) Reset() int {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	dropped := len(nt.nodes) - 1
	nt.nodes = make([]Node, 1)
	nt.hash = make(map[string]NodeID)
	nt.gen++

	liveNodes.Sub(float64(dropped))
	tableResets.Inc()
	return dropped
}
