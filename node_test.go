package gotdd

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeTable_InternDeduplicates(t *testing.T) {
	nt := NewNodeTable(1e-6)

	a := nt.Intern(0, []Weight{{1}, {0.5}}, []NodeID{Terminal, Terminal})
	b := nt.Intern(0, []Weight{{1}, {0.5 + 1e-8}}, []NodeID{Terminal, Terminal})
	c := nt.Intern(0, []Weight{{1}, {0.5 + 1e-3}}, []NodeID{Terminal, Terminal})
	d := nt.Intern(1, []Weight{{1}, {0.5}}, []NodeID{Terminal, Terminal})

	assert.Equal(t, a, b, "weights on the same grid point share a node")
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d, "order is part of the key")
	assert.NotEqual(t, Terminal, a)
	assert.Equal(t, 3, nt.Len())
}

func TestNodeTable_InternCopiesBuffers(t *testing.T) {
	nt := NewNodeTable(1e-6)
	weights := []Weight{{1}, {2i}}
	succ := []NodeID{Terminal, Terminal}

	id := nt.Intern(0, weights, succ)
	weights[1][0] = 7
	succ[1] = 42

	n, err := nt.GetNode(id)
	require.NoError(t, err)
	assert.Equal(t, complex128(2i), n.Weights[1][0])
	assert.Equal(t, Terminal, n.Successors[1])
	assert.Equal(t, 2, n.Range())
}

func TestNodeTable_GetNodeErrors(t *testing.T) {
	nt := NewNodeTable(1e-6)

	_, err := nt.GetNode(Terminal)
	assert.ErrorIs(t, err, ErrInvalidNode)

	_, err = nt.GetNode(5)
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestNodeTable_Reset(t *testing.T) {
	nt := NewNodeTable(1e-6)
	id := nt.Intern(0, []Weight{{1}, {0}}, []NodeID{Terminal, Terminal})
	require.Equal(t, uint64(0), nt.Generation())

	assert.Equal(t, 1, nt.Reset())
	assert.Equal(t, 0, nt.Len())
	assert.Equal(t, uint64(1), nt.Generation())

	_, err := nt.GetNode(id)
	assert.ErrorIs(t, err, ErrInvalidNode, "stale IDs are gone")

	again := nt.Intern(0, []Weight{{1}, {0}}, []NodeID{Terminal, Terminal})
	assert.Equal(t, NodeID(1), again, "IDs restart after reset")
}

func TestNodeTable_ConcurrentIntern(t *testing.T) {
	nt := NewNodeTable(1e-6)

	const workers = 8
	ids := make([][]NodeID, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 50; k++ {
				ids[w] = append(ids[w], nt.Intern(k, []Weight{{1}, {complex(float64(k), 0)}}, []NodeID{Terminal, Terminal}))
			}
		}()
	}
	wg.Wait()

	for w := 1; w < workers; w++ {
		assert.Equal(t, ids[0], ids[w])
	}
	assert.Equal(t, 50, nt.Len())
}

func TestNewNodeTable_DefaultEPS(t *testing.T) {
	assert.Equal(t, DefaultEPS, NewNodeTable(0).EPS())
	assert.Equal(t, 1e-9, NewNodeTable(1e-9).EPS())
}
