package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	children []Handle
}

func (n *node) GCChildren() []Handle { return n.children }

func TestAllocAndGet(t *testing.T) {
	h := New(8, 0.75)
	ref, err := h.Alloc(&node{})
	require.NoError(t, err)
	assert.NotEqual(t, Handle(0), ref)
	assert.NotNil(t, h.Get(ref))
}

func TestNullHandleNeverLive(t *testing.T) {
	h := New(8, 0.75)
	assert.Nil(t, h.Get(0))
}

func TestCollectReclaimsUnreachable(t *testing.T) {
	h := New(8, 0.75)
	root, _ := h.Alloc(&node{})
	leaf, _ := h.Alloc(&node{})
	h.cells[root].obj = &node{children: []Handle{leaf}}
	h.AddRoot(root)

	orphan, _ := h.Alloc(&node{})

	stats := h.Collect()
	assert.NotNil(t, h.Get(root))
	assert.NotNil(t, h.Get(leaf))
	assert.Nil(t, h.Get(orphan))
	assert.Equal(t, 1, stats.Reclaimed)
	assert.Equal(t, 2, stats.Live)
}

func TestAllocFailsWhenExhausted(t *testing.T) {
	h := New(2, 1.0)
	first, err := h.Alloc(&node{})
	require.NoError(t, err)
	h.AddRoot(first)
	second, err := h.Alloc(&node{})
	require.NoError(t, err)
	h.AddRoot(second)
	_, err = h.Alloc(&node{})
	assert.Error(t, err)
}

func TestFreedSlotIsReused(t *testing.T) {
	h := New(4, 1.0)
	a, _ := h.Alloc(&node{})
	h.Collect() // a unreachable (no roots): reclaimed
	assert.Nil(t, h.Get(a))
	b, err := h.Alloc(&node{})
	require.NoError(t, err)
	assert.Equal(t, a, b, "free slot should be reused before growing")
}
