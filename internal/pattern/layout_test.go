package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridPositions_Sequential(t *testing.T) {
	got := GridPositions(LayoutSequential, 3, 5)
	want := []CellPos{
		{0, 0}, {0, 1}, {0, 2},
		{1, 0}, {1, 1},
	}
	assert.Equal(t, want, got)
}

func TestGridPositions_Sequential_DropsBeyondCapacity(t *testing.T) {
	got := GridPositions(LayoutSequential, 2, 10)
	require.Len(t, got, 4, "2x2 grid holds 4 cells")
	assert.Equal(t, CellPos{1, 1}, got[3])
}

func TestGridPositions_Concentric_CenterFirst(t *testing.T) {
	got := GridPositions(LayoutConcentric, 5, 1)
	require.Len(t, got, 1)
	assert.Equal(t, CellPos{2, 2}, got[0], "element 0 goes to the exact grid center")
}

func TestGridPositions_Concentric_RingOneOrder(t *testing.T) {
	// 5x5 grid, fully populated: ring 1 visits the 8 surrounding cells in
	// top-edge, right-edge, bottom-edge, left-edge walk order.
	got := GridPositions(LayoutConcentric, 5, 9)
	want := []CellPos{
		{2, 2},
		{1, 1}, {1, 2}, {1, 3},
		{2, 3},
		{3, 3}, {3, 2}, {3, 1},
		{2, 1},
	}
	assert.Equal(t, want, got)
}

func TestGridPositions_Concentric_FullGrid(t *testing.T) {
	got := GridPositions(LayoutConcentric, 5, 25)
	require.Len(t, got, 25)

	// Every grid cell is visited exactly once.
	seen := make(map[CellPos]bool, 25)
	for _, pos := range got {
		assert.False(t, seen[pos], "cell %v placed twice", pos)
		seen[pos] = true
	}
}

func TestGridPositions_Concentric_ClippedRings(t *testing.T) {
	// A 2x2 grid has an off-center start (center = 1,1); clipped ring
	// positions are skipped but the walk still covers every cell.
	got := GridPositions(LayoutConcentric, 2, 4)
	require.Len(t, got, 4)
	assert.Equal(t, CellPos{1, 1}, got[0])

	seen := make(map[CellPos]bool, 4)
	for _, pos := range got {
		seen[pos] = true
	}
	assert.Len(t, seen, 4)
}

func TestGridPositions_InvalidInput(t *testing.T) {
	assert.Nil(t, GridPositions(LayoutSequential, 0, 5))
	assert.Nil(t, GridPositions(LayoutConcentric, 5, 0))
}

func TestLayout_SequenceExhaustion(t *testing.T) {
	p := Pattern{
		ID:       "p1",
		Cells:    []string{"🌸", "🌿", "🌼"},
		GridSize: 5,
		Layout:   LayoutConcentric,
	}
	placed := p.Placements()
	require.Len(t, placed, 3, "placement stops when the sequence is exhausted")
	assert.Equal(t, "🌸", placed[0].Glyph)
	assert.Equal(t, CellPos{2, 2}, placed[0].Pos)
	assert.Equal(t, CellPos{1, 1}, placed[1].Pos)
	assert.Equal(t, CellPos{1, 2}, placed[2].Pos)
}
