package pattern

// CellPos is a zero-based (row, column) grid coordinate.
type CellPos struct {
	Row int
	Col int
}

// Placement pairs one sequence element with the grid cell it occupies.
type Placement struct {
	Index int // index into the pattern's cell sequence
	Glyph string
	Pos   CellPos
}

// Placements computes the grid placement of the pattern's cell sequence
// according to its layout mode. Placement stops once the sequence is
// exhausted; unused grid cells are simply absent from the result.
//
// The returned slice is in sequence order, which for the concentric mode is
// also ring-walk order.
func (p *Pattern) Placements() []Placement {
	positions := GridPositions(p.Layout, p.GridSize, len(p.Cells))
	out := make([]Placement, len(positions))
	for i, pos := range positions {
		out[i] = Placement{Index: i, Glyph: p.Cells[i], Pos: pos}
	}
	return out
}

// GridPositions returns the first n cell positions for the given layout
// mode on a gridSize×gridSize grid, in placement order. Fewer than n
// positions are returned when the grid cannot hold them all.
func GridPositions(mode LayoutMode, gridSize, n int) []CellPos {
	if gridSize < MinGridSize || n <= 0 {
		return nil
	}
	if capacity := gridSize * gridSize; n > capacity {
		n = capacity
	}
	if mode == LayoutConcentric {
		return concentricPositions(gridSize, n)
	}
	return sequentialPositions(gridSize, n)
}

// sequentialPositions fills left-to-right, top-to-bottom.
func sequentialPositions(gridSize, n int) []CellPos {
	out := make([]CellPos, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, CellPos{Row: i / gridSize, Col: i % gridSize})
	}
	return out
}

// concentricPositions walks expanding square rings from the grid center.
//
// Ring L is traversed edge by edge: top edge left→right (both corners),
// right edge top→bottom (excluding the top-right corner already covered),
// bottom edge right→left (excluding the shared bottom-right corner), left
// edge bottom→top (excluding both corners). Positions that fall outside the
// grid are skipped, so rings clipped by the boundary still consume sequence
// elements in walk order.
func concentricPositions(gridSize, n int) []CellPos {
	center := gridSize / 2
	out := make([]CellPos, 0, n)

	add := func(row, col int) {
		if len(out) >= n {
			return
		}
		if row < 0 || row >= gridSize || col < 0 || col >= gridSize {
			return
		}
		out = append(out, CellPos{Row: row, Col: col})
	}

	add(center, center)

	// gridSize rings are enough to cover any grid even with an off-center
	// start (even grid sizes).
	for l := 1; l <= gridSize && len(out) < n; l++ {
		top, bottom := center-l, center+l
		left, right := center-l, center+l

		for col := left; col <= right; col++ {
			add(top, col)
		}
		for row := top + 1; row <= bottom; row++ {
			add(row, right)
		}
		for col := right - 1; col >= left; col-- {
			add(bottom, col)
		}
		for row := bottom - 1; row >= top+1; row-- {
			add(row, left)
		}
	}
	return out
}
