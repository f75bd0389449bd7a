package render

// geometry is the pixel placement of a grid within the output dimensions:
// an inset (padding) region, a uniform cell size, and the grid centered in
// the remaining space.
type geometry struct {
	cell    int // cell edge length in pixels
	originX int // left edge of the grid
	originY int // top edge of the grid
	grid    int // grid size in cells
}

// insetDivisor: the padding region is 1/16 of the smaller output edge.
const insetDivisor = 16

// computeGeometry lays out a gridSize x gridSize grid centered within
// width x height after the inset is applied.
func computeGeometry(width, height, gridSize int) geometry {
	min := width
	if height < min {
		min = height
	}
	inset := min / insetDivisor

	usableW := width - 2*inset
	usableH := height - 2*inset
	usable := usableW
	if usableH < usable {
		usable = usableH
	}

	cell := usable / gridSize
	if cell < 1 {
		cell = 1
	}
	side := cell * gridSize

	return geometry{
		cell:    cell,
		originX: (width - side) / 2,
		originY: (height - side) / 2,
		grid:    gridSize,
	}
}

// cellRect returns the pixel bounds of a grid cell as (x0, y0, x1, y1).
func (g geometry) cellRect(row, col int) (int, int, int, int) {
	x0 := g.originX + col*g.cell
	y0 := g.originY + row*g.cell
	return x0, y0, x0 + g.cell, y0 + g.cell
}
