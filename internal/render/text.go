package render

import (
	"strings"

	"github.com/patternloom/loom/internal/pattern"
)

// emptyCell is rendered for unused grid positions when no placeholder is
// configured. A wide space keeps columns aligned with emoji glyphs.
const emptyCell = "　"

// RenderText produces a plain-text glyph grid, one row per line. Used by
// the CLI preview and as the cheapest export format.
func (r *Renderer) RenderText(p pattern.Pattern, opts Options) (Artifact, error) {
	opts, err := prepare(&p, opts)
	if err != nil {
		return Artifact{}, err
	}

	fill := opts.Placeholder
	if fill == "" {
		fill = emptyCell
	}

	grid := make([][]string, p.GridSize)
	for row := range grid {
		grid[row] = make([]string, p.GridSize)
		for col := range grid[row] {
			grid[row][col] = fill
		}
	}
	for _, pl := range p.Placements() {
		grid[pl.Pos.Row][pl.Pos.Col] = pl.Glyph
	}

	var b strings.Builder
	for _, row := range grid {
		b.WriteString(strings.Join(row, ""))
		b.WriteByte('\n')
	}

	return Artifact{Data: []byte(b.String()), MIME: "text/plain; charset=utf-8", Ext: "txt"}, nil
}
