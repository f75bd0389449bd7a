package render

import (
	"fmt"
	"strings"

	"github.com/patternloom/loom/internal/pattern"
)

// RenderVector produces an SVG document placing each glyph as a text
// element at its grid position. The same layout geometry drives raster and
// vector output, so the two stay pixel-compatible.
func (r *Renderer) RenderVector(p pattern.Pattern, opts Options) (Artifact, error) {
	opts, err := prepare(&p, opts)
	if err != nil {
		return Artifact{}, err
	}

	geo := computeGeometry(opts.Width, opts.Height, p.GridSize)
	placements := p.Placements()

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		opts.Width, opts.Height, opts.Width, opts.Height)
	b.WriteString(`  <rect width="100%" height="100%" fill="#ffffff"/>` + "\n")

	if opts.GridLines {
		writeGridLines(&b, geo)
	}

	fontSize := geo.cell * 3 / 4
	occupied := make(map[pattern.CellPos]bool, len(placements))
	for _, pl := range placements {
		writeGlyph(&b, geo, pl.Pos, pl.Glyph, fontSize, 1.0)
		occupied[pl.Pos] = true
	}

	if opts.Placeholder != "" {
		for row := 0; row < p.GridSize; row++ {
			for col := 0; col < p.GridSize; col++ {
				pos := pattern.CellPos{Row: row, Col: col}
				if !occupied[pos] {
					writeGlyph(&b, geo, pos, opts.Placeholder, fontSize, 0.25)
				}
			}
		}
	}

	if opts.HighlightCenter && len(placements) > 0 {
		x0, y0, _, _ := geo.cellRect(placements[0].Pos.Row, placements[0].Pos.Col)
		fmt.Fprintf(&b, `  <rect x="%d" y="%d" width="%d" height="%d" fill="none" stroke="#ffb300" stroke-width="2"/>`+"\n",
			x0, y0, geo.cell, geo.cell)
	}

	b.WriteString("</svg>\n")

	return Artifact{Data: []byte(b.String()), MIME: "image/svg+xml", Ext: "svg"}, nil
}

// writeGlyph emits one centered text element.
func writeGlyph(b *strings.Builder, geo geometry, pos pattern.CellPos, glyph string, fontSize int, opacity float64) {
	x0, y0, _, _ := geo.cellRect(pos.Row, pos.Col)
	cx := x0 + geo.cell/2
	cy := y0 + geo.cell/2
	fmt.Fprintf(b, `  <text x="%d" y="%d" font-size="%d" text-anchor="middle" dominant-baseline="central" opacity="%.2f">%s</text>`+"\n",
		cx, cy, fontSize, opacity, escapeXML(glyph))
}

// writeGridLines emits the cell boundary lines.
func writeGridLines(b *strings.Builder, geo geometry) {
	side := geo.cell * geo.grid
	for i := 0; i <= geo.grid; i++ {
		x := geo.originX + i*geo.cell
		fmt.Fprintf(b, `  <line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#d0d0d0"/>`+"\n",
			x, geo.originY, x, geo.originY+side)
		y := geo.originY + i*geo.cell
		fmt.Fprintf(b, `  <line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#d0d0d0"/>`+"\n",
			geo.originX, y, geo.originX+side, y)
	}
}

var xmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeXML(s string) string {
	return xmlReplacer.Replace(s)
}
