package render

import (
	"bytes"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/patternloom/loom/internal/pattern"
)

// RenderRaster rasterizes the pattern into a PNG. Each glyph is drawn as a
// tile whose color is derived deterministically from the glyph itself, so
// identical input always produces identical output.
//
// The render draws on a pooled surface held exclusively until the encoded
// bytes are produced.
func (r *Renderer) RenderRaster(p pattern.Pattern, opts Options) (Artifact, error) {
	opts, err := prepare(&p, opts)
	if err != nil {
		return Artifact{}, err
	}

	surf := r.surfaces.acquire()
	defer r.surfaces.release(surf)

	img := surf.ensure(opts.Width, opts.Height)
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	geo := computeGeometry(opts.Width, opts.Height, p.GridSize)
	placements := p.Placements()

	occupied := make(map[pattern.CellPos]bool, len(placements))
	for _, pl := range placements {
		fillCell(img, geo, pl.Pos, glyphColor(pl.Glyph))
		occupied[pl.Pos] = true
	}

	if opts.Placeholder != "" {
		ph := glyphColor(opts.Placeholder)
		ph.A = 0x40
		for row := 0; row < p.GridSize; row++ {
			for col := 0; col < p.GridSize; col++ {
				pos := pattern.CellPos{Row: row, Col: col}
				if !occupied[pos] {
					fillCell(img, geo, pos, ph)
				}
			}
		}
	}

	// Cosmetic passes run after glyph placement.
	if opts.GridLines {
		drawGridLines(img, geo)
	}
	if opts.HighlightCenter && len(placements) > 0 {
		highlightCell(img, geo, placements[0].Pos)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: compressionFor(opts.Quality)}
	if err := enc.Encode(&buf, img); err != nil {
		return Artifact{}, &Error{PatternID: p.ID, Format: FormatPNG, Message: "encode png", Err: err}
	}

	return Artifact{Data: buf.Bytes(), MIME: "image/png", Ext: "png"}, nil
}

// compressionFor maps the quality percentage onto PNG compression levels.
// Higher quality favors smaller, slower encodes.
func compressionFor(quality int) png.CompressionLevel {
	switch {
	case quality >= 75:
		return png.BestCompression
	case quality >= 40:
		return png.DefaultCompression
	default:
		return png.BestSpeed
	}
}

// glyphColor derives a stable, saturated tile color from a glyph.
func glyphColor(glyph string) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(glyph))
	hue := float64(h.Sum32()%360) / 360
	return hsvToRGB(hue, 0.65, 0.85)
}

// hsvToRGB converts hue/saturation/value in [0,1] to an opaque RGBA.
func hsvToRGB(h, s, v float64) color.RGBA {
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 0xff}
}

// fillCell draws one tile, inset slightly so neighboring tiles read as
// separate cells.
func fillCell(img *image.RGBA, geo geometry, pos pattern.CellPos, c color.RGBA) {
	x0, y0, x1, y1 := geo.cellRect(pos.Row, pos.Col)
	inset := geo.cell / 10
	rect := image.Rect(x0+inset, y0+inset, x1-inset, y1-inset)
	draw.Draw(img, rect, image.NewUniform(c), image.Point{}, draw.Over)
}

var gridLineColor = color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}

// drawGridLines overlays the cell boundaries.
func drawGridLines(img *image.RGBA, geo geometry) {
	side := geo.cell * geo.grid
	for i := 0; i <= geo.grid; i++ {
		x := geo.originX + i*geo.cell
		for y := geo.originY; y <= geo.originY+side; y++ {
			img.SetRGBA(x, y, gridLineColor)
		}
		y := geo.originY + i*geo.cell
		for x := geo.originX; x <= geo.originX+side; x++ {
			img.SetRGBA(x, y, gridLineColor)
		}
	}
}

var highlightColor = color.RGBA{R: 0xff, G: 0xb3, B: 0x00, A: 0xff}

// highlightCell draws a ring around the origin cell.
func highlightCell(img *image.RGBA, geo geometry, pos pattern.CellPos) {
	x0, y0, x1, y1 := geo.cellRect(pos.Row, pos.Col)
	const thickness = 2
	for t := 0; t < thickness; t++ {
		for x := x0 + t; x < x1-t; x++ {
			img.SetRGBA(x, y0+t, highlightColor)
			img.SetRGBA(x, y1-1-t, highlightColor)
		}
		for y := y0 + t; y < y1-t; y++ {
			img.SetRGBA(x0+t, y, highlightColor)
			img.SetRGBA(x1-1-t, y, highlightColor)
		}
	}
}
