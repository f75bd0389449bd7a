package render

import (
	"bytes"
	"image/png"
	"sync"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternloom/loom/internal/pattern"
)

func testPattern(cells ...string) pattern.Pattern {
	return pattern.Pattern{
		ID:       "pat-1",
		OwnerID:  "owner-1",
		Title:    "fixture",
		Cells:    cells,
		GridSize: 3,
		Layout:   pattern.LayoutSequential,
		Version:  1,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "png", want: FormatPNG},
		{in: "svg", want: FormatSVG},
		{in: "text", want: FormatText},
		{in: "jpeg", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.WithDefaults()
	assert.Equal(t, DefaultDimension, opts.Width)
	assert.Equal(t, DefaultDimension, opts.Height)
	assert.Equal(t, DefaultQuality, opts.Quality)

	// Explicit values survive.
	opts = Options{Width: 256, Height: 128, Quality: 10}.WithDefaults()
	assert.Equal(t, 256, opts.Width)
	assert.Equal(t, 128, opts.Height)
	assert.Equal(t, 10, opts.Quality)
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "defaults ok", opts: Options{}},
		{name: "max dimension ok", opts: Options{Width: MaxDimension, Height: MaxDimension}},
		{name: "oversize width", opts: Options{Width: 5000, Height: 5000}, wantErr: true},
		{name: "undersize height", opts: Options{Width: 64, Height: 4}, wantErr: true},
		{name: "quality over 100", opts: Options{Quality: 150}, wantErr: true},
		{name: "quality negative", opts: Options{Quality: -1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInvalidOptions(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

// Oversized dimensions are rejected before any surface is taken from the
// pool. With a pool of one, the surface must still be available afterwards.
func TestRenderRejectsOversizeBeforeDrawing(t *testing.T) {
	r := NewRendererWithSurfaces(1)
	p := testPattern("🌻")

	_, err := r.Render(p, FormatPNG, Options{Width: 5000, Height: 5000})
	require.Error(t, err)
	assert.True(t, IsInvalidOptions(err))

	select {
	case s := <-r.surfaces.surfaces:
		r.surfaces.surfaces <- s
	default:
		t.Fatal("surface was consumed by a rejected render")
	}
}

func TestRenderRejectsInvalidPattern(t *testing.T) {
	r := NewRenderer()
	p := testPattern("🌻")
	p.GridSize = 0

	_, err := r.Render(p, FormatPNG, Options{})
	require.Error(t, err)
	assert.True(t, IsRenderError(err))
	assert.False(t, IsInvalidOptions(err))
}

func TestRenderUnknownFormat(t *testing.T) {
	r := NewRenderer()
	_, err := r.Render(testPattern("🌻"), Format("gif"), Options{})
	require.Error(t, err)
	assert.True(t, IsRenderError(err))
}

func TestRenderRasterProducesPNG(t *testing.T) {
	r := NewRenderer()
	p := testPattern("🌻", "🌙", "⭐")

	art, err := r.Render(p, FormatPNG, Options{Width: 128, Height: 128, GridLines: true, HighlightCenter: true})
	require.NoError(t, err)
	assert.Equal(t, "image/png", art.MIME)
	assert.Equal(t, "png", art.Ext)
	assert.Greater(t, art.Size(), 0)

	img, err := png.Decode(bytes.NewReader(art.Data))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
	assert.Equal(t, 128, img.Bounds().Dy())
}

func TestRenderRasterDeterministic(t *testing.T) {
	r := NewRenderer()
	p := testPattern("🌻", "🌙")
	opts := Options{Width: 96, Height: 96, Quality: 50}

	first, err := r.RenderRaster(p, opts)
	require.NoError(t, err)
	second, err := r.RenderRaster(p, opts)
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
}

// Concurrent raster renders share the surface pool without corrupting each
// other's output. Pool smaller than the worker count forces contention.
func TestRenderRasterConcurrent(t *testing.T) {
	r := NewRendererWithSurfaces(2)
	p := testPattern("🌻", "🌙", "⭐")
	opts := Options{Width: 64, Height: 64}

	want, err := r.RenderRaster(p, opts)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			art, err := r.RenderRaster(p, opts)
			assert.NoError(t, err)
			results[i] = art.Data
		}(i)
	}
	wg.Wait()

	for _, data := range results {
		assert.Equal(t, want.Data, data)
	}
}

func TestRenderVectorGolden(t *testing.T) {
	r := NewRenderer()
	p := testPattern("A", "B")

	art, err := r.RenderVector(p, Options{Width: 160, Height: 160})
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", art.MIME)
	assert.Equal(t, "svg", art.Ext)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "svg_sequential", art.Data)
}

func TestRenderVectorEscapesGlyphs(t *testing.T) {
	r := NewRenderer()
	p := testPattern("<&>")

	art, err := r.RenderVector(p, Options{})
	require.NoError(t, err)
	assert.Contains(t, string(art.Data), "&lt;&amp;&gt;")
	assert.NotContains(t, string(art.Data), ">&<")
}

func TestRenderTextGolden(t *testing.T) {
	r := NewRenderer()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	seq := testPattern("A", "B", "C", "D", "E")
	art, err := r.RenderText(seq, Options{Placeholder: "."})
	require.NoError(t, err)
	assert.Equal(t, "txt", art.Ext)
	g.Assert(t, "text_sequential", art.Data)

	ring := testPattern("A", "B", "C", "D", "E")
	ring.Layout = pattern.LayoutConcentric
	art, err = r.RenderText(ring, Options{Placeholder: "."})
	require.NoError(t, err)
	g.Assert(t, "text_concentric", art.Data)
}

func TestCompressionFor(t *testing.T) {
	assert.Equal(t, png.BestCompression, compressionFor(90))
	assert.Equal(t, png.BestCompression, compressionFor(75))
	assert.Equal(t, png.DefaultCompression, compressionFor(50))
	assert.Equal(t, png.BestSpeed, compressionFor(10))
}

func TestComputeGeometryCentersGrid(t *testing.T) {
	geo := computeGeometry(160, 160, 3)
	assert.Equal(t, 46, geo.cell)
	assert.Equal(t, 11, geo.originX)
	assert.Equal(t, 11, geo.originY)

	// Non-square output still yields square cells centered on both axes.
	geo = computeGeometry(200, 100, 4)
	side := geo.cell * 4
	assert.Equal(t, (200-side)/2, geo.originX)
	assert.Equal(t, (100-side)/2, geo.originY)
}
