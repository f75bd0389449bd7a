// Package render turns a pattern into image artifacts: a deterministic
// grid layout shared by all output formats, a raster (PNG) renderer over an
// exclusively-held surface, a vector (SVG) renderer, and a plain-text
// renderer for previews and tests.
package render

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/patternloom/loom/internal/pattern"
)

// Format identifies an output format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatSVG  Format = "svg"
	FormatText Format = "text"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatPNG, FormatSVG, FormatText:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown format %q (want png, svg or text)", s)
	}
}

// MaxDimension is the hard ceiling on custom output dimensions.
const MaxDimension = 4096

// Default output dimensions and quality.
const (
	DefaultDimension = 1024
	DefaultQuality   = 90
)

// Options control one render. The zero value renders 1024x1024 at
// quality 90 with no overlays.
type Options struct {
	Width   int `validate:"min=16,max=4096"`
	Height  int `validate:"min=16,max=4096"`
	Quality int `validate:"min=0,max=100"`

	// GridLines draws the cell grid as a cosmetic overlay.
	GridLines bool
	// HighlightCenter marks the origin cell (the first placed element).
	HighlightCenter bool
	// Placeholder, when non-empty, fills unused grid cells instead of
	// leaving them blank.
	Placeholder string
}

var validate = validator.New()

// WithDefaults fills unset dimensions and quality.
func (o Options) WithDefaults() Options {
	if o.Width == 0 {
		o.Width = DefaultDimension
	}
	if o.Height == 0 {
		o.Height = DefaultDimension
	}
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
	return o
}

// Validate rejects out-of-range dimensions and quality percentages before
// any rendering work starts.
func (o Options) Validate() error {
	o = o.WithDefaults()
	if err := validate.Struct(o); err != nil {
		return &InvalidOptionsError{
			Message: fmt.Sprintf("dimensions %dx%d (max %d) / quality %d (0-100)", o.Width, o.Height, MaxDimension, o.Quality),
			Err:     err,
		}
	}
	return nil
}

// Artifact is one rendered output.
type Artifact struct {
	Data []byte
	MIME string
	Ext  string
}

// Size returns the artifact's byte size.
func (a *Artifact) Size() int {
	return len(a.Data)
}

// Renderer renders patterns into artifacts. Raster renders draw on a
// pooled Surface held exclusively for the render's duration; the pool size
// caps memory pressure from simultaneous raster buffers.
type Renderer struct {
	surfaces *surfacePool
}

// NewRenderer creates a renderer with the default surface pool (3), which
// matches the export coordinator's pattern concurrency bound.
func NewRenderer() *Renderer {
	return NewRendererWithSurfaces(3)
}

// NewRendererWithSurfaces creates a renderer with an explicit surface cap.
func NewRendererWithSurfaces(n int) *Renderer {
	return &Renderer{surfaces: newSurfacePool(n)}
}

// Render dispatches to the format-specific renderer.
func (r *Renderer) Render(p pattern.Pattern, format Format, opts Options) (Artifact, error) {
	switch format {
	case FormatPNG:
		return r.RenderRaster(p, opts)
	case FormatSVG:
		return r.RenderVector(p, opts)
	case FormatText:
		return r.RenderText(p, opts)
	default:
		return Artifact{}, &Error{PatternID: p.ID, Format: format, Message: "unsupported format"}
	}
}

// prepare runs the shared per-render validation.
func prepare(p *pattern.Pattern, opts Options) (Options, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	if err := p.Validate(); err != nil {
		return opts, &Error{PatternID: p.ID, Message: err.Error(), Err: err}
	}
	return opts, nil
}
