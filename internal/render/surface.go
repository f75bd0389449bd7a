package render

import (
	"image"
	"sync/atomic"
)

// Surface is an owned raster buffer. A surface is held exclusively for the
// duration of one render and must never be touched by two renders
// concurrently; the pool enforces this by handing each surface to at most
// one caller at a time.
type Surface struct {
	img  *image.RGBA
	held atomic.Bool
}

// ensure resizes the backing image if the requested dimensions changed.
// Reuses the existing allocation when possible.
func (s *Surface) ensure(width, height int) *image.RGBA {
	if s.img == nil || s.img.Bounds().Dx() != width || s.img.Bounds().Dy() != height {
		s.img = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	return s.img
}

// surfacePool hands out surfaces with exclusive ownership. The pool size
// caps how many raster buffers can exist at once.
type surfacePool struct {
	surfaces chan *Surface
}

func newSurfacePool(n int) *surfacePool {
	if n < 1 {
		n = 1
	}
	p := &surfacePool{surfaces: make(chan *Surface, n)}
	for i := 0; i < n; i++ {
		p.surfaces <- &Surface{}
	}
	return p
}

// acquire blocks until a surface is free and marks it held.
func (p *surfacePool) acquire() *Surface {
	s := <-p.surfaces
	if !s.held.CompareAndSwap(false, true) {
		// A held surface can never be in the pool.
		panic("render: surface handed out while held")
	}
	return s
}

// release returns the surface to the pool.
func (p *surfacePool) release(s *Surface) {
	if !s.held.CompareAndSwap(true, false) {
		panic("render: releasing a surface that is not held")
	}
	p.surfaces <- s
}
