package export

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patternloom/loom/internal/pattern"
	"github.com/patternloom/loom/internal/render"
)

// Renderer is the slice of the image renderer the coordinator needs.
// *render.Renderer satisfies it; tests substitute scriptable fakes.
type Renderer interface {
	Render(p pattern.Pattern, format render.Format, opts render.Options) (render.Artifact, error)
}

// PatternConcurrency caps how many patterns' render work runs at once. It
// matches the renderer's surface pool size: more concurrent patterns would
// only queue on surface acquisition while holding memory.
const PatternConcurrency = 3

// DefaultFormatPause is the yield between sequential format renders within
// one pattern, keeping long batches from monopolizing the process.
const DefaultFormatPause = 10 * time.Millisecond

// Coordinator runs export batches. One batch at a time per coordinator;
// a second ProcessBatch while one is running fails with ErrBatchInProgress.
type Coordinator struct {
	renderer Renderer
	archiver *Builder
	pause    time.Duration

	running   atomic.Bool
	cancelled atomic.Bool
}

// CoordinatorOption customizes a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithArchiveBuilder substitutes the archive builder, mainly to pin its
// clock in tests.
func WithArchiveBuilder(b *Builder) CoordinatorOption {
	return func(c *Coordinator) { c.archiver = b }
}

// WithFormatPause overrides the inter-format yield.
func WithFormatPause(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.pause = d }
}

// NewCoordinator creates a coordinator over the given renderer.
func NewCoordinator(r Renderer, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		renderer: r,
		archiver: NewBuilder(),
		pause:    DefaultFormatPause,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cancel flags the running batch as errored. No new pattern chunk is
// scheduled after the flag is set; renders already dispatched in the
// current chunk finish normally.
func (c *Coordinator) Cancel() {
	c.cancelled.Store(true)
}

// Running reports whether a batch is currently in flight.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// batchRun is the mutable state of one ProcessBatch invocation. finish is
// the only writer after task dispatch; it serializes progress callbacks.
type batchRun struct {
	mu        sync.Mutex
	results   []Result
	done      []bool
	completed int
	errs      []string
	total     int
	report    ProgressFunc
}

func (b *batchRun) finish(idx int, res Result) {
	b.mu.Lock()
	b.results[idx] = res
	b.done[idx] = true
	b.completed++
	if !res.OK {
		b.errs = append(b.errs, fmt.Sprintf("%s (%s): %s", res.PatternID, res.Format, res.ErrMessage))
	}
	if b.report != nil {
		// Called under mu so callbacks arrive serialized, in completion
		// order.
		b.report(Progress{
			Total:     b.total,
			Completed: b.completed,
			Current:   fmt.Sprintf("%s (%s)", res.PatternName, res.Format),
			Status:    StatusRunning,
			Errors:    append([]string(nil), b.errs...),
		})
	}
	b.mu.Unlock()
}

// ProcessBatch expands patterns × opts.Formats into tasks and runs them.
// Results are ordered by input pattern order then requested format order.
// A render failure fails only its own task; archive assembly failure fails
// the batch. onProgress may be nil.
func (c *Coordinator) ProcessBatch(ctx context.Context, patterns []pattern.Pattern, opts BatchOptions, onProgress ProgressFunc) (BatchResult, error) {
	if !c.running.CompareAndSwap(false, true) {
		return BatchResult{Status: StatusError}, ErrBatchInProgress
	}
	defer c.running.Store(false)
	c.cancelled.Store(false)

	if len(opts.Formats) == 0 {
		return BatchResult{Status: StatusError}, &SetupError{Message: "no formats requested"}
	}
	for _, f := range opts.Formats {
		if _, err := render.ParseFormat(string(f)); err != nil {
			return BatchResult{Status: StatusError}, &SetupError{Message: err.Error(), Err: err}
		}
	}
	opts.Render = opts.Render.WithDefaults()
	if err := opts.Render.Validate(); err != nil {
		return BatchResult{Status: StatusError}, &SetupError{Message: err.Error(), Err: err}
	}

	total := len(patterns) * len(opts.Formats)
	run := &batchRun{
		results: make([]Result, total),
		done:    make([]bool, total),
		total:   total,
		report:  onProgress,
	}
	for pi, p := range patterns {
		for fi, f := range opts.Formats {
			run.results[pi*len(opts.Formats)+fi] = Result{
				PatternID:   p.ID,
				PatternName: p.Title,
				Format:      f,
			}
		}
	}

	for start := 0; start < len(patterns); start += PatternConcurrency {
		if c.cancelled.Load() || ctx.Err() != nil {
			break
		}
		end := start + PatternConcurrency
		if end > len(patterns) {
			end = len(patterns)
		}
		var wg sync.WaitGroup
		for pi := start; pi < end; pi++ {
			wg.Add(1)
			go func(pi int) {
				defer wg.Done()
				c.renderPattern(run, patterns[pi], pi, opts)
			}(pi)
		}
		wg.Wait()
	}

	cancelled := c.cancelled.Load() || ctx.Err() != nil

	run.mu.Lock()
	for i := range run.results {
		if !run.done[i] {
			run.results[i].ErrMessage = "batch cancelled before this task ran"
			run.errs = append(run.errs, fmt.Sprintf("%s (%s): %s",
				run.results[i].PatternID, run.results[i].Format, run.results[i].ErrMessage))
		}
	}
	result := BatchResult{
		Results: run.results,
		Errors:  append([]string(nil), run.errs...),
	}
	run.mu.Unlock()

	if cancelled {
		result.Status = StatusError
		c.reportFinal(onProgress, run, result.Status)
		return result, nil
	}

	if opts.CreateZip {
		archive, err := c.archiver.Build(result.Results, patterns, ManifestOptions{
			Include: opts.IncludeManifest,
			Formats: opts.Formats,
			Render:  opts.Render,
		})
		if err != nil {
			result.Status = StatusError
			c.reportFinal(onProgress, run, result.Status)
			return result, err
		}
		result.Archive = archive
	}

	result.Status = StatusCompleted
	c.reportFinal(onProgress, run, result.Status)
	return result, nil
}

// renderPattern renders all requested formats for one pattern, in request
// order, sequentially. Each render works on its own snapshot so later edits
// to the caller's pattern cannot leak into in-flight work.
func (c *Coordinator) renderPattern(run *batchRun, p pattern.Pattern, pi int, opts BatchOptions) {
	snap := p.Clone()
	base := SanitizeName(snap.Title)
	if base == "" {
		base = SanitizeName(snap.ID)
	}

	for fi, f := range opts.Formats {
		idx := pi*len(opts.Formats) + fi
		res := Result{
			PatternID:   snap.ID,
			PatternName: snap.Title,
			Format:      f,
		}

		art, err := c.renderer.Render(snap, f, opts.Render)
		if err != nil {
			res.ErrMessage = err.Error()
		} else {
			res.OK = true
			res.Artifact = art
			res.Filename = fmt.Sprintf("%s.%s", base, art.Ext)
			res.Size = art.Size()
		}
		run.finish(idx, res)

		if fi < len(opts.Formats)-1 && c.pause > 0 {
			time.Sleep(c.pause)
		}
	}
}

func (c *Coordinator) reportFinal(onProgress ProgressFunc, run *batchRun, status Status) {
	if onProgress == nil {
		return
	}
	run.mu.Lock()
	prog := Progress{
		Total:     run.total,
		Completed: run.completed,
		Status:    status,
		Errors:    append([]string(nil), run.errs...),
	}
	run.mu.Unlock()
	onProgress(prog)
}
