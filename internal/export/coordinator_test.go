package export

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternloom/loom/internal/pattern"
	"github.com/patternloom/loom/internal/render"
)

// fakeRenderer is a scriptable Renderer that tracks concurrency.
type fakeRenderer struct {
	calls    atomic.Int32
	inflight atomic.Int32
	maxIn    atomic.Int32

	delay time.Duration
	block chan struct{} // renders wait for close when non-nil
	fail  func(p pattern.Pattern, f render.Format) error
}

func (r *fakeRenderer) Render(p pattern.Pattern, f render.Format, opts render.Options) (render.Artifact, error) {
	in := r.inflight.Add(1)
	defer r.inflight.Add(-1)
	for {
		old := r.maxIn.Load()
		if in <= old || r.maxIn.CompareAndSwap(old, in) {
			break
		}
	}
	r.calls.Add(1)

	if r.block != nil {
		<-r.block
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.fail != nil {
		if err := r.fail(p, f); err != nil {
			return render.Artifact{}, err
		}
	}

	ext := map[render.Format]string{
		render.FormatPNG:  "png",
		render.FormatSVG:  "svg",
		render.FormatText: "txt",
	}[f]
	return render.Artifact{
		Data: []byte(fmt.Sprintf("%s:%s", p.ID, f)),
		MIME: "application/octet-stream",
		Ext:  ext,
	}, nil
}

func exportPattern(id, title string) pattern.Pattern {
	return pattern.Pattern{
		ID:       id,
		OwnerID:  "owner-1",
		Title:    title,
		Cells:    []string{"🌻", "🌙"},
		GridSize: 3,
		Layout:   pattern.LayoutSequential,
		Version:  1,
	}
}

func TestProcessBatchExpandsTasks(t *testing.T) {
	fr := &fakeRenderer{}
	c := NewCoordinator(fr, WithFormatPause(0))

	patterns := []pattern.Pattern{
		exportPattern("pat-1", "Sunset Garden"),
		exportPattern("pat-2", "Ocean Waves"),
	}
	opts := BatchOptions{Formats: []render.Format{render.FormatText, render.FormatPNG}}

	result, err := c.ProcessBatch(context.Background(), patterns, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	require.Len(t, result.Results, 4)
	assert.Equal(t, 4, result.Succeeded())

	// Input pattern order, then requested format order.
	want := []struct {
		id     string
		format render.Format
		file   string
	}{
		{"pat-1", render.FormatText, "Sunset Garden.txt"},
		{"pat-1", render.FormatPNG, "Sunset Garden.png"},
		{"pat-2", render.FormatText, "Ocean Waves.txt"},
		{"pat-2", render.FormatPNG, "Ocean Waves.png"},
	}
	for i, w := range want {
		assert.Equal(t, w.id, result.Results[i].PatternID)
		assert.Equal(t, w.format, result.Results[i].Format)
		assert.Equal(t, w.file, result.Results[i].Filename)
		assert.True(t, result.Results[i].OK)
	}
}

func TestProcessBatchConcurrencyCap(t *testing.T) {
	fr := &fakeRenderer{delay: 20 * time.Millisecond}
	c := NewCoordinator(fr, WithFormatPause(0))

	patterns := make([]pattern.Pattern, 7)
	for i := range patterns {
		patterns[i] = exportPattern(fmt.Sprintf("pat-%d", i+1), fmt.Sprintf("Pattern %d", i+1))
	}
	opts := BatchOptions{Formats: []render.Format{render.FormatText}}

	result, err := c.ProcessBatch(context.Background(), patterns, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, result.Succeeded())
	assert.LessOrEqual(t, fr.maxIn.Load(), int32(PatternConcurrency))
	assert.Greater(t, fr.maxIn.Load(), int32(1))
}

func TestProcessBatchFailureIsolation(t *testing.T) {
	fr := &fakeRenderer{
		fail: func(p pattern.Pattern, f render.Format) error {
			if p.ID == "pat-2" && f == render.FormatPNG {
				return &render.Error{PatternID: p.ID, Format: f, Message: "surface lost"}
			}
			return nil
		},
	}
	c := NewCoordinator(fr, WithFormatPause(0))

	patterns := []pattern.Pattern{
		exportPattern("pat-1", "One"),
		exportPattern("pat-2", "Two"),
		exportPattern("pat-3", "Three"),
	}
	opts := BatchOptions{Formats: []render.Format{render.FormatText, render.FormatPNG}}

	result, err := c.ProcessBatch(context.Background(), patterns, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	require.Len(t, result.Results, 6)
	assert.Equal(t, 5, result.Succeeded())
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "pat-2")
	assert.Contains(t, result.Errors[0], "surface lost")

	failed := result.Results[3] // pat-2, png
	assert.Equal(t, "pat-2", failed.PatternID)
	assert.Equal(t, render.FormatPNG, failed.Format)
	assert.False(t, failed.OK)
	assert.Empty(t, failed.Filename)
}

func TestProcessBatchSingleFlight(t *testing.T) {
	fr := &fakeRenderer{block: make(chan struct{})}
	c := NewCoordinator(fr, WithFormatPause(0))

	patterns := []pattern.Pattern{exportPattern("pat-1", "One")}
	opts := BatchOptions{Formats: []render.Format{render.FormatText}}

	done := make(chan BatchResult, 1)
	go func() {
		result, err := c.ProcessBatch(context.Background(), patterns, opts, nil)
		assert.NoError(t, err)
		done <- result
	}()

	require.Eventually(t, c.Running, time.Second, time.Millisecond)

	_, err := c.ProcessBatch(context.Background(), patterns, opts, nil)
	require.ErrorIs(t, err, ErrBatchInProgress)

	close(fr.block)
	result := <-done
	assert.Equal(t, 1, result.Succeeded())
}

func TestProcessBatchProgress(t *testing.T) {
	fr := &fakeRenderer{}
	c := NewCoordinator(fr, WithFormatPause(0))

	patterns := []pattern.Pattern{
		exportPattern("pat-1", "One"),
		exportPattern("pat-2", "Two"),
	}
	opts := BatchOptions{Formats: []render.Format{render.FormatText, render.FormatPNG}}

	var mu sync.Mutex
	var updates []Progress
	_, err := c.ProcessBatch(context.Background(), patterns, opts, func(p Progress) {
		mu.Lock()
		updates = append(updates, p)
		mu.Unlock()
	})
	require.NoError(t, err)

	// One update per task plus the terminal one.
	require.Len(t, updates, 5)
	for i, u := range updates[:4] {
		assert.Equal(t, 4, u.Total)
		assert.Equal(t, i+1, u.Completed)
		assert.Equal(t, StatusRunning, u.Status)
		assert.NotEmpty(t, u.Current)
	}
	final := updates[4]
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 4, final.Completed)
}

func TestProcessBatchCancelStopsNewChunks(t *testing.T) {
	release := make(chan struct{})
	fr := &fakeRenderer{block: release}
	c := NewCoordinator(fr, WithFormatPause(0))

	patterns := make([]pattern.Pattern, 5)
	for i := range patterns {
		patterns[i] = exportPattern(fmt.Sprintf("pat-%d", i+1), fmt.Sprintf("Pattern %d", i+1))
	}
	opts := BatchOptions{Formats: []render.Format{render.FormatText}}

	done := make(chan BatchResult, 1)
	go func() {
		result, err := c.ProcessBatch(context.Background(), patterns, opts, nil)
		assert.NoError(t, err)
		done <- result
	}()

	// First chunk of 3 is dispatched and blocked; cancel, then let it finish.
	require.Eventually(t, func() bool { return fr.inflight.Load() == PatternConcurrency }, time.Second, time.Millisecond)
	c.Cancel()
	close(release)

	result := <-done
	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, PatternConcurrency, result.Succeeded())
	assert.Equal(t, int32(PatternConcurrency), fr.calls.Load())

	require.Len(t, result.Results, 5)
	for _, r := range result.Results[PatternConcurrency:] {
		assert.False(t, r.OK)
		assert.Contains(t, r.ErrMessage, "cancelled")
	}
}

func TestProcessBatchSetupRejections(t *testing.T) {
	fr := &fakeRenderer{}
	c := NewCoordinator(fr, WithFormatPause(0))
	patterns := []pattern.Pattern{exportPattern("pat-1", "One")}

	tests := []struct {
		name string
		opts BatchOptions
	}{
		{name: "no formats", opts: BatchOptions{}},
		{name: "unknown format", opts: BatchOptions{Formats: []render.Format{"gif"}}},
		{
			name: "oversize dimensions",
			opts: BatchOptions{
				Formats: []render.Format{render.FormatPNG},
				Render:  render.Options{Width: 5000, Height: 5000},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := c.ProcessBatch(context.Background(), patterns, tt.opts, nil)
			require.Error(t, err)
			assert.True(t, IsSetupError(err))
			assert.Equal(t, StatusError, result.Status)
		})
	}
	// Setup rejections never reach the renderer.
	assert.Equal(t, int32(0), fr.calls.Load())
}
