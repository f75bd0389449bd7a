// Package export runs batch exports: it expands (pattern × format) tasks,
// renders them under bounded concurrency, reports progress per task, and
// optionally bundles the artifacts into a zip archive with a manifest.
package export

import (
	"github.com/patternloom/loom/internal/pattern"
	"github.com/patternloom/loom/internal/render"
)

// Status is the batch lifecycle state reported through progress callbacks
// and on the final result.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Task is one (pattern snapshot, format) unit of work. Tasks are derived by
// cross-product of the requested pattern and format lists and are immutable
// once expanded.
type Task struct {
	Pattern pattern.Pattern
	Format  render.Format
}

// Result is the outcome of one Task. Every task yields exactly one Result,
// failed tasks included. PatternID ties the result back to its pattern
// directly, so no consumer ever has to parse a filename.
type Result struct {
	PatternID   string
	PatternName string
	Format      render.Format
	Filename    string
	Size        int
	Artifact    render.Artifact
	OK          bool
	ErrMessage  string
}

// Progress is delivered to the caller's callback after every completed
// task, and once more with the terminal status when the batch finishes.
type Progress struct {
	Total     int
	Completed int
	Current   string
	Status    Status
	Errors    []string
}

// ProgressFunc receives progress updates. It may be called from multiple
// render goroutines; invocations are serialized by the coordinator.
type ProgressFunc func(Progress)

// BatchOptions configure one ProcessBatch invocation.
type BatchOptions struct {
	Formats         []render.Format
	CreateZip       bool
	IncludeManifest bool
	Render          render.Options
}

// BatchResult aggregates everything one batch produced. Results is ordered
// by input pattern order, then requested format order, regardless of which
// chunk finished first.
type BatchResult struct {
	Status  Status
	Results []Result
	Archive []byte
	Errors  []string
}

// Succeeded counts the tasks that produced an artifact.
func (r *BatchResult) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.OK {
			n++
		}
	}
	return n
}
