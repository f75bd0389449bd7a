package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/patternloom/loom/internal/pattern"
)

// Fake is an in-memory Store for tests. It assigns sequential server ids,
// enforces optimistic locking, and records every call. An optional
// Intercept hook lets tests script failures per operation.
//
// Thread-safe: the sync engine may hit it from several goroutines.
type Fake struct {
	mu       sync.Mutex
	patterns map[string]pattern.Pattern
	nextID   int
	calls    []string

	// Intercept, when set, runs before each operation. A non-nil return is
	// surfaced as the operation's error.
	Intercept func(op, id string) error
}

// NewFake creates an empty fake store.
func NewFake() *Fake {
	return &Fake{patterns: make(map[string]pattern.Pattern)}
}

// Calls returns the operations performed so far, as "op id" strings.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns the number of store operations performed.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Pattern returns a stored pattern by id for assertions.
func (f *Fake) Pattern(id string) (pattern.Pattern, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patterns[id]
	return p, ok
}

// Seed inserts a pattern directly, bypassing call recording.
func (f *Fake) Seed(p pattern.Pattern) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns[p.ID] = p.Clone()
}

// Create implements Store.
func (f *Fake) Create(ctx context.Context, p pattern.Pattern) (pattern.Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create "+p.ID)
	if err := f.intercept("create", p.ID); err != nil {
		return pattern.Pattern{}, err
	}

	f.nextID++
	stored := p.Clone()
	stored.ID = fmt.Sprintf("pat-%d", f.nextID)
	stored.Version = 1
	f.patterns[stored.ID] = stored
	return stored.Clone(), nil
}

// Get implements Store.
func (f *Fake) Get(ctx context.Context, id string) (pattern.Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "get "+id)
	if err := f.intercept("get", id); err != nil {
		return pattern.Pattern{}, err
	}

	p, ok := f.patterns[id]
	if !ok {
		return pattern.Pattern{}, NewNotFound(id)
	}
	return p.Clone(), nil
}

// Update implements Store.
func (f *Fake) Update(ctx context.Context, id string, ch pattern.Change, expectedVersion int64) (pattern.Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update "+id)
	if err := f.intercept("update", id); err != nil {
		return pattern.Pattern{}, err
	}

	p, ok := f.patterns[id]
	if !ok {
		return pattern.Pattern{}, NewNotFound(id)
	}
	if p.Version != expectedVersion {
		return pattern.Pattern{}, NewVersionConflict(id, expectedVersion, p.Version)
	}

	updated := ch.Apply(p)
	updated.Version = p.Version + 1
	f.patterns[id] = updated
	return updated.Clone(), nil
}

// Delete implements Store.
func (f *Fake) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete "+id)
	if err := f.intercept("delete", id); err != nil {
		return err
	}

	if _, ok := f.patterns[id]; !ok {
		return NewNotFound(id)
	}
	delete(f.patterns, id)
	return nil
}

func (f *Fake) intercept(op, id string) error {
	if f.Intercept == nil {
		return nil
	}
	return f.Intercept(op, id)
}
