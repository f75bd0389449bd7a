// Package syncer reconciles the durable change queue against the remote
// pattern store: it drains unsynced entries in capped chunks when the
// network is usable, remaps temporary ids after successful creates,
// reschedules retryable failures with per-entry exponential backoff, and
// parks terminal failures so they are never re-sent.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patternloom/loom/internal/pattern"
	"github.com/patternloom/loom/internal/remote"
	"github.com/patternloom/loom/internal/store"
)

// Config tunes drain behavior. Zero values fall back to defaults.
type Config struct {
	// ChunkSize bounds simultaneously in-flight store requests per chunk.
	ChunkSize int
	// ChunkPause separates chunks to avoid saturating the network.
	ChunkPause time.Duration
	// DrainInterval is the periodic drain cadence while online.
	DrainInterval time.Duration
	// MaxRetries caps per-entry retry attempts before giving up.
	MaxRetries int
	// BackoffBase is the first retry delay; it doubles per retry.
	BackoffBase time.Duration
	// BackoffMax caps the retry delay.
	BackoffMax time.Duration
}

// DefaultConfig returns the production drain configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:     5,
		ChunkPause:    150 * time.Millisecond,
		DrainInterval: 5 * time.Minute,
		MaxRetries:    5,
		BackoffBase:   time.Second,
		BackoffMax:    60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkPause <= 0 {
		c.ChunkPause = d.ChunkPause
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = d.DrainInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	return c
}

// EntryError describes one failed queue entry.
type EntryError struct {
	EntryID   string
	PatternID string
	Op        store.Op
	Message   string
	// Conflict marks a stale-version failure. The engine never blindly
	// retries these; the caller decides whether to requeue fresh data.
	Conflict bool
	// Terminal marks permission failures and entries past the retry cap.
	Terminal bool
}

// DrainResult summarizes one drain attempt.
type DrainResult struct {
	Synced  int
	Failed  int
	Skipped int // entries deferred because their prerequisite create has not landed
	// Deferred is set when the network was unusable and nothing was
	// attempted. Not an error condition.
	Deferred bool
	Errors   []EntryError
}

// Status is a point-in-time snapshot for UIs and the CLI.
type Status struct {
	Pending int
	// Abandoned counts entries parked after terminal failures, waiting for
	// the caller to requeue with fresh data or discard.
	Abandoned int
	LastDrain time.Time
	Last      *DrainResult
}

// Engine drains the change queue against the remote store.
//
// Drain is exclusive: a concurrent call while one is in progress is a
// no-op reporting zero synced/failed. The exclusivity is an in-progress
// flag, not a lock - callers are never blocked.
type Engine struct {
	queue   *store.Queue
	remote  remote.Store
	network NetworkStatusProvider
	cfg     Config

	draining atomic.Bool

	mu          sync.Mutex
	retryTimer  *time.Timer
	tickerStop  chan struct{}
	unsubscribe func()
	lastDrain   time.Time
	lastResult  *DrainResult
}

// New creates a sync engine over the given queue, store, and network signal.
func New(queue *store.Queue, rs remote.Store, network NetworkStatusProvider, cfg Config) *Engine {
	return &Engine{
		queue:   queue,
		remote:  rs,
		network: network,
		cfg:     cfg.withDefaults(),
	}
}

// Start begins background syncing: an immediate drain on reconnection and
// a periodic drain every DrainInterval while online. Disconnection stops
// the periodic timer; an in-flight chunk is allowed to finish.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.unsubscribe = e.network.Subscribe(func(online bool) {
		if online {
			slog.Info("network restored, draining change queue")
			go func() { _, _ = e.Drain(ctx) }()
			e.startTicker(ctx)
		} else {
			slog.Info("network lost, pausing periodic sync")
			e.stopTicker()
		}
	})
	e.mu.Unlock()

	if e.network.Online() {
		e.startTicker(ctx)
	}
}

// Stop cancels the periodic timer, any scheduled retry, and the network
// subscription. In-flight drain requests complete on their own.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	e.stopTickerLocked()
}

// Status reports the pending entry count and the last drain outcome.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	pending, err := e.queue.UnsyncedCount(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("queue status: %w", err)
	}
	abandoned, err := e.queue.AbandonedCount(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("queue status: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{Pending: pending, Abandoned: abandoned, LastDrain: e.lastDrain, Last: e.lastResult}, nil
}

// Drain attempts to synchronize all unsynced entries.
//
// Entries are processed in chunks of ChunkSize; within a chunk, entries
// for distinct patterns run concurrently while entries for the same
// pattern stay in creation order. Individual failures never abort the
// rest of the batch.
func (e *Engine) Drain(ctx context.Context) (DrainResult, error) {
	if !e.network.Online() || e.network.Quality() == QualityPoor {
		slog.Debug("drain deferred: network unsuitable",
			"online", e.network.Online(),
			"quality", e.network.Quality(),
		)
		return DrainResult{Deferred: true}, nil
	}

	if !e.draining.CompareAndSwap(false, true) {
		// A drain is already in progress - report zero work.
		return DrainResult{}, nil
	}
	defer e.draining.Store(false)

	// A fresh drain supersedes any scheduled retry.
	e.mu.Lock()
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	e.mu.Unlock()

	entries, err := e.queue.Unsynced(ctx)
	if err != nil {
		return DrainResult{}, fmt.Errorf("drain: read queue: %w", err)
	}
	if len(entries) == 0 {
		// Nothing pending: no network calls, no retry scheduling.
		return e.finish(DrainResult{}), nil
	}

	slog.Info("draining change queue", "entries", len(entries), "chunk_size", e.cfg.ChunkSize)

	var result DrainResult
	maxRetry := 0 // highest retry count among retryable failures, drives backoff

	remaps := make(map[string]string) // temp id -> server id, applied to later entries

	for start := 0; start < len(entries); start += e.cfg.ChunkSize {
		// Cancellation or disconnect suppresses the next chunk; the
		// current chunk's requests were already allowed to finish.
		if ctx.Err() != nil || !e.network.Online() {
			slog.Info("drain interrupted, remaining entries stay queued",
				"processed", start, "remaining", len(entries)-start)
			break
		}

		end := start + e.cfg.ChunkSize
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[start:end]

		// Apply id remaps from earlier chunks before dispatching.
		for i := range chunk {
			if mapped, ok := remaps[chunk[i].PatternID]; ok {
				chunk[i].PatternID = mapped
			}
		}

		outcomes := e.processChunk(ctx, chunk, remaps)
		for _, o := range outcomes {
			switch {
			case o.synced:
				result.Synced++
			case o.skipped:
				result.Skipped++
			default:
				result.Failed++
				result.Errors = append(result.Errors, o.err)
				if o.retryable && o.retryCount > maxRetry {
					maxRetry = o.retryCount
				}
			}
		}

		if end < len(entries) {
			// Short pause between chunks to avoid saturating the network.
			select {
			case <-ctx.Done():
			case <-time.After(e.cfg.ChunkPause):
			}
		}
	}

	if maxRetry > 0 {
		e.scheduleRetry(maxRetry)
	}

	slog.Info("drain finished",
		"synced", result.Synced,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return e.finish(result), nil
}

// finish records the drain outcome for Status.
func (e *Engine) finish(r DrainResult) DrainResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastDrain = time.Now()
	e.lastResult = &r
	return r
}

// outcome is the per-entry drain result.
type outcome struct {
	synced     bool
	skipped    bool
	retryable  bool
	retryCount int
	err        EntryError
}

// processChunk dispatches one chunk. Entries for distinct patterns run
// concurrently; entries for the same pattern are grouped and processed
// sequentially to preserve creation order.
func (e *Engine) processChunk(ctx context.Context, chunk []store.ChangeEntry, remaps map[string]string) []outcome {
	groups := make(map[string][]store.ChangeEntry)
	var order []string
	for _, entry := range chunk {
		if _, seen := groups[entry.PatternID]; !seen {
			order = append(order, entry.PatternID)
		}
		groups[entry.PatternID] = append(groups[entry.PatternID], entry)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []outcome
	)
	for _, pid := range order {
		group := groups[pid]
		wg.Add(1)
		go func() {
			defer wg.Done()
			serverID := "" // set once the group's create lands
			for _, entry := range group {
				if serverID != "" && entry.PatternID != serverID {
					entry.PatternID = serverID
				}
				o := e.processEntry(ctx, entry)
				if o.newServerID != "" {
					serverID = o.newServerID
					mu.Lock()
					remaps[entry.PatternID] = serverID
					mu.Unlock()
				}
				mu.Lock()
				outcomes = append(outcomes, o.outcome)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return outcomes
}

// entryOutcome extends outcome with the server id assigned by a create.
type entryOutcome struct {
	outcome
	newServerID string
}

// processEntry dispatches a single entry by operation.
func (e *Engine) processEntry(ctx context.Context, entry store.ChangeEntry) entryOutcome {
	switch entry.Op {
	case store.OpCreate:
		return e.processCreate(ctx, entry)
	case store.OpUpdate:
		return e.processUpdate(ctx, entry)
	case store.OpDelete:
		return e.processDelete(ctx, entry)
	default:
		return e.fail(ctx, entry, fmt.Errorf("unknown operation %q", entry.Op))
	}
}

func (e *Engine) processCreate(ctx context.Context, entry store.ChangeEntry) entryOutcome {
	p, err := entry.CreatePayload()
	if err != nil {
		return e.fail(ctx, entry, fmt.Errorf("decode create payload: %w", err))
	}

	created, err := e.remote.Create(ctx, p)
	if err != nil {
		return e.fail(ctx, entry, err)
	}

	// Replace the temporary id everywhere it is still referenced,
	// including pending entries in the durable queue.
	if pattern.IsTempID(entry.PatternID) {
		if err := e.queue.RemapPatternID(ctx, entry.PatternID, created.ID); err != nil {
			return e.fail(ctx, entry, fmt.Errorf("remap %s: %w", entry.PatternID, err))
		}
	}
	if err := e.queue.MarkSynced(ctx, entry.ID); err != nil {
		return e.fail(ctx, entry, err)
	}

	slog.Debug("create synced", "entry", entry.ID, "temp_id", entry.PatternID, "server_id", created.ID)
	return entryOutcome{outcome: outcome{synced: true}, newServerID: created.ID}
}

func (e *Engine) processUpdate(ctx context.Context, entry store.ChangeEntry) entryOutcome {
	// An update still targeting a temporary id is not an error: its
	// prerequisite create has not landed yet. Leave it queued.
	if pattern.IsTempID(entry.PatternID) {
		slog.Debug("update deferred: create not yet synced", "entry", entry.ID, "pattern", entry.PatternID)
		return entryOutcome{outcome: outcome{skipped: true}}
	}

	ch, err := entry.UpdatePayload()
	if err != nil {
		return e.fail(ctx, entry, fmt.Errorf("decode update payload: %w", err))
	}

	if _, err := e.remote.Update(ctx, entry.PatternID, ch, entry.BaseVersion); err != nil {
		return e.fail(ctx, entry, err)
	}
	if err := e.queue.MarkSynced(ctx, entry.ID); err != nil {
		return e.fail(ctx, entry, err)
	}
	return entryOutcome{outcome: outcome{synced: true}}
}

func (e *Engine) processDelete(ctx context.Context, entry store.ChangeEntry) entryOutcome {
	// Deleting a never-synced pattern: nothing ever existed server-side.
	if pattern.IsTempID(entry.PatternID) {
		if err := e.queue.MarkSynced(ctx, entry.ID); err != nil {
			return e.fail(ctx, entry, err)
		}
		return entryOutcome{outcome: outcome{synced: true}}
	}

	err := e.remote.Delete(ctx, entry.PatternID)
	if err != nil && !remote.IsNotFound(err) {
		return e.fail(ctx, entry, err)
	}
	// Already absent counts as success (idempotent delete).
	if err := e.queue.MarkSynced(ctx, entry.ID); err != nil {
		return e.fail(ctx, entry, err)
	}
	return entryOutcome{outcome: outcome{synced: true}}
}

// fail classifies an entry failure and updates its retry counter when the
// failure is retryable.
func (e *Engine) fail(ctx context.Context, entry store.ChangeEntry, err error) entryOutcome {
	ee := EntryError{
		EntryID:   entry.ID,
		PatternID: entry.PatternID,
		Op:        entry.Op,
		Message:   err.Error(),
	}

	switch {
	case remote.IsVersionConflict(err):
		// Stale local data. Parked, never blindly retried; the caller
		// decides whether to requeue with fresh data.
		ee.Conflict = true
		e.park(ctx, entry, "version conflict: "+err.Error())
		slog.Warn("version conflict, entry parked for refresh", "entry", entry.ID, "pattern", entry.PatternID)
		return entryOutcome{outcome: outcome{err: ee}}

	case remote.IsPermissionDenied(err):
		ee.Terminal = true
		e.park(ctx, entry, "permission denied: "+err.Error())
		slog.Warn("permission denied, entry abandoned", "entry", entry.ID, "pattern", entry.PatternID)
		return entryOutcome{outcome: outcome{err: ee}}
	}

	count, rerr := e.queue.IncrementRetry(ctx, entry.ID)
	if rerr != nil {
		slog.Error("failed to record retry", "entry", entry.ID, "error", rerr)
		count = entry.RetryCount + 1
	}

	if count >= e.cfg.MaxRetries {
		ee.Terminal = true
		e.park(ctx, entry, fmt.Sprintf("retry cap reached after %d attempts: %s", count, err))
		slog.Warn("retry cap reached, entry abandoned",
			"entry", entry.ID, "pattern", entry.PatternID, "retries", count)
		return entryOutcome{outcome: outcome{err: ee}}
	}

	slog.Debug("entry failed, will retry",
		"entry", entry.ID, "op", entry.Op, "retries", count, "error", err)
	return entryOutcome{outcome: outcome{retryable: true, retryCount: count, err: ee}}
}

// park marks an entry abandoned in the durable queue so subsequent drains
// never re-send it. "Never blindly retried" must hold across drains, not
// just within one: the periodic ticker and reconnect drains read the same
// queue this drain did.
func (e *Engine) park(ctx context.Context, entry store.ChangeEntry, reason string) {
	if err := e.queue.MarkAbandoned(ctx, entry.ID, reason); err != nil {
		slog.Error("failed to park entry", "entry", entry.ID, "error", err)
	}
}

// scheduleRetry arms a one-shot follow-up drain. The delay doubles with
// the highest retry count among the failures, capped at BackoffMax.
func (e *Engine) scheduleRetry(retryCount int) {
	delay := e.backoffDelay(retryCount)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.retryTimer != nil {
		e.retryTimer.Stop()
	}
	slog.Info("scheduling retry drain", "delay", delay, "retry_count", retryCount)
	e.retryTimer = time.AfterFunc(delay, func() {
		_, _ = e.Drain(context.Background())
	})
}

// backoffDelay computes BackoffBase * 2^(retryCount-1), capped.
func (e *Engine) backoffDelay(retryCount int) time.Duration {
	delay := e.cfg.BackoffBase
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= e.cfg.BackoffMax {
			return e.cfg.BackoffMax
		}
	}
	if delay > e.cfg.BackoffMax {
		return e.cfg.BackoffMax
	}
	return delay
}

// startTicker launches the periodic drain loop if not already running.
func (e *Engine) startTicker(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tickerStop != nil {
		return
	}
	stop := make(chan struct{})
	e.tickerStop = stop

	go func() {
		ticker := time.NewTicker(e.cfg.DrainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_, _ = e.Drain(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) stopTicker() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTickerLocked()
}

func (e *Engine) stopTickerLocked() {
	if e.tickerStop != nil {
		close(e.tickerStop)
		e.tickerStop = nil
	}
}
