package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Enqueue appends an entry to the change queue.
// Entry IDs are unique; enqueuing the same id twice is an error.
func (q *Queue) Enqueue(ctx context.Context, e ChangeEntry) error {
	var payload any
	if e.Payload != nil {
		payload = string(e.Payload)
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO change_entries (id, op, pattern_id, payload, base_version, synced, retry_count)
		VALUES (?, ?, ?, ?, ?, 0, 0)
	`, e.ID, string(e.Op), e.PatternID, payload, e.BaseVersion)
	if err != nil {
		return fmt.Errorf("enqueue change %s: %w", e.ID, err)
	}
	return nil
}

// Unsynced returns all entries still eligible for draining, in creation
// order. Abandoned entries are excluded: once parked, an entry is never
// re-sent until the caller requeues it.
// Rowid order is creation order, which also preserves per-pattern ordering.
func (q *Queue) Unsynced(ctx context.Context) ([]ChangeEntry, error) {
	return q.selectEntries(ctx, `
		SELECT id, op, pattern_id, payload, base_version, synced, retry_count, abandoned, abandon_reason, created_at
		FROM change_entries
		WHERE synced = 0 AND abandoned = 0
		ORDER BY rowid
	`)
}

// UnsyncedCount returns the number of entries still awaiting sync,
// excluding abandoned ones.
func (q *Queue) UnsyncedCount(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM change_entries WHERE synced = 0 AND abandoned = 0`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unsynced entries: %w", err)
	}
	return n, nil
}

// Abandoned returns the parked entries in creation order, with the reason
// each one was parked.
func (q *Queue) Abandoned(ctx context.Context) ([]ChangeEntry, error) {
	return q.selectEntries(ctx, `
		SELECT id, op, pattern_id, payload, base_version, synced, retry_count, abandoned, abandon_reason, created_at
		FROM change_entries
		WHERE synced = 0 AND abandoned = 1
		ORDER BY rowid
	`)
}

// AbandonedCount returns the number of parked entries awaiting caller action.
func (q *Queue) AbandonedCount(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM change_entries WHERE synced = 0 AND abandoned = 1`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count abandoned entries: %w", err)
	}
	return n, nil
}

func (q *Queue) selectEntries(ctx context.Context, query string) ([]ChangeEntry, error) {
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query change entries: %w", err)
	}
	defer rows.Close()

	var entries []ChangeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change entries: %w", err)
	}
	return entries, nil
}

// MarkSynced flags an entry as confirmed by the server.
func (q *Queue) MarkSynced(ctx context.Context, id string) error {
	n, err := q.execContext(ctx,
		`UPDATE change_entries SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark synced %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("mark synced %s: entry not found", id)
	}
	return nil
}

// MarkAbandoned parks an entry after a terminal failure. Parked entries
// are excluded from Unsynced, so later drains never re-send them; they
// stay in the queue for inspection until requeued or purged.
func (q *Queue) MarkAbandoned(ctx context.Context, id, reason string) error {
	n, err := q.execContext(ctx, `
		UPDATE change_entries SET abandoned = 1, abandon_reason = ?
		WHERE id = ? AND synced = 0
	`, reason, id)
	if err != nil {
		return fmt.Errorf("mark abandoned %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("mark abandoned %s: entry not found", id)
	}
	return nil
}

// Requeue clears an entry's abandoned marker and resets its retry counter,
// making it eligible for the next drain again.
func (q *Queue) Requeue(ctx context.Context, id string) error {
	n, err := q.execContext(ctx, `
		UPDATE change_entries SET abandoned = 0, abandon_reason = NULL, retry_count = 0
		WHERE id = ? AND synced = 0 AND abandoned = 1
	`, id)
	if err != nil {
		return fmt.Errorf("requeue %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("requeue %s: no abandoned entry with that id", id)
	}
	return nil
}

// IncrementRetry bumps the retry counter of a failed entry and returns the
// new count. The counter drives per-entry exponential backoff.
func (q *Queue) IncrementRetry(ctx context.Context, id string) (int, error) {
	_, err := q.db.ExecContext(ctx,
		`UPDATE change_entries SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("increment retry %s: %w", id, err)
	}
	var count int
	err = q.db.QueryRowContext(ctx,
		`SELECT retry_count FROM change_entries WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read retry count %s: %w", id, err)
	}
	return count, nil
}

// RemapPatternID replaces a temporary pattern id with the server-assigned
// id everywhere it is still referenced: the pattern_id column of pending
// entries and the id embedded in queued create payloads.
//
// After a successful remap, no unsynced entry retains the temporary id.
func (q *Queue) RemapPatternID(ctx context.Context, tempID, serverID string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("remap %s: begin tx: %w", tempID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE change_entries SET pattern_id = ? WHERE pattern_id = ? AND synced = 0
	`, serverID, tempID); err != nil {
		return fmt.Errorf("remap %s: update pattern_id: %w", tempID, err)
	}

	// Create payloads embed the pattern id; rewrite them too so a retried
	// create never resurrects the temporary id.
	rows, err := tx.QueryContext(ctx, `
		SELECT id, payload FROM change_entries
		WHERE pattern_id = ? AND op = 'create' AND synced = 0 AND payload IS NOT NULL
	`, serverID)
	if err != nil {
		return fmt.Errorf("remap %s: query payloads: %w", tempID, err)
	}

	type patch struct {
		id      string
		payload string
	}
	var patches []patch
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return fmt.Errorf("remap %s: scan payload: %w", tempID, err)
		}
		rewritten, err := rewritePayloadID(raw, tempID, serverID)
		if err != nil {
			rows.Close()
			return fmt.Errorf("remap %s: rewrite payload for %s: %w", tempID, id, err)
		}
		if rewritten != raw {
			patches = append(patches, patch{id: id, payload: rewritten})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("remap %s: iterate payloads: %w", tempID, err)
	}

	for _, p := range patches {
		if _, err := tx.ExecContext(ctx,
			`UPDATE change_entries SET payload = ? WHERE id = ?`, p.payload, p.id); err != nil {
			return fmt.Errorf("remap %s: write payload for %s: %w", tempID, p.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("remap %s: commit: %w", tempID, err)
	}
	return nil
}

// PurgeSynced deletes confirmed entries older than the cutoff and returns
// how many were removed. Keeps the queue from growing without bound.
func (q *Queue) PurgeSynced(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := q.execContext(ctx, `
		DELETE FROM change_entries WHERE synced = 1 AND created_at < ?
	`, olderThan.UTC().Format("2006-01-02T15:04:05.000Z"))
	if err != nil {
		return 0, fmt.Errorf("purge synced entries: %w", err)
	}
	return n, nil
}

// rewritePayloadID swaps the top-level "id" field of a JSON payload when it
// still holds the temporary id.
func rewritePayloadID(raw, tempID, serverID string) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", err
	}
	if id, ok := doc["id"].(string); !ok || id != tempID {
		return raw, nil
	}
	doc["id"] = serverID
	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// scanEntry reads one change entry row.
func scanEntry(rows *sql.Rows) (ChangeEntry, error) {
	var (
		e         ChangeEntry
		op        string
		payload   sql.NullString
		reason    sql.NullString
		created   string
		synced    int
		abandoned int
	)
	if err := rows.Scan(&e.ID, &op, &e.PatternID, &payload, &e.BaseVersion, &synced, &e.RetryCount, &abandoned, &reason, &created); err != nil {
		return ChangeEntry{}, fmt.Errorf("scan change entry: %w", err)
	}
	e.Op = Op(op)
	e.Synced = synced != 0
	e.Abandoned = abandoned != 0
	if reason.Valid {
		e.AbandonReason = reason.String
	}
	if payload.Valid {
		e.Payload = json.RawMessage(payload.String)
	}
	if t, err := time.Parse("2006-01-02T15:04:05.000Z", created); err == nil {
		e.CreatedAt = t
	}
	return e, nil
}
