package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/patternloom/loom/internal/pattern"
)

// Op identifies the kind of queued mutation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeEntry is one queued, not-yet-confirmed local mutation.
//
// Entries for the same pattern are drained in creation order. An update or
// delete that still references a temporary id is deferred until its create
// has landed and the id has been remapped.
type ChangeEntry struct {
	ID          string
	Op          Op
	PatternID   string
	Payload     json.RawMessage // full pattern for create, partial change for update, nil for delete
	BaseVersion int64           // for updates: the version the change was made against
	Synced      bool
	RetryCount  int
	// Abandoned parks the entry after a terminal failure (version conflict,
	// permission denied, retry cap). Drains skip parked entries; the caller
	// requeues with fresh data or discards.
	Abandoned     bool
	AbandonReason string
	CreatedAt     time.Time
}

// NewCreate builds a create entry carrying a full pattern snapshot.
func NewCreate(p pattern.Pattern) (ChangeEntry, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return ChangeEntry{}, err
	}
	return ChangeEntry{
		ID:        uuid.NewString(),
		Op:        OpCreate,
		PatternID: p.ID,
		Payload:   payload,
	}, nil
}

// NewUpdate builds an update entry carrying a partial change made against
// the given base version.
func NewUpdate(patternID string, baseVersion int64, ch pattern.Change) (ChangeEntry, error) {
	payload, err := json.Marshal(ch)
	if err != nil {
		return ChangeEntry{}, err
	}
	return ChangeEntry{
		ID:          uuid.NewString(),
		Op:          OpUpdate,
		PatternID:   patternID,
		Payload:     payload,
		BaseVersion: baseVersion,
	}, nil
}

// NewDelete builds a delete entry. Deletes carry no payload.
func NewDelete(patternID string) ChangeEntry {
	return ChangeEntry{
		ID:        uuid.NewString(),
		Op:        OpDelete,
		PatternID: patternID,
	}
}

// CreatePayload decodes the full pattern snapshot of a create entry.
func (e *ChangeEntry) CreatePayload() (pattern.Pattern, error) {
	var p pattern.Pattern
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

// UpdatePayload decodes the partial change of an update entry.
func (e *ChangeEntry) UpdatePayload() (pattern.Change, error) {
	var ch pattern.Change
	err := json.Unmarshal(e.Payload, &ch)
	return ch, err
}
