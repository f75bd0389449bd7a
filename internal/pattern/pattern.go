// Package pattern defines the domain model for user-authored glyph patterns:
// the versioned Pattern record, the queued Change mutations applied against
// it, and the grid placement geometry shared by all renderers.
package pattern

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LayoutMode selects how sequence cells are placed on the grid.
type LayoutMode string

const (
	// LayoutSequential places cells left-to-right, top-to-bottom.
	LayoutSequential LayoutMode = "sequential"
	// LayoutConcentric places cells in expanding square rings from the
	// grid center outward.
	LayoutConcentric LayoutMode = "concentric"
)

// MinGridSize and MaxGridSize bound the declared grid dimension.
const (
	MinGridSize = 1
	MaxGridSize = 32
)

// TempIDPrefix marks locally generated identifiers that have not yet been
// assigned a server id by a successful create.
const TempIDPrefix = "tmp-"

// Pattern is a user-authored grid of emoji/glyph cells.
//
// Version is the optimistic-locking counter: it only increases, and only on
// a server-confirmed update. The client never advances it speculatively
// beyond what the server returns.
type Pattern struct {
	ID        string     `json:"id" yaml:"id"`
	OwnerID   string     `json:"ownerId" yaml:"owner_id"`
	Title     string     `json:"title" yaml:"title"`
	Cells     []string   `json:"cells" yaml:"cells"`
	GridSize  int        `json:"gridSize" yaml:"grid_size"`
	Layout    LayoutMode `json:"layout" yaml:"layout"`
	Public    bool       `json:"public" yaml:"public"`
	Version   int64      `json:"version" yaml:"version"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" yaml:"deleted_at,omitempty"`
	DeletedBy string     `json:"deletedBy,omitempty" yaml:"deleted_by,omitempty"`
}

// NewTempID generates a locally unique identifier for a pattern that has
// not yet been created server-side.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id is a locally generated temporary identifier.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Validate checks structural invariants before the pattern is queued or
// rendered. It does not touch the network or the store.
func (p *Pattern) Validate() error {
	if p.GridSize < MinGridSize || p.GridSize > MaxGridSize {
		return fmt.Errorf("pattern %s: grid size %d out of range [%d,%d]", p.ID, p.GridSize, MinGridSize, MaxGridSize)
	}
	switch p.Layout {
	case LayoutSequential, LayoutConcentric:
	case "":
		return fmt.Errorf("pattern %s: layout mode is required", p.ID)
	default:
		return fmt.Errorf("pattern %s: unknown layout mode %q", p.ID, p.Layout)
	}
	return nil
}

// Capacity returns the number of cells the declared grid can hold.
// Sequence elements beyond capacity are dropped by the layout.
func (p *Pattern) Capacity() int {
	return p.GridSize * p.GridSize
}

// Deleted reports whether the pattern carries a soft-delete marker.
func (p *Pattern) Deleted() bool {
	return p.DeletedAt != nil
}

// Clone returns a deep copy. Renders and queued payloads operate on
// snapshots so later UI edits cannot leak into in-flight work.
func (p *Pattern) Clone() Pattern {
	out := *p
	out.Cells = make([]string, len(p.Cells))
	copy(out.Cells, p.Cells)
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		out.DeletedAt = &t
	}
	return out
}
