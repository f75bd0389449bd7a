package pattern

import "time"

// Change is a partial mutation applied against an existing pattern.
// Nil fields are left untouched; this is the payload shape queued for
// updates and sent to the remote store under optimistic locking.
type Change struct {
	Title     *string     `json:"title,omitempty"`
	Cells     []string    `json:"cells,omitempty"`
	GridSize  *int        `json:"gridSize,omitempty"`
	Layout    *LayoutMode `json:"layout,omitempty"`
	Public    *bool       `json:"public,omitempty"`
	DeletedAt *time.Time  `json:"deletedAt,omitempty"`
	DeletedBy *string     `json:"deletedBy,omitempty"`
}

// Empty reports whether the change carries no mutation at all.
func (c *Change) Empty() bool {
	return c.Title == nil && c.Cells == nil && c.GridSize == nil &&
		c.Layout == nil && c.Public == nil && c.DeletedAt == nil && c.DeletedBy == nil
}

// Apply copies the non-nil fields of the change onto a pattern snapshot and
// returns the result. Version is NOT advanced here: only a server-confirmed
// update moves it.
func (c *Change) Apply(p Pattern) Pattern {
	out := p.Clone()
	if c.Title != nil {
		out.Title = *c.Title
	}
	if c.Cells != nil {
		out.Cells = append([]string(nil), c.Cells...)
	}
	if c.GridSize != nil {
		out.GridSize = *c.GridSize
	}
	if c.Layout != nil {
		out.Layout = *c.Layout
	}
	if c.Public != nil {
		out.Public = *c.Public
	}
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		out.DeletedAt = &t
	}
	if c.DeletedBy != nil {
		out.DeletedBy = *c.DeletedBy
	}
	return out
}
