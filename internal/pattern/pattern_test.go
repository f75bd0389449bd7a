package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempIDs(t *testing.T) {
	id := NewTempID()
	assert.True(t, IsTempID(id))
	assert.False(t, IsTempID("pat-42"))

	other := NewTempID()
	assert.NotEqual(t, id, other, "temp ids must be locally unique")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
		wantErr string
	}{
		{
			name:    "valid sequential",
			pattern: Pattern{ID: "p1", GridSize: 5, Layout: LayoutSequential},
		},
		{
			name:    "valid concentric",
			pattern: Pattern{ID: "p2", GridSize: 3, Layout: LayoutConcentric},
		},
		{
			name:    "grid too small",
			pattern: Pattern{ID: "p3", GridSize: 0, Layout: LayoutSequential},
			wantErr: "grid size",
		},
		{
			name:    "grid too large",
			pattern: Pattern{ID: "p4", GridSize: 64, Layout: LayoutSequential},
			wantErr: "grid size",
		},
		{
			name:    "missing layout",
			pattern: Pattern{ID: "p5", GridSize: 5},
			wantErr: "layout mode is required",
		},
		{
			name:    "unknown layout",
			pattern: Pattern{ID: "p6", GridSize: 5, Layout: "spiral"},
			wantErr: "unknown layout mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pattern.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestClone_Isolation(t *testing.T) {
	now := time.Now()
	p := Pattern{
		ID:        "p1",
		Cells:     []string{"🌸", "🌿"},
		GridSize:  2,
		Layout:    LayoutSequential,
		DeletedAt: &now,
	}
	c := p.Clone()
	c.Cells[0] = "💥"
	*c.DeletedAt = now.Add(time.Hour)

	assert.Equal(t, "🌸", p.Cells[0], "clone must not share the cell slice")
	assert.Equal(t, now, *p.DeletedAt, "clone must not share the deletion timestamp")
}

func TestChange_Apply(t *testing.T) {
	p := Pattern{
		ID:       "p1",
		Title:    "Meadow",
		Cells:    []string{"🌸"},
		GridSize: 3,
		Layout:   LayoutSequential,
		Version:  4,
	}

	title := "Garden"
	public := true
	ch := Change{Title: &title, Cells: []string{"🌸", "🌿"}, Public: &public}
	got := ch.Apply(p)

	assert.Equal(t, "Garden", got.Title)
	assert.Equal(t, []string{"🌸", "🌿"}, got.Cells)
	assert.True(t, got.Public)
	assert.Equal(t, int64(4), got.Version, "Apply never advances the version")

	// Original untouched.
	assert.Equal(t, "Meadow", p.Title)
	assert.False(t, p.Public)
}

func TestChange_Empty(t *testing.T) {
	var ch Change
	assert.True(t, ch.Empty())

	title := "x"
	ch.Title = &title
	assert.False(t, ch.Empty())
}
