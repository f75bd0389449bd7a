package cli

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/patternloom/loom/internal/pattern"
)

// patternDocument is the on-disk YAML shape consumed by `loom export`.
type patternDocument struct {
	Patterns []pattern.Pattern `yaml:"patterns"`
}

// LoadPatterns reads a YAML pattern document. Missing fields get sensible
// defaults: layout falls back to sequential, grid size to the smallest grid
// that holds the cell sequence, and a missing id to a fresh temporary id.
// Every pattern is validated before the list is returned.
func LoadPatterns(path string) ([]pattern.Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pattern document: %w", err)
	}

	var doc patternDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(doc.Patterns) == 0 {
		return nil, fmt.Errorf("%s: no patterns found", path)
	}

	for i := range doc.Patterns {
		p := &doc.Patterns[i]
		if p.ID == "" {
			p.ID = pattern.NewTempID()
		}
		if p.Layout == "" {
			p.Layout = pattern.LayoutSequential
		}
		if p.GridSize == 0 {
			p.GridSize = fittingGridSize(len(p.Cells))
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%s: pattern %d: %w", path, i+1, err)
		}
	}
	return doc.Patterns, nil
}

// fittingGridSize returns the smallest grid that holds n cells, clamped to
// the allowed range.
func fittingGridSize(n int) int {
	size := int(math.Ceil(math.Sqrt(float64(n))))
	if size < pattern.MinGridSize {
		size = pattern.MinGridSize
	}
	if size > pattern.MaxGridSize {
		size = pattern.MaxGridSize
	}
	return size
}
