package render

import (
	"errors"
	"fmt"
)

// InvalidOptionsError rejects out-of-range output dimensions or quality
// before any rendering work begins. Validated once per export task, not
// per pixel.
type InvalidOptionsError struct {
	Message string
	Err     error
}

func (e *InvalidOptionsError) Error() string {
	return fmt.Sprintf("invalid render options: %s", e.Message)
}

func (e *InvalidOptionsError) Unwrap() error {
	return e.Err
}

// IsInvalidOptions reports whether err is an options validation failure.
// Uses errors.As to handle wrapped errors.
func IsInvalidOptions(err error) bool {
	var ie *InvalidOptionsError
	return errors.As(err, &ie)
}

// Error describes a failure while rendering one (pattern, format) task.
// Render failures are isolated to their task and never abort siblings.
type Error struct {
	PatternID string
	Format    Format
	Message   string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render %s as %s: %s", e.PatternID, e.Format, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRenderError reports whether err is a per-task render failure.
func IsRenderError(err error) bool {
	var re *Error
	return errors.As(err, &re)
}
