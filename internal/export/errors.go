package export

import (
	"errors"
	"fmt"
)

// ErrBatchInProgress rejects ProcessBatch while another batch is already
// running on the same coordinator.
var ErrBatchInProgress = errors.New("export batch already in progress")

// SetupError reports that the batch could not start at all: no formats,
// an unknown format name, or invalid render options. No task ran.
type SetupError struct {
	Message string
	Err     error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("export setup: %s", e.Message)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// IsSetupError reports whether err is a batch setup failure.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

// ArchiveError reports a failure while assembling the output archive. It
// aborts the whole batch: a partially written archive is never returned.
type ArchiveError struct {
	Message string
	Err     error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive assembly: %s", e.Message)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// IsArchiveError reports whether err is an archive assembly failure.
func IsArchiveError(err error) bool {
	var ae *ArchiveError
	return errors.As(err, &ae)
}
