package scan

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// UsageError reports a violated caller precondition: calls on a closed
// reader, reads before a row group is bound, unsorted position lists. These
// are programming errors, not recoverable conditions.
type UsageError struct {
	Op  string
	Msg string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("scan: %s: %s", e.Op, e.Msg)
}

func usagef(op, format string, args ...any) error {
	return &UsageError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// BatchTooLargeError reports a single column batch that would exceed the
// per-batch byte ceiling. It is raised before the oversized allocation is
// attempted.
type BatchTooLargeError struct {
	Column int
	Bytes  int64
	Limit  int64
}

func (e *BatchTooLargeError) Error() string {
	return fmt.Sprintf("scan: column %d batch of %s exceeds the %s per-batch limit",
		e.Column, humanize.IBytes(uint64(e.Bytes)), humanize.IBytes(uint64(e.Limit)))
}
