// Package apperr defines the error taxonomy shared by the store, the sync
// service and every command front-end.
package apperr

import (
	"errors"
	"fmt"
)

// Taxonomy classes. Every error produced by the engine wraps exactly one of them.
var (
	ErrIO              = errors.New("io")
	ErrDecode          = errors.New("decode")
	ErrSchema          = errors.New("schema")
	ErrNotFound        = errors.New("not found")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrCancelled       = errors.New("cancelled")
	ErrInternal        = errors.New("internal")
)

// Finer failure modes, each wrapping its class.
var (
	ErrPathUnavailable   = fmt.Errorf("path unavailable: %w", ErrIO)
	ErrLocked            = fmt.Errorf("database locked: %w", ErrIO)
	ErrCorrupt           = fmt.Errorf("database corrupt: %w", ErrIO)
	ErrUpgradeInProgress = fmt.Errorf("upgrade in progress: %w", ErrSchema)
	ErrBadImage          = fmt.Errorf("bad image: %w", ErrDecode)
	ErrFrameTooLarge     = fmt.Errorf("frame too large: %w", ErrDecode)
	ErrNoteTooLarge      = fmt.Errorf("note too large: %w", ErrDecode)
)

// SyncAttachError reports a failed attach-sync. Err carries the class
// (ErrVersionMismatch on schema skew, otherwise the underlying cause).
type SyncAttachError struct {
	URI    string
	Reason string
	Err    error
}

func (e *SyncAttachError) Error() string {
	return fmt.Sprintf("sync-via-attach %s: %s", e.URI, e.Reason)
}

func (e *SyncAttachError) Unwrap() error { return e.Err }

// Exit codes used by the command-line binaries.
const (
	ExitOK                = 0
	ExitUsage             = 1
	ExitIO                = 2
	ExitVersionMismatch   = 3
	ExitUpgradeInProgress = 4
)

// ExitCode maps err onto a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUpgradeInProgress):
		return ExitUpgradeInProgress
	case errors.Is(err, ErrVersionMismatch):
		return ExitVersionMismatch
	case errors.Is(err, ErrIO):
		return ExitIO
	default:
		return ExitUsage
	}
}

// Kind returns a stable machine-readable name for the class of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUpgradeInProgress):
		return "upgrade_in_progress"
	case errors.Is(err, ErrVersionMismatch):
		return "version_mismatch"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "internal"
	}
}
