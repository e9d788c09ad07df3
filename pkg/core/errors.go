package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Components wrap these with fmt.Errorf("...: %w", ...) so callers
// can classify failures with errors.Is.
var (
	// ErrNotFound marks a missing version, tag, branch or entity on a path that
	// requires an existing target. Plain reads return nil results instead.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a uniqueness violation: duplicate version number,
	// duplicate tag or branch name, or an invalid state transition.
	ErrConflict = errors.New("conflict")

	// ErrValidation marks a request rejected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrIntegrity marks a broken delta chain. It is never repaired automatically.
	ErrIntegrity = errors.New("integrity violation")

	// ErrStorage marks a failure of the underlying persistence layer.
	ErrStorage = errors.New("storage failure")
)

// IntegrityError reports a delta chain that cannot be reconstructed.
type IntegrityError struct {
	// VersionID is the version whose reconstruction failed.
	VersionID string
	// MissingParentID is the parent that could not be resolved, if any.
	MissingParentID string
	// Reason is a short operator-facing description.
	Reason string
}

// Error implements error.
func (e *IntegrityError) Error() string {
	if e.MissingParentID != "" {
		return fmt.Sprintf("integrity violation: version %s: %s (parent %s)", e.VersionID, e.Reason, e.MissingParentID)
	}
	return fmt.Sprintf("integrity violation: version %s: %s", e.VersionID, e.Reason)
}

// Is lets errors.Is(err, ErrIntegrity) match any IntegrityError.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// StorageError wraps a persistence failure with the operation that failed.
func StorageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
