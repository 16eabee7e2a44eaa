// Package errs defines the error taxonomy shared by the verification
// pipeline: structural plugin defects, unreadable containers, recursive
// config dependencies, failed artifact fetches and cooperative cancellation.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel kinds. Callers classify failures with errors.Is against these.
var (
	// ErrStructural indicates a malformed plugin layout: duplicate root
	// descriptors, a missing mandatory file, or a missing mandatory element.
	ErrStructural = errors.New("incorrect plugin structure")

	// ErrIO indicates an unreadable container or entry stream.
	ErrIO = errors.New("unreadable plugin data")

	// ErrCycle indicates a self-referencing optional config dependency.
	ErrCycle = errors.New("recursive config dependency")

	// ErrFetch indicates that artifact bytes could not be obtained.
	ErrFetch = errors.New("artifact fetch failed")

	// ErrCancelled indicates cooperative cancellation was observed.
	ErrCancelled = errors.New("verification cancelled")

	// ErrRepositoryClosed indicates an acquire against a closed repository.
	ErrRepositoryClosed = errors.New("file repository is closed")
)

// Error carries a sentinel kind together with the failing operation and a
// human-readable reason. It matches its kind through errors.Is and exposes
// the underlying cause through Unwrap.
type Error struct {
	Kind   error
	Op     string
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Cause }

// Structural reports a malformed plugin layout.
func Structural(op, reason string) *Error {
	return &Error{Kind: ErrStructural, Op: op, Reason: reason}
}

// IO reports an unreadable container or stream.
func IO(op, reason string, cause error) *Error {
	return &Error{Kind: ErrIO, Op: op, Reason: reason, Cause: cause}
}

// Cycle reports a self-referencing optional config dependency.
func Cycle(op, reason string) *Error {
	return &Error{Kind: ErrCycle, Op: op, Reason: reason}
}

// Fetch reports that artifact bytes could not be obtained.
func Fetch(op, reason string, cause error) *Error {
	return &Error{Kind: ErrFetch, Op: op, Reason: reason, Cause: cause}
}

// Cancelled reports observed cancellation, preserving the context error.
func Cancelled(op string, cause error) *Error {
	return &Error{Kind: ErrCancelled, Op: op, Reason: "cancelled", Cause: cause}
}

// IsCancellation reports whether err stems from cooperative cancellation,
// either ours or the context package's. Checked before IsBadArtifact so a
// cancelled fetch is never misreported as a plugin defect.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsBadArtifact reports whether err describes a defect of the artifact
// itself, the recoverable per-artifact outcome that never aborts siblings.
func IsBadArtifact(err error) bool {
	if IsCancellation(err) {
		return false
	}
	return errors.Is(err, ErrStructural) ||
		errors.Is(err, ErrIO) ||
		errors.Is(err, ErrCycle) ||
		errors.Is(err, ErrFetch)
}
