// Package fserrors is the tagged-sum domain error model used across the
// engine's components. Internally every failure is one of a small, closed
// set of kinds; translation into kernel error codes happens exactly once,
// at the point where an internal/engine callback returns to the FUSE
// dispatcher.
package fserrors

import "fmt"

// Kind enumerates the domain error taxonomy.
type Kind int

const (
	// NotFound: inode not in registry; remote stat fails; path missing on
	// remote.
	NotFound Kind = iota
	// NotADirectory: parent in a lookup is not a directory.
	NotADirectory
	// InvalidArgument: unknown handle in read/write/flush/release.
	InvalidArgument
	// PermissionDenied: write on a handle whose effective mode is
	// read-only.
	PermissionDenied
	// IO: any transport or local-filesystem failure after resolution
	// succeeded.
	IO
	// AlreadyExists is reserved; this engine has no creation operations.
	AlreadyExists
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case NotADirectory:
		return "not-a-directory"
	case InvalidArgument:
		return "invalid-argument"
	case PermissionDenied:
		return "permission-denied"
	case IO:
		return "io"
	case AlreadyExists:
		return "already-exists"
	default:
		return "unknown"
	}
}

// Error is a domain error carrying its taxonomy Kind plus an underlying
// cause for logging.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a domain error of the given kind.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and IO
// otherwise — any unrecognized failure after resolution is treated as a
// transport/filesystem failure per the taxonomy.
func KindOf(err error) Kind {
	var de *Error
	if ok := As(err, &de); ok {
		return de.Kind
	}
	return IO
}

// As is a small local wrapper to avoid importing errors.As at every call
// site just for this one check.
func As(err error, target **Error) bool {
	for err != nil {
		if de, ok := err.(*Error); ok {
			*target = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
