// Package evfserr defines the system-style error taxonomy that flows
// through the embedded virtual file system's public and internal APIs.
package evfserr

import (
	"errors"
	"fmt"
)

// Code is one of the POSIX-like error classes EVFS surfaces to callers.
type Code int

const (
	// EINVAL marks a malformed argument: bad size, bad offset, a nil
	// buffer, or a key containing characters outside [0-9A-Za-z_.].
	EINVAL Code = iota + 1
	// EEXIST marks a name collision or a double-initialization attempt.
	EEXIST
	// ENOENT marks a failed handle, entry, or name lookup.
	ENOENT
	// ENOMEM marks an allocation failure or a full task queue.
	ENOMEM
	// EBUSY marks a Busy-mode acquisition that raced an in-flight I/O.
	EBUSY
	// EBADF marks a wrong-state entry/descriptor or a corrupt on-disk
	// header.
	EBADF
	// ENOSPC marks an exhausted idle pool or a volume that would exceed
	// the maximum size.
	ENOSPC
	// EIO marks a short read or write against the backing file.
	EIO
	// ENODEV marks an operation attempted before init or after uninit.
	ENODEV
)

func (c Code) String() string {
	switch c {
	case EINVAL:
		return "EINVAL"
	case EEXIST:
		return "EEXIST"
	case ENOENT:
		return "ENOENT"
	case ENOMEM:
		return "ENOMEM"
	case EBUSY:
		return "EBUSY"
	case EBADF:
		return "EBADF"
	case ENOSPC:
		return "ENOSPC"
	case EIO:
		return "EIO"
	case ENODEV:
		return "ENODEV"
	default:
		return "EUNKNOWN"
	}
}

// Error is the concrete error type returned by EVFS operations. Op names
// the failing operation (e.g. "entry.Create", "cache.Read") for log
// correlation; Err, when non-nil, is the wrapped underlying cause.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error for op with the given code, optionally wrapping
// cause.
func New(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

// Is reports whether err is an *Error carrying code, unwrapping through
// any wrapper chain in between.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
