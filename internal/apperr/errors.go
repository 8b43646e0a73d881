// Package apperr defines the error taxonomy shared by the scanner, the
// provenance index and the command-line surfaces.
package apperr

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidPath        = errors.New("invalid path")
	ErrPrivilegeRequired  = errors.New("elevated privileges required")
	ErrAttributeAbsent    = errors.New("provenance attribute not present")
	ErrMalformedAttribute = errors.New("malformed provenance attribute")
	ErrAttributeAccess    = errors.New("provenance attribute not accessible")
	ErrDatabase           = errors.New("provenance database unavailable")
)

// MalformedError reports an attribute blob too short to carry a key.
type MalformedError struct {
	Len int
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s: %d bytes", ErrMalformedAttribute, e.Len)
}

// Is reports whether target is ErrMalformedAttribute.
func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedAttribute
}

// AccessError is any attribute retrieval failure other than absence.
type AccessError struct {
	Path  string
	Errno syscall.Errno
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s: %s: %v (errno %d)", ErrAttributeAccess, e.Path, e.Errno, int(e.Errno))
}

func (e *AccessError) Is(target error) bool {
	return target == ErrAttributeAccess
}

func (e *AccessError) Unwrap() error {
	return e.Errno
}

// DatabaseError wraps any failure to materialize the provenance index.
type DatabaseError struct {
	Path string
	Err  error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrDatabase, e.Path, e.Err)
}

func (e *DatabaseError) Is(target error) bool {
	return target == ErrDatabase
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}
