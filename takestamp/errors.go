package takestamp

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies failures of aggregate maintenance.
type ErrorCode string

const (
	// CodeStructural covers cycles and dangling parent references.
	CodeStructural ErrorCode = "structural"
	// CodeNotFound means the album named by the caller does not exist.
	CodeNotFound ErrorCode = "not_found"
	// CodePersistence means a bounds write failed. Shallower writes stay applied.
	CodePersistence ErrorCode = "persistence"
	// CodeRetryable means the failed step may succeed later (lock contention,
	// busy db). See ResumeAt for where an interrupted walk continues.
	CodeRetryable ErrorCode = "retryable"
	CodeInternal  ErrorCode = "internal"
)

// Error is the coded error returned across the maintainer boundary.
type Error struct {
	Code    ErrorCode
	Op      string
	AlbumID uint
	Message string
	Cause   error

	// Resumable is set by ApplyChange when the walk stopped at AlbumID before
	// anything there was written. Every level below it is committed.
	Resumable bool
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.AlbumID != 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "album %d", e.AlbumID)
	}
	if e.Message != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Message)
	}
	if b.Len() == 0 {
		return string(e.Code)
	}
	fmt.Fprintf(&b, " (%s)", e.Code)
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a coded error.
func NewError(code ErrorCode, op string, albumID uint, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		AlbumID: albumID,
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates err with a code. Errors that already carry a code keep it.
func Wrap(code ErrorCode, op string, albumID uint, err error) error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return err
	}
	return NewError(code, op, albumID, err.Error(), err)
}

// ResumeAt reports the album an interrupted ApplyChange should be called
// again from, with the same takestamps, to finish the walk.
func ResumeAt(err error) (uint, bool) {
	var coded *Error
	if !errors.As(err, &coded) || !coded.Resumable {
		return 0, false
	}
	return coded.AlbumID, true
}

// IsCode reports whether err, or any error it wraps, carries code.
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if coded, ok := err.(*Error); ok {
		if coded.Code == code {
			return true
		}
		return IsCode(coded.Cause, code)
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if IsCode(e, code) {
				return true
			}
		}
		return false
	case interface{ Unwrap() error }:
		return IsCode(u.Unwrap(), code)
	}
	return false
}

// CodeOf returns the first code found on err, or "" when it carries none.
func CodeOf(err error) ErrorCode {
	var coded *Error
	if !errors.As(err, &coded) {
		return ""
	}
	return coded.Code
}

func structuralError(op string, albumID uint, format string, args ...any) error {
	return NewError(CodeStructural, op, albumID, fmt.Sprintf(format, args...), nil)
}
