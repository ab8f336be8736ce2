package sheet

import (
	"errors"
	"fmt"
)

// Kind classifies reader failures surfaced to callers.
type Kind string

// Error kinds.
const (
	KindSourceUnavailable Kind = "SourceUnavailable"
	KindSheetNotFound     Kind = "SheetNotFound"
	KindParseFailed       Kind = "ParseFailed"
)

// Sentinel errors matched by errors.Is against *Error.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSheetNotFound     = errors.New("sheet not found")
	ErrParseFailed       = errors.New("parse failed")
)

// Error is a structural reader failure with a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrSourceUnavailable:
		return e.Kind == KindSourceUnavailable
	case ErrSheetNotFound:
		return e.Kind == KindSheetNotFound
	case ErrParseFailed:
		return e.Kind == KindParseFailed
	}
	return false
}

func sourceUnavailable(err error, format string, args ...any) *Error {
	return &Error{Kind: KindSourceUnavailable, Msg: fmt.Sprintf(format, args...), Err: err}
}

func sheetNotFound(name string, available []string) *Error {
	return &Error{Kind: KindSheetNotFound, Msg: fmt.Sprintf("sheet %q not found (available: %v)", name, available)}
}

func parseFailed(err error, format string, args ...any) *Error {
	return &Error{Kind: KindParseFailed, Msg: fmt.Sprintf(format, args...), Err: err}
}
