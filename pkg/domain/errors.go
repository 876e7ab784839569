package domain

import (
	"errors"
	"fmt"
)

// sentinel errors for conditions the HTTP layer maps to status codes,
// checked with errors.Is after any amount of wrapping
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrValidation = errors.New("invalid input")
)

// FetchError indicates the remote feed could not be retrieved,
// either a transport failure or a non-2xx status.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError indicates the retrieved bytes are not a valid RSS/Atom feed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
