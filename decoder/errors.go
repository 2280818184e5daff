package decoder

import (
	"errors"
	"fmt"
)

// ErrNoInput is returned for empty response text. It means "no result", which
// is different from a successful decode of zero entries.
var ErrNoInput = errors.New("empty response text")

// ErrParse matches any *ParseError via errors.Is.
var ErrParse = errors.New("parse failure")

// ParseError is a structural failure that invalidates the whole batch.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse news results: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to parse news results: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// EntryError describes a result entry that was skipped.
type EntryError struct {
	Index int
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %d: %v", e.Index, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// ThumbnailError describes a thumbnail that could not be fetched or decoded.
// It never aborts the batch; the item keeps a nil thumbnail.
type ThumbnailError struct {
	Index int
	URL   string
	Err   error
}

func (e *ThumbnailError) Error() string {
	return fmt.Sprintf("thumbnail for entry %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *ThumbnailError) Unwrap() error {
	return e.Err
}
