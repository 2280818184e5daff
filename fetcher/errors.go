package fetcher

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure.
type Kind int

const (
	// KindInvalidURL means the request URL could not be used.
	KindInvalidURL Kind = iota + 1
	// KindHTTPStatus means the server answered with a status other than 200.
	KindHTTPStatus
	// KindIO covers connection, DNS, timeout and read failures.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid_url"
	case KindHTTPStatus:
		return "http_status"
	case KindIO:
		return "io_failure"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against a *FetchError.
var (
	ErrInvalidURL = errors.New("invalid url")
	ErrHTTPStatus = errors.New("unexpected http status")
	ErrIO         = errors.New("i/o failure")
)

// FetchError describes a failed fetch. StatusCode is set only for
// KindHTTPStatus.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("GET %s: HTTP error: %d", e.URL, e.StatusCode)
	case KindInvalidURL:
		return fmt.Sprintf("invalid url %q: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches the Kind sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrInvalidURL:
		return e.Kind == KindInvalidURL
	case ErrHTTPStatus:
		return e.Kind == KindHTTPStatus
	case ErrIO:
		return e.Kind == KindIO
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an
// HTTP status failure.
func StatusCode(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind == KindHTTPStatus {
		return fe.StatusCode
	}
	return 0
}
