package loader

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newsapp/newsfeed"
)

// Status is the outcome of a load as seen by the caller.
type Status int

const (
	// StatusOK means at least one item was decoded.
	StatusOK Status = iota
	// StatusEmpty means the response decoded to zero items.
	StatusEmpty
	// StatusNoURL means no URL was given and nothing was attempted.
	StatusNoURL
	// StatusNoNetwork means the request failed below HTTP (connect, DNS,
	// timeout, reset).
	StatusNoNetwork
	// StatusFetchError means the URL was invalid or the server answered with
	// a status other than 200.
	StatusFetchError
	// StatusParseError means the response could not be decoded.
	StatusParseError
	// StatusCanceled means the load was cancelled or superseded.
	StatusCanceled
)

var statusNames = map[Status]string{
	StatusOK:         "ok",
	StatusEmpty:      "empty",
	StatusNoURL:      "no_url",
	StatusNoNetwork:  "no_network",
	StatusFetchError: "fetch_error",
	StatusParseError: "parse_error",
	StatusCanceled:   "canceled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// HasData reports whether the load produced an item list (possibly empty).
func (s Status) HasData() bool {
	return s == StatusOK || s == StatusEmpty
}

// Result is what a load delivers. Items is non-nil exactly when
// Status.HasData() is true; otherwise Err says what went wrong.
type Result struct {
	ID                uuid.UUID
	Generation        uint64
	URL               string
	Status            Status
	Items             []newsfeed.NewsItem
	Err               error
	HTTPStatus        int
	Skipped           int
	ThumbnailFailures int
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Duration returns how long the load took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
