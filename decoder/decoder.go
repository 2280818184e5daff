// Package decoder turns content API response text into news items.
package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pevans/newsapp/newsfeed"
	"github.com/sirupsen/logrus"
)

// Supported response formats.
const (
	FormatJSON = "json" // content API search response
	FormatFeed = "feed" // RSS or Atom
)

// DefaultConcurrency is the number of thumbnails fetched in parallel.
const DefaultConcurrency = 4

// ThumbnailFetcher retrieves the raw bytes behind a thumbnail URL.
type ThumbnailFetcher interface {
	FetchThumbnail(ctx context.Context, url string) ([]byte, error)
}

// Options controls decoding.
type Options struct {
	// Format is FormatJSON or FormatFeed. Empty means FormatJSON.
	Format string
	// Strict aborts the whole batch on any malformed entry or missing field
	// (thumbnail excepted). When false, malformed entries are skipped and
	// missing strings become "".
	Strict bool
	// Concurrency bounds parallel thumbnail fetches. 1 fetches them one at a
	// time in array order.
	Concurrency int
}

// DefaultOptions returns lenient JSON decoding with the default concurrency.
func DefaultOptions() *Options {
	return &Options{
		Format:      FormatJSON,
		Concurrency: DefaultConcurrency,
	}
}

// Result holds the decoded items in response order, plus the per-entry
// failures that did not abort the batch.
type Result struct {
	Items           []newsfeed.NewsItem
	Skipped         []EntryError
	ThumbnailErrors []ThumbnailError
}

// Decoder parses response text and resolves thumbnails.
type Decoder struct {
	thumbs ThumbnailFetcher
	opts   Options
	log    logrus.FieldLogger
}

// entry is a parsed result before its thumbnail is resolved.
type entry struct {
	item         newsfeed.NewsItem
	thumbnailURL string
}

// New creates a Decoder. thumbs may be nil, in which case no thumbnails are
// fetched. A nil log uses the logrus standard logger.
func New(thumbs ThumbnailFetcher, opts *Options, log logrus.FieldLogger) *Decoder {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Format == "" {
		o.Format = FormatJSON
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Decoder{
		thumbs: thumbs,
		opts:   o,
		log:    log,
	}
}

// Decode parses text into items. Empty text returns ErrNoInput; a structural
// failure returns a *ParseError and no items. A successful decode of zero
// entries returns an empty, non-nil Items slice.
func (d *Decoder) Decode(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoInput
	}

	var (
		entries []entry
		skipped []EntryError
		err     error
	)
	switch d.opts.Format {
	case FormatJSON:
		entries, skipped, err = d.parseContentAPI(text)
	case FormatFeed:
		entries, skipped, err = d.parseFeed(text)
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unsupported format %q", d.opts.Format)}
	}
	if err != nil {
		d.log.WithError(err).Error("Problem parsing the news item results")
		return nil, err
	}

	for _, s := range skipped {
		d.log.WithFields(logrus.Fields{"index": s.Index}).WithError(s.Err).Warn("Skipping malformed result entry")
	}

	items := make([]newsfeed.NewsItem, len(entries))
	urls := make([]string, len(entries))
	for i, e := range entries {
		items[i] = e.item
		urls[i] = e.thumbnailURL
	}

	thumbErrs, err := d.loadThumbnails(ctx, items, urls)
	if err != nil {
		return nil, err
	}

	return &Result{
		Items:           items,
		Skipped:         skipped,
		ThumbnailErrors: thumbErrs,
	}, nil
}

// Content API response shape. Pointers distinguish a missing key from an
// empty value.
type apiEnvelope struct {
	Response *apiResponse `json:"response"`
}

type apiResponse struct {
	Results *[]json.RawMessage `json:"results"`
}

type apiResult struct {
	WebTitle           *string    `json:"webTitle"`
	SectionName        *string    `json:"sectionName"`
	WebPublicationDate *string    `json:"webPublicationDate"`
	Fields             *apiFields `json:"fields"`
}

type apiFields struct {
	Byline    *string `json:"byline"`
	TrailText *string `json:"trailText"`
	ShortURL  *string `json:"shortUrl"`
	Thumbnail *string `json:"thumbnail"`
}

// parseContentAPI walks response.results[]. A missing or mistyped
// response/results path is fatal; entries are handled per Options.Strict.
func (d *Decoder) parseContentAPI(text string) ([]entry, []EntryError, error) {
	var envelope apiEnvelope
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, nil, &ParseError{Reason: "invalid response document", Err: err}
	}
	if envelope.Response == nil {
		return nil, nil, &ParseError{Reason: `missing "response" object`}
	}
	if envelope.Response.Results == nil {
		return nil, nil, &ParseError{Reason: `missing "results" array`}
	}

	results := *envelope.Response.Results
	entries := make([]entry, 0, len(results))
	var skipped []EntryError

	for i, raw := range results {
		e, err := d.parseResult(raw)
		if err != nil {
			if d.opts.Strict {
				return nil, nil, &ParseError{Reason: fmt.Sprintf("entry %d", i), Err: err}
			}
			skipped = append(skipped, EntryError{Index: i, Err: err})
			continue
		}
		entries = append(entries, e)
	}

	return entries, skipped, nil
}

// parseResult converts one results[] element.
func (d *Decoder) parseResult(raw json.RawMessage) (entry, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return entry{}, errors.New("entry is null")
	}

	var r apiResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return entry{}, fmt.Errorf("malformed entry: %w", err)
	}

	if d.opts.Strict {
		if err := requireFields(r); err != nil {
			return entry{}, err
		}
	}

	fields := r.Fields
	if fields == nil {
		fields = &apiFields{}
	}

	e := entry{
		item: newsfeed.NewsItem{
			Title:           deref(r.WebTitle),
			Section:         deref(r.SectionName),
			Author:          deref(fields.Byline),
			PublicationDate: deref(r.WebPublicationDate),
			TrailText:       deref(fields.TrailText),
			URL:             deref(fields.ShortURL),
		},
		thumbnailURL: strings.TrimSpace(deref(fields.Thumbnail)),
	}

	return e, nil
}

// requireFields reports the first missing field. thumbnail is optional.
func requireFields(r apiResult) error {
	required := []struct {
		name  string
		value *string
	}{
		{"webTitle", r.WebTitle},
		{"sectionName", r.SectionName},
		{"webPublicationDate", r.WebPublicationDate},
	}
	for _, f := range required {
		if f.value == nil {
			return fmt.Errorf("missing field %q", f.name)
		}
	}

	if r.Fields == nil {
		return fmt.Errorf("missing field %q", "fields")
	}

	requiredFields := []struct {
		name  string
		value *string
	}{
		{"byline", r.Fields.Byline},
		{"trailText", r.Fields.TrailText},
		{"shortUrl", r.Fields.ShortURL},
	}
	for _, f := range requiredFields {
		if f.value == nil {
			return fmt.Errorf("missing field %q", "fields."+f.name)
		}
	}

	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
