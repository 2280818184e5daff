// Package loader runs fetch-then-decode off the caller's goroutine and hands
// back a Result that says whether there is data, and if not, why.
package loader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newsapp/decoder"
	"github.com/pevans/newsapp/fetcher"
	"github.com/sirupsen/logrus"
)

// Fetcher returns the response text for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Decoder turns response text into items.
type Decoder interface {
	Decode(ctx context.Context, text string) (*decoder.Result, error)
}

// Recorder persists load outcomes for diagnostics.
type Recorder interface {
	Record(ctx context.Context, r *Result) error
}

// Loader coordinates a Fetcher and a Decoder. Synchronous Load calls are
// independent; background Start calls are numbered, and only the result of
// the most recently started load is delivered.
type Loader struct {
	fetcher  Fetcher
	decoder  Decoder
	recorder Recorder
	log      logrus.FieldLogger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc

	deliverMu sync.Mutex
	delivered uint64

	wg sync.WaitGroup
}

// Option configures a Loader.
type Option func(*Loader)

// WithRecorder records every load outcome.
func WithRecorder(r Recorder) Option {
	return func(l *Loader) {
		l.recorder = r
	}
}

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// New creates a Loader.
func New(f Fetcher, d Decoder, opts ...Option) *Loader {
	l := &Loader{
		fetcher: f,
		decoder: d,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches and decodes url on the calling goroutine. It never panics on
// a failed fetch or decode; the failure is described by the Result. An empty
// url returns StatusNoURL without any I/O.
func (l *Loader) Load(ctx context.Context, url string) *Result {
	return l.load(ctx, 0, url)
}

// Start runs a load in the background and calls deliver with its result. It
// cancels any load previously started on this Loader, and a result whose
// generation is no longer the latest is dropped rather than delivered.
// Returns the generation assigned to this load.
func (l *Loader) Start(ctx context.Context, url string, deliver func(*Result)) uint64 {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.generation++
	gen := l.generation
	loadCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer cancel()

		result := l.load(loadCtx, gen, url)
		l.deliver(result, deliver)
	}()

	return gen
}

// deliver hands result to fn unless a newer load has been started or
// delivered since.
func (l *Loader) deliver(result *Result, fn func(*Result)) {
	l.deliverMu.Lock()
	defer l.deliverMu.Unlock()

	latest := l.Generation()
	if result.Generation != latest || result.Generation <= l.delivered {
		l.log.WithFields(logrus.Fields{
			"generation": result.Generation,
			"latest":     latest,
			"status":     result.Status.String(),
		}).Info("Dropping stale load result")
		return
	}

	l.delivered = result.Generation
	if fn != nil {
		fn(result)
	}
}

// Generation returns the generation of the most recently started load.
func (l *Loader) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation
}

// Cancel cancels the in-flight background load, if any.
func (l *Loader) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// Wait blocks until every background load has finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}

func (l *Loader) load(ctx context.Context, gen uint64, url string) *Result {
	result := &Result{
		ID:         uuid.New(),
		Generation: gen,
		URL:        url,
		StartedAt:  time.Now(),
	}
	defer l.record(ctx, result)

	if url == "" {
		result.Status = StatusNoURL
		result.FinishedAt = time.Now()
		return result
	}

	text, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		result.Err = err
		result.HTTPStatus = fetcher.StatusCode(err)
		result.Status = classifyFetchError(ctx, err)
		result.FinishedAt = time.Now()
		l.logFailure(result)
		return result
	}

	decoded, err := l.decoder.Decode(ctx, text)
	if err != nil {
		result.Err = err
		result.Status = classifyDecodeError(err)
		result.FinishedAt = time.Now()
		l.logFailure(result)
		return result
	}

	result.Items = decoded.Items
	result.Skipped = len(decoded.Skipped)
	result.ThumbnailFailures = len(decoded.ThumbnailErrors)
	result.Status = StatusOK
	if len(result.Items) == 0 {
		result.Status = StatusEmpty
	}
	result.FinishedAt = time.Now()

	l.log.WithFields(logrus.Fields{
		"url":                url,
		"generation":         gen,
		"items":              len(result.Items),
		"skipped":            result.Skipped,
		"thumbnail_failures": result.ThumbnailFailures,
		"duration":           result.Duration().String(),
	}).Info("Loaded news items")

	return result
}

func classifyFetchError(ctx context.Context, err error) Status {
	switch {
	case ctx.Err() != nil:
		return StatusCanceled
	case errors.Is(err, fetcher.ErrIO):
		return StatusNoNetwork
	default:
		return StatusFetchError
	}
}

func classifyDecodeError(err error) Status {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	default:
		// Includes decoder.ErrNoInput: a 200 with an empty body
		return StatusParseError
	}
}

func (l *Loader) logFailure(result *Result) {
	entry := l.log.WithFields(logrus.Fields{
		"url":        result.URL,
		"generation": result.Generation,
		"status":     result.Status.String(),
	})
	if result.HTTPStatus != 0 {
		entry = entry.WithField("status_code", result.HTTPStatus)
	}

	if result.Status == StatusCanceled {
		entry.WithError(result.Err).Info("Load cancelled")
		return
	}
	entry.WithError(result.Err).Error("Problem loading news items")
}

func (l *Loader) record(ctx context.Context, result *Result) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.Record(context.WithoutCancel(ctx), result); err != nil {
		l.log.WithError(err).WithField("load_id", result.ID.String()).Warn("Failed to record load")
	}
}
