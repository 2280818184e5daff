package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pevans/newsapp/newsfeed"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// loadThumbnails fetches every non-empty thumbnail URL, at most
// opts.Concurrency at a time, and stores the bytes on the item at the same
// index. A failed thumbnail leaves that item's Thumbnail nil. Only context
// cancellation is returned as an error.
func (d *Decoder) loadThumbnails(ctx context.Context, items []newsfeed.NewsItem, urls []string) ([]ThumbnailError, error) {
	if d.thumbs == nil {
		return nil, ctx.Err()
	}

	failures := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)

	for i, u := range urls {
		if u == "" {
			continue
		}
		// Stop scheduling once cancelled; in-flight fetches see ctx too
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			data, err := d.fetchThumbnail(ctx, u)
			if err != nil {
				failures[i] = err
				return nil
			}
			items[i].Thumbnail = data
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var thumbErrs []ThumbnailError
	for i, err := range failures {
		if err == nil {
			continue
		}
		thumbErrs = append(thumbErrs, ThumbnailError{Index: i, URL: urls[i], Err: err})
		d.log.WithFields(logrus.Fields{
			"index": i,
			"url":   urls[i],
		}).WithError(err).Warn("Thumbnail unavailable")
	}

	return thumbErrs, nil
}

// fetchThumbnail returns the image bytes only when the whole image decodes.
// A readable header over truncated pixel data is rejected.
func (d *Decoder) fetchThumbnail(ctx context.Context, url string) ([]byte, error) {
	data, err := d.thumbs.FetchThumbnail(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return data, nil
}
