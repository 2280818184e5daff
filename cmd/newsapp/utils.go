package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pevans/newsapp/config"
	"github.com/pevans/newsapp/decoder"
	"github.com/pevans/newsapp/diagnostics"
	"github.com/pevans/newsapp/fetcher"
	"github.com/pevans/newsapp/loader"
	"github.com/pevans/newsapp/newsfeed"
	"github.com/sirupsen/logrus"
)

// openFeed opens the item store or exits.
func openFeed(cfg *config.Config) *newsfeed.NewsFeed {
	feed, err := newsfeed.NewNewsFeed(cfg.Storage.FeedDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open news feed: %v\n", err)
		os.Exit(1)
	}
	return feed
}

// openHistory opens the diagnostics store or exits.
func openHistory(cfg *config.Config) *diagnostics.Store {
	store, err := diagnostics.NewStore(cfg.Storage.DiagnosticsDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open load history: %v\n", err)
		os.Exit(1)
	}
	return store
}

// newLoader wires a fetcher and decoder from cfg. A nil recorder disables
// load history.
func newLoader(cfg *config.Config, log logrus.FieldLogger, recorder loader.Recorder) *loader.Loader {
	f := fetcher.New(cfg.FetchOptions())
	d := decoder.New(f, cfg.DecodeOptions(), log)

	opts := []loader.Option{loader.WithLogger(log)}
	if recorder != nil {
		opts = append(opts, loader.WithRecorder(recorder))
	}

	return loader.New(f, d, opts...)
}

// parseIndex parses a non-negative item index.
func parseIndex(s string) (int, error) {
	index, err := strconv.Atoi(s)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("invalid item index: %s", s)
	}
	return index, nil
}

// truncate shortens s to at most n bytes, marking the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
