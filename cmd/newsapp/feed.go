package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pevans/newsapp/config"
	"github.com/pevans/newsapp/decoder"
	"github.com/pevans/newsapp/loader"
	"github.com/pevans/newsapp/newsfeed"
	"github.com/sirupsen/logrus"
)

func handleLoad(cfg *config.Config, log *logrus.Logger, args []string) {
	// Parse flags for load command
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	url := fs.String("url", cfg.Request.URL, "Query URL to load")
	format := fs.String("format", "table", "Output format: table, json, compact, none")
	source := fs.String("source", cfg.Request.Format, "Response format: json or feed")
	strict := fs.Bool("strict", cfg.Decode.Strict, "Fail the whole load on any malformed entry")
	noStore := fs.Bool("no-store", false, "Do not replace the stored items")
	noHistory := fs.Bool("no-history", false, "Do not record the load in the history")
	fs.Parse(args)

	cfg.Request.Format = *source
	cfg.Decode.Strict = *strict
	if *source != decoder.FormatJSON && *source != decoder.FormatFeed {
		fmt.Fprintf(os.Stderr, "Error: invalid source format: %s (must be json or feed)\n", *source)
		os.Exit(1)
	}

	var recorder loader.Recorder
	if !*noHistory {
		history := openHistory(cfg)
		defer history.Close()
		recorder = history
	}

	l := newLoader(cfg, log, recorder)

	// Ctrl-C cancels the in-flight load
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result := l.Load(ctx, *url)

	if !result.Status.HasData() {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describeFailure(result))
		os.Exit(1)
	}

	if !*noStore {
		feed := openFeed(cfg)
		if err := feed.Replace(result.URL, result.Items); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to store news items: %v\n", err)
			os.Exit(1)
		}
	}

	if *format != "none" {
		indexed := make([]indexedItem, len(result.Items))
		for i, item := range result.Items {
			indexed[i] = indexedItem{Index: i, Item: item}
		}
		if err := printItems(*format, indexed, len(indexed), 0); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if result.Skipped > 0 || result.ThumbnailFailures > 0 {
		fmt.Fprintf(os.Stderr, "\nWarning: %d malformed entr(ies) skipped, %d thumbnail(s) unavailable\n",
			result.Skipped, result.ThumbnailFailures)
	}
}

// describeFailure explains a load that produced no data.
func describeFailure(result *loader.Result) string {
	switch result.Status {
	case loader.StatusNoURL:
		return "no request URL is configured"
	case loader.StatusNoNetwork:
		return fmt.Sprintf("network unavailable: %v", result.Err)
	case loader.StatusFetchError:
		if result.HTTPStatus != 0 {
			return fmt.Sprintf("server answered HTTP %d", result.HTTPStatus)
		}
		return fmt.Sprintf("fetch failed: %v", result.Err)
	case loader.StatusParseError:
		if errors.Is(result.Err, decoder.ErrNoInput) {
			return "server returned an empty response"
		}
		return fmt.Sprintf("could not parse response: %v", result.Err)
	case loader.StatusCanceled:
		return "load cancelled"
	default:
		return fmt.Sprintf("load failed (%s): %v", result.Status, result.Err)
	}
}

func handleList(cfg *config.Config, args []string) {
	// Parse flags for list command
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	section := fs.String("section", "", "Filter by section name")
	limit := fs.Int("limit", 20, "Maximum number of items to display")
	offset := fs.Int("offset", 0, "Number of items to skip")
	format := fs.String("format", "table", "Output format: table, json, compact")
	fs.Parse(args)

	if *limit <= 0 || *offset < 0 {
		fmt.Fprintf(os.Stderr, "Error: limit must be positive and offset non-negative\n")
		os.Exit(1)
	}

	feed := openFeed(cfg)

	items, err := feed.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list news items: %v\n", err)
		os.Exit(1)
	}

	// Keep each item's position so `show` can find it
	var filtered []indexedItem
	for i, item := range items {
		if *section != "" && !strings.EqualFold(item.Section, *section) {
			continue
		}
		filtered = append(filtered, indexedItem{Index: i, Item: item})
	}

	total := len(filtered)
	if *offset >= total {
		fmt.Println("No items to display.")
		return
	}

	end := min(*offset+*limit, total)
	paged := filtered[*offset:end]

	if err := printItems(*format, paged, total, *offset); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func handleShow(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: item index is required\n")
		fmt.Fprintf(os.Stderr, "Usage: newsapp show <index>\n")
		os.Exit(1)
	}

	index, err := parseIndex(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	feed := openFeed(cfg)

	item, err := feed.Get(index)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to get news item: %v\n", err)
		os.Exit(1)
	}
	if item == nil {
		fmt.Fprintf(os.Stderr, "Error: news item not found: %d\n", index)
		os.Exit(1)
	}

	printItemDetail(index, item)
}

// indexedItem pairs an item with its position in the stored set.
type indexedItem struct {
	Index int               `json:"index"`
	Item  newsfeed.NewsItem `json:"item"`
}
