package decoder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/pevans/newsapp/newsfeed"
)

// parseFeed maps RSS or Atom items onto news items. gofeed normalizes both
// formats, so section comes from the first category, author from the
// author, authors or dc:creator elements, and the thumbnail from the item
// image or the widest media:content.
func (d *Decoder) parseFeed(text string) ([]entry, []EntryError, error) {
	feed, err := gofeed.NewParser().ParseString(text)
	if err != nil {
		return nil, nil, &ParseError{Reason: "invalid feed", Err: err}
	}

	entries := make([]entry, 0, len(feed.Items))
	var skipped []EntryError

	for i, it := range feed.Items {
		if it == nil {
			err := errors.New("entry is null")
			if d.opts.Strict {
				return nil, nil, &ParseError{Reason: fmt.Sprintf("entry %d", i), Err: err}
			}
			skipped = append(skipped, EntryError{Index: i, Err: err})
			continue
		}

		if d.opts.Strict {
			if it.Title == "" {
				return nil, nil, &ParseError{Reason: fmt.Sprintf("entry %d", i), Err: fmt.Errorf("missing field %q", "title")}
			}
			if it.Link == "" {
				return nil, nil, &ParseError{Reason: fmt.Sprintf("entry %d", i), Err: fmt.Errorf("missing field %q", "link")}
			}
		}

		entries = append(entries, entry{
			item: newsfeed.NewsItem{
				Title:           it.Title,
				Section:         feedSection(it, feed.Title),
				Author:          feedAuthor(it),
				PublicationDate: feedDate(it),
				TrailText:       it.Description,
				URL:             it.Link,
			},
			thumbnailURL: feedThumbnail(it),
		})
	}

	return entries, skipped, nil
}

func feedSection(it *gofeed.Item, feedTitle string) string {
	for _, c := range it.Categories {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return feedTitle
}

func feedAuthor(it *gofeed.Item) string {
	if it.Author != nil && it.Author.Name != "" {
		return it.Author.Name
	}
	for _, a := range it.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	if it.DublinCoreExt != nil {
		for _, creator := range it.DublinCoreExt.Creator {
			if creator != "" {
				return creator
			}
		}
	}
	return ""
}

// feedDate renders the parsed date as ISO-8601 UTC, falling back to the raw
// element text when gofeed could not parse it.
func feedDate(it *gofeed.Item) string {
	switch {
	case it.PublishedParsed != nil:
		return it.PublishedParsed.UTC().Format(time.RFC3339)
	case it.UpdatedParsed != nil:
		return it.UpdatedParsed.UTC().Format(time.RFC3339)
	case it.Published != "":
		return it.Published
	default:
		return it.Updated
	}
}

func feedThumbnail(it *gofeed.Item) string {
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}

	best, bestWidth := "", -1
	for _, content := range it.Extensions["media"]["content"] {
		u := content.Attrs["url"]
		if u == "" {
			continue
		}
		width, err := strconv.Atoi(content.Attrs["width"])
		if err != nil {
			width = 0
		}
		if width > bestWidth {
			best, bestWidth = u, width
		}
	}
	return best
}
