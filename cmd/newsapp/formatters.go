package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/pevans/newsapp/diagnostics"
	"github.com/pevans/newsapp/newsfeed"
)

// printItems writes items in the named format
func printItems(format string, items []indexedItem, total, offset int) error {
	switch format {
	case "json":
		printListJSON(items, total)
	case "compact":
		printListCompact(items)
	case "table":
		printListTable(items, total, offset)
	default:
		return fmt.Errorf("invalid format: %s (must be table, json, or compact)", format)
	}
	return nil
}

// printListTable prints items in human-readable table format
func printListTable(items []indexedItem, total, offset int) {
	if len(items) == 0 {
		fmt.Println("No items to display.")
		return
	}

	fmt.Printf("Showing %d-%d of %d items\n\n", offset+1, offset+len(items), total)

	for _, it := range items {
		item := it.Item

		marker := " "
		if item.HasThumbnail() {
			marker = "▣"
		}

		author := item.Author
		if author == "" {
			author = "Unknown"
		}

		fmt.Printf("%s [%d] %s\n", marker, it.Index, truncate(item.Title, 70))
		fmt.Printf("   %s | %s | Published: %s\n", item.Section, author, displayDate(item))
		if summary := item.PlainTrailText(); summary != "" {
			fmt.Printf("   %s\n", truncate(summary, 150))
		}
		fmt.Printf("   URL: %s\n", item.URL)
		fmt.Println()
	}
}

// printListJSON prints items in JSON format. Thumbnails are reduced to a flag.
func printListJSON(items []indexedItem, total int) {
	type jsonItem struct {
		Index           int    `json:"index"`
		Title           string `json:"title"`
		Section         string `json:"section"`
		Author          string `json:"author"`
		PublicationDate string `json:"publication_date"`
		TrailText       string `json:"trail_text"`
		URL             string `json:"url"`
		HasThumbnail    bool   `json:"has_thumbnail"`
	}

	out := make([]jsonItem, 0, len(items))
	for _, it := range items {
		out = append(out, jsonItem{
			Index:           it.Index,
			Title:           it.Item.Title,
			Section:         it.Item.Section,
			Author:          it.Item.Author,
			PublicationDate: it.Item.PublicationDate,
			TrailText:       it.Item.TrailText,
			URL:             it.Item.URL,
			HasThumbnail:    it.Item.HasThumbnail(),
		})
	}

	printJSON(map[string]any{
		"items": out,
		"total": total,
	})
}

// printListCompact prints items in compact format
func printListCompact(items []indexedItem) {
	if len(items) == 0 {
		fmt.Println("No items to display.")
		return
	}

	for _, it := range items {
		fmt.Printf("%4d %s (%s)\n", it.Index, it.Item.Title, it.Item.Section)
	}
}

// printItemDetail prints a single item
func printItemDetail(index int, item *newsfeed.NewsItem) {
	rule := strings.Repeat("━", 78)

	fmt.Println(rule)
	fmt.Println(item.Title)
	fmt.Println(rule)
	fmt.Println()

	fmt.Printf("Section:     %s\n", item.Section)
	if item.Author != "" {
		fmt.Printf("Author:      %s\n", item.Author)
	} else {
		fmt.Println("Author:      Unknown")
	}
	fmt.Printf("Published:   %s\n", displayDate(*item))
	fmt.Println()

	fmt.Printf("URL:         %s\n", item.URL)
	if item.HasThumbnail() {
		fmt.Printf("Thumbnail:   %s, %d bytes\n", item.ThumbnailContentType(), len(item.Thumbnail))
	} else {
		fmt.Println("Thumbnail:   None")
	}
	fmt.Println()

	if summary := item.PlainTrailText(); summary != "" {
		fmt.Println("Summary:")
		fmt.Println(wrapText(summary, 80))
		fmt.Println()
	}

	fmt.Printf("Index:       %d\n", index)
}

// printLoadsTable prints the load history
func printLoadsTable(loads []diagnostics.LoadRecord) {
	if len(loads) == 0 {
		fmt.Println("No loads recorded.")
		return
	}

	fmt.Printf("%-20s %-12s %6s %7s %6s %8s  %s\n", "STARTED", "STATUS", "ITEMS", "SKIPPED", "THUMBS", "DURATION", "DETAIL")
	fmt.Println(strings.Repeat("-", 100))

	for _, rec := range loads {
		detail := ""
		if rec.HTTPStatus != 0 {
			detail = fmt.Sprintf("HTTP %d", rec.HTTPStatus)
		} else if rec.Error != nil {
			detail = truncate(*rec.Error, 40)
		}

		fmt.Printf("%-20s %-12s %6d %7d %6d %8s  %s\n",
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Status,
			rec.ItemCount,
			rec.SkippedEntries,
			rec.ThumbnailFailures,
			rec.Duration().Round(time.Millisecond).String(),
			detail,
		)
	}
}

// formatSummary renders per-status load counts, one line per status in name
// order
func formatSummary(counts map[string]int) string {
	if len(counts) == 0 {
		return "No loads recorded.\n"
	}

	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(&b, "%-12s %d\n", name, counts[name])
	}
	return b.String()
}

// printJSON prints v as indented JSON or exits
func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(data))
}

// displayDate formats the publication date for people, falling back to the
// raw string
func displayDate(item newsfeed.NewsItem) string {
	if t, err := item.PublishedAt(); err == nil {
		return t.Local().Format("2006-01-02 15:04")
	}
	return item.PublicationDate
}

// wrapText wraps text to a maximum line width
func wrapText(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	var lines []string
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len() == 0 {
			currentLine.WriteString(word)
		} else if currentLine.Len()+1+len(word) <= width {
			currentLine.WriteString(" ")
			currentLine.WriteString(word)
		} else {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
			currentLine.WriteString(word)
		}
	}

	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n")
}
