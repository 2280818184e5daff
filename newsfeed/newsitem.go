package newsfeed

import (
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// NewsItem is one article from the content API. String fields are never
// absent: an empty string stands in for a missing value (an empty Author
// means no byline). Thumbnail is either decoded image bytes or nil.
//
// A NewsItem is built once by the decoder and not modified afterwards;
// callers receive copies and should treat Thumbnail as read-only.
type NewsItem struct {
	Title           string `json:"title"`
	Section         string `json:"section"`
	Author          string `json:"author"`
	PublicationDate string `json:"publication_date"`
	TrailText       string `json:"trail_text"`
	URL             string `json:"url"`
	Thumbnail       []byte `json:"thumbnail,omitempty"`
}

// HasThumbnail reports whether the item carries image bytes.
func (n NewsItem) HasThumbnail() bool {
	return len(n.Thumbnail) > 0
}

// ThumbnailContentType sniffs the MIME type of the thumbnail. Returns "" when
// there is no thumbnail.
func (n NewsItem) ThumbnailContentType() string {
	if !n.HasThumbnail() {
		return ""
	}
	return http.DetectContentType(n.Thumbnail)
}

// PublishedAt parses PublicationDate as an ISO-8601 timestamp (for example
// 2016-01-01T00:00:00Z).
func (n NewsItem) PublishedAt() (time.Time, error) {
	return time.Parse(time.RFC3339, n.PublicationDate)
}

// PlainTrailText returns the trail text with HTML markup removed and
// whitespace collapsed.
func (n NewsItem) PlainTrailText() string {
	if !strings.ContainsAny(n.TrailText, "<&") {
		return strings.Join(strings.Fields(n.TrailText), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(n.TrailText))
	if err != nil {
		// Malformed markup: fall back to the raw text
		return strings.Join(strings.Fields(n.TrailText), " ")
	}

	return strings.Join(strings.Fields(doc.Text()), " ")
}
