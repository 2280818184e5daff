package newsfeed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainTrailText(t *testing.T) {
	tests := []struct {
		name      string
		trailText string
		expected  string
	}{
		{"plain text", "Buckeyes win again", "Buckeyes win again"},
		{"markup removed", "<p>Buckeyes <strong>win</strong> again</p>", "Buckeyes win again"},
		{"entities decoded", "Ohio State &amp; Michigan", "Ohio State & Michigan"},
		{"whitespace collapsed", "  line one\n\tline two  ", "line one line two"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := NewsItem{TrailText: tt.trailText}
			assert.Equal(t, tt.expected, item.PlainTrailText())
		})
	}
}

func TestPublishedAt(t *testing.T) {
	item := NewsItem{PublicationDate: "2016-01-01T00:00:00Z"}

	got, err := item.PublishedAt()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC), got)

	item.PublicationDate = "yesterday"
	_, err = item.PublishedAt()
	assert.Error(t, err)
}

func TestThumbnailHelpers(t *testing.T) {
	item := NewsItem{}
	assert.False(t, item.HasThumbnail())
	assert.Equal(t, "", item.ThumbnailContentType())

	item.Thumbnail = []byte("\x89PNG\r\n\x1a\n0000")
	assert.True(t, item.HasThumbnail())
	assert.Equal(t, "image/png", item.ThumbnailContentType())
}
