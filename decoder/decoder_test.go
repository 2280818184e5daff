package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pevans/newsapp/fetcher"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: encode a tiny PNG
func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeThumbs serves canned thumbnail responses and records calls.
type fakeThumbs struct {
	mu       sync.Mutex
	images   map[string][]byte
	errs     map[string]error
	delay    time.Duration
	calls    []string
	inFlight int
	maxSeen  int
}

func (f *fakeThumbs) FetchThumbnail(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if data, ok := f.images[url]; ok {
		return data, nil
	}
	return nil, errors.New("not found")
}

// Test helper: build one results[] element as JSON
func resultJSON(title, thumbnail string) string {
	thumb := ""
	if thumbnail != "" {
		thumb = fmt.Sprintf(`,"thumbnail":%q`, thumbnail)
	}
	return fmt.Sprintf(`{"webTitle":%q,"sectionName":"Sport","webPublicationDate":"2016-01-01T00:00:00Z",`+
		`"fields":{"byline":"Jane Doe","trailText":"<p>Trail %s</p>","shortUrl":"https://gu.com/p/%s"%s}}`,
		title, title, title, thumb)
}

// Test helper: wrap results[] elements in the response envelope
func responseJSON(results ...string) string {
	return `{"response":{"status":"ok","results":[` + strings.Join(results, ",") + `]}}`
}

// Test helper: create a decoder with a null logger
func setupTestDecoder(thumbs ThumbnailFetcher, opts *Options) (*Decoder, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return New(thumbs, opts, logger), hook
}

// TestDecode_PreservesOrderAndCount verifies K entries produce K items in
// array order
func TestDecode_PreservesOrderAndCount(t *testing.T) {
	titles := []string{"E", "B", "D", "A", "C"}
	results := make([]string, 0, len(titles))
	for _, title := range titles {
		results = append(results, resultJSON(title, ""))
	}

	d, _ := setupTestDecoder(&fakeThumbs{}, nil)
	result, err := d.Decode(context.Background(), responseJSON(results...))
	require.NoError(t, err)
	require.Len(t, result.Items, len(titles))

	for i, title := range titles {
		assert.Equal(t, title, result.Items[i].Title, "item %d out of order", i)
	}
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.ThumbnailErrors)
}

// TestDecode_MapsFields verifies every field lands on the item
func TestDecode_MapsFields(t *testing.T) {
	d, _ := setupTestDecoder(nil, nil)
	result, err := d.Decode(context.Background(), responseJSON(resultJSON("A", "")))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	item := result.Items[0]
	assert.Equal(t, "A", item.Title)
	assert.Equal(t, "Sport", item.Section)
	assert.Equal(t, "Jane Doe", item.Author)
	assert.Equal(t, "2016-01-01T00:00:00Z", item.PublicationDate)
	assert.Equal(t, "<p>Trail A</p>", item.TrailText)
	assert.Equal(t, "https://gu.com/p/A", item.URL)
	assert.Nil(t, item.Thumbnail)
}

// TestDecode_NoInput verifies empty text is "no result"
func TestDecode_NoInput(t *testing.T) {
	d, _ := setupTestDecoder(nil, nil)

	for _, text := range []string{"", "   ", "\t"} {
		result, err := d.Decode(context.Background(), text)
		assert.ErrorIs(t, err, ErrNoInput)
		assert.Nil(t, result)
	}
}

// TestDecode_ZeroResults verifies an empty results array is an empty list,
// not "no result"
func TestDecode_ZeroResults(t *testing.T) {
	d, _ := setupTestDecoder(nil, nil)

	result, err := d.Decode(context.Background(), responseJSON())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotNil(t, result.Items)
	assert.Empty(t, result.Items)
}

// TestDecode_StructuralFailures verifies a broken response/results path
// aborts the whole batch
func TestDecode_StructuralFailures(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"missing response", `{"results":[` + resultJSON("A", "") + `]}`},
		{"null response", `{"response":null}`},
		{"missing results", `{"response":{"status":"ok"}}`},
		{"results not array", `{"response":{"results":{"webTitle":"A"}}}`},
		{"response not object", `{"response":"ok"}`},
		{"root array", `[` + resultJSON("A", "") + `]`},
		{"invalid json", `{"response":{"results":[`},
		{"not json", `<html>Service unavailable</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, hook := setupTestDecoder(&fakeThumbs{}, nil)

			result, err := d.Decode(context.Background(), tt.text)
			require.Error(t, err)
			assert.Nil(t, result, "no partial list should be surfaced")
			assert.ErrorIs(t, err, ErrParse)

			var pe *ParseError
			assert.True(t, errors.As(err, &pe))

			require.NotNil(t, hook.LastEntry())
			assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
		})
	}
}

// TestDecode_EmptyByline verifies an empty byline stays empty
func TestDecode_EmptyByline(t *testing.T) {
	text := responseJSON(`{"webTitle":"A","sectionName":"Sport","webPublicationDate":"2016-01-01T00:00:00Z",` +
		`"fields":{"byline":"","trailText":"t","shortUrl":"https://gu.com/p/a"}}`)

	for _, strict := range []bool{false, true} {
		d, _ := setupTestDecoder(nil, &Options{Strict: strict})
		result, err := d.Decode(context.Background(), text)
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "", result.Items[0].Author)
	}
}

// TestDecode_MissingLeafFields verifies lenient decoding substitutes empty
// strings for missing fields
func TestDecode_MissingLeafFields(t *testing.T) {
	text := responseJSON(
		`{"webTitle":"A","sectionName":"Sport","webPublicationDate":"2016-01-01T00:00:00Z","fields":{"trailText":"t","shortUrl":"u"}}`,
		`{"webTitle":"B"}`,
		resultJSON("C", ""),
	)

	d, _ := setupTestDecoder(nil, nil)
	result, err := d.Decode(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, result.Items, 3)

	assert.Equal(t, "", result.Items[0].Author)
	assert.Equal(t, "t", result.Items[0].TrailText)

	b := result.Items[1]
	assert.Equal(t, "B", b.Title)
	assert.Equal(t, "", b.Section)
	assert.Equal(t, "", b.PublicationDate)
	assert.Equal(t, "", b.Author)
	assert.Equal(t, "", b.TrailText)
	assert.Equal(t, "", b.URL)

	assert.Equal(t, "C", result.Items[2].Title)
}

// TestDecode_StrictMissingField verifies strict decoding aborts on any
// missing field
func TestDecode_StrictMissingField(t *testing.T) {
	tests := []struct {
		name    string
		entry   string
		missing string
	}{
		{"byline", `{"webTitle":"A","sectionName":"S","webPublicationDate":"d","fields":{"trailText":"t","shortUrl":"u"}}`, "fields.byline"},
		{"fields", `{"webTitle":"A","sectionName":"S","webPublicationDate":"d"}`, "fields"},
		{"webTitle", `{"sectionName":"S","webPublicationDate":"d","fields":{"byline":"b","trailText":"t","shortUrl":"u"}}`, "webTitle"},
		{"shortUrl", `{"webTitle":"A","sectionName":"S","webPublicationDate":"d","fields":{"byline":"b","trailText":"t"}}`, "fields.shortUrl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := setupTestDecoder(nil, &Options{Strict: true})

			result, err := d.Decode(context.Background(), responseJSON(resultJSON("ok", ""), tt.entry))
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, ErrParse)
			assert.Contains(t, err.Error(), tt.missing)
			assert.Contains(t, err.Error(), "entry 1")
		})
	}
}

// TestDecode_StrictThumbnailOptional verifies a missing thumbnail never
// aborts, even in strict mode
func TestDecode_StrictThumbnailOptional(t *testing.T) {
	d, _ := setupTestDecoder(&fakeThumbs{}, &Options{Strict: true})

	result, err := d.Decode(context.Background(), responseJSON(resultJSON("A", ""), resultJSON("B", "")))
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
}

// TestDecode_MalformedEntry verifies lenient decoding skips malformed
// entries and strict decoding aborts
func TestDecode_MalformedEntry(t *testing.T) {
	text := responseJSON(
		resultJSON("A", ""),
		`"not an object"`,
		`{"webTitle":42}`,
		`null`,
		resultJSON("B", ""),
	)

	d, hook := setupTestDecoder(nil, nil)
	result, err := d.Decode(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "A", result.Items[0].Title)
	assert.Equal(t, "B", result.Items[1].Title)

	require.Len(t, result.Skipped, 3)
	assert.Equal(t, 1, result.Skipped[0].Index)
	assert.Equal(t, 2, result.Skipped[1].Index)
	assert.Equal(t, 3, result.Skipped[2].Index)

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 3, warnings, "each skipped entry should be logged")

	strict, _ := setupTestDecoder(nil, &Options{Strict: true})
	result, err = strict.Decode(context.Background(), text)
	assert.ErrorIs(t, err, ErrParse)
	assert.Nil(t, result)
}

// TestDecode_Thumbnails verifies thumbnails are attached to the right items
func TestDecode_Thumbnails(t *testing.T) {
	img := samplePNG(t)
	thumbs := &fakeThumbs{images: map[string][]byte{
		"https://img/a.png": img,
		"https://img/c.png": img,
	}}

	d, _ := setupTestDecoder(thumbs, nil)
	result, err := d.Decode(context.Background(), responseJSON(
		resultJSON("A", "https://img/a.png"),
		resultJSON("B", ""),
		resultJSON("C", "https://img/c.png"),
	))
	require.NoError(t, err)
	require.Len(t, result.Items, 3)

	assert.Equal(t, img, result.Items[0].Thumbnail)
	assert.Nil(t, result.Items[1].Thumbnail, "no thumbnail URL means no thumbnail")
	assert.Equal(t, img, result.Items[2].Thumbnail)
	assert.ElementsMatch(t, []string{"https://img/a.png", "https://img/c.png"}, thumbs.calls)
}

// TestDecode_ThumbnailFailureIsolated verifies one failing thumbnail does not
// affect the rest of the batch
func TestDecode_ThumbnailFailureIsolated(t *testing.T) {
	img := samplePNG(t)
	thumbs := &fakeThumbs{
		images: map[string][]byte{
			"https://img/a.png":   img,
			"https://img/bad.png": []byte("definitely not an image"),
			"https://img/empty":   {},
		},
		errs: map[string]error{
			"https://img/404.png": errors.New("HTTP error: 404"),
		},
	}

	d, hook := setupTestDecoder(thumbs, nil)
	result, err := d.Decode(context.Background(), responseJSON(
		resultJSON("A", "https://img/a.png"),
		resultJSON("B", "https://img/404.png"),
		resultJSON("C", "https://img/bad.png"),
		resultJSON("D", "https://img/empty"),
	))
	require.NoError(t, err)
	require.Len(t, result.Items, 4, "thumbnail failures should never drop items")

	assert.Equal(t, img, result.Items[0].Thumbnail)
	assert.Nil(t, result.Items[1].Thumbnail)
	assert.Nil(t, result.Items[2].Thumbnail, "undecodable bytes should not be kept")
	assert.Nil(t, result.Items[3].Thumbnail)

	require.Len(t, result.ThumbnailErrors, 3)
	assert.Equal(t, 1, result.ThumbnailErrors[0].Index)
	assert.Equal(t, "https://img/404.png", result.ThumbnailErrors[0].URL)
	assert.Equal(t, 2, result.ThumbnailErrors[1].Index)
	assert.Contains(t, result.ThumbnailErrors[1].Error(), "failed to decode image")
	assert.Equal(t, 3, result.ThumbnailErrors[2].Index)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

// TestDecode_TruncatedThumbnail verifies an image whose header is intact but
// whose pixel data is cut short is not kept
func TestDecode_TruncatedThumbnail(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 64))))
	// PNG signature plus the IHDR chunk only
	truncated := buf.Bytes()[:40]

	_, _, err := image.DecodeConfig(bytes.NewReader(truncated))
	require.NoError(t, err, "the header alone should still parse")

	thumbs := &fakeThumbs{
		images: map[string][]byte{"https://img/cut.png": truncated},
	}

	d, _ := setupTestDecoder(thumbs, nil)
	result, err := d.Decode(context.Background(), responseJSON(
		resultJSON("A", "https://img/cut.png"),
	))
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	assert.Nil(t, result.Items[0].Thumbnail, "partial image data should not be kept")
	require.Len(t, result.ThumbnailErrors, 1)
	assert.Equal(t, 0, result.ThumbnailErrors[0].Index)
	assert.Contains(t, result.ThumbnailErrors[0].Error(), "failed to decode image")
}

// TestDecode_Thumbnail404OverHTTP verifies a thumbnail URL answering 404
// through the real fetcher leaves that item without a thumbnail
func TestDecode_Thumbnail404OverHTTP(t *testing.T) {
	img := samplePNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.png" {
			w.Header().Set("Content-Type", "image/png")
			w.Write(img)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d, _ := setupTestDecoder(fetcher.New(nil), nil)
	result, err := d.Decode(context.Background(), responseJSON(
		resultJSON("A", srv.URL+"/ok.png"),
		resultJSON("B", srv.URL+"/missing.png"),
		resultJSON("C", srv.URL+"/ok.png"),
	))
	require.NoError(t, err)
	require.Len(t, result.Items, 3)

	assert.Equal(t, img, result.Items[0].Thumbnail)
	assert.Nil(t, result.Items[1].Thumbnail)
	assert.Equal(t, img, result.Items[2].Thumbnail)

	require.Len(t, result.ThumbnailErrors, 1)
	assert.ErrorIs(t, &result.ThumbnailErrors[0], fetcher.ErrHTTPStatus)
	assert.Equal(t, http.StatusNotFound, fetcher.StatusCode(&result.ThumbnailErrors[0]))
}

// TestDecode_ThumbnailConcurrencyBound verifies the fan-out never exceeds the
// configured limit
func TestDecode_ThumbnailConcurrencyBound(t *testing.T) {
	img := samplePNG(t)
	images := map[string][]byte{}
	results := []string{}
	for i := range 10 {
		u := fmt.Sprintf("https://img/%d.png", i)
		images[u] = img
		results = append(results, resultJSON(fmt.Sprint(i), u))
	}

	thumbs := &fakeThumbs{images: images, delay: 20 * time.Millisecond}
	d, _ := setupTestDecoder(thumbs, &Options{Concurrency: 2})

	result, err := d.Decode(context.Background(), responseJSON(results...))
	require.NoError(t, err)
	require.Len(t, result.Items, 10)
	for _, item := range result.Items {
		assert.Equal(t, img, item.Thumbnail)
	}
	assert.LessOrEqual(t, thumbs.maxSeen, 2)
	assert.Len(t, thumbs.calls, 10)
}

// TestDecode_SequentialThumbnails verifies a concurrency of 1 fetches in
// array order
func TestDecode_SequentialThumbnails(t *testing.T) {
	img := samplePNG(t)
	thumbs := &fakeThumbs{images: map[string][]byte{
		"https://img/1.png": img,
		"https://img/2.png": img,
		"https://img/3.png": img,
	}}

	d, _ := setupTestDecoder(thumbs, &Options{Concurrency: 1})
	_, err := d.Decode(context.Background(), responseJSON(
		resultJSON("1", "https://img/1.png"),
		resultJSON("2", "https://img/2.png"),
		resultJSON("3", "https://img/3.png"),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/1.png", "https://img/2.png", "https://img/3.png"}, thumbs.calls)
	assert.Equal(t, 1, thumbs.maxSeen)
}

// TestDecode_Canceled verifies cancellation stops the decode
func TestDecode_Canceled(t *testing.T) {
	thumbs := &fakeThumbs{images: map[string][]byte{"https://img/a.png": samplePNG(t)}}
	d, _ := setupTestDecoder(thumbs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := d.Decode(ctx, responseJSON(resultJSON("A", "https://img/a.png")))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
	assert.Empty(t, thumbs.calls, "no thumbnail should be fetched after cancellation")
}

// TestDecode_CanceledMidway verifies cancellation between thumbnail fetches
func TestDecode_CanceledMidway(t *testing.T) {
	img := samplePNG(t)
	images := map[string][]byte{}
	results := []string{}
	for i := range 5 {
		u := fmt.Sprintf("https://img/%d.png", i)
		images[u] = img
		results = append(results, resultJSON(fmt.Sprint(i), u))
	}
	thumbs := &fakeThumbs{images: images, delay: 200 * time.Millisecond}
	d, _ := setupTestDecoder(thumbs, &Options{Concurrency: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := d.Decode(ctx, responseJSON(results...))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, result)
	assert.Less(t, len(thumbs.calls), 5)
}

// TestDecode_UnsupportedFormat verifies unknown formats are a parse failure
func TestDecode_UnsupportedFormat(t *testing.T) {
	d, _ := setupTestDecoder(nil, &Options{Format: "xml"})

	_, err := d.Decode(context.Background(), responseJSON())
	assert.ErrorIs(t, err, ErrParse)
}

// TestNew_Defaults verifies option defaults
func TestNew_Defaults(t *testing.T) {
	d := New(nil, nil, nil)
	assert.Equal(t, FormatJSON, d.opts.Format)
	assert.Equal(t, DefaultConcurrency, d.opts.Concurrency)
	assert.False(t, d.opts.Strict)
	assert.NotNil(t, d.log)

	d = New(nil, &Options{Concurrency: -3}, nil)
	assert.Equal(t, DefaultConcurrency, d.opts.Concurrency)
	assert.Equal(t, FormatJSON, d.opts.Format)
}
