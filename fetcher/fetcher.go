// Package fetcher performs the timed HTTP GET against the content API and
// reads the response body.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Timeouts used when Options leaves them unset. The connect timeout bounds
// TCP and TLS setup; the read timeout bounds the wait for response headers
// and every individual read of the body.
const (
	ConnectTimeout = 15 * time.Second
	ReadTimeout    = 10 * time.Second
)

// DefaultUserAgent identifies requests made by this client.
const DefaultUserAgent = "newsapp/1.0 (content API reader)"

// lineBreaks strips line terminators the way a line-by-line reader that
// concatenates lines would.
var lineBreaks = strings.NewReplacer("\r\n", "", "\n", "", "\r", "")

// Options configures a Fetcher.
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	UserAgent      string
}

// DefaultOptions returns the standard timeouts.
func DefaultOptions() *Options {
	return &Options{
		ConnectTimeout: ConnectTimeout,
		ReadTimeout:    ReadTimeout,
		UserAgent:      DefaultUserAgent,
	}
}

// Fetcher issues GET requests with separate connect and read timeouts.
type Fetcher struct {
	client         *http.Client
	connectTimeout time.Duration
	readTimeout    time.Duration
	userAgent      string
}

// New creates a Fetcher. A nil opts, or zero fields in it, fall back to the
// defaults.
func New(opts *Options) *Fetcher {
	defaults := DefaultOptions()
	if opts == nil {
		opts = defaults
	}

	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaults.ConnectTimeout
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaults.ReadTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaults.UserAgent
	}

	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &readDeadlineConn{Conn: conn, timeout: readTimeout}, nil
		},
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		// One connection per request, closed when the body is closed
		DisableKeepAlives: true,
	}

	return &Fetcher{
		client:         &http.Client{Transport: transport},
		connectTimeout: connectTimeout,
		readTimeout:    readTimeout,
		userAgent:      userAgent,
	}
}

// ConnectTimeout returns the configured connect timeout.
func (f *Fetcher) ConnectTimeout() time.Duration {
	return f.connectTimeout
}

// ReadTimeout returns the configured read timeout.
func (f *Fetcher) ReadTimeout() time.Duration {
	return f.readTimeout
}

// Fetch GETs requestURL and returns the body as UTF-8 text with all line
// breaks removed, so a multi-line JSON document comes back as one line. Any
// status other than 200 is a KindHTTPStatus error and no text is returned.
func (f *Fetcher) Fetch(ctx context.Context, requestURL string) (string, error) {
	body, err := f.get(ctx, requestURL)
	if err != nil {
		return "", err
	}

	text := strings.ToValidUTF8(string(body), "\uFFFD")
	return lineBreaks.Replace(text), nil
}

// FetchBytes GETs requestURL and returns the raw body.
func (f *Fetcher) FetchBytes(ctx context.Context, requestURL string) ([]byte, error) {
	return f.get(ctx, requestURL)
}

// FetchThumbnail returns the raw image bytes at imageURL.
func (f *Fetcher) FetchThumbnail(ctx context.Context, imageURL string) ([]byte, error) {
	return f.get(ctx, imageURL)
}

// get performs the request. The response body is closed on every path.
func (f *Fetcher) get(ctx context.Context, requestURL string) ([]byte, error) {
	u, err := parseURL(requestURL)
	if err != nil {
		return nil, &FetchError{Kind: KindInvalidURL, URL: requestURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{Kind: KindInvalidURL, URL: requestURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindIO, URL: requestURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Kind:       KindHTTPStatus,
			URL:        requestURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: KindIO, URL: requestURL, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return body, nil
}

// parseURL accepts absolute http and https URLs only.
func parseURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}

	return u, nil
}

// readDeadlineConn arms a fresh read deadline before every Read, so the
// timeout applies to each wait for data rather than to the whole exchange.
type readDeadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *readDeadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}
