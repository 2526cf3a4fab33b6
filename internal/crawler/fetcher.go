package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// Defaults for HTTPFetcher.
const (
	// DefaultUserAgent is a desktop browser User-Agent. Several sites answer
	// unknown agents with 403, which would cost every page of the crawl.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_12_4) AppleWebKit/603.1.30 (KHTML, like Gecko) Version/10.1 Safari/603.1.30"

	// DefaultMaxBodySize limits how much of a response is read.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultMaxConns bounds the connections of the shared transport.
	DefaultMaxConns = 32

	// DefaultFetchTimeout bounds a single request.
	DefaultFetchTimeout = 30 * time.Second
)

// RawDocument is a downloaded page before parsing.
type RawDocument struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after redirects.
	FinalURL string

	// StatusCode is the HTTP status of the final response.
	StatusCode int

	// ContentType is the Content-Type header.
	ContentType string

	// Body is the UTF-8 encoded response body.
	Body []byte

	// Truncated is set when the response was longer than the body limit and
	// Body holds only its head.
	Truncated bool
}

// Fetcher downloads pages. Implementations must be safe for concurrent use,
// because one Fetcher is shared by every Spider of a run.
type Fetcher interface {
	// Fetch downloads url. Failures are returned as *FetchError.
	Fetch(ctx context.Context, url string) (*RawDocument, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*RawDocument, error)

// Fetch calls f(ctx, url).
func (f FetcherFunc) Fetch(ctx context.Context, url string) (*RawDocument, error) {
	return f(ctx, url)
}

// HTTPFetcher is the net/http Fetcher.
type HTTPFetcher struct {
	// client performs requests; its transport is the shared connection pool.
	client *http.Client

	// userAgent is the User-Agent header to use.
	userAgent string

	// headers are extra request headers.
	headers map[string]string

	// maxBodySize limits the size of response bodies to read.
	maxBodySize int64
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient replaces the default client. Use this to share a client or
// to inject an httptest client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHeaders adds request headers.
func WithHeaders(headers map[string]string) FetcherOption {
	return func(f *HTTPFetcher) {
		for k, v := range headers {
			f.headers[k] = v
		}
	}
}

// WithMaxBodySize sets the maximum response body size.
func WithMaxBodySize(size int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// NewTransport returns a connection-reusing transport that opens at most
// maxConns connections in total and per host.
func NewTransport(maxConns int) *http.Transport {
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxConnsPerHost:       maxConns,
		MaxIdleConns:          maxConns,
		MaxIdleConnsPerHost:   maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// NewHTTPClient returns a client using NewTransport(maxConns) and timeout.
func NewHTTPClient(maxConns int, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &http.Client{
		Transport: NewTransport(maxConns),
		Timeout:   timeout,
	}
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:      NewHTTPClient(DefaultMaxConns, DefaultFetchTimeout),
		userAgent:   DefaultUserAgent,
		headers:     make(map[string]string),
		maxBodySize: DefaultMaxBodySize,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch downloads pageURL and returns its body as UTF-8.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*RawDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{Class: ClassUnknown, URL: pageURL, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Class: classifyTransportError(err), URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // best effort
		return nil, &FetchError{Class: ClassHTTP, URL: pageURL, StatusCode: resp.StatusCode}
	}

	// One byte past the limit tells a full body from a cut one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, &FetchError{Class: classifyTransportError(err), URL: pageURL, Err: err}
	}
	truncated := int64(len(body)) > f.maxBodySize
	if truncated {
		body = body[:f.maxBodySize]
	}

	contentType := resp.Header.Get("Content-Type")
	text, err := decodeBody(body, contentType, truncated)
	if err != nil {
		return nil, &FetchError{Class: ClassDecode, URL: pageURL, Err: err}
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &RawDocument{
		URL:         pageURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        text,
		Truncated:   truncated,
	}, nil
}

// decodeBody returns body as UTF-8.
// The encoding is detected from a byte order mark, the Content-Type charset
// or a <meta> declaration, in that order. A body without any of them must
// already be valid UTF-8. Non-text media types are rejected. When the body
// was cut at the size limit, a trailing partial UTF-8 sequence is dropped.
func decodeBody(body []byte, contentType string, truncated bool) ([]byte, error) {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
		}
		if !isTextMediaType(mediaType) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType)
		}
	}

	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || (!certain && !declaresCharset(body)) {
		if truncated {
			body = trimPartialRune(body)
		}
		if !utf8.Valid(body) {
			return nil, ErrInvalidEncoding
		}
		return body, nil
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("%w: charset %q: %v", ErrInvalidEncoding, name, err)
	}
	return decoded, nil
}

// declaresCharset reports whether the head of body names a non-UTF-8
// encoding in a <meta> tag. The prescan runs on a copy with non-ASCII bytes
// blanked, so the windows-1252 fallback for undeclared bytes cannot answer.
func declaresCharset(body []byte) bool {
	head := bytes.Clone(body[:min(len(body), metaPrescanLimit)])
	for i, b := range head {
		if b >= utf8.RuneSelf {
			head[i] = ' '
		}
	}
	_, name, _ := charset.DetermineEncoding(head, "")
	return name != "utf-8"
}

// metaPrescanLimit is how much of a body DetermineEncoding scans for <meta>.
const metaPrescanLimit = 1024

// trimPartialRune drops an incomplete UTF-8 sequence at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if utf8.FullRune(b[len(b)-i:]) {
				return b
			}
			return b[:len(b)-i]
		}
	}
	return b
}

// isTextMediaType reports whether a media type can carry HTML text.
func isTextMediaType(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/xhtml+xml" ||
		mediaType == "application/xml"
}
