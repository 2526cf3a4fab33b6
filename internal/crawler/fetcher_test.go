package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// directClient ignores proxy environment variables.
func directClient() *http.Client {
	return &http.Client{Transport: &http.Transport{}, Timeout: 5 * time.Second}
}

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	t.Run("fetches html with user agent", func(t *testing.T) {
		t.Parallel()

		agents := make(chan string, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agents <- r.Header.Get("User-Agent")
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html><body>Hej världen</body></html>"))
		}))
		defer server.Close()

		f := NewHTTPFetcher(WithHTTPClient(directClient()))
		raw, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if ua := <-agents; ua != DefaultUserAgent {
			t.Errorf("User-Agent = %q, want default", ua)
		}
		if raw.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d", raw.StatusCode)
		}
		if !strings.Contains(string(raw.Body), "Hej världen") {
			t.Errorf("Body = %q", raw.Body)
		}
		if raw.FinalURL != server.URL || raw.Truncated {
			t.Errorf("FinalURL = %q, Truncated = %v", raw.FinalURL, raw.Truncated)
		}
	})

	t.Run("final url follows redirects", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.Handle("/old", http.RedirectHandler("/new", http.StatusMovedPermanently))
		mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<p>moved</p>"))
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		f := NewHTTPFetcher(WithHTTPClient(directClient()))
		raw, err := f.Fetch(context.Background(), server.URL+"/old")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if raw.URL != server.URL+"/old" || raw.FinalURL != server.URL+"/new" {
			t.Errorf("URL = %q, FinalURL = %q", raw.URL, raw.FinalURL)
		}
	})

	t.Run("custom user agent and headers", func(t *testing.T) {
		t.Parallel()

		headers := make(chan http.Header, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers <- r.Header.Clone()
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<p>ok</p>"))
		}))
		defer server.Close()

		f := NewHTTPFetcher(
			WithHTTPClient(directClient()),
			WithUserAgent("sitescrape-test/1.0"),
			WithHeaders(map[string]string{"Accept-Language": "sv-SE"}),
		)
		if _, err := f.Fetch(context.Background(), server.URL); err != nil {
			t.Fatal(err)
		}
		h := <-headers
		if h.Get("User-Agent") != "sitescrape-test/1.0" || h.Get("Accept-Language") != "sv-SE" {
			t.Errorf("headers = %v", h)
		}
	})

	t.Run("http error status is recoverable", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		f := NewHTTPFetcher(WithHTTPClient(directClient()))
		_, err := f.Fetch(context.Background(), server.URL+"/missing")

		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("expected *FetchError, got %v", err)
		}
		if fe.Class != ClassHTTP || fe.StatusCode != http.StatusNotFound {
			t.Errorf("got class %s status %d", fe.Class, fe.StatusCode)
		}
		if fe.Fatal() {
			t.Error("HTTP errors must not be fatal")
		}
	})

	t.Run("non text content is a decode error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
		}))
		defer server.Close()

		f := NewHTTPFetcher(WithHTTPClient(directClient()))
		_, err := f.Fetch(context.Background(), server.URL)
		if ClassOf(err) != ClassDecode {
			t.Errorf("class = %s, want decode", ClassOf(err))
		}
		if !errors.Is(err, ErrUnsupportedContent) {
			t.Errorf("expected ErrUnsupportedContent, got %v", err)
		}
	})

	t.Run("invalid utf-8 is a decode error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<p>\xff\xfe broken</p>"))
		}))
		defer server.Close()

		f := NewHTTPFetcher(WithHTTPClient(directClient()))
		_, err := f.Fetch(context.Background(), server.URL)
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Errorf("expected ErrInvalidEncoding, got %v", err)
		}
		if ClassOf(err) != ClassDecode {
			t.Errorf("class = %s, want decode", ClassOf(err))
		}
	})

	t.Run("declared charset is transcoded", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
			_, _ = w.Write([]byte("<p>F\xf6retag</p>"))
		}))
		defer server.Close()

		f := NewHTTPFetcher(WithHTTPClient(directClient()))
		raw, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if !strings.Contains(string(raw.Body), "Företag") {
			t.Errorf("Body = %q, want transcoded text", raw.Body)
		}
	})

	t.Run("charset declared only in meta is transcoded", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><head><meta charset=\"iso-8859-1\"></head><body><p>V\xe4lkommen</p></body></html>"))
		}))
		defer server.Close()

		f := NewHTTPFetcher(WithHTTPClient(directClient()))
		raw, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if !strings.Contains(string(raw.Body), "Välkommen") {
			t.Errorf("Body = %q, want transcoded text", raw.Body)
		}
	})

	t.Run("http-equiv content type is honoured", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head><meta http-equiv="Content-Type" content="text/html; charset=windows-1252"></head>` +
				"<body><p>K\xf6p \x96 s\xe4lj</p></body></html>"))
		}))
		defer server.Close()

		f := NewHTTPFetcher(WithHTTPClient(directClient()))
		raw, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if !strings.Contains(string(raw.Body), "Köp – sälj") {
			t.Errorf("Body = %q, want transcoded text", raw.Body)
		}
	})

	t.Run("body is truncated to the limit", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(strings.Repeat("a", 1000)))
		}))
		defer server.Close()

		f := NewHTTPFetcher(WithHTTPClient(directClient()), WithMaxBodySize(100))
		raw, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatal(err)
		}
		if len(raw.Body) != 100 {
			t.Errorf("len(Body) = %d, want 100", len(raw.Body))
		}
		if !raw.Truncated {
			t.Error("expected Truncated to be set")
		}
	})

	t.Run("body at the limit is not truncated", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(strings.Repeat("a", 100)))
		}))
		defer server.Close()

		f := NewHTTPFetcher(WithHTTPClient(directClient()), WithMaxBodySize(100))
		raw, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatal(err)
		}
		if raw.Truncated || len(raw.Body) != 100 {
			t.Errorf("Truncated = %v, len(Body) = %d, want false and 100", raw.Truncated, len(raw.Body))
		}
	})

	t.Run("cut inside a multi-byte character still decodes", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<p>" + strings.Repeat("ä", 500) + "</p>"))
		}))
		defer server.Close()

		// "<p>" plus 48 two-byte runes is 99 bytes, so the cut splits the 49th.
		f := NewHTTPFetcher(WithHTTPClient(directClient()), WithMaxBodySize(100))
		raw, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if !raw.Truncated {
			t.Error("expected Truncated to be set")
		}
		if want := "<p>" + strings.Repeat("ä", 48); string(raw.Body) != want {
			t.Errorf("Body = %q, want %q", raw.Body, want)
		}
	})

	t.Run("untrusted certificate is fatal", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<p>secret</p>"))
		}))
		defer server.Close()

		f := NewHTTPFetcher(WithHTTPClient(directClient()))
		_, err := f.Fetch(context.Background(), server.URL)
		if ClassOf(err) != ClassCertificate {
			t.Errorf("class = %s, want certificate (err: %v)", ClassOf(err), err)
		}

		var fe *FetchError
		if !errors.As(err, &fe) || !fe.Fatal() {
			t.Error("certificate errors must be fatal")
		}
	})

	t.Run("refused connection is a network error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.NotFoundHandler())
		addr := server.URL
		server.Close()

		f := NewHTTPFetcher(WithHTTPClient(directClient()))
		_, err := f.Fetch(context.Background(), addr)
		if ClassOf(err) != ClassNetwork {
			t.Errorf("class = %s, want network (err: %v)", ClassOf(err), err)
		}
	})
}

func TestClassOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassNone},
		{"canceled", context.Canceled, ClassUnknown},
		{"plain", errors.New("boom"), ClassUnknown},
		{"fetch error", &FetchError{Class: ClassParse}, ClassParse},
		{"wrapped fetch error", errors.Join(errors.New("ctx"), &FetchError{Class: ClassHTTP}), ClassHTTP},
	}

	for _, tt := range tests {
		if got := ClassOf(tt.err); got != tt.want {
			t.Errorf("%s: ClassOf() = %s, want %s", tt.name, got, tt.want)
		}
	}

	for _, c := range []ErrorClass{ClassHTTP, ClassDecode, ClassParse} {
		if !c.Recoverable() {
			t.Errorf("%s should be recoverable", c)
		}
	}
	for _, c := range []ErrorClass{ClassNetwork, ClassCertificate, ClassUnknown} {
		if c.Recoverable() {
			t.Errorf("%s should be fatal", c)
		}
	}
}

func TestNewTransport(t *testing.T) {
	t.Parallel()

	tr := NewTransport(0)
	if tr.MaxConnsPerHost != DefaultMaxConns {
		t.Errorf("MaxConnsPerHost = %d, want %d", tr.MaxConnsPerHost, DefaultMaxConns)
	}

	tr = NewTransport(4)
	if tr.MaxConnsPerHost != 4 || tr.MaxIdleConns != 4 {
		t.Errorf("unexpected pool size %d/%d", tr.MaxConnsPerHost, tr.MaxIdleConns)
	}

	c := NewHTTPClient(4, 0)
	if c.Timeout != DefaultFetchTimeout {
		t.Errorf("Timeout = %v, want %v", c.Timeout, DefaultFetchTimeout)
	}
}
