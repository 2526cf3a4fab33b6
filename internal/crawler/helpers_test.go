package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// fakeClock advances only when asked to wait, so pacing is observable
// without sleeping.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

// stuckClock never fires, so only the context can end a wait.
type stuckClock struct{}

func (stuckClock) Now() time.Time                       { return time.Unix(0, 0) }
func (stuckClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

// fakeSite serves in-memory pages keyed by path.
type fakeSite struct {
	base  string
	pages map[string]string
	errs  map[string]error

	mu    sync.Mutex
	hits  map[string]int
	order []string
}

func newFakeSite(base string, pages map[string]string) *fakeSite {
	return &fakeSite{
		base:  base,
		pages: pages,
		errs:  make(map[string]error),
		hits:  make(map[string]int),
	}
}

func (f *fakeSite) Fetch(_ context.Context, u string) (*RawDocument, error) {
	path := strings.TrimPrefix(u, f.base)
	if path == "" {
		path = "/"
	}

	f.mu.Lock()
	f.hits[path]++
	f.order = append(f.order, path)
	f.mu.Unlock()

	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	body, ok := f.pages[path]
	if !ok {
		return nil, &FetchError{Class: ClassHTTP, URL: u, StatusCode: 404}
	}
	return &RawDocument{
		URL:         u,
		FinalURL:    u,
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(body),
	}, nil
}

func (f *fakeSite) Hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeSite) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// htmlPage returns a page with one paragraph per text and one anchor per link.
func htmlPage(texts []string, links ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>page</title></head><body>")
	for _, t := range texts {
		fmt.Fprintf(&b, "<p>%s</p>", t)
	}
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}
