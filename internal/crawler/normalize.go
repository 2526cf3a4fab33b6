package crawler

import (
	"net/url"
	"strings"
)

// LinkKind classifies a raw link found on a page.
type LinkKind int

const (
	// LinkRejected marks links outside the crawl scope (other domains,
	// mailto:, javascript:, links not matching the filter).
	LinkRejected LinkKind = iota

	// LinkAccepted marks a same-site page link that may be crawled.
	LinkAccepted

	// LinkIgnored marks a same-site link to a non-text resource
	// (downloads, feeds, stylesheets, WordPress API endpoints).
	LinkIgnored
)

// String returns the lowercase name of the kind.
func (k LinkKind) String() string {
	switch k {
	case LinkAccepted:
		return "accepted"
	case LinkIgnored:
		return "ignored"
	default:
		return "rejected"
	}
}

// Link is the result of normalizing a raw link.
// URL is the canonical form for accepted and ignored links and empty for
// rejected ones.
type Link struct {
	Kind LinkKind
	URL  string
}

// wpJSONMarker identifies WordPress REST endpoints, which serve JSON.
const wpJSONMarker = "wp-json"

// ignoredSuffixes are lowercase endings that mark stylesheet and feed links.
var ignoredSuffixes = []string{"css", "css/", "feed", "feed/"}

// Normalizer canonicalizes and filters links for one crawl.
// It owns the crawl's ignored set, so it must not be shared between crawls.
// Normalizer is not safe for concurrent use.
type Normalizer struct {
	// baseURL is the crawl root without a trailing slash.
	baseURL string

	// origin is scheme://host of baseURL, used to resolve "/path" links.
	origin string

	// scheme is used to resolve protocol-relative "//host/path" links.
	scheme string

	// filter, when non-empty, is a substring every accepted link must contain.
	filter string

	// ignored records links classified as non-text resources.
	ignored      map[string]struct{}
	ignoredOrder []string
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithFilter restricts accepted links to those containing substr.
// This limits a crawl to a sub-path of the site without changing
// the normalization rules.
func WithFilter(substr string) NormalizerOption {
	return func(n *Normalizer) {
		n.filter = substr
	}
}

// NewNormalizer creates a Normalizer for the given base URL.
func NewNormalizer(baseURL string, opts ...NormalizerOption) *Normalizer {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	n := &Normalizer{
		baseURL: baseURL,
		origin:  baseURL,
		scheme:  "https",
		ignored: make(map[string]struct{}),
	}
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		n.origin = u.Scheme + "://" + u.Host
		n.scheme = u.Scheme
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// BaseURL returns the crawl root.
func (n *Normalizer) BaseURL() string {
	return n.baseURL
}

// Normalize canonicalizes rawLink and classifies it.
//
// Only links starting with "/" (resolved against the site origin) or with the
// base URL are in scope, and either way the result must lie below the base
// URL. The fragment and everything from the first "?" are
// removed; query strings never identify distinct pages. Links to files other
// than .html/.htm, stylesheets, feeds and wp-json endpoints are recorded in
// the ignored set and reported as LinkIgnored.
//
// Normalize is a projection: normalizing the URL of a returned Link yields the
// same Link.
func (n *Normalizer) Normalize(rawLink string) Link {
	link, ok := n.resolve(strings.TrimSpace(rawLink))
	if !ok {
		return Link{Kind: LinkRejected}
	}

	link = stripQuery(link)

	if n.filter != "" && !strings.Contains(link, n.filter) {
		return Link{Kind: LinkRejected}
	}

	if _, seen := n.ignored[link]; seen {
		return Link{Kind: LinkIgnored, URL: link}
	}
	if isIgnorable(link) {
		n.ignored[link] = struct{}{}
		n.ignoredOrder = append(n.ignoredOrder, link)
		return Link{Kind: LinkIgnored, URL: link}
	}

	return Link{Kind: LinkAccepted, URL: link}
}

// LegacyNormalize returns the canonical URL the way the first scraper did:
// ignored links come back as the base URL, which callers skip because the base
// URL is always visited first. The second return value is false for links
// outside the crawl scope.
func (n *Normalizer) LegacyNormalize(rawLink string) (string, bool) {
	link := n.Normalize(rawLink)
	switch link.Kind {
	case LinkAccepted:
		return link.URL, true
	case LinkIgnored:
		return n.baseURL, true
	default:
		return "", false
	}
}

// Ignored returns the ignored links in the order they were first seen.
func (n *Normalizer) Ignored() []string {
	out := make([]string, len(n.ignoredOrder))
	copy(out, n.ignoredOrder)
	return out
}

// IsIgnored reports whether link has been classified as ignored.
func (n *Normalizer) IsIgnored(link string) bool {
	_, ok := n.ignored[link]
	return ok
}

// resolve turns rawLink into an absolute same-site URL.
func (n *Normalizer) resolve(rawLink string) (string, bool) {
	switch {
	case rawLink == "":
		return "", false
	case strings.HasPrefix(rawLink, "//"):
		// Protocol-relative: only in scope if it points back at the base.
		return n.withinBase(n.scheme + ":" + rawLink)
	case strings.HasPrefix(rawLink, "/"):
		// Site-relative links resolve against the origin but must still
		// land below the base URL.
		return n.withinBase(n.origin + rawLink)
	default:
		return n.withinBase(rawLink)
	}
}

// withinBase accepts link if it starts with the base URL at a path boundary,
// so "https://site.com.evil.net" does not pass for base "https://site.com".
func (n *Normalizer) withinBase(link string) (string, bool) {
	if !strings.HasPrefix(link, n.baseURL) {
		return "", false
	}
	rest := link[len(n.baseURL):]
	if rest == "" || strings.ContainsAny(rest[:1], "/?#") {
		return link, true
	}
	return "", false
}

// stripQuery removes the fragment and everything from the first "?".
func stripQuery(link string) string {
	if i := strings.IndexByte(link, '#'); i >= 0 {
		link = link[:i]
	}
	if i := strings.IndexByte(link, '?'); i >= 0 {
		link = link[:i]
	}
	return link
}

// isIgnorable reports whether a canonical link points at a non-text resource.
func isIgnorable(link string) bool {
	lower := strings.ToLower(link)

	if strings.Contains(lower, wpJSONMarker) {
		return true
	}
	for _, suffix := range ignoredSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}

	if strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm") {
		return false
	}

	// A dot in the last path segment means a file extension.
	path := linkPath(link)
	dot := strings.LastIndexByte(path, '.')
	return dot >= 0 && !strings.Contains(path[dot:], "/")
}

// linkPath returns the part of an absolute link after scheme://host.
func linkPath(link string) string {
	rest := link
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i:]
	}
	return ""
}

// ToggleSlash returns u with a trailing slash added, or removed if present.
func ToggleSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u[:len(u)-1]
	}
	return u + "/"
}
