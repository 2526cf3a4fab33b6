package crawler

import (
	"net/url"
	"path"
	"strings"
)

// shouldCrawl checks a link's path against ignore and follow globs.
//
//  1. A path matching any ignore pattern is skipped.
//  2. If follow patterns are set, the path must match at least one.
//  3. Otherwise the link is crawled.
func shouldCrawl(link string, ignore, follow []string) bool {
	if len(ignore) == 0 && len(follow) == 0 {
		return true
	}

	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range ignore {
		if matchPattern(pattern, p) {
			return false
		}
	}

	if len(follow) == 0 {
		return true
	}
	for _, pattern := range follow {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern reports whether a URL path matches a glob.
//
// Examples:
//   - "/admin/*" matches "/admin" and everything below it
//   - "*.php" matches "/shop/cart.php"
//   - "/news/20??" matches "/news/2024"
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}

	if matched, err := path.Match(pattern, p); err == nil && matched {
		return true
	}

	// Patterns without a slash also match the last segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}

	return false
}
