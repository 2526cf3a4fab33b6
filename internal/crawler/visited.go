package crawler

// VisitedSet tracks the URLs one crawl has already fetched or claimed.
//
// A URL and its slash-toggled counterpart are always inserted together, so
// "https://site.com/a" and "https://site.com/a/" count as the same page no
// matter which form a later link uses. The set only grows during a crawl.
//
// VisitedSet is owned by a single Spider and is not safe for concurrent use.
type VisitedSet struct {
	urls  map[string]struct{}
	pages int
}

// NewVisitedSet creates an empty VisitedSet.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{})}
}

// MarkVisited inserts u and its slash-toggled form.
// Marking an already visited URL is a no-op.
func (v *VisitedSet) MarkVisited(u string) {
	if _, ok := v.urls[u]; ok {
		return
	}
	v.urls[u] = struct{}{}
	v.urls[ToggleSlash(u)] = struct{}{}
	v.pages++
}

// IsVisited reports whether u, exactly as given, is in the set.
// No slash toggling happens on the read side; MarkVisited already stored
// both forms.
func (v *VisitedSet) IsVisited(u string) bool {
	_, ok := v.urls[u]
	return ok
}

// Len returns the number of distinct pages marked.
func (v *VisitedSet) Len() int {
	return v.pages
}

// Size returns the number of stored URL forms (two per page).
func (v *VisitedSet) Size() int {
	return len(v.urls)
}
