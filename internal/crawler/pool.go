package crawler

// StringPool remembers every text fragment already emitted in one crawl.
// It is used to compute the unique-only text of each page.
type StringPool struct {
	seen map[string]struct{}
}

// NewStringPool creates an empty StringPool.
func NewStringPool() *StringPool {
	return &StringPool{seen: make(map[string]struct{})}
}

// Novel returns, in order, the fragments not seen before in this crawl and
// adds them to the pool. A fragment repeated within the same page is
// returned once.
func (p *StringPool) Novel(fragments []string) []string {
	novel := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if _, ok := p.seen[f]; ok {
			continue
		}
		p.seen[f] = struct{}{}
		novel = append(novel, f)
	}
	return novel
}

// Len returns the number of distinct fragments seen.
func (p *StringPool) Len() int {
	return len(p.seen)
}
