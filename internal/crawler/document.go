package crawler

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// hiddenElements hold content a browser never renders as text.
var hiddenElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// Document is a parsed HTML page.
//
// The tree is parsed with golang.org/x/net/html, which accepts the malformed
// markup common on the web, and wrapped in a goquery document for selector
// queries.
type Document struct {
	url string
	doc *goquery.Document
}

// ParseDocument parses raw as HTML. Failures are returned as a ClassParse
// *FetchError.
func ParseDocument(raw *RawDocument) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, &FetchError{Class: ClassParse, URL: raw.URL, Err: err}
	}
	return &Document{
		url: raw.URL,
		doc: goquery.NewDocumentFromNode(root),
	}, nil
}

// URL returns the URL the document was fetched from.
func (d *Document) URL() string {
	return d.url
}

// Title returns the trimmed <title> text.
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// Hrefs returns the raw href value of every element carrying one, in
// document order. Values are returned unresolved; <link> and <area> hrefs
// are included, and the Normalizer decides what is in scope.
func (d *Document) Hrefs() []string {
	sel := d.doc.Find("[href]")
	hrefs := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}

// Text returns the visible text fragments of the page in document order.
// Each text node is trimmed and NFC normalized; empty fragments, comments and
// the content of script, style, noscript and template elements are dropped.
func (d *Document) Text() []string {
	fragments := make([]string, 0)
	for _, root := range d.doc.Nodes {
		fragments = collectText(root, fragments)
	}
	return fragments
}

// collectText appends the text fragments below n to out.
func collectText(n *html.Node, out []string) []string {
	switch n.Type {
	case html.ElementNode:
		if hiddenElements[n.DataAtom] {
			return out
		}
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			out = append(out, norm.NFC.String(text))
		}
		return out
	case html.CommentNode, html.DoctypeNode:
		return out
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = collectText(c, out)
	}
	return out
}
