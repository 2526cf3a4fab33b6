package model

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// FragmentSeparator joins the text fragments of a page into one block.
const FragmentSeparator = "\n"

// PageRecord holds the text harvested from one successfully fetched page.
// It is created once per page and never modified afterwards.
type PageRecord struct {
	// URL is the canonical URL the page was fetched from.
	URL string `json:"url"`

	// FullText is every extracted fragment joined with FragmentSeparator.
	FullText string `json:"full_text"`

	// UniqueText holds only the fragments not seen before anywhere in the crawl.
	UniqueText string `json:"unique_text"`

	// Fragments is the number of fragments in FullText.
	Fragments int `json:"fragments"`

	// Hash is the SHA3-256 digest of FullText, used for change detection
	// across runs in the archive.
	Hash string `json:"hash"`
}

// NewPageRecord builds a PageRecord from the page's fragments and the subset
// of them that were new to the crawl.
func NewPageRecord(url string, fragments, unique []string) PageRecord {
	full := strings.Join(fragments, FragmentSeparator)
	return PageRecord{
		URL:        url,
		FullText:   full,
		UniqueText: strings.Join(unique, FragmentSeparator),
		Fragments:  len(fragments),
		Hash:       HashText(full),
	}
}

// HashText returns the hex encoded SHA3-256 digest of text.
// An empty text hashes to the empty string.
func HashText(text string) string {
	if text == "" {
		return ""
	}
	sum := sha3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
