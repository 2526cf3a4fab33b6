package crawler

import (
	"slices"
	"testing"
)

func parse(t *testing.T, body string) *Document {
	t.Helper()

	doc, err := ParseDocument(&RawDocument{URL: "https://site.com/", Body: []byte(body)})
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	return doc
}

func TestDocumentHrefs(t *testing.T) {
	t.Parallel()

	doc := parse(t, `<html><head>
		<link rel="stylesheet" href="/style.css">
	</head><body>
		<a href="/a">A</a>
		<a name="anchor">no href</a>
		<map><area href="/map" alt=""></map>
		<a href="https://other.com/x">X</a>
		<a href="">empty</a>
	</body></html>`)

	want := []string{"/style.css", "/a", "/map", "https://other.com/x", ""}
	if got := doc.Hrefs(); !slices.Equal(got, want) {
		t.Errorf("Hrefs() = %q, want %q", got, want)
	}
}

func TestDocumentText(t *testing.T) {
	t.Parallel()

	t.Run("visible text only", func(t *testing.T) {
		t.Parallel()

		doc := parse(t, `<!DOCTYPE html><html><head>
			<title> Företaget AB </title>
			<style>body { color: red; }</style>
			<script>var tracking = true;</script>
		</head><body>
			<!-- hidden comment -->
			<h1>Välkommen</h1>
			<p>  Vi bygger   hus. </p>
			<noscript>Enable JavaScript</noscript>
			<template><p>template text</p></template>
			<ul><li>Ett</li><li>   </li><li>Två</li></ul>
		</body></html>`)

		want := []string{"Företaget AB", "Välkommen", "Vi bygger   hus.", "Ett", "Två"}
		if got := doc.Text(); !slices.Equal(got, want) {
			t.Errorf("Text() = %q, want %q", got, want)
		}
		if doc.Title() != "Företaget AB" {
			t.Errorf("Title() = %q", doc.Title())
		}
	})

	t.Run("text is NFC normalized", func(t *testing.T) {
		t.Parallel()

		doc := parse(t, "<p>Cafe\u0301</p>")
		got := doc.Text()
		if len(got) != 1 || got[0] != "Caf\u00e9" {
			t.Errorf("Text() = %q, want composed form", got)
		}
	})

	t.Run("malformed markup", func(t *testing.T) {
		t.Parallel()

		doc := parse(t, `<div><p>one<p>two</div><a href="/x">three`)
		if got := doc.Text(); !slices.Equal(got, []string{"one", "two", "three"}) {
			t.Errorf("Text() = %q", got)
		}
		if got := doc.Hrefs(); !slices.Equal(got, []string{"/x"}) {
			t.Errorf("Hrefs() = %q", got)
		}
	})
}
