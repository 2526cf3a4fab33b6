package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/sitescrape/internal/model"
)

func TestRenderText(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 1, 2, 3, 4, 5, 123456000, time.UTC)
	texts := map[string]string{
		"https://a.example":       "Welcome\nHello",
		"https://a.example/about": "About us",
	}

	var buf bytes.Buffer
	err := RenderText(&buf, created, "https://a.example",
		[]string{"https://a.example", "https://a.example/about"}, texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "CREATED AT: 2026-01-02 03:04:05.123456\n" +
		"BASE DOMAIN: https://a.example" +
		"\n\n\nSOURCE: https://a.example\nWelcome\nHello" +
		"\n\n\nSOURCE: https://a.example/about\nAbout us"
	if got := buf.String(); got != want {
		t.Errorf("unexpected artifact:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestTextWriter(t *testing.T) {
	t.Parallel()

	now := func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	t.Run("writes both artifacts", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		result := model.NewCrawlResult(model.NewCrawlTarget("https://a.example/", "7", "Acme"))
		result.AddPage(model.NewPageRecord("https://a.example", []string{"Menu", "Home"}, []string{"Menu", "Home"}))
		result.AddPage(model.NewPageRecord("https://a.example/x", []string{"Menu", "X"}, []string{"X"}))
		result.State = model.StateCompleted

		w := NewTextWriter(dir, WithNow(now))
		got, err := w.WriteResult(result)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got.Complete != filepath.Join(dir, CompleteDir, "7Acme") {
			t.Errorf("unexpected complete path %s", got.Complete)
		}

		complete, err := os.ReadFile(got.Complete)
		if err != nil {
			t.Fatalf("read complete: %v", err)
		}
		wantComplete := "CREATED AT: 2026-01-02 03:04:05.000000\nBASE DOMAIN: https://a.example" +
			"\n\n\nSOURCE: https://a.example\nMenu\nHome" +
			"\n\n\nSOURCE: https://a.example/x\nMenu\nX"
		if string(complete) != wantComplete {
			t.Errorf("complete artifact:\ngot:  %q\nwant: %q", complete, wantComplete)
		}

		unique, err := os.ReadFile(got.UniqueOnly)
		if err != nil {
			t.Fatalf("read unique: %v", err)
		}
		wantUnique := "CREATED AT: 2026-01-02 03:04:05.000000\nBASE DOMAIN: https://a.example" +
			"\n\n\nSOURCE: https://a.example\nMenu\nHome" +
			"\n\n\nSOURCE: https://a.example/x\nX"
		if string(unique) != wantUnique {
			t.Errorf("unique artifact:\ngot:  %q\nwant: %q", unique, wantUnique)
		}
	})

	t.Run("overwrites previous artifact", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		w := NewTextWriter(dir, WithNow(now))

		first := model.NewCrawlResult(model.NewCrawlTarget("https://a.example", "1", "A"))
		first.AddPage(model.NewPageRecord("https://a.example", []string{"old"}, []string{"old"}))
		if _, err := w.WriteResult(first); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		second := model.NewCrawlResult(model.NewCrawlTarget("https://a.example", "1", "A"))
		second.AddPage(model.NewPageRecord("https://a.example", []string{"new"}, []string{"new"}))
		got, err := w.WriteResult(second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(got.Complete)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.HasSuffix(data, []byte("\nnew")) {
			t.Errorf("expected new content, got %q", data)
		}

		entries, err := os.ReadDir(filepath.Join(dir, CompleteDir))
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Errorf("expected no leftover temporary files, got %d entries", len(entries))
		}
	})

	t.Run("rejects failed result", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		result := model.NewCrawlResult(model.NewCrawlTarget("https://a.example", "1", "A"))
		result.Fail(errors.New("tls"))

		_, err := NewTextWriter(dir).WriteResult(result)
		if !errors.Is(err, ErrFailedResult) {
			t.Fatalf("expected ErrFailedResult, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, CompleteDir)); !os.IsNotExist(err) {
			t.Error("no success directory should be created for a failed crawl")
		}
	})
}
