package main

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitescrape/internal/model"
	"github.com/nao1215/sitescrape/internal/report"
)

func TestFailuresFromLog(t *testing.T) {
	t.Parallel()

	outDir := t.TempDir()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	log := report.NewFailureLog(filepath.Join(outDir, report.FailureLogName),
		report.WithFailureClock(func() time.Time { return now }))

	failed := model.NewCrawlResult(model.NewCrawlTarget("https://broken.se", "12", "Trasigt AB"))
	failed.Fail(errors.New("fetch https://broken.se: certificate error: x509"))
	if err := log.Append(failed); err != nil {
		t.Fatal(err)
	}

	t.Run("plain", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeRoot(t, "failures", "--out-dir", outDir)
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"1 failed site(s)", "12 Trasigt AB (https://broken.se)", "certificate error"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("output missing %q:\n%s", want, stdout)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		stdout, _, err := executeRoot(t, "failures", "--out-dir", outDir, "--json")
		if err != nil {
			t.Fatal(err)
		}
		var rows []failureRow
		if err := json.Unmarshal([]byte(stdout), &rows); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, stdout)
		}
		if len(rows) != 1 || rows[0].BaseURL != "https://broken.se" || !rows[0].Time.Equal(now) {
			t.Errorf("rows = %+v", rows)
		}
	})
}

func TestFailuresEmpty(t *testing.T) {
	t.Parallel()

	stdout, _, err := executeRoot(t, "failures", "--out-dir", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "No failed sites recorded.") {
		t.Errorf("unexpected output: %q", stdout)
	}

	stdout, _, err = executeRoot(t, "failures", "--db", "--db-dir", t.TempDir(), "--json")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(stdout) != "[]" {
		t.Errorf("empty archive JSON = %q, want []", stdout)
	}
}

func TestFailuresFromDatabase(t *testing.T) {
	t.Parallel()

	dbDir := t.TempDir()
	broken := unreachableURL(t)

	_, stderr, err := executeRoot(t, "crawl",
		"--config", writeConfig(t, "concurrency: 2\n"),
		"--out-dir", t.TempDir(),
		"--db-dir", dbDir,
		"--delay", "0s",
		broken,
	)
	if err != nil {
		t.Fatalf("crawl failed: %v\n%s", err, stderr)
	}

	stdout, _, err := executeRoot(t, "failures", "--db", "--db-dir", dbDir, "--json")
	if err != nil {
		t.Fatal(err)
	}
	var rows []failureRow
	if err := json.Unmarshal([]byte(stdout), &rows); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %+v, want one failure", rows)
	}
	if rows[0].BaseURL != broken || rows[0].Source != "database" || rows[0].RunID == "" {
		t.Errorf("row = %+v", rows[0])
	}
	if rows[0].Error == "" {
		t.Error("failure has no error text")
	}
}
