package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/nao1215/sitescrape/internal/config"
	"github.com/nao1215/sitescrape/internal/database"
	"github.com/nao1215/sitescrape/internal/report"
	"github.com/spf13/cobra"
)

// failureRow is one failed site as printed by the failures command.
type failureRow struct {
	Time    time.Time `json:"time"`
	ID      string    `json:"id,omitempty"`
	Label   string    `json:"label,omitempty"`
	BaseURL string    `json:"base_url"`
	Error   string    `json:"error"`
	Source  string    `json:"source"`
	RunID   string    `json:"run_id,omitempty"`
}

// NewFailuresCmd creates the failures command.
func NewFailuresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List sites that failed to crawl",
		Long: `Failures lists the sites whose crawl failed.

By default the failed.log of the output directory is read. With --db the
archive is queried instead, for the latest run or the run given by --run.

Examples:
  # Show failed.log of the current directory
  sitescrape failures

  # Show failures recorded in another output directory
  sitescrape failures --out-dir ./harvest

  # Show the failures of the latest archived run as JSON
  sitescrape failures --db --json`,
		Args: cobra.NoArgs,
		RunE: runFailuresCmd,
	}

	cmd.Flags().StringP("out-dir", "d", config.DefaultOutputDir,
		"Output directory holding failed.log")
	cmd.Flags().Bool("db", false,
		"Read failures from the archive instead of failed.log")
	cmd.Flags().String("db-dir", "",
		"Archive directory (default: XDG data directory)")
	cmd.Flags().String("run", "",
		"Run ID to list (default: latest run, requires --db)")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")

	return cmd
}

// runFailuresCmd executes the failures command.
func runFailuresCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	useDB, err := flags.GetBool("db")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}

	var rows []failureRow
	if useDB {
		dbDir, err := flags.GetString("db-dir")
		if err != nil {
			return err
		}
		if dbDir == "" {
			dbDir = config.XDGDataDir()
		}
		runID, err := flags.GetString("run")
		if err != nil {
			return err
		}
		rows, err = archivedFailures(cmd.Context(), dbDir, runID)
		if err != nil {
			return err
		}
	} else {
		outDir, err := flags.GetString("out-dir")
		if err != nil {
			return err
		}
		rows, err = loggedFailures(filepath.Join(outDir, report.FailureLogName))
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		if rows == nil {
			rows = []failureRow{}
		}
		return writeJSON(cmd.OutOrStdout(), rows)
	}
	printFailureRows(cmd.OutOrStdout(), rows)
	return nil
}

// loggedFailures reads the failure log at path. A missing log means no
// failures.
func loggedFailures(path string) ([]failureRow, error) {
	entries, err := report.ReadFailures(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	rows := make([]failureRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, failureRow{
			Time:    e.Time,
			ID:      e.Target.ID,
			Label:   e.Target.Label,
			BaseURL: e.Target.BaseURL,
			Error:   e.Error,
			Source:  report.FailureLogName,
		})
	}
	return rows, nil
}

// archivedFailures lists the failed crawls of runID, or of the latest run
// when runID is empty.
func archivedFailures(ctx context.Context, dbDir, runID string) ([]failureRow, error) {
	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if runID == "" {
		runID, err = db.LatestRunID(ctx)
		if err != nil {
			return nil, err
		}
		if runID == "" {
			return nil, nil
		}
	}

	records, err := db.ListFailures(ctx, runID)
	if err != nil {
		return nil, err
	}

	rows := make([]failureRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, failureRow{
			Time:    r.FinishedAt,
			ID:      r.Target.ID,
			Label:   r.Target.Label,
			BaseURL: r.Target.BaseURL,
			Error:   r.Error,
			Source:  "database",
			RunID:   r.RunID,
		})
	}
	return rows, nil
}

// printFailureRows prints rows as a plain list.
func printFailureRows(w io.Writer, rows []failureRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No failed sites recorded.")
		return
	}

	fmt.Fprintf(w, "%d failed site(s):\n\n", len(rows))
	for _, r := range rows {
		name := r.BaseURL
		if r.Label != "" {
			name = fmt.Sprintf("%s (%s)", r.Label, r.BaseURL)
		}
		if r.ID != "" {
			name = r.ID + " " + name
		}
		fmt.Fprintf(w, "  %s  %s\n", r.Time.Local().Format("2006-01-02 15:04:05"), name)
		fmt.Fprintf(w, "      %s\n", r.Error)
	}
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
