package model

import "time"

// TargetSummary is the outcome of one target in a run.
type TargetSummary struct {
	Target   CrawlTarget   `json:"target"`
	State    CrawlState    `json:"state"`
	Pages    int           `json:"pages"`
	Skipped  int           `json:"skipped"`
	Ignored  int           `json:"ignored"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Failed reports whether the target's crawl failed.
func (t TargetSummary) Failed() bool {
	return t.State == StateFailed
}

// RunSummary aggregates the results of one crawl run for reporting.
type RunSummary struct {
	// RunID identifies the run in the archive.
	RunID string `json:"run_id"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Targets holds one entry per target in input order.
	Targets []TargetSummary `json:"targets"`

	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	TotalPages   int `json:"total_pages"`
	TotalSkipped int `json:"total_skipped"`
	TotalIgnored int `json:"total_ignored"`
}

// NewRunSummary summarizes results. Nil results are skipped.
func NewRunSummary(runID string, results []*CrawlResult, started, finished time.Time) *RunSummary {
	s := &RunSummary{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		Targets:    make([]TargetSummary, 0, len(results)),
	}

	for _, r := range results {
		if r == nil {
			continue
		}
		s.Targets = append(s.Targets, TargetSummary{
			Target:   r.Target,
			State:    r.State,
			Pages:    r.PageCount(),
			Skipped:  r.PagesSkipped,
			Ignored:  len(r.Ignored),
			Error:    r.Error,
			Duration: r.Duration(),
		})

		if r.Failed {
			s.Failed++
			continue
		}
		s.Completed++
		s.TotalPages += r.PageCount()
		s.TotalSkipped += r.PagesSkipped
		s.TotalIgnored += len(r.Ignored)
	}

	return s
}

// Failures returns the failed targets in input order.
func (s *RunSummary) Failures() []TargetSummary {
	out := make([]TargetSummary, 0, s.Failed)
	for _, t := range s.Targets {
		if t.Failed() {
			out = append(out, t)
		}
	}
	return out
}

// HasFailures reports whether any target failed.
func (s *RunSummary) HasFailures() bool {
	return s.Failed > 0
}

// Duration returns the wall time of the run.
func (s *RunSummary) Duration() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
