package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/sitescrape/internal/model"
)

// Step is one stage of result processing.
type Step interface {
	// Do processes a finished crawl. It must not modify result.
	Do(ctx context.Context, result *model.CrawlResult) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline persists each crawl result by running its steps in order.
// Execute may be called from several goroutines once all steps are added.
type Pipeline struct {
	steps           []Step
	logger          *slog.Logger
	continueOnError bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithContinueOnError keeps executing steps after one fails. The errors of
// all failed steps are joined and returned.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddStep appends step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends steps in the given order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step on result. ctx is checked before each step; a
// canceled context ends the run with the errors collected so far.
func (p *Pipeline) Execute(ctx context.Context, result *model.CrawlResult) error {
	logger := p.logger.With("target", result.Target.BaseURL)

	var errs []error
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			logger.Warn("result processing canceled", "step", step.Name(), "reason", err)
			return errors.Join(append(errs, err)...)
		}

		logger.Debug("running step", "step", step.Name())
		err := step.Do(ctx, result)
		if err == nil {
			continue
		}

		logger.Error("step failed", "step", step.Name(), "error", err)
		err = fmt.Errorf("%s: %w", step.Name(), err)
		if !p.continueOnError {
			return err
		}
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
