package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/ctxload/resource"
	"github.com/randalmurphal/ctxload/tokens"
	"github.com/randalmurphal/ctxload/truncate"
)

const tracerName = "github.com/randalmurphal/ctxload/loader"

// HighUtilizationPercent is the utilization above which a report warns.
const HighUtilizationPercent = 80.0

// state is a step of a single load.
type state int

const (
	stateIdle state = iota
	stateLoadingMandatory
	stateLoadingBestEffort
	stateReporting
	stateDone
	stateFailed
)

var stateNames = [...]string{
	stateIdle:              "idle",
	stateLoadingMandatory:  "loading_mandatory",
	stateLoadingBestEffort: "loading_best_effort",
	stateReporting:         "reporting",
	stateDone:              "done",
	stateFailed:            "failed",
}

func (s state) String() string {
	return stateNames[s]
}

// Loader loads prioritized resources under a fixed token budget.
//
// A Loader's budget and counter are read-only during loads, so concurrent
// LoadWithBudget calls are independent. It retains only the most recent
// successful report. Close must be called to release the counter.
type Loader struct {
	budget    tokens.Budget
	counter   tokens.Counter
	truncator *truncate.Truncator
	reader    resource.Reader
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer

	mu       sync.Mutex
	last     *Report
	closed   bool
	inflight sync.WaitGroup
}

// New creates a loader with budget min(requestedBudget, tokens.HardCeiling).
// Without WithCounter it counts with tiktoken's cl100k_base encoding when
// available; without WithReader it reads files relative to the working
// directory.
func New(requestedBudget int, opts ...Option) *Loader {
	l := &Loader{
		budget: tokens.NewBudget(requestedBudget),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.counter == nil {
		l.counter = tokens.DefaultCounter()
	}
	if l.reader == nil {
		l.reader = resource.NewFileReader("")
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.tracer == nil {
		l.tracer = otel.Tracer(tracerName)
	}
	l.truncator = truncate.New(l.counter)

	return l
}

// Budget returns the effective token budget.
func (l *Loader) Budget() int {
	return l.budget.Limit()
}

// Recommendations returns the fixed budget sizing policy.
func (l *Loader) Recommendations() Recommendations {
	return BudgetRecommendations()
}

// LoadWithBudget loads list under the budget. Mandatory resources are read
// first, in order; a read failure fails the load with a *ResourceError, and
// a resource that does not fit fails it with a *BudgetError unless
// opts.AllowTruncation is set, in which case it is truncated to what
// remains. Best-effort resources follow and are skipped when unreadable or
// too large. No partial report is returned on failure.
func (l *Loader) LoadWithBudget(ctx context.Context, list resource.List, opts Options) (*Report, error) {
	if !l.begin() {
		return nil, ErrClosed
	}
	defer l.inflight.Done()

	ctx, span := l.tracer.Start(ctx, "loader.LoadWithBudget", trace.WithAttributes(
		attribute.Int("ctxload.budget", l.budget.Limit()),
		attribute.Int("ctxload.mandatory_count", len(list.Mandatory)),
		attribute.Int("ctxload.best_effort_count", len(list.BestEffort)),
		attribute.Bool("ctxload.allow_truncation", opts.AllowTruncation),
	))
	defer span.End()

	r := &run{loader: l, span: span}

	r.enter(stateLoadingMandatory)
	if err := r.loadMandatory(ctx, list.Mandatory, opts); err != nil {
		r.enter(stateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.metrics.observeFailure(err)
		return nil, err
	}

	r.enter(stateLoadingBestEffort)
	r.loadBestEffort(ctx, list.BestEffort)

	r.enter(stateReporting)
	report := r.report()

	span.SetAttributes(
		attribute.Int("ctxload.total_tokens", report.TotalTokens),
		attribute.Int("ctxload.loaded_count", len(report.LoadedResources)),
		attribute.Int("ctxload.skipped_count", len(report.SkippedLocations)),
	)
	l.metrics.observeReport(report)
	l.logger.Info("resources loaded",
		"budget", report.Budget,
		"total_tokens", report.TotalTokens,
		"utilization", report.UtilizationPercentage,
		"loaded", len(report.LoadedResources),
		"skipped", len(report.SkippedLocations))

	l.mu.Lock()
	l.last = report.clone()
	l.mu.Unlock()

	r.enter(stateDone)
	return report, nil
}

// GenerateLoadReport returns a copy of the most recent successful report
// without reading anything. Before any successful load it returns an empty
// report for the loader's budget.
func (l *Loader) GenerateLoadReport() *Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.last == nil {
		return (&run{loader: l}).report()
	}
	return l.last.clone()
}

// Close releases the token counter. It waits for loads already in progress,
// so every count within one load uses the same counter. It is idempotent;
// after Close, LoadWithBudget returns ErrClosed.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.inflight.Wait()

	if closer, ok := l.counter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// begin registers a load unless the loader is closed.
func (l *Loader) begin() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	l.inflight.Add(1)
	return true
}

// run holds the state of one LoadWithBudget call.
type run struct {
	loader *Loader
	span   trace.Span
	state  state

	loaded   []LoadedResource
	total    int
	skipped  []string
	warnings []string
}

func (r *run) enter(s state) {
	r.loader.logger.Debug("load state", "from", r.state.String(), "to", s.String())
	r.state = s
	if r.span != nil {
		r.span.AddEvent(s.String())
	}
}

func (r *run) loadMandatory(ctx context.Context, specs []resource.Spec, opts Options) error {
	l := r.loader

	for _, spec := range specs {
		content, err := l.reader.Read(ctx, spec.Location)
		if err != nil {
			return &ResourceError{Location: spec.Location, Err: err}
		}

		n := l.counter.Count(content)
		if l.budget.Fits(r.total, n) {
			r.accept(spec, resource.Mandatory, content, n, false)
			continue
		}

		remaining := l.budget.Remaining(r.total)
		if !opts.AllowTruncation {
			return &BudgetError{
				Location:  spec.Location,
				Tokens:    n,
				Remaining: remaining,
				Budget:    l.budget.Limit(),
			}
		}

		fit := l.truncator.Fit(content, remaining)
		truncatedTokens := l.counter.Count(fit.Content)
		l.logger.Debug("mandatory resource truncated",
			"location", spec.Location,
			"tokens", n,
			"remaining", remaining,
			"truncated_tokens", truncatedTokens,
			"stage", fit.Stage.String())
		r.accept(spec, resource.Mandatory, fit.Content, truncatedTokens, true)
	}

	return nil
}

func (r *run) loadBestEffort(ctx context.Context, specs []resource.Spec) {
	l := r.loader

	for _, spec := range specs {
		content, err := l.reader.Read(ctx, spec.Location)
		if err != nil {
			l.logger.Warn("best-effort resource unavailable", "location", spec.Location, "error", err)
			r.skip(spec.Location)
			r.warn(fmt.Sprintf("Failed to load best-effort resource %s: %v", spec.Location, err))
			continue
		}

		n := l.counter.Count(content)
		if !l.budget.Fits(r.total, n) {
			l.logger.Debug("best-effort resource skipped",
				"location", spec.Location,
				"tokens", n,
				"remaining", l.budget.Remaining(r.total))
			r.skip(spec.Location)
			continue
		}

		r.accept(spec, resource.BestEffort, content, n, false)
	}
}

func (r *run) accept(spec resource.Spec, tier resource.Tier, content string, n int, truncated bool) {
	r.loaded = append(r.loaded, LoadedResource{
		Location:  spec.Location,
		Content:   content,
		Tokens:    n,
		Truncated: truncated,
		Reason:    spec.Reason,
		Tier:      tier,
	})
	r.total += n
	r.loader.logger.Debug("resource loaded",
		"location", spec.Location,
		"tier", tier.String(),
		"tokens", n,
		"running_total", r.total)
}

// skip records location once; skipped locations form a set.
func (r *run) skip(location string) {
	for _, s := range r.skipped {
		if s == location {
			return
		}
	}
	r.skipped = append(r.skipped, location)
}

func (r *run) warn(msg string) {
	r.warnings = append(r.warnings, msg)
}

func (r *run) report() *Report {
	l := r.loader
	budget := l.budget.Limit()
	utilization := l.budget.Utilization(r.total)

	rep := &Report{
		LoadedResources:       append([]LoadedResource{}, r.loaded...),
		TotalTokens:           r.total,
		Budget:                budget,
		UtilizationPercentage: formatPercent(utilization),
		WithinBudget:          r.total <= budget,
		SkippedLocations:      append([]string{}, r.skipped...),
		Warnings:              append([]string{}, r.warnings...),
	}

	if utilization > HighUtilizationPercent {
		rep.Warnings = append(rep.Warnings,
			fmt.Sprintf("High budget utilization: %s of %d tokens", rep.UtilizationPercentage, budget))
	}
	if n := len(rep.SkippedLocations); n > 0 {
		rep.Warnings = append(rep.Warnings,
			fmt.Sprintf("Skipped %d best-effort resource(s)", n))
	}
	// Truncation leaves a margin, so this should never fire; surface it if it does.
	if !rep.WithinBudget {
		l.logger.Warn("load exceeded token budget", "total_tokens", r.total, "budget", budget)
		rep.Warnings = append(rep.Warnings,
			fmt.Sprintf("Over budget: %d tokens loaded against a budget of %d", r.total, budget))
	}

	return rep
}

// formatPercent rounds half away from zero to one decimal, so 12.25 is "12.3%".
func formatPercent(pct float64) string {
	return fmt.Sprintf("%.1f%%", math.Round(pct*10)/10)
}
