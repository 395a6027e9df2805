package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/splax/adsync/internal/domain"
	"github.com/splax/adsync/internal/service/window"
	"github.com/splax/adsync/pkg/config"
)

// Source runs a report query against the reporting service.
type Source interface {
	Report(ctx context.Context, query domain.ReportQuery) (domain.ReportResult, error)
}

// ExportRequest is what a Sink receives. Window is nil for relative queries.
type ExportRequest struct {
	Query  domain.ReportQuery
	Window *domain.DateWindow
	Result domain.ReportResult
}

// Sink writes a report result to its destination.
type Sink interface {
	Export(ctx context.Context, req ExportRequest) error
}

// Dispatcher builds the report query, runs it and forwards the result.
type Dispatcher struct {
	builder  QueryBuilder
	source   Source
	sink     Sink
	logger   *slog.Logger
	mode     string
	relative domain.RelativeRange
	calc     window.Calculator
	clock    window.Clock
}

// New constructs a dispatcher from the report section of cfg.
func New(source Source, sink Sink, logger *slog.Logger, cfg config.Config) (*Dispatcher, error) {
	if source == nil || sink == nil {
		return nil, errors.New("report dispatcher requires source and sink")
	}
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("report time zone: %w", err)
	}
	d := &Dispatcher{
		builder: QueryBuilder{Fields: cfg.ReportFields, Source: cfg.ReportSource},
		source:  source,
		sink:    sink,
		logger:  logger,
		mode:    cfg.ReportMode,
		calc:    window.New(cfg.ReportLookbackDays, cfg.ReportEndOffsetDays, loc),
		clock:   window.SystemClock{},
	}
	switch cfg.ReportMode {
	case config.ModeRelative:
		relative, err := domain.RelativeRangeForDays(cfg.ReportRelativeDays)
		if err != nil {
			return nil, err
		}
		d.relative = relative
	case config.ModeWindow:
	default:
		return nil, fmt.Errorf("unknown report mode %q", cfg.ReportMode)
	}
	return d, nil
}

// WithClock replaces the clock used by Run.
func (d *Dispatcher) WithClock(c window.Clock) *Dispatcher {
	if c != nil {
		d.clock = c
	}
	return d
}

// Run dispatches the configured report for the clock's current instant.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.DispatchAt(ctx, d.clock.Now())
}

// Predicate resolves the configured mode for the invocation instant.
func (d *Dispatcher) Predicate(now time.Time) domain.Predicate {
	if d.mode == config.ModeRelative {
		return domain.RelativePredicate(d.relative)
	}
	return domain.WindowPredicate(d.calc.Compute(now))
}

// DispatchAt dispatches the configured report for the invocation instant.
func (d *Dispatcher) DispatchAt(ctx context.Context, now time.Time) error {
	return d.Dispatch(ctx, d.Predicate(now))
}

// Dispatch runs one query and one export. Errors from either side are
// returned to the caller; nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, p domain.Predicate) error {
	query, err := d.builder.Build(p)
	if err != nil {
		return fmt.Errorf("build report query: %w", err)
	}
	d.logger.Info("running report", "query", query.String())

	result, err := d.source.Report(ctx, query)
	if err != nil {
		return fmt.Errorf("run report: %w", err)
	}
	if err := d.sink.Export(ctx, ExportRequest{Query: query, Window: p.Window, Result: result}); err != nil {
		return fmt.Errorf("export report: %w", err)
	}
	d.logger.Info("report exported", "rows", len(result.Rows))
	return nil
}

// FanOut exports to each sink in order and stops at the first failure.
type FanOut []Sink

// Export implements Sink.
func (f FanOut) Export(ctx context.Context, req ExportRequest) error {
	for _, sink := range f {
		if err := sink.Export(ctx, req); err != nil {
			return err
		}
	}
	return nil
}
