package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/splax/adsync/internal/domain"
	"github.com/splax/adsync/internal/service/window"
	"github.com/splax/adsync/pkg/config"
)

const landingPageSelect = "SELECT segments.date, metrics.impressions, metrics.clicks, metrics.conversions, metrics.cost_micros, " +
	"campaign.name, expanded_landing_page_view.expanded_final_url FROM expanded_landing_page_view"

func defaultBuilder() QueryBuilder {
	return QueryBuilder{Fields: config.DefaultReportFields, Source: "expanded_landing_page_view"}
}

func TestBuildRelative(t *testing.T) {
	for _, days := range []int{7, 30} {
		rng, err := domain.RelativeRangeForDays(days)
		if err != nil {
			t.Fatalf("range for %d: %v", days, err)
		}
		query, err := defaultBuilder().Build(domain.RelativePredicate(rng))
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		want := landingPageSelect + " WHERE segments.date DURING " + string(rng)
		if query.String() != want {
			t.Fatalf("unexpected query\n got: %s\nwant: %s", query, want)
		}
		if strings.Contains(query.String(), "BETWEEN") || strings.Contains(query.String(), "'") {
			t.Fatalf("relative query must not interpolate dates: %s", query)
		}
	}
}

func TestBuildWindowMatchesCalculator(t *testing.T) {
	now := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	w := window.New(60, 1, nil).Compute(now)

	query, err := defaultBuilder().Build(domain.WindowPredicate(w))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := landingPageSelect + " WHERE segments.date BETWEEN '2024-01-15' AND '2024-03-14'"
	if query.String() != want {
		t.Fatalf("unexpected query\n got: %s\nwant: %s", query, want)
	}
}

func TestBuildErrors(t *testing.T) {
	w := window.New(60, 1, nil).Compute(time.Now())
	cases := []struct {
		name    string
		builder QueryBuilder
		pred    domain.Predicate
		want    error
	}{
		{"empty predicate", defaultBuilder(), domain.Predicate{}, ErrEmptyPredicate},
		{"ambiguous", defaultBuilder(), domain.Predicate{Relative: domain.Last7Days, Window: &w}, ErrAmbiguousPredicate},
		{"no fields", QueryBuilder{Source: "campaign"}, domain.RelativePredicate(domain.Last7Days), ErrIncompleteSelection},
		{"no source", QueryBuilder{Fields: []string{"campaign.name"}}, domain.RelativePredicate(domain.Last7Days), ErrIncompleteSelection},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.builder.Build(tc.pred); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRelativeRangeForDaysRejectsOtherCounts(t *testing.T) {
	if _, err := domain.RelativeRangeForDays(14); !errors.Is(err, domain.ErrUnsupportedRange) {
		t.Fatalf("expected ErrUnsupportedRange, got %v", err)
	}
}

type fakeSource struct {
	result  domain.ReportResult
	err     error
	queries []domain.ReportQuery
}

func (f *fakeSource) Report(_ context.Context, query domain.ReportQuery) (domain.ReportResult, error) {
	f.queries = append(f.queries, query)
	return f.result, f.err
}

type fakeSink struct {
	err      error
	requests []ExportRequest
}

func (f *fakeSink) Export(_ context.Context, req ExportRequest) error {
	f.requests = append(f.requests, req)
	return f.err
}

func newTestDispatcher(t *testing.T, source Source, sink Sink, mutate func(*config.Config)) *Dispatcher {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := New(source, sink, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d
}

func TestDispatchAtForwardsResultVerbatim(t *testing.T) {
	result := domain.ReportResult{
		Columns: []string{"segments.date", "metrics.clicks"},
		Rows:    [][]any{{"2024-03-14", "12"}, {"2024-03-13", nil}},
	}
	source := &fakeSource{result: result}
	sink := &fakeSink{}
	d := newTestDispatcher(t, source, sink, nil)

	now := time.Date(2024, time.March, 15, 9, 30, 0, 0, time.UTC)
	if err := d.DispatchAt(context.Background(), now); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(source.queries) != 1 {
		t.Fatalf("expected one report call, got %d", len(source.queries))
	}
	if !strings.HasSuffix(source.queries[0].String(), "BETWEEN '2024-01-15' AND '2024-03-14'") {
		t.Fatalf("unexpected query %s", source.queries[0])
	}
	if len(sink.requests) != 1 {
		t.Fatalf("expected one export, got %d", len(sink.requests))
	}
	req := sink.requests[0]
	if !reflect.DeepEqual(req.Result, result) {
		t.Fatalf("result was modified: %+v", req.Result)
	}
	if req.Query != source.queries[0] {
		t.Fatalf("export query %s differs from submitted %s", req.Query, source.queries[0])
	}
	if req.Window == nil || req.Window.StartString() != "2024-01-15" {
		t.Fatalf("expected window metadata, got %v", req.Window)
	}
}

func TestRunUsesInjectedClock(t *testing.T) {
	source := &fakeSource{}
	sink := &fakeSink{}
	d := newTestDispatcher(t, source, sink, nil)
	d.WithClock(window.ClockFunc(func() time.Time {
		return time.Date(2024, time.March, 1, 23, 59, 0, 0, time.UTC)
	}))

	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasSuffix(source.queries[0].String(), "BETWEEN '2024-01-01' AND '2024-02-29'") {
		t.Fatalf("unexpected query %s", source.queries[0])
	}
}

func TestDispatchAtRelativeMode(t *testing.T) {
	source := &fakeSource{}
	sink := &fakeSink{}
	d := newTestDispatcher(t, source, sink, func(c *config.Config) {
		c.ReportMode = config.ModeRelative
		c.ReportRelativeDays = 30
	})

	if err := d.DispatchAt(context.Background(), time.Now()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.HasSuffix(source.queries[0].String(), "DURING LAST_30_DAYS") {
		t.Fatalf("unexpected query %s", source.queries[0])
	}
	if sink.requests[0].Window != nil {
		t.Fatalf("relative export should carry no window")
	}
}

func TestDispatchPropagatesSourceError(t *testing.T) {
	boom := errors.New("quota exhausted")
	source := &fakeSource{err: boom}
	sink := &fakeSink{}
	d := newTestDispatcher(t, source, sink, nil)

	err := d.DispatchAt(context.Background(), time.Now())
	if !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
	if len(source.queries) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(source.queries))
	}
	if len(sink.requests) != 0 {
		t.Fatalf("sink must not be called after a report failure")
	}
}

func TestDispatchPropagatesSinkError(t *testing.T) {
	boom := errors.New("sheet locked")
	source := &fakeSource{}
	sink := &fakeSink{err: boom}
	d := newTestDispatcher(t, source, sink, nil)

	if err := d.DispatchAt(context.Background(), time.Now()); !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if len(sink.requests) != 1 {
		t.Fatalf("expected one export attempt, got %d", len(sink.requests))
	}
}

func TestNewRejectsUnsupportedRelativeDays(t *testing.T) {
	cfg := config.Default()
	cfg.ReportMode = config.ModeRelative
	cfg.ReportRelativeDays = 90
	if _, err := New(&fakeSource{}, &fakeSink{}, nil, cfg); !errors.Is(err, domain.ErrUnsupportedRange) {
		t.Fatalf("expected ErrUnsupportedRange, got %v", err)
	}
}

func TestFanOutStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("archive down")
	first := &fakeSink{}
	second := &fakeSink{err: boom}
	third := &fakeSink{}

	err := FanOut{first, second, third}.Export(context.Background(), ExportRequest{Query: "q"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected archive error, got %v", err)
	}
	if len(first.requests) != 1 || len(second.requests) != 1 || len(third.requests) != 0 {
		t.Fatalf("unexpected call counts %d/%d/%d", len(first.requests), len(second.requests), len(third.requests))
	}
}
