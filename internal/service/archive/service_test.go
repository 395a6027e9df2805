package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/splax/adsync/internal/domain"
	"github.com/splax/adsync/internal/repository"
	"github.com/splax/adsync/internal/service/report"
	"github.com/splax/adsync/internal/service/window"
)

type fakeExportRepo struct {
	inserted  []*domain.ExportRecord
	lastLimit int
	insertErr error
}

func (f *fakeExportRepo) InsertExport(_ context.Context, record *domain.ExportRecord) error {
	f.inserted = append(f.inserted, record)
	return f.insertErr
}

func (f *fakeExportRepo) ListExports(_ context.Context, limit int) ([]domain.ExportRecord, error) {
	f.lastLimit = limit
	out := make([]domain.ExportRecord, 0, len(f.inserted))
	for _, rec := range f.inserted {
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeExportRepo) GetExport(_ context.Context, id string) (*domain.ExportRecord, error) {
	for _, rec := range f.inserted {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakePingRepo struct {
	outcomes []domain.PingOutcome
}

func (f *fakePingRepo) InsertPingOutcome(_ context.Context, o domain.PingOutcome) error {
	f.outcomes = append(f.outcomes, o)
	return nil
}

func (f *fakePingRepo) ListPingOutcomes(_ context.Context, limit int) ([]domain.PingOutcome, error) {
	if limit < len(f.outcomes) {
		return f.outcomes[:limit], nil
	}
	return f.outcomes, nil
}

func newTestService(exports *fakeExportRepo, pings *fakePingRepo) Service {
	svc := New(exports, pings, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2024, time.March, 15, 6, 0, 0, 0, time.UTC) }
	return svc
}

func TestExportArchivesRecord(t *testing.T) {
	exports := &fakeExportRepo{}
	svc := newTestService(exports, &fakePingRepo{})
	w := window.New(60, 1, nil).Compute(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))

	req := report.ExportRequest{
		Query:  "SELECT campaign.name FROM campaign WHERE segments.date DURING LAST_7_DAYS",
		Window: &w,
		Result: domain.ReportResult{Columns: []string{"campaign.name"}, Rows: [][]any{{"A"}, {"B"}}},
	}
	if err := svc.Export(context.Background(), req); err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exports.inserted) != 1 {
		t.Fatalf("expected one record, got %d", len(exports.inserted))
	}
	rec := exports.inserted[0]
	if _, err := uuid.Parse(rec.ID); err != nil {
		t.Fatalf("expected uuid id, got %q", rec.ID)
	}
	if rec.RowCount != 2 || rec.Window == nil || rec.Window.EndString() != "2024-03-14" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.ExportedAt.Equal(time.Date(2024, time.March, 15, 6, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected exported_at %s", rec.ExportedAt)
	}

	got, err := svc.GetExport(context.Background(), rec.ID)
	if err != nil || got.ID != rec.ID {
		t.Fatalf("get export: %v %+v", err, got)
	}
}

func TestExportPropagatesRepositoryError(t *testing.T) {
	boom := errors.New("insert failed")
	svc := newTestService(&fakeExportRepo{insertErr: boom}, &fakePingRepo{})
	if err := svc.Export(context.Background(), report.ExportRequest{}); !errors.Is(err, boom) {
		t.Fatalf("expected repository error, got %v", err)
	}
}

func TestGetExportRejectsMalformedID(t *testing.T) {
	svc := newTestService(&fakeExportRepo{}, &fakePingRepo{})
	if _, err := svc.GetExport(context.Background(), "not-a-uuid"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListClampsLimit(t *testing.T) {
	exports := &fakeExportRepo{}
	svc := newTestService(exports, &fakePingRepo{})

	for input, want := range map[int]int{0: defaultListLimit, -5: defaultListLimit, 50: 50, 10_000: maxListLimit} {
		if _, err := svc.ListExports(context.Background(), input); err != nil {
			t.Fatalf("list: %v", err)
		}
		if exports.lastLimit != want {
			t.Fatalf("limit %d: expected %d, got %d", input, want, exports.lastLimit)
		}
	}
}

func TestRecordPing(t *testing.T) {
	pings := &fakePingRepo{}
	svc := newTestService(&fakeExportRepo{}, pings)
	code := 200
	if err := svc.RecordPing(context.Background(), domain.PingOutcome{Success: true, StatusCode: &code, URL: "https://example.com"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	listed, err := svc.ListPings(context.Background(), 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || *listed[0].StatusCode != 200 {
		t.Fatalf("unexpected outcomes %+v", listed)
	}
}

func TestUnconfiguredArchive(t *testing.T) {
	svc := New(nil, nil, nil)
	if err := svc.Export(context.Background(), report.ExportRequest{}); err == nil {
		t.Fatal("expected error without export repository")
	}
	if err := svc.RecordPing(context.Background(), domain.PingOutcome{}); err == nil {
		t.Fatal("expected error without ping repository")
	}
}
