package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/adsync/internal/app/migrate"
	"github.com/splax/adsync/internal/domain"
	"github.com/splax/adsync/internal/repository"
)

// newTestRepository connects to ADSYNC_TEST_DATABASE_URL and applies the
// embedded migrations. Tests are skipped when it is unset.
func newTestRepository(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("ADSYNC_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ADSYNC_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	runner, err := migrate.New(pool, dsn, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("migrate runner: %v", err)
	}
	t.Cleanup(runner.Close)
	if err := runner.Ensure(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(pool), pool
}

func TestExportRoundTrip(t *testing.T) {
	repo, pool := newTestRepository(t)
	ctx := context.Background()

	record := &domain.ExportRecord{
		ID:    uuid.NewString(),
		Query: "SELECT campaign.name FROM campaign WHERE segments.date BETWEEN '2024-01-15' AND '2024-03-14'",
		Window: &domain.DateWindow{
			Start: civil.Date{Year: 2024, Month: time.January, Day: 15},
			End:   civil.Date{Year: 2024, Month: time.March, Day: 14},
		},
		Columns:    []string{"campaign.name"},
		Rows:       [][]any{{"Spring"}, {nil}},
		RowCount:   2,
		ExportedAt: time.Date(2024, time.March, 15, 6, 0, 0, 0, time.UTC),
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM report_exports WHERE id = $1`, record.ID)
	})
	if err := repo.InsertExport(ctx, record); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.GetExport(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Query != record.Query || got.RowCount != 2 || len(got.Rows) != 2 {
		t.Fatalf("unexpected export %+v", got)
	}
	if got.Window == nil || got.Window.StartString() != "2024-01-15" || got.Window.EndString() != "2024-03-14" {
		t.Fatalf("unexpected window %v", got.Window)
	}
	if got.Rows[0][0] != "Spring" || got.Rows[1][0] != nil {
		t.Fatalf("unexpected rows %v", got.Rows)
	}

	if _, err := repo.GetExport(ctx, uuid.NewString()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPingOutcomeRoundTrip(t *testing.T) {
	repo, pool := newTestRepository(t)
	ctx := context.Background()

	url := "https://example.com/" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM ping_outcomes WHERE url = $1`, url)
	})
	code := 503
	msg := "Timeout"
	checked := time.Now().UTC().Truncate(time.Millisecond)
	for _, o := range []domain.PingOutcome{
		{Success: true, StatusCode: &code, URL: url, CheckedAt: checked.Add(-time.Minute), Latency: 120 * time.Millisecond},
		{Success: false, Error: &msg, URL: url, CheckedAt: checked},
	} {
		if err := repo.InsertPingOutcome(ctx, o); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	outcomes, err := repo.ListPingOutcomes(ctx, 200)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ours []domain.PingOutcome
	for _, o := range outcomes {
		if o.URL == url {
			ours = append(ours, o)
		}
	}
	if len(ours) != 2 {
		t.Fatalf("expected two outcomes, got %d", len(ours))
	}
	if ours[0].Success || ours[0].Error == nil || *ours[0].Error != "Timeout" {
		t.Fatalf("expected newest failure first, got %+v", ours[0])
	}
	if ours[1].StatusCode == nil || *ours[1].StatusCode != 503 || ours[1].Latency != 120*time.Millisecond {
		t.Fatalf("unexpected success outcome %+v", ours[1])
	}
}
