package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/adsync/internal/domain"
	"github.com/splax/adsync/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.ExportRepository = (*Repository)(nil)
	_ repository.PingRepository   = (*Repository)(nil)
)

// InsertExport archives a report export.
func (r *Repository) InsertExport(ctx context.Context, record *domain.ExportRecord) error {
	const query = `INSERT INTO report_exports (id, query, window_start, window_end, columns, rows, row_count, exported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	columns, err := json.Marshal(record.Columns)
	if err != nil {
		return fmt.Errorf("marshal export columns: %w", err)
	}
	rows, err := json.Marshal(record.Rows)
	if err != nil {
		return fmt.Errorf("marshal export rows: %w", err)
	}
	var start, end *time.Time
	if record.Window != nil {
		s := record.Window.Start.In(time.UTC)
		e := record.Window.End.In(time.UTC)
		start, end = &s, &e
	}
	_, err = r.pool.Exec(ctx, query, record.ID, record.Query.String(), start, end, columns, rows, record.RowCount, record.ExportedAt)
	return err
}

// ListExports returns the most recent exports without their rows.
func (r *Repository) ListExports(ctx context.Context, limit int) ([]domain.ExportRecord, error) {
	const query = `SELECT id, query, window_start, window_end, columns, row_count, exported_at
		FROM report_exports ORDER BY exported_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ExportRecord
	for rows.Next() {
		var (
			rec        domain.ExportRecord
			q          string
			start, end *time.Time
			columns    []byte
		)
		if err := rows.Scan(&rec.ID, &q, &start, &end, &columns, &rec.RowCount, &rec.ExportedAt); err != nil {
			return nil, err
		}
		rec.Query = domain.ReportQuery(q)
		rec.Window = windowFrom(start, end)
		if err := json.Unmarshal(columns, &rec.Columns); err != nil {
			return nil, fmt.Errorf("decode export columns: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetExport loads one export including its rows.
func (r *Repository) GetExport(ctx context.Context, id string) (*domain.ExportRecord, error) {
	const query = `SELECT id, query, window_start, window_end, columns, rows, row_count, exported_at
		FROM report_exports WHERE id = $1`
	var (
		rec           domain.ExportRecord
		q             string
		start, end    *time.Time
		columns, data []byte
	)
	row := r.pool.QueryRow(ctx, query, id)
	if err := row.Scan(&rec.ID, &q, &start, &end, &columns, &data, &rec.RowCount, &rec.ExportedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	rec.Query = domain.ReportQuery(q)
	rec.Window = windowFrom(start, end)
	if err := json.Unmarshal(columns, &rec.Columns); err != nil {
		return nil, fmt.Errorf("decode export columns: %w", err)
	}
	if err := json.Unmarshal(data, &rec.Rows); err != nil {
		return nil, fmt.Errorf("decode export rows: %w", err)
	}
	return &rec, nil
}

// InsertPingOutcome stores a ping outcome.
func (r *Repository) InsertPingOutcome(ctx context.Context, outcome domain.PingOutcome) error {
	const query = `INSERT INTO ping_outcomes (url, success, status_code, error, latency_ms, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	latency := float64(outcome.Latency) / float64(time.Millisecond)
	_, err := r.pool.Exec(ctx, query, outcome.URL, outcome.Success, outcome.StatusCode, outcome.Error, latency, outcome.CheckedAt)
	return err
}

// ListPingOutcomes returns the most recent ping outcomes.
func (r *Repository) ListPingOutcomes(ctx context.Context, limit int) ([]domain.PingOutcome, error) {
	const query = `SELECT url, success, status_code, error, latency_ms, checked_at
		FROM ping_outcomes ORDER BY checked_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []domain.PingOutcome
	for rows.Next() {
		var (
			o         domain.PingOutcome
			latencyMS float64
		)
		if err := rows.Scan(&o.URL, &o.Success, &o.StatusCode, &o.Error, &latencyMS, &o.CheckedAt); err != nil {
			return nil, err
		}
		o.Latency = time.Duration(latencyMS * float64(time.Millisecond))
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func windowFrom(start, end *time.Time) *domain.DateWindow {
	if start == nil || end == nil {
		return nil
	}
	return &domain.DateWindow{Start: civil.DateOf(*start), End: civil.DateOf(*end)}
}
