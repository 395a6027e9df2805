package archive

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/splax/adsync/internal/domain"
	"github.com/splax/adsync/internal/repository"
	"github.com/splax/adsync/internal/service/ping"
	"github.com/splax/adsync/internal/service/report"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Service keeps a history of report exports and ping outcomes.
type Service struct {
	exports repository.ExportRepository
	pings   repository.PingRepository
	logger  *slog.Logger
	now     func() time.Time
}

var (
	_ report.Sink          = Service{}
	_ ping.OutcomeRecorder = Service{}
)

// New constructs an archive service.
func New(exports repository.ExportRepository, pings repository.PingRepository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{exports: exports, pings: pings, logger: logger, now: time.Now}
}

// Export stores the export as a report.Sink.
func (s Service) Export(ctx context.Context, req report.ExportRequest) error {
	if s.exports == nil {
		return errors.New("export archive not configured")
	}
	record := &domain.ExportRecord{
		ID:         uuid.NewString(),
		Query:      req.Query,
		Window:     req.Window,
		Columns:    req.Result.Columns,
		Rows:       req.Result.Rows,
		RowCount:   len(req.Result.Rows),
		ExportedAt: s.now().UTC(),
	}
	if err := s.exports.InsertExport(ctx, record); err != nil {
		return err
	}
	s.logger.Debug("report export archived", "export_id", record.ID, "rows", record.RowCount)
	return nil
}

// RecordPing stores a ping outcome as a ping.OutcomeRecorder.
func (s Service) RecordPing(ctx context.Context, outcome domain.PingOutcome) error {
	if s.pings == nil {
		return errors.New("ping archive not configured")
	}
	return s.pings.InsertPingOutcome(ctx, outcome)
}

// ListExports returns recent exports.
func (s Service) ListExports(ctx context.Context, limit int) ([]domain.ExportRecord, error) {
	if s.exports == nil {
		return nil, errors.New("export archive not configured")
	}
	return s.exports.ListExports(ctx, clampLimit(limit))
}

// GetExport returns one export with rows.
func (s Service) GetExport(ctx context.Context, id string) (*domain.ExportRecord, error) {
	if s.exports == nil {
		return nil, errors.New("export archive not configured")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	return s.exports.GetExport(ctx, id)
}

// ListPings returns recent ping outcomes.
func (s Service) ListPings(ctx context.Context, limit int) ([]domain.PingOutcome, error) {
	if s.pings == nil {
		return nil, errors.New("ping archive not configured")
	}
	return s.pings.ListPingOutcomes(ctx, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
