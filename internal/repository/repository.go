package repository

import (
	"context"
	"errors"

	"github.com/splax/adsync/internal/domain"
)

// ErrNotFound indicates no archived record matched.
var ErrNotFound = errors.New("repository: record not found")

// ExportRepository archives report exports.
type ExportRepository interface {
	InsertExport(ctx context.Context, record *domain.ExportRecord) error
	ListExports(ctx context.Context, limit int) ([]domain.ExportRecord, error)
	GetExport(ctx context.Context, id string) (*domain.ExportRecord, error)
}

// PingRepository archives health ping outcomes.
type PingRepository interface {
	InsertPingOutcome(ctx context.Context, outcome domain.PingOutcome) error
	ListPingOutcomes(ctx context.Context, limit int) ([]domain.PingOutcome, error)
}
