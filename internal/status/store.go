package status

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/splax/adsync/internal/domain"
)

// ErrNotFound indicates no run has been recorded for the job.
var ErrNotFound = errors.New("status: no run recorded")

// Store keeps the latest run record per job.
type Store interface {
	Save(ctx context.Context, record domain.RunRecord) error
	Get(ctx context.Context, job string) (domain.RunRecord, error)
	List(ctx context.Context) ([]domain.RunRecord, error)
	Close()
}

type memoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.RunRecord
}

// NewMemoryStore returns an in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{records: make(map[string]domain.RunRecord)}
}

func (m *memoryStore) Save(_ context.Context, record domain.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Job] = record
	return nil
}

func (m *memoryStore) Get(_ context.Context, job string) (domain.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[job]
	if !ok {
		return domain.RunRecord{}, ErrNotFound
	}
	return record, nil
}

func (m *memoryStore) List(_ context.Context) ([]domain.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.RunRecord, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, record)
	}
	sortByJob(out)
	return out, nil
}

func (m *memoryStore) Close() {}

func sortByJob(records []domain.RunRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Job < records[j].Job })
}
