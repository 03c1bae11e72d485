package repository

import (
	"sync"

	"tokenmeter/internal/model"
)

// MemoryUsageRepository 进程内存储，进程退出即丢失
type MemoryUsageRepository struct {
	mu      sync.Mutex
	records []*model.UsageRecord
}

func NewMemoryUsageRepository() *MemoryUsageRepository {
	return &MemoryUsageRepository{}
}

func (r *MemoryUsageRepository) Save(record *model.UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record.Clone())
	return nil
}

func (r *MemoryUsageRepository) Query(filter model.RecordFilter) ([]*model.UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*model.UsageRecord, 0, len(r.records))
	for _, rec := range r.records {
		if filter.Match(rec) {
			result = append(result, rec.Clone())
		}
	}
	sortByTimestamp(result)
	return result, nil
}

func (r *MemoryUsageRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
	return nil
}

func (r *MemoryUsageRepository) Close() error {
	return nil
}
