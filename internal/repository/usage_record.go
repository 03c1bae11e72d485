package repository

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"tokenmeter/internal/model"
)

// ErrUnknownBackend 不支持的存储后端
var ErrUnknownBackend = errors.New("unknown storage backend")

// 存储后端
const (
	BackendMemory = "memory"
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// UsageRecordRepositoryInterface 用量记录存储
// 三种实现对相同输入返回相同的结果，按时间升序
type UsageRecordRepositoryInterface interface {
	Save(record *model.UsageRecord) error
	Query(filter model.RecordFilter) ([]*model.UsageRecord, error)
	Clear() error
	Close() error
}

var (
	_ UsageRecordRepositoryInterface = (*MemoryUsageRepository)(nil)
	_ UsageRecordRepositoryInterface = (*JSONLUsageRepository)(nil)
	_ UsageRecordRepositoryInterface = (*SQLiteUsageRepository)(nil)
)

// Options 文件型后端的路径
type Options struct {
	JSONLPath  string
	SQLitePath string
}

// ParseBackend 校验后端名称
func ParseBackend(name string) (string, error) {
	switch b := strings.ToLower(strings.TrimSpace(name)); b {
	case BackendMemory, BackendJSONL, BackendSQLite:
		return b, nil
	}
	return "", fmt.Errorf("%w: %q (expected memory, jsonl or sqlite)", ErrUnknownBackend, name)
}

// NewUsageRecordRepository 按名称创建存储后端
func NewUsageRecordRepository(backend string, opts Options) (UsageRecordRepositoryInterface, error) {
	b, err := ParseBackend(backend)
	if err != nil {
		return nil, err
	}
	switch b {
	case BackendJSONL:
		return NewJSONLUsageRepository(opts.JSONLPath)
	case BackendSQLite:
		return NewSQLiteUsageRepository(opts.SQLitePath)
	default:
		return NewMemoryUsageRepository(), nil
	}
}

// sortByTimestamp 稳定排序，同一时刻保持写入顺序
func sortByTimestamp(records []*model.UsageRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
