package repository

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tokenmeter/internal/database"
	"tokenmeter/internal/model"

	log "github.com/sirupsen/logrus"
)

// JSONLUsageRepository 追加写的行分隔 JSON 文件，每次查询全量读取
type JSONLUsageRepository struct {
	mu   sync.Mutex
	path string
}

func NewJSONLUsageRepository(path string) (*JSONLUsageRepository, error) {
	path, err := database.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("repository: jsonl path is empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("repository: create dir %s: %w", dir, err)
		}
	}
	return &JSONLUsageRepository{path: path}, nil
}

func (r *JSONLUsageRepository) Save(record *model.UsageRecord) error {
	line, err := encodeUsageLine(record)
	if err != nil {
		return fmt.Errorf("repository: encode record %s: %w", record.ID, err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("repository: open %s: %w", r.path, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("repository: append %s: %w", r.path, err)
	}
	return f.Close()
}

func (r *JSONLUsageRepository) Query(filter model.RecordFilter) ([]*model.UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*model.UsageRecord{}, nil
		}
		return nil, fmt.Errorf("repository: open %s: %w", r.path, err)
	}
	defer f.Close()

	result := []*model.UsageRecord{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := decodeUsageLine(line)
		if err != nil {
			log.Warnf("repository: skipping malformed line %d in %s: %v", lineNo, r.path, err)
			continue
		}
		if filter.Match(rec) {
			result = append(result, rec)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("repository: read %s: %w", r.path, err)
	}

	sortByTimestamp(result)
	return result, nil
}

func (r *JSONLUsageRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("repository: remove %s: %w", r.path, err)
	}
	return nil
}

func (r *JSONLUsageRepository) Close() error {
	return nil
}
