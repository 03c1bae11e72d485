package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"tokenmeter/internal/database"
	"tokenmeter/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// SQLiteUsageRepository 单表存储；tags 以 JSON 文本保存，查询后再过滤
type SQLiteUsageRepository struct {
	mu sync.Mutex
	db *sqlx.DB
}

func NewSQLiteUsageRepository(path string) (*SQLiteUsageRepository, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteUsageRepository{db: db}, nil
}

type usageRow struct {
	ID               string         `db:"id"`
	Timestamp        string         `db:"timestamp"`
	Provider         string         `db:"provider"`
	Model            string         `db:"model"`
	InputTokens      int            `db:"input_tokens"`
	OutputTokens     int            `db:"output_tokens"`
	CacheReadTokens  int            `db:"cache_read_tokens"`
	CacheWriteTokens int            `db:"cache_write_tokens"`
	InputCost        string         `db:"input_cost"`
	OutputCost       string         `db:"output_cost"`
	CacheReadCost    string         `db:"cache_read_cost"`
	CacheWriteCost   string         `db:"cache_write_cost"`
	TotalCost        string         `db:"total_cost"`
	SessionID        sql.NullString `db:"session_id"`
	UserID           sql.NullString `db:"user_id"`
	Tags             string         `db:"tags"`
	WaterML          string         `db:"water_ml"`
	IsEstimate       bool           `db:"is_estimate"`
}

const usageColumns = `id, timestamp, provider, model, input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
	input_cost, output_cost, cache_read_cost, cache_write_cost, total_cost, session_id, user_id, tags, water_ml, is_estimate`

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(database.TimestampLayout)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *SQLiteUsageRepository) Save(record *model.UsageRecord) error {
	tags := record.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("repository: encode tags: %w", err)
	}

	row := usageRow{
		ID:               record.ID,
		Timestamp:        formatTimestamp(record.Timestamp),
		Provider:         record.Provider,
		Model:            record.Model,
		InputTokens:      record.InputTokens,
		OutputTokens:     record.OutputTokens,
		CacheReadTokens:  record.CacheReadTokens,
		CacheWriteTokens: record.CacheWriteTokens,
		InputCost:        record.InputCost.String(),
		OutputCost:       record.OutputCost.String(),
		CacheReadCost:    record.CacheReadCost.String(),
		CacheWriteCost:   record.CacheWriteCost.String(),
		TotalCost:        record.TotalCost.String(),
		SessionID:        nullString(record.SessionID),
		UserID:           nullString(record.UserID),
		Tags:             string(tagsJSON),
		WaterML:          record.WaterML.String(),
		IsEstimate:       record.IsEstimate,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.NamedExec(`
		INSERT INTO usage_records (`+usageColumns+`)
		VALUES (:id, :timestamp, :provider, :model, :input_tokens, :output_tokens, :cache_read_tokens, :cache_write_tokens,
			:input_cost, :output_cost, :cache_read_cost, :cache_write_cost, :total_cost, :session_id, :user_id, :tags, :water_ml, :is_estimate)
		ON CONFLICT(id) DO UPDATE SET
			timestamp = excluded.timestamp,
			provider = excluded.provider,
			model = excluded.model,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			cache_read_tokens = excluded.cache_read_tokens,
			cache_write_tokens = excluded.cache_write_tokens,
			input_cost = excluded.input_cost,
			output_cost = excluded.output_cost,
			cache_read_cost = excluded.cache_read_cost,
			cache_write_cost = excluded.cache_write_cost,
			total_cost = excluded.total_cost,
			session_id = excluded.session_id,
			user_id = excluded.user_id,
			tags = excluded.tags,
			water_ml = excluded.water_ml,
			is_estimate = excluded.is_estimate
	`, row)
	if err != nil {
		return fmt.Errorf("repository: save record %s: %w", record.ID, err)
	}
	return nil
}

func (r *SQLiteUsageRepository) Query(filter model.RecordFilter) ([]*model.UsageRecord, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.Model != "" {
		conditions = append(conditions, "model = ?")
		args = append(args, filter.Model)
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTimestamp(*filter.Since))
	}
	if filter.Until != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, formatTimestamp(*filter.Until))
	}

	query := fmt.Sprintf("SELECT %s FROM usage_records WHERE %s ORDER BY timestamp, rowid",
		usageColumns, strings.Join(conditions, " AND "))

	r.mu.Lock()
	var rows []usageRow
	err := r.db.Select(&rows, query, args...)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("repository: query records: %w", err)
	}

	result := make([]*model.UsageRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			log.Warnf("repository: skipping unreadable row %s: %v", row.ID, err)
			continue
		}
		// tags 存为不透明文本，只能在取回后匹配
		if !filter.MatchTags(rec.Tags) {
			continue
		}
		result = append(result, rec)
	}
	return result, nil
}

func (row usageRow) toRecord() (*model.UsageRecord, error) {
	ts, err := parseTimestamp(row.Timestamp)
	if err != nil {
		return nil, err
	}
	rec := &model.UsageRecord{
		ID:               row.ID,
		Timestamp:        ts,
		Provider:         row.Provider,
		Model:            row.Model,
		InputTokens:      row.InputTokens,
		OutputTokens:     row.OutputTokens,
		CacheReadTokens:  row.CacheReadTokens,
		CacheWriteTokens: row.CacheWriteTokens,
		SessionID:        row.SessionID.String,
		UserID:           row.UserID.String,
		Tags:             map[string]string{},
		IsEstimate:       row.IsEstimate,
	}
	if row.Tags != "" {
		if err := json.Unmarshal([]byte(row.Tags), &rec.Tags); err != nil {
			return nil, fmt.Errorf("bad tags: %w", err)
		}
	}

	amounts := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{row.InputCost, &rec.InputCost},
		{row.OutputCost, &rec.OutputCost},
		{row.CacheReadCost, &rec.CacheReadCost},
		{row.CacheWriteCost, &rec.CacheWriteCost},
		{row.TotalCost, &rec.TotalCost},
		{row.WaterML, &rec.WaterML},
	}
	for _, a := range amounts {
		if *a.dst, err = parseAmount(a.raw); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (r *SQLiteUsageRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.db.Exec(`DELETE FROM usage_records`); err != nil {
		return fmt.Errorf("repository: clear records: %w", err)
	}
	return nil
}

func (r *SQLiteUsageRepository) Close() error {
	return r.db.Close()
}
