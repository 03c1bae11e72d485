package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"tokenmeter/internal/database"
	"tokenmeter/internal/model"

	"github.com/shopspring/decimal"
)

// usageLine JSONL 中的一行；金额以字符串保存，避免 float 往返损失
type usageLine struct {
	ID               string            `json:"id"`
	Timestamp        string            `json:"timestamp"`
	Provider         string            `json:"provider"`
	Model            string            `json:"model"`
	InputTokens      int               `json:"input_tokens"`
	OutputTokens     int               `json:"output_tokens"`
	CacheReadTokens  int               `json:"cache_read_tokens"`
	CacheWriteTokens int               `json:"cache_write_tokens"`
	InputCost        string            `json:"input_cost"`
	OutputCost       string            `json:"output_cost"`
	CacheReadCost    string            `json:"cache_read_cost,omitempty"`
	CacheWriteCost   string            `json:"cache_write_cost,omitempty"`
	TotalCost        string            `json:"total_cost"`
	SessionID        *string           `json:"session_id"`
	UserID           *string           `json:"user_id"`
	Tags             map[string]string `json:"tags"`
	WaterML          string            `json:"water_ml,omitempty"`
	IsEstimate       bool              `json:"is_estimate"`
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func encodeUsageLine(r *model.UsageRecord) ([]byte, error) {
	tags := r.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	return json.Marshal(usageLine{
		ID:               r.ID,
		Timestamp:        r.Timestamp.Format(time.RFC3339Nano),
		Provider:         r.Provider,
		Model:            r.Model,
		InputTokens:      r.InputTokens,
		OutputTokens:     r.OutputTokens,
		CacheReadTokens:  r.CacheReadTokens,
		CacheWriteTokens: r.CacheWriteTokens,
		InputCost:        r.InputCost.String(),
		OutputCost:       r.OutputCost.String(),
		CacheReadCost:    r.CacheReadCost.String(),
		CacheWriteCost:   r.CacheWriteCost.String(),
		TotalCost:        r.TotalCost.String(),
		SessionID:        optionalString(r.SessionID),
		UserID:           optionalString(r.UserID),
		Tags:             tags,
		WaterML:          r.WaterML.String(),
		IsEstimate:       r.IsEstimate,
	})
}

func decodeUsageLine(b []byte) (*model.UsageRecord, error) {
	var l usageLine
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, err
	}
	if l.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	ts, err := parseTimestamp(l.Timestamp)
	if err != nil {
		return nil, err
	}

	rec := &model.UsageRecord{
		ID:               l.ID,
		Timestamp:        ts,
		Provider:         l.Provider,
		Model:            l.Model,
		InputTokens:      l.InputTokens,
		OutputTokens:     l.OutputTokens,
		CacheReadTokens:  l.CacheReadTokens,
		CacheWriteTokens: l.CacheWriteTokens,
		SessionID:        derefString(l.SessionID),
		UserID:           derefString(l.UserID),
		Tags:             l.Tags,
		IsEstimate:       l.IsEstimate,
	}
	if rec.Tags == nil {
		rec.Tags = map[string]string{}
	}

	amounts := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{l.InputCost, &rec.InputCost},
		{l.OutputCost, &rec.OutputCost},
		{l.CacheReadCost, &rec.CacheReadCost},
		{l.CacheWriteCost, &rec.CacheWriteCost},
		{l.TotalCost, &rec.TotalCost},
		{l.WaterML, &rec.WaterML},
	}
	for _, a := range amounts {
		if *a.dst, err = parseAmount(a.raw); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// parseAmount 空字符串视为 0
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad amount %q: %w", s, err)
	}
	return d, nil
}

// 不带时区的旧格式按本地时间解析
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp 统一返回本地时区
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.Local(), nil
	}
	if t, err := time.Parse(database.TimestampLayout, s); err == nil {
		return t.Local(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad timestamp %q", s)
}
