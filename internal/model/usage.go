package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenUsage 统一的 token 使用量结构
type TokenUsage struct {
	InputTokens      int `json:"inputTokens"`
	OutputTokens     int `json:"outputTokens"`
	CacheReadTokens  int `json:"cacheReadTokens"`
	CacheWriteTokens int `json:"cacheWriteTokens"`
}

// Total 四类 token 之和
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// UsageRecord 单次调用的用量与成本记录，创建后不再修改
type UsageRecord struct {
	ID               string            `json:"id"`
	Timestamp        time.Time         `json:"timestamp"`
	Provider         string            `json:"provider"`
	Model            string            `json:"model"`
	InputTokens      int               `json:"inputTokens"`
	OutputTokens     int               `json:"outputTokens"`
	CacheReadTokens  int               `json:"cacheReadTokens"`
	CacheWriteTokens int               `json:"cacheWriteTokens"`
	InputCost        decimal.Decimal   `json:"inputCost"`
	OutputCost       decimal.Decimal   `json:"outputCost"`
	CacheReadCost    decimal.Decimal   `json:"cacheReadCost"`
	CacheWriteCost   decimal.Decimal   `json:"cacheWriteCost"`
	TotalCost        decimal.Decimal   `json:"totalCost"`
	SessionID        string            `json:"sessionId,omitempty"`
	UserID           string            `json:"userId,omitempty"`
	Tags             map[string]string `json:"tags"`
	WaterML          decimal.Decimal   `json:"waterMl"`
	IsEstimate       bool              `json:"isEstimate"`
}

// Usage 返回记录中的 token 数
func (r *UsageRecord) Usage() TokenUsage {
	return TokenUsage{
		InputTokens:      r.InputTokens,
		OutputTokens:     r.OutputTokens,
		CacheReadTokens:  r.CacheReadTokens,
		CacheWriteTokens: r.CacheWriteTokens,
	}
}

// Clone 深拷贝（tags 独立）
func (r *UsageRecord) Clone() *UsageRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Tags = make(map[string]string, len(r.Tags))
	for k, v := range r.Tags {
		c.Tags[k] = v
	}
	return &c
}

// RecordFilter 记录查询条件，所有条件为 AND 关系
type RecordFilter struct {
	Provider  string
	Model     string
	UserID    string
	SessionID string
	Since     *time.Time
	Until     *time.Time
	Tags      map[string]string
}

// Match 判断记录是否满足过滤条件
// Since/Until 为闭区间；Tags 要求每个 key 都存在且值相等
func (f RecordFilter) Match(r *UsageRecord) bool {
	if f.Provider != "" && r.Provider != f.Provider {
		return false
	}
	if f.Model != "" && r.Model != f.Model {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.Since != nil && r.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && r.Timestamp.After(*f.Until) {
		return false
	}
	return f.MatchTags(r.Tags)
}

// MatchTags 只比较 tags
func (f RecordFilter) MatchTags(tags map[string]string) bool {
	for k, v := range f.Tags {
		got, ok := tags[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}
