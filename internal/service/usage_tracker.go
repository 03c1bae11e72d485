package service

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"tokenmeter/internal/billing"
	"tokenmeter/internal/metrics"
	"tokenmeter/internal/model"
	"tokenmeter/internal/provider"
	"tokenmeter/internal/repository"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidGroupBy = errors.New("invalid group_by")
	ErrNoStreamUsage  = errors.New("stream ended without usage")
)

// 汇总时缺失分组键归入该桶
const unknownBucket = "unknown"

// RecordOptions 记录时的附加信息
type RecordOptions struct {
	UserID    string
	SessionID string
	Tags      map[string]string
}

// ManualUsage 已知 token 数的手工记录
type ManualUsage struct {
	Model            string            `json:"model"`
	Provider         string            `json:"provider"`
	InputTokens      int               `json:"input_tokens"`
	OutputTokens     int               `json:"output_tokens"`
	CacheReadTokens  int               `json:"cache_read_tokens"`
	CacheWriteTokens int               `json:"cache_write_tokens"`
	UserID           string            `json:"user_id"`
	SessionID        string            `json:"session_id"`
	Tags             map[string]string `json:"tags"`
	IsEstimate       bool              `json:"is_estimate"`
}

// UsageTracker 用量记录与统计
type UsageTracker struct {
	repo      repository.UsageRecordRepositoryInterface
	calc      *billing.CostCalculator
	registry  *provider.Registry
	water     *billing.WaterCalculator
	sessionID string
	now       func() time.Time
}

// NewUsageTracker water 可为 nil；sessionID 为空时生成新的会话 ID
func NewUsageTracker(
	repo repository.UsageRecordRepositoryInterface,
	calc *billing.CostCalculator,
	registry *provider.Registry,
	water *billing.WaterCalculator,
	sessionID string,
) *UsageTracker {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	return &UsageTracker{
		repo:      repo,
		calc:      calc,
		registry:  registry,
		water:     water,
		sessionID: sessionID,
		now:       time.Now,
	}
}

// SessionID 当前会话 ID
func (t *UsageTracker) SessionID() string {
	return t.sessionID
}

// Repository 底层存储
func (t *UsageTracker) Repository() repository.UsageRecordRepositoryInterface {
	return t.repo
}

// Record 识别提供商并记录一次响应的用量
func (t *UsageTracker) Record(resp any, opts RecordOptions) (*model.UsageRecord, error) {
	parsed, err := provider.ParseResponse(resp)
	if err != nil {
		return nil, err
	}
	p, err := t.registry.Detect(parsed)
	if err != nil {
		return nil, err
	}
	return t.save(p.Name(), p.ExtractModel(parsed), p.ExtractUsage(parsed), opts, false)
}

// RecordStream 读取 SSE 流，以最终用量记录
func (t *UsageTracker) RecordStream(providerName string, r io.Reader, opts RecordOptions) (*model.UsageRecord, error) {
	if _, err := t.registry.Get(providerName); err != nil {
		return nil, err
	}
	parser, err := provider.NewStreamParser(providerName)
	if err != nil {
		return nil, err
	}
	if err := provider.ReadSSE(r, parser); err != nil {
		return nil, err
	}
	usage, ok := parser.Usage()
	if !ok {
		return nil, fmt.Errorf("service: %w (%s)", ErrNoStreamUsage, providerName)
	}
	return t.save(providerName, parser.Model(), usage, opts, false)
}

// RecordManual 跳过响应识别；无法推断提供商时记为 unknown
func (t *UsageTracker) RecordManual(in ManualUsage) (*model.UsageRecord, error) {
	providerName := in.Provider
	if providerName == "" {
		if inferred, ok := provider.InferProvider(in.Model); ok {
			providerName = inferred
		} else {
			providerName = provider.NameUnknown
		}
	}
	usage := model.TokenUsage{
		InputTokens:      in.InputTokens,
		OutputTokens:     in.OutputTokens,
		CacheReadTokens:  in.CacheReadTokens,
		CacheWriteTokens: in.CacheWriteTokens,
	}
	opts := RecordOptions{UserID: in.UserID, SessionID: in.SessionID, Tags: in.Tags}
	return t.save(providerName, in.Model, usage, opts, in.IsEstimate)
}

func (t *UsageTracker) save(providerName, modelName string, usage model.TokenUsage, opts RecordOptions, estimate bool) (*model.UsageRecord, error) {
	breakdown, err := t.calc.CalculateDetailed(modelName, usage)
	if err != nil {
		return nil, err
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = t.sessionID
	}
	tags := make(map[string]string, len(opts.Tags))
	for k, v := range opts.Tags {
		tags[k] = v
	}

	record := &model.UsageRecord{
		ID:               uuid.New().String(),
		Timestamp:        t.now().Round(0),
		Provider:         providerName,
		Model:            breakdown.Model,
		InputTokens:      usage.InputTokens,
		OutputTokens:     usage.OutputTokens,
		CacheReadTokens:  usage.CacheReadTokens,
		CacheWriteTokens: usage.CacheWriteTokens,
		InputCost:        breakdown.InputCost,
		OutputCost:       breakdown.OutputCost,
		CacheReadCost:    breakdown.CacheReadCost,
		CacheWriteCost:   breakdown.CacheWriteCost,
		TotalCost:        breakdown.TotalCost,
		SessionID:        sessionID,
		UserID:           opts.UserID,
		Tags:             tags,
		WaterML:          decimal.Zero,
		IsEstimate:       estimate,
	}
	if t.water != nil {
		record.WaterML = t.water.Calculate(modelName, usage)
	}

	if err := t.repo.Save(record); err != nil {
		return nil, err
	}

	metrics.ObserveRecord(providerName, record.Model,
		usage.InputTokens, usage.OutputTokens, usage.CacheReadTokens, usage.CacheWriteTokens,
		record.TotalCost, record.WaterML)

	log.Infof("service: recorded %s/%s - %s tokens, $%s",
		providerName, record.Model, humanize.Comma(int64(usage.Total())), record.TotalCost)
	return record, nil
}

// GetTotal 匹配记录的总成本
func (t *UsageTracker) GetTotal(filter model.RecordFilter) (decimal.Decimal, error) {
	records, err := t.repo.Query(filter)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.TotalCost)
	}
	return total, nil
}

// GetTotalWater 匹配记录的总用水量（mL）
func (t *UsageTracker) GetTotalWater(filter model.RecordFilter) (decimal.Decimal, error) {
	records, err := t.repo.Query(filter)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.WaterML)
	}
	return total, nil
}

// GetRecords 按时间升序返回匹配记录
func (t *UsageTracker) GetRecords(filter model.RecordFilter) ([]*model.UsageRecord, error) {
	return t.repo.Query(filter)
}

// GetSummary 对全部记录按 model/provider/user_id/session_id 分组求和
func (t *UsageTracker) GetSummary(groupBy string) (map[string]decimal.Decimal, error) {
	key, err := summaryKey(groupBy)
	if err != nil {
		return nil, err
	}
	records, err := t.repo.Query(model.RecordFilter{})
	if err != nil {
		return nil, err
	}
	summary := make(map[string]decimal.Decimal)
	for _, r := range records {
		k := key(r)
		if k == "" {
			k = unknownBucket
		}
		summary[k] = summary[k].Add(r.TotalCost)
	}
	return summary, nil
}

// SummaryKeys 按金额降序排列的分组键
func SummaryKeys(summary map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := summary[keys[i]].Cmp(summary[keys[j]]); c != 0 {
			return c > 0
		}
		return keys[i] < keys[j]
	})
	return keys
}

func summaryKey(groupBy string) (func(*model.UsageRecord) string, error) {
	switch groupBy {
	case "model":
		return func(r *model.UsageRecord) string { return r.Model }, nil
	case "provider":
		return func(r *model.UsageRecord) string { return r.Provider }, nil
	case "user_id", "userId":
		return func(r *model.UsageRecord) string { return r.UserID }, nil
	case "session_id", "sessionId":
		return func(r *model.UsageRecord) string { return r.SessionID }, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidGroupBy, groupBy)
}

// Clear 删除全部记录
func (t *UsageTracker) Clear() error {
	return t.repo.Clear()
}
