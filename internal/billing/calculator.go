package billing

import (
	"unicode/utf8"

	"tokenmeter/internal/model"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// CostCalculator 成本计算器
type CostCalculator struct {
	store *PriceStore
}

// NewCostCalculator 创建成本计算器
func NewCostCalculator(store *PriceStore) *CostCalculator {
	return &CostCalculator{store: store}
}

// Store 返回使用的价格表
func (c *CostCalculator) Store() *PriceStore {
	return c.store
}

// Calculate 计算总成本
func (c *CostCalculator) Calculate(modelName string, usage model.TokenUsage) (decimal.Decimal, error) {
	b, err := c.CalculateDetailed(modelName, usage)
	if err != nil {
		return decimal.Zero, err
	}
	return b.TotalCost, nil
}

// CalculateDetailed 计算分项成本
// 未知模型返回错误，不回退为 0
func (c *CostCalculator) CalculateDetailed(modelName string, usage model.TokenUsage) (CostBreakdown, error) {
	pricing, err := c.store.Get(modelName)
	if err != nil {
		return CostBreakdown{}, err
	}

	b := CostBreakdown{
		Model:          pricing.ModelID,
		InputCost:      categoryCost(usage.InputTokens, pricing.InputPerMTok),
		OutputCost:     categoryCost(usage.OutputTokens, pricing.OutputPerMTok),
		CacheReadCost:  categoryCost(usage.CacheReadTokens, pricing.CacheReadPerMTok),
		CacheWriteCost: categoryCost(usage.CacheWriteTokens, pricing.CacheWritePerMTok),
	}
	b.TotalCost = b.InputCost.Add(b.OutputCost).Add(b.CacheReadCost).Add(b.CacheWriteCost)

	log.Debugf("billing: calculated cost for %s - input=%d, output=%d, cache_read=%d, cache_write=%d -> $%s",
		pricing.ModelID, usage.InputTokens, usage.OutputTokens,
		usage.CacheReadTokens, usage.CacheWriteTokens, b.TotalCost)

	return b, nil
}

// EstimateInputCost 按 len/4 估算输入 token，只计输入成本，结果为估算值
func (c *CostCalculator) EstimateInputCost(text, modelName string) (decimal.Decimal, error) {
	return c.Calculate(modelName, model.TokenUsage{InputTokens: EstimateTokens(text)})
}

// EstimateTokens 字符数启发式：max(1, 字符数/4)
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// categoryCost tokens * price / 1e6；token 非正或无价格时为 0
func categoryCost(tokens int, perMTok *decimal.Decimal) decimal.Decimal {
	if tokens <= 0 || perMTok == nil {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(tokens)).Mul(*perMTok).Shift(-6)
}
