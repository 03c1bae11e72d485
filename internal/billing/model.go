package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrUnknownModel 价格表中找不到模型
var ErrUnknownModel = errors.New("unknown model")

// UnknownModelError 携带查询的模型名
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("billing: no pricing for model %q", e.Model)
}

func (e *UnknownModelError) Unwrap() error {
	return ErrUnknownModel
}

// CostBreakdown 分项成本
type CostBreakdown struct {
	Model          string          `json:"model"`
	InputCost      decimal.Decimal `json:"inputCost"`
	OutputCost     decimal.Decimal `json:"outputCost"`
	CacheReadCost  decimal.Decimal `json:"cacheReadCost"`
	CacheWriteCost decimal.Decimal `json:"cacheWriteCost"`
	TotalCost      decimal.Decimal `json:"totalCost"`
}

// Source 价格来源
const (
	SourceBuiltin = "builtin"
	SourceManual  = "manual"
	SourceLiteLLM = "litellm"
	SourceCatalog = "catalog"
)
