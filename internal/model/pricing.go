package model

import "github.com/shopspring/decimal"

// ModelPricing 模型价格，单位 USD / 1M tokens
// 字段为 nil 表示该类 token 不计费或不支持
type ModelPricing struct {
	ModelID            string           `json:"modelId"`
	Provider           string           `json:"provider"`
	InputPerMTok       *decimal.Decimal `json:"inputPerMTok"`
	OutputPerMTok      *decimal.Decimal `json:"outputPerMTok"`
	CacheReadPerMTok   *decimal.Decimal `json:"cacheReadPerMTok,omitempty"`
	CacheWritePerMTok  *decimal.Decimal `json:"cacheWritePerMTok,omitempty"`
	BatchInputPerMTok  *decimal.Decimal `json:"batchInputPerMTok,omitempty"`
	BatchOutputPerMTok *decimal.Decimal `json:"batchOutputPerMTok,omitempty"`
}

// ModelEnergyProfile 模型能耗，单位 Wh / 1M tokens
type ModelEnergyProfile struct {
	ModelID       string          `json:"modelId"`
	Provider      string          `json:"provider"`
	EnergyPerMTok decimal.Decimal `json:"energyPerMTok"`
}

// EnvironmentProfile 数据中心环境参数
type EnvironmentProfile struct {
	PUE       decimal.Decimal `json:"pue"`
	WUESite   decimal.Decimal `json:"wueSite"`
	WUESource decimal.Decimal `json:"wueSource"`
}

// DefaultEnvironment 默认环境参数
func DefaultEnvironment() EnvironmentProfile {
	return EnvironmentProfile{
		PUE:       decimal.RequireFromString("1.2"),
		WUESite:   decimal.RequireFromString("1.8"),
		WUESource: decimal.RequireFromString("0.5"),
	}
}
