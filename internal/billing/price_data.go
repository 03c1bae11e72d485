package billing

import (
	"tokenmeter/internal/model"

	"github.com/shopspring/decimal"
)

// usd 价格字面量
func usd(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

type builtinPrice struct {
	input, output, cacheRead, cacheWrite, batchInput, batchOutput string
}

// 内置价格表，单位 USD / 1M tokens
var anthropicPrices = map[string]builtinPrice{
	"claude-opus-4-6":   {"5.00", "25.00", "0.50", "6.25", "2.50", "12.50"},
	"claude-opus-4-5":   {"5.00", "25.00", "0.50", "6.25", "2.50", "12.50"},
	"claude-opus-4-1":   {"15.00", "75.00", "1.50", "18.75", "7.50", "37.50"},
	"claude-opus-4":     {"15.00", "75.00", "1.50", "18.75", "7.50", "37.50"},
	"claude-sonnet-4-5": {"3.00", "15.00", "0.30", "3.75", "1.50", "7.50"},
	"claude-sonnet-4":   {"3.00", "15.00", "0.30", "3.75", "1.50", "7.50"},
	"claude-haiku-4-5":  {"1.00", "5.00", "0.10", "1.25", "0.50", "2.50"},
	"claude-haiku-3-5":  {"0.80", "4.00", "0.08", "1.00", "0.40", "2.00"},
	"claude-haiku-3":    {"0.25", "1.25", "0.03", "0.30", "0.125", "0.625"},
}

var openAIPrices = map[string]builtinPrice{
	"gpt-5.1":            {input: "1.25", output: "10.00", cacheRead: "0.125"},
	"gpt-5.1-codex-mini": {input: "0.25", output: "2.00", cacheRead: "0.025"},
	"gpt-5":              {input: "1.25", output: "10.00", cacheRead: "0.125"},
	"gpt-5-mini":         {input: "0.25", output: "2.00", cacheRead: "0.025"},
	"gpt-5-nano":         {input: "0.05", output: "0.40", cacheRead: "0.005"},
	"gpt-4.1":            {input: "2.00", output: "8.00", cacheRead: "0.50"},
	"gpt-4.1-mini":       {input: "0.40", output: "1.60", cacheRead: "0.10"},
	"gpt-4.1-nano":       {input: "0.10", output: "0.40", cacheRead: "0.025"},
	"gpt-4o":             {input: "2.50", output: "10.00", cacheRead: "1.25"},
	"gpt-4o-mini":        {input: "0.15", output: "0.60", cacheRead: "0.075"},
	"o3":                 {input: "2.00", output: "8.00", cacheRead: "0.50"},
	"o3-mini":            {input: "1.10", output: "4.40", cacheRead: "0.55"},
	"o4-mini":            {input: "1.10", output: "4.40", cacheRead: "0.275"},
	"o1":                 {input: "15.00", output: "60.00", cacheRead: "7.50"},
}

// Gemini 按 <=200k 上下文档位计价
var googlePrices = map[string]builtinPrice{
	"gemini-2.5-pro":        {input: "1.25", output: "10.00", cacheRead: "0.31"},
	"gemini-2.5-flash":      {input: "0.30", output: "2.50", cacheRead: "0.075"},
	"gemini-2.5-flash-lite": {input: "0.10", output: "0.40", cacheRead: "0.025"},
	"gemini-2.0-flash":      {input: "0.10", output: "0.40", cacheRead: "0.025"},
}

// builtinAliases 带日期的发布名 -> 规范名，价格与能耗共用
var builtinAliases = map[string]string{
	"claude-opus-4-6-20250814":   "claude-opus-4-6",
	"claude-opus-4-5-20250520":   "claude-opus-4-5",
	"claude-sonnet-4-5-20250929": "claude-sonnet-4-5",
	"claude-sonnet-4-20250514":   "claude-sonnet-4",
	"claude-haiku-4-5-20251001":  "claude-haiku-4-5",
	"claude-3-5-haiku-20241022":  "claude-haiku-3-5",
	"claude-3-haiku-20240307":    "claude-haiku-3",
	"claude-3-opus-20240229":     "claude-opus-4",

	"gpt-4o-2024-08-06":      "gpt-4o",
	"gpt-4o-2024-11-20":      "gpt-4o",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"chatgpt-4o-latest":      "gpt-4o",
}

// 能耗表，单位 Wh / 1M tokens
var anthropicEnergy = map[string]string{
	"claude-opus-4-6":   "900",
	"claude-opus-4-5":   "900",
	"claude-opus-4-1":   "900",
	"claude-opus-4":     "900",
	"claude-sonnet-4-5": "450",
	"claude-sonnet-4":   "450",
	"claude-haiku-4-5":  "100",
	"claude-haiku-3-5":  "80",
	"claude-haiku-3":    "50",
}

var openAIEnergy = map[string]string{
	"gpt-5.1":      "500",
	"gpt-5":        "500",
	"gpt-5-mini":   "100",
	"gpt-5-nano":   "30",
	"gpt-4.1":      "300",
	"gpt-4.1-mini": "80",
	"gpt-4.1-nano": "30",
	"gpt-4o":       "300",
	"gpt-4o-mini":  "50",
	"o1":           "800",
	"o3":           "500",
	"o3-mini":      "200",
	"o4-mini":      "200",
}

func optionalUSD(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	return usd(s)
}

// builtinPricing 构建内置价格基表
func builtinPricing() map[string]model.ModelPricing {
	out := make(map[string]model.ModelPricing)
	tables := []struct {
		provider string
		prices   map[string]builtinPrice
	}{
		{"anthropic", anthropicPrices},
		{"openai", openAIPrices},
		{"google", googlePrices},
	}
	for _, t := range tables {
		for id, p := range t.prices {
			out[id] = model.ModelPricing{
				ModelID:            id,
				Provider:           t.provider,
				InputPerMTok:       optionalUSD(p.input),
				OutputPerMTok:      optionalUSD(p.output),
				CacheReadPerMTok:   optionalUSD(p.cacheRead),
				CacheWritePerMTok:  optionalUSD(p.cacheWrite),
				BatchInputPerMTok:  optionalUSD(p.batchInput),
				BatchOutputPerMTok: optionalUSD(p.batchOutput),
			}
		}
	}
	return out
}

// builtinEnergy 构建内置能耗基表
func builtinEnergy() map[string]model.ModelEnergyProfile {
	out := make(map[string]model.ModelEnergyProfile)
	for provider, table := range map[string]map[string]string{
		"anthropic": anthropicEnergy,
		"openai":    openAIEnergy,
	} {
		for id, wh := range table {
			out[id] = model.ModelEnergyProfile{
				ModelID:       id,
				Provider:      provider,
				EnergyPerMTok: decimal.RequireFromString(wh),
			}
		}
	}
	return out
}
