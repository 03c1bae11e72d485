package billing

import (
	"tokenmeter/internal/model"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// WaterCalculator 用水量估算（毫升），尽力而为，从不返回错误
type WaterCalculator struct {
	store *EnergyStore
	env   model.EnvironmentProfile
}

// NewWaterCalculator 创建用水量计算器
func NewWaterCalculator(store *EnergyStore, env model.EnvironmentProfile) *WaterCalculator {
	return &WaterCalculator{store: store, env: env}
}

// Environment 当前环境参数
func (w *WaterCalculator) Environment() model.EnvironmentProfile {
	return w.env
}

// Calculate 水(mL) = (tokens/1e6) * Wh/MTok / 1000 * (wue_site/pue + wue_source) * 1000
// 无能耗数据或 token 总数 <= 0 时为 0
func (w *WaterCalculator) Calculate(modelName string, usage model.TokenUsage) decimal.Decimal {
	total := usage.Total()
	if total <= 0 {
		return decimal.Zero
	}
	profile, ok := w.store.Get(modelName)
	if !ok {
		return decimal.Zero
	}
	if !w.env.PUE.IsPositive() {
		log.Warnf("billing: pue %s is not positive, water estimate skipped", w.env.PUE)
		return decimal.Zero
	}

	kwh := decimal.NewFromInt(int64(total)).Shift(-6).Mul(profile.EnergyPerMTok).Shift(-3)
	litersPerKWh := w.env.WUESite.Div(w.env.PUE).Add(w.env.WUESource)
	return kwh.Mul(litersPerKWh).Shift(3)
}

// EstimateInputWater 按 len/4 估算输入 token 的用水量
func (w *WaterCalculator) EstimateInputWater(text, modelName string) decimal.Decimal {
	return w.Calculate(modelName, model.TokenUsage{InputTokens: EstimateTokens(text)})
}
