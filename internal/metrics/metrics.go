package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	// Usage metrics
	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenmeter_records_total",
			Help: "Total number of usage records stored",
		},
		[]string{"provider", "model"},
	)

	CostUSDTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenmeter_cost_usd_total",
			Help: "Total recorded cost in USD",
		},
		[]string{"provider"},
	)

	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenmeter_tokens_total",
			Help: "Total recorded tokens by category",
		},
		[]string{"provider", "type"}, // type: input|output|cache_read|cache_write
	)

	WaterMLTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokenmeter_water_ml_total",
			Help: "Total estimated water consumption in millilitres",
		},
		[]string{"provider"},
	)

	// Budget metrics
	AlertsFiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenmeter_alerts_fired_total",
			Help: "Total number of budget alerts fired",
		},
	)

	BudgetBlocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tokenmeter_budget_blocks_total",
			Help: "Total number of calls refused by a blocking budget",
		},
	)
)

var initOnce sync.Once

// Init registers all metrics with the default registry
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RecordsTotal)
		prometheus.MustRegister(CostUSDTotal)
		prometheus.MustRegister(TokensTotal)
		prometheus.MustRegister(WaterMLTotal)
		prometheus.MustRegister(AlertsFiredTotal)
		prometheus.MustRegister(BudgetBlocksTotal)
	})
}

// Handler returns HTTP handler for metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecord 记录一次用量入库
func ObserveRecord(provider, model string, input, output, cacheRead, cacheWrite int, cost, waterML decimal.Decimal) {
	RecordsTotal.WithLabelValues(provider, model).Inc()
	CostUSDTotal.WithLabelValues(provider).Add(cost.InexactFloat64())
	TokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	TokensTotal.WithLabelValues(provider, "output").Add(float64(output))
	TokensTotal.WithLabelValues(provider, "cache_read").Add(float64(cacheRead))
	TokensTotal.WithLabelValues(provider, "cache_write").Add(float64(cacheWrite))
	if waterML.IsPositive() {
		WaterMLTotal.WithLabelValues(provider).Add(waterML.InexactFloat64())
	}
}
