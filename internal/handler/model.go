package handler

import (
	"net/http"
	"strings"

	"tokenmeter/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type ModelHandler struct {
	meter *service.Meter
}

func NewModelHandler(meter *service.Meter) *ModelHandler {
	return &ModelHandler{meter: meter}
}

type modelInfo struct {
	Model             string           `json:"model"`
	Provider          string           `json:"provider"`
	InputPerMTok      *decimal.Decimal `json:"input_per_mtok"`
	OutputPerMTok     *decimal.Decimal `json:"output_per_mtok"`
	CacheReadPerMTok  *decimal.Decimal `json:"cache_read_per_mtok,omitempty"`
	CacheWritePerMTok *decimal.Decimal `json:"cache_write_per_mtok,omitempty"`
	EnergyWhPerMTok   *decimal.Decimal `json:"energy_wh_per_mtok,omitempty"`
}

// List 价格表，可按 provider 过滤
func (h *ModelHandler) List(c *gin.Context) {
	providerName := strings.ToLower(strings.TrimSpace(c.Query("provider")))
	prices := h.meter.Prices().ListPrices(providerName)
	energy := h.meter.Energy()

	models := make([]modelInfo, 0, len(prices))
	for _, p := range prices {
		info := modelInfo{
			Model:             p.ModelID,
			Provider:          p.Provider,
			InputPerMTok:      p.InputPerMTok,
			OutputPerMTok:     p.OutputPerMTok,
			CacheReadPerMTok:  p.CacheReadPerMTok,
			CacheWritePerMTok: p.CacheWritePerMTok,
		}
		if profile, ok := energy.Get(p.ModelID); ok {
			wh := profile.EnergyPerMTok
			info.EnergyWhPerMTok = &wh
		}
		models = append(models, info)
	}

	builtin, registered := h.meter.Prices().GetStats()
	c.JSON(http.StatusOK, gin.H{
		"models":     models,
		"count":      len(models),
		"builtin":    builtin,
		"registered": registered,
	})
}
