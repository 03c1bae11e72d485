package handler

import (
	"fmt"
	"net/http"
	"strings"

	"tokenmeter/internal/provider"
	"tokenmeter/internal/service"

	"github.com/gin-gonic/gin"
)

type EstimateHandler struct {
	meter *service.Meter
}

func NewEstimateHandler(meter *service.Meter) *EstimateHandler {
	return &EstimateHandler{meter: meter}
}

type estimateRequest struct {
	Text     string             `json:"text"`
	Model    string             `json:"model" binding:"required"`
	Provider string             `json:"provider"`
	Messages []provider.Message `json:"messages"`
}

// Estimate 调用前估算；messages 存在时同时给出按提供商分词的本地计数
func (h *EstimateHandler) Estimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Text == "" && len(req.Messages) == 0 {
		badRequest(c, fmt.Errorf("text or messages is required"))
		return
	}

	text := req.Text
	if text == "" {
		parts := make([]string, len(req.Messages))
		for i, m := range req.Messages {
			parts[i] = m.Content
		}
		text = strings.Join(parts, "\n")
	}

	est, err := h.meter.Estimate(text, req.Model)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"model":    est.Model,
		"tokens":   est.Tokens,
		"cost":     est.Cost,
		"water_ml": est.WaterML,
		"estimate": true,
	}

	counter := h.meter.Counter()
	var local int
	if len(req.Messages) > 0 {
		local, err = counter.CountMessagesLocal(req.Messages, req.Model, req.Provider)
	} else {
		local, err = counter.CountLocal(req.Text, req.Model, req.Provider)
	}
	if err == nil {
		resp["local_tokens"] = local
	}

	c.JSON(http.StatusOK, resp)
}
