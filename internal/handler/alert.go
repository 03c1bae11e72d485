package handler

import (
	"net/http"
	"strconv"

	"tokenmeter/internal/service"

	"github.com/gin-gonic/gin"
)

type AlertHandler struct {
	meter *service.Meter
}

func NewAlertHandler(meter *service.Meter) *AlertHandler {
	return &AlertHandler{meter: meter}
}

type thresholdsRequest struct {
	Thresholds []float64         `json:"thresholds" binding:"required"`
	Messages   map[string]string `json:"messages"`
}

func (h *AlertHandler) Check(c *gin.Context) {
	user := userID(c)
	if user == "" {
		user = h.meter.DefaultUserID()
	}
	fired, err := h.meter.Alerts().CheckAndNotify(user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fired": fired, "count": len(fired)})
}

func (h *AlertHandler) Reset(c *gin.Context) {
	h.meter.Alerts().Reset()
	c.JSON(http.StatusOK, gin.H{"thresholds": h.meter.Alerts().Thresholds()})
}

func (h *AlertHandler) Thresholds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"thresholds": h.meter.Alerts().Thresholds()})
}

// SetThresholds messages 的键为阈值的字符串形式，如 "0.8"
func (h *AlertHandler) SetThresholds(c *gin.Context) {
	var req thresholdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	alerts := h.meter.Alerts()
	if err := alerts.SetThresholds(req.Thresholds); err != nil {
		badRequest(c, err)
		return
	}
	for _, p := range req.Thresholds {
		if msg, ok := req.Messages[formatPct(p)]; ok {
			alerts.SetThresholdMessage(p, msg)
		}
	}
	c.JSON(http.StatusOK, gin.H{"thresholds": alerts.Thresholds()})
}

func formatPct(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
