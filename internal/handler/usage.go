package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tokenmeter/internal/model"
	"tokenmeter/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const maxResponseBody = 16 << 20

type UsageHandler struct {
	meter *service.Meter
}

func NewUsageHandler(meter *service.Meter) *UsageHandler {
	return &UsageHandler{meter: meter}
}

// recordOptions 从查询参数读取 user_id / session_id / tag=k=v
func recordOptions(c *gin.Context) (service.RecordOptions, error) {
	tags, err := parseTags(c.QueryArray("tag"))
	if err != nil {
		return service.RecordOptions{}, err
	}
	return service.RecordOptions{
		UserID:    userID(c),
		SessionID: strings.TrimSpace(c.Query("session_id")),
		Tags:      tags,
	}, nil
}

func parseTags(raw []string) (map[string]string, error) {
	tags := make(map[string]string, len(raw))
	for _, t := range raw {
		k, v, ok := strings.Cut(t, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("tag %q must be key=value", t)
		}
		tags[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return tags, nil
}

// Record 请求体为提供商原始响应 JSON
func (h *UsageHandler) Record(c *gin.Context) {
	opts, err := recordOptions(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxResponseBody))
	if err != nil {
		badRequest(c, err)
		return
	}

	rec, err := h.meter.Record(body, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// RecordStream 请求体为 SSE 流，provider 由查询参数指定
func (h *UsageHandler) RecordStream(c *gin.Context) {
	opts, err := recordOptions(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	providerName := strings.TrimSpace(c.Query("provider"))
	if providerName == "" {
		badRequest(c, fmt.Errorf("provider is required"))
		return
	}

	rec, err := h.meter.RecordStream(providerName, io.LimitReader(c.Request.Body, maxResponseBody), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *UsageHandler) RecordManual(c *gin.Context) {
	var req service.ManualUsage
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		badRequest(c, fmt.Errorf("model is required"))
		return
	}
	if req.InputTokens < 0 || req.OutputTokens < 0 || req.CacheReadTokens < 0 || req.CacheWriteTokens < 0 {
		badRequest(c, fmt.Errorf("token counts must not be negative"))
		return
	}
	if req.UserID == "" {
		req.UserID = userID(c)
	}

	rec, err := h.meter.RecordManual(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// parseFilter 读取 provider/model/user_id/session_id/since/until/tag
func parseFilter(c *gin.Context) (model.RecordFilter, error) {
	tags, err := parseTags(c.QueryArray("tag"))
	if err != nil {
		return model.RecordFilter{}, err
	}
	f := model.RecordFilter{
		Provider:  c.Query("provider"),
		Model:     c.Query("model"),
		UserID:    c.Query("user_id"),
		SessionID: c.Query("session_id"),
	}
	if len(tags) > 0 {
		f.Tags = tags
	}
	if f.Since, err = parseTimeParam(c, "since"); err != nil {
		return model.RecordFilter{}, err
	}
	if f.Until, err = parseTimeParam(c, "until"); err != nil {
		return model.RecordFilter{}, err
	}
	return f, nil
}

func parseTimeParam(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC3339 or YYYY-MM-DD", key)
	}
	return &t, nil
}

func (h *UsageHandler) List(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	records, err := h.meter.Tracker().GetRecords(filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func (h *UsageHandler) Total(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	tracker := h.meter.Tracker()
	total, err := tracker.GetTotal(filter)
	if err != nil {
		respondError(c, err)
		return
	}
	water, err := tracker.GetTotalWater(filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total_cost": total, "water_ml": water})
}

type summaryEntry struct {
	Key       string          `json:"key"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

func (h *UsageHandler) Summary(c *gin.Context) {
	groupBy := c.DefaultQuery("group_by", "model")
	summary, err := h.meter.Summary(groupBy)
	if err != nil {
		respondError(c, err)
		return
	}

	entries := make([]summaryEntry, 0, len(summary))
	total := decimal.Zero
	for _, k := range service.SummaryKeys(summary) {
		entries = append(entries, summaryEntry{Key: k, TotalCost: summary[k]})
		total = total.Add(summary[k])
	}
	c.JSON(http.StatusOK, gin.H{"group_by": groupBy, "summary": entries, "total_cost": total})
}

func (h *UsageHandler) Clear(c *gin.Context) {
	if err := h.meter.Tracker().Clear(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "usage cleared"})
}
