package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"tokenmeter/internal/config"
	"tokenmeter/internal/model"
	"tokenmeter/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type BudgetHandler struct {
	meter      *service.Meter
	configPath string
}

// NewBudgetHandler configPath 为空时预算只保存在内存中
func NewBudgetHandler(meter *service.Meter, configPath string) *BudgetHandler {
	return &BudgetHandler{meter: meter, configPath: configPath}
}

type budgetRequest struct {
	Limit  decimal.Decimal `json:"limit"`
	Period string          `json:"period" binding:"required"`
	Scope  string          `json:"scope"`
	Action string          `json:"action"`
}

type preflightRequest struct {
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Enforce       bool            `json:"enforce"`
	UserID        string          `json:"user_id"`
}

type indexedBudget struct {
	Index int `json:"index"`
	*model.BudgetConfig
}

func (h *BudgetHandler) persist() error {
	if h.configPath == "" {
		return nil
	}
	if err := config.SaveBudgets(h.configPath, h.meter.Budgets().ListBudgets()); err != nil {
		return err
	}
	log.Debugf("handler: budgets saved to %s", h.configPath)
	return nil
}

func (h *BudgetHandler) List(c *gin.Context) {
	budgets := h.meter.Budgets().ListBudgets()
	out := make([]indexedBudget, len(budgets))
	for i, b := range budgets {
		out[i] = indexedBudget{Index: i, BudgetConfig: b}
	}
	c.JSON(http.StatusOK, gin.H{"budgets": out})
}

func (h *BudgetHandler) Create(c *gin.Context) {
	var req budgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	action := req.Action
	if action == "" {
		action = string(model.ActionWarn)
	}

	cfg, err := h.meter.SetBudget(req.Limit, req.Period, req.Scope, action)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.persist(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (h *BudgetHandler) Delete(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, fmt.Errorf("index must be an integer"))
		return
	}
	budgets := h.meter.Budgets().ListBudgets()
	if idx < 0 || idx >= len(budgets) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no budget at index %d", idx)})
		return
	}

	h.meter.Budgets().RemoveBudget(budgets[idx])
	if err := h.persist(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": budgets[idx]})
}

func (h *BudgetHandler) effectiveUser(c *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if id := userID(c); id != "" {
		return id
	}
	return h.meter.DefaultUserID()
}

func (h *BudgetHandler) Status(c *gin.Context) {
	statuses, err := h.meter.Budgets().Check(h.effectiveUser(c, ""))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statuses": statuses})
}

// Preflight enforce=false 只回答是否会超出；enforce=true 时 block 预算返回 402
func (h *BudgetHandler) Preflight(c *gin.Context) {
	var req preflightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.EstimatedCost.IsNegative() {
		badRequest(c, fmt.Errorf("estimated_cost must not be negative"))
		return
	}
	user := h.effectiveUser(c, req.UserID)
	budgets := h.meter.Budgets()

	if req.Enforce {
		if err := budgets.Enforce(req.EstimatedCost, user); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"allowed": true})
		return
	}

	exceed, err := budgets.WouldExceed(req.EstimatedCost, user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"would_exceed": exceed})
}
