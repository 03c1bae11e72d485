package handler

import (
	"errors"
	"net/http"
	"strings"

	"tokenmeter/internal/billing"
	"tokenmeter/internal/middleware"
	"tokenmeter/internal/model"
	"tokenmeter/internal/provider"
	"tokenmeter/internal/repository"
	"tokenmeter/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

var configErrors = []error{
	model.ErrInvalidPeriod,
	model.ErrInvalidAction,
	model.ErrInvalidScope,
	model.ErrInvalidLimit,
	service.ErrInvalidGroupBy,
	repository.ErrUnknownBackend,
	provider.ErrCannotInferProvider,
	provider.ErrUnknownProvider,
}

var dataErrors = []error{
	billing.ErrUnknownModel,
	provider.ErrNoProviderMatch,
	provider.ErrInvalidResponse,
	service.ErrNoStreamUsage,
}

// statusFor 配置错误 400，数据错误 422，预算拦截 402
func statusFor(err error) int {
	if errors.Is(err, service.ErrBudgetExceeded) {
		return http.StatusPaymentRequired
	}
	for _, target := range configErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	for _, target := range dataErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorf("handler: %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var exceeded *service.BudgetExceededError
	if errors.As(err, &exceeded) {
		body["status"] = exceeded.Status
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid request",
		"details": err.Error(),
	})
}

// userID 查询参数优先，其次 X-User-Id
func userID(c *gin.Context) string {
	if id := strings.TrimSpace(c.Query("user_id")); id != "" {
		return id
	}
	return middleware.GetUserID(c)
}
