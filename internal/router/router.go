package router

import (
	"net/http"
	"strings"

	"tokenmeter/internal/config"
	"tokenmeter/internal/handler"
	"tokenmeter/internal/metrics"
	"tokenmeter/internal/middleware"
	"tokenmeter/internal/service"

	"github.com/gin-gonic/gin"
)

func corsMiddleware(origins string) gin.HandlerFunc {
	allowedOrigins := strings.Split(origins, ",")
	if len(allowedOrigins) == 0 || allowedOrigins[0] == "" {
		allowedOrigins = []string{"*"}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			o = strings.TrimSpace(o)
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
		} else if allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Api-Key, X-User-Id")
		c.Header("Vary", "Origin")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

func Setup(cfg *config.Config, meter *service.Meter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(corsMiddleware(cfg.CORSOrigins))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS*2))

	usageHandler := handler.NewUsageHandler(meter)
	estimateHandler := handler.NewEstimateHandler(meter)
	modelHandler := handler.NewModelHandler(meter)
	budgetHandler := handler.NewBudgetHandler(meter, cfg.ConfigPath)
	alertHandler := handler.NewAlertHandler(meter)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "session_id": meter.Tracker().SessionID()})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.Use(middleware.APIKeyAuth(cfg.APIKeyHash))
	api.Use(limiter.RateLimitByAPIKey())
	api.Use(middleware.UserFromHeader())
	api.Use(middleware.DecompressBody())
	{
		usage := api.Group("/usage")
		{
			usage.POST("/record", usageHandler.Record)
			usage.POST("/record/stream", usageHandler.RecordStream)
			usage.POST("/manual", usageHandler.RecordManual)
			usage.GET("/records", usageHandler.List)
			usage.GET("/total", usageHandler.Total)
			usage.GET("/summary", usageHandler.Summary)
			usage.DELETE("", usageHandler.Clear)
		}

		api.POST("/estimate", estimateHandler.Estimate)
		api.GET("/models", modelHandler.List)

		budgets := api.Group("/budgets")
		{
			budgets.GET("", budgetHandler.List)
			budgets.POST("", budgetHandler.Create)
			budgets.DELETE("/:index", budgetHandler.Delete)
			budgets.GET("/status", budgetHandler.Status)
			budgets.POST("/preflight", budgetHandler.Preflight)
		}

		alerts := api.Group("/alerts")
		{
			alerts.GET("/check", alertHandler.Check)
			alerts.POST("/reset", alertHandler.Reset)
			alerts.GET("/thresholds", alertHandler.Thresholds)
			alerts.PUT("/thresholds", alertHandler.SetThresholds)
		}
	}

	return r
}
