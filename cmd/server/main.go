package main

import (
	"tokenmeter/internal/billing"
	"tokenmeter/internal/config"
	"tokenmeter/internal/metrics"
	"tokenmeter/internal/repository"
	"tokenmeter/internal/router"
	"tokenmeter/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	gin.SetMode(gin.ReleaseMode)

	cfg := config.Load()

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("未知的 LOG_LEVEL %q，使用 info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	metrics.Init()

	prices := billing.GetPriceStore()
	energy := billing.GetEnergyStore()
	if cfg.PricesFile != "" {
		n, err := prices.LoadLiteLLMFile(cfg.PricesFile)
		if err != nil {
			log.Fatalf("加载价格文件失败: %v", err)
		}
		log.Infof("已加载 %d 条价格: %s", n, cfg.PricesFile)
	}
	if cfg.ModelsFile != "" {
		n, err := billing.LoadCatalogYAMLFile(cfg.ModelsFile, prices, energy)
		if err != nil {
			log.Fatalf("加载模型目录失败: %v", err)
		}
		log.Infof("已加载 %d 个模型: %s", n, cfg.ModelsFile)
	}

	env, err := cfg.Environment()
	if err != nil {
		log.Fatalf("环境参数错误: %v", err)
	}

	meter, err := service.NewMeter(service.MeterOptions{
		Storage: cfg.Storage,
		Repository: repository.Options{
			JSONLPath:  cfg.JSONLPath,
			SQLitePath: cfg.DBPath,
		},
		SessionID:     cfg.SessionID,
		DefaultUserID: cfg.DefaultUserID,
		TrackWater:    cfg.TrackWater,
		Environment:   &env,
		Tiktoken:      cfg.Tiktoken,
		Prices:        prices,
		Energy:        energy,
	})
	if err != nil {
		log.Fatalf("存储初始化失败: %v", err)
	}
	defer meter.Close()

	budgets, err := config.LoadBudgets(cfg.ConfigPath)
	if err != nil {
		log.Fatalf("加载预算失败: %v", err)
	}
	for _, b := range budgets {
		if err := meter.Budgets().AddBudget(b); err != nil {
			log.Fatalf("预算配置错误: %v", err)
		}
	}

	r := router.Setup(cfg, meter)

	log.Infof("服务器启动在 http://0.0.0.0:%s", cfg.ServerPort)
	if err := r.Run("0.0.0.0:" + cfg.ServerPort); err != nil {
		log.Fatalf("服务器启动失败: %v", err)
	}
}
