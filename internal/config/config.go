package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"tokenmeter/internal/model"

	"github.com/shopspring/decimal"
)

type Config struct {
	ServerPort    string
	LogLevel      string
	Storage       string
	DBPath        string
	JSONLPath     string
	ConfigPath    string
	PricesFile    string
	ModelsFile    string
	SessionID     string
	DefaultUserID string
	TrackWater    bool
	PUE           string
	WUESite       string
	WUESource     string
	Tiktoken      bool
	APIKeyHash    string
	RateLimitRPS  float64
	CORSOrigins   string
}

func Load() *Config {
	port := getEnv("SERVER_PORT", "")
	if port == "" {
		port = getEnv("PORT", "16830")
	}
	return &Config{
		ServerPort:    port,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Storage:       getEnv("TOKENMETER_STORAGE", "sqlite"),
		DBPath:        getEnv("TOKENMETER_DB_PATH", "~/.tokenmeter/usage.db"),
		JSONLPath:     getEnv("TOKENMETER_JSONL_PATH", "~/.tokenmeter/usage.jsonl"),
		ConfigPath:    getEnv("TOKENMETER_CONFIG_PATH", "~/.tokenmeter/config.json"),
		PricesFile:    getEnv("TOKENMETER_PRICES_FILE", ""),
		ModelsFile:    getEnv("TOKENMETER_MODELS_FILE", ""),
		SessionID:     getEnv("TOKENMETER_SESSION_ID", ""),
		DefaultUserID: getEnv("TOKENMETER_USER_ID", ""),
		TrackWater:    getBool("TOKENMETER_WATER", true),
		PUE:           getEnv("TOKENMETER_PUE", "1.2"),
		WUESite:       getEnv("TOKENMETER_WUE_SITE", "1.8"),
		WUESource:     getEnv("TOKENMETER_WUE_SOURCE", "0.5"),
		Tiktoken:      getBool("TOKENMETER_TIKTOKEN", false),
		APIKeyHash:    getEnv("TOKENMETER_API_KEY_HASH", ""),
		RateLimitRPS:  getFloat("RATE_LIMIT_RPS", 20),
		CORSOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "*"),
	}
}

// Environment 解析数据中心环境参数
func (c *Config) Environment() (model.EnvironmentProfile, error) {
	var (
		env model.EnvironmentProfile
		err error
	)
	if env.PUE, err = parseNonNegative("TOKENMETER_PUE", c.PUE); err != nil {
		return model.EnvironmentProfile{}, err
	}
	if env.WUESite, err = parseNonNegative("TOKENMETER_WUE_SITE", c.WUESite); err != nil {
		return model.EnvironmentProfile{}, err
	}
	if env.WUESource, err = parseNonNegative("TOKENMETER_WUE_SOURCE", c.WUESource); err != nil {
		return model.EnvironmentProfile{}, err
	}
	return env, nil
}

func parseNonNegative(key, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: %s=%q is not a number", key, raw)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("config: %s=%q must not be negative", key, raw)
	}
	return d, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil && f > 0 {
		return f
	}
	return defaultValue
}
