package service

import (
	"io"

	"tokenmeter/internal/billing"
	"tokenmeter/internal/model"
	"tokenmeter/internal/provider"
	"tokenmeter/internal/repository"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// MeterOptions 组装 Meter 所需参数，零值可用（内存存储、内置价格表）
type MeterOptions struct {
	Storage       string
	Repository    repository.Options
	SessionID     string
	DefaultUserID string
	TrackWater    bool
	Environment   *model.EnvironmentProfile
	Tiktoken      bool
	Prices        *billing.PriceStore
	Energy        *billing.EnergyStore
}

// Meter 组合价格表、提供商、存储、预算和告警
type Meter struct {
	prices   *billing.PriceStore
	energy   *billing.EnergyStore
	registry *provider.Registry
	counter  *provider.TokenCounter
	calc     *billing.CostCalculator
	water    *billing.WaterCalculator
	tracker  *UsageTracker
	budgets  *BudgetManager
	alerts   *AlertManager
	userID   string
}

// EstimateResult 调用前的输入成本估算
type EstimateResult struct {
	Model    string          `json:"model"`
	Tokens   int             `json:"tokens"`
	Cost     decimal.Decimal `json:"cost"`
	WaterML  decimal.Decimal `json:"water_ml"`
	Estimate bool            `json:"estimate"`
}

func NewMeter(opts MeterOptions) (*Meter, error) {
	storage := opts.Storage
	if storage == "" {
		storage = repository.BackendMemory
	}
	repo, err := repository.NewUsageRecordRepository(storage, opts.Repository)
	if err != nil {
		return nil, err
	}

	prices := opts.Prices
	if prices == nil {
		prices = billing.GetPriceStore()
	}
	energy := opts.Energy
	if energy == nil {
		energy = billing.GetEnergyStore()
	}

	var tok provider.Tokenizer = provider.HeuristicTokenizer{}
	if opts.Tiktoken {
		tok = provider.NewTiktokenTokenizer(true)
	}
	registry := provider.NewDefaultRegistry(tok)

	env := model.DefaultEnvironment()
	if opts.Environment != nil {
		env = *opts.Environment
	}
	water := billing.NewWaterCalculator(energy, env)

	calc := billing.NewCostCalculator(prices)
	var trackerWater *billing.WaterCalculator
	if opts.TrackWater {
		trackerWater = water
	}
	tracker := NewUsageTracker(repo, calc, registry, trackerWater, opts.SessionID)
	budgets := NewBudgetManager(tracker)

	m := &Meter{
		prices:   prices,
		energy:   energy,
		registry: registry,
		counter:  provider.NewTokenCounter(registry),
		calc:     calc,
		water:    water,
		tracker:  tracker,
		budgets:  budgets,
		alerts:   NewAlertManager(budgets),
		userID:   opts.DefaultUserID,
	}
	log.Infof("service: meter ready - storage=%s, session=%s, water=%v", storage, tracker.SessionID(), opts.TrackWater)
	return m, nil
}

func (m *Meter) Prices() *billing.PriceStore { return m.prices }
func (m *Meter) Energy() *billing.EnergyStore { return m.energy }
func (m *Meter) Registry() *provider.Registry { return m.registry }
func (m *Meter) Counter() *provider.TokenCounter { return m.counter }
func (m *Meter) Tracker() *UsageTracker { return m.tracker }
func (m *Meter) Budgets() *BudgetManager { return m.budgets }
func (m *Meter) Alerts() *AlertManager { return m.alerts }
func (m *Meter) Calculator() *billing.CostCalculator { return m.calc }
func (m *Meter) Water() *billing.WaterCalculator { return m.water }
func (m *Meter) DefaultUserID() string { return m.userID }

// Estimate 调用前按文本估算输入成本
func (m *Meter) Estimate(text, modelName string) (EstimateResult, error) {
	cost, err := m.calc.EstimateInputCost(text, modelName)
	if err != nil {
		return EstimateResult{}, err
	}
	return EstimateResult{
		Model:    modelName,
		Tokens:   billing.EstimateTokens(text),
		Cost:     cost,
		WaterML:  m.water.EstimateInputWater(text, modelName),
		Estimate: true,
	}, nil
}

// EstimateWater 按文本估算输入用水量（mL）
func (m *Meter) EstimateWater(text, modelName string) decimal.Decimal {
	return m.water.EstimateInputWater(text, modelName)
}

func (m *Meter) user(userID string) string {
	if userID == "" {
		return m.userID
	}
	return userID
}

// Record 记录响应后检查告警；告警检查失败只记日志
func (m *Meter) Record(resp any, opts RecordOptions) (*model.UsageRecord, error) {
	opts.UserID = m.user(opts.UserID)
	rec, err := m.tracker.Record(resp, opts)
	if err != nil {
		return nil, err
	}
	m.notify(opts.UserID)
	return rec, nil
}

// RecordStream 记录流式响应后检查告警
func (m *Meter) RecordStream(providerName string, r io.Reader, opts RecordOptions) (*model.UsageRecord, error) {
	opts.UserID = m.user(opts.UserID)
	rec, err := m.tracker.RecordStream(providerName, r, opts)
	if err != nil {
		return nil, err
	}
	m.notify(opts.UserID)
	return rec, nil
}

// RecordManual 手工记录后检查告警
func (m *Meter) RecordManual(in ManualUsage) (*model.UsageRecord, error) {
	in.UserID = m.user(in.UserID)
	rec, err := m.tracker.RecordManual(in)
	if err != nil {
		return nil, err
	}
	m.notify(in.UserID)
	return rec, nil
}

func (m *Meter) notify(userID string) {
	if _, err := m.alerts.CheckAndNotify(userID); err != nil {
		log.Errorf("service: alert check failed: %v", err)
	}
}

// Total 总成本
func (m *Meter) Total(filter model.RecordFilter) (decimal.Decimal, error) {
	return m.tracker.GetTotal(filter)
}

// Summary 分组汇总
func (m *Meter) Summary(groupBy string) (map[string]decimal.Decimal, error) {
	return m.tracker.GetSummary(groupBy)
}

func (m *Meter) SetBudget(limit decimal.Decimal, period, scope, action string) (*model.BudgetConfig, error) {
	return m.budgets.SetBudget(limit, period, scope, action)
}

// CheckBudget 以默认用户检查全部预算
func (m *Meter) CheckBudget() ([]model.BudgetStatus, error) {
	return m.budgets.Check(m.userID)
}

func (m *Meter) OnAlert(cb AlertCallback) {
	m.alerts.OnAlert(cb)
}

func (m *Meter) Close() error {
	return m.tracker.Repository().Close()
}
