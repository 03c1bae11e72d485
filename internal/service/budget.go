package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tokenmeter/internal/metrics"
	"tokenmeter/internal/model"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrBudgetExceeded = errors.New("budget exceeded")

// BudgetExceededError 携带触发拦截的预算状态
type BudgetExceededError struct {
	Status model.BudgetStatus
}

func (e *BudgetExceededError) Error() string {
	cfg := e.Status.Config
	return fmt.Sprintf("budget exceeded: $%s of $%s (%s %s)", e.Status.Spent, cfg.Limit, cfg.Period, cfg.Scope)
}

func (e *BudgetExceededError) Unwrap() error {
	return ErrBudgetExceeded
}

// BudgetManager 预算列表，按配置顺序检查
type BudgetManager struct {
	mu      sync.RWMutex
	tracker *UsageTracker
	budgets []*model.BudgetConfig
	now     func() time.Time
}

func NewBudgetManager(tracker *UsageTracker) *BudgetManager {
	return &BudgetManager{tracker: tracker, now: time.Now}
}

// SetBudget 校验并追加预算，返回的指针可用于 RemoveBudget
func (m *BudgetManager) SetBudget(limit decimal.Decimal, period, scope, action string) (*model.BudgetConfig, error) {
	p, err := model.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	a, err := model.ParseAction(action)
	if err != nil {
		return nil, err
	}
	s, err := model.ParseScope(scope)
	if err != nil {
		return nil, err
	}
	cfg := &model.BudgetConfig{Limit: limit, Period: p, Scope: s.String(), Action: a}
	if err := m.AddBudget(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AddBudget 追加已构造的预算（如从配置文件加载）
func (m *BudgetManager) AddBudget(cfg *model.BudgetConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.budgets = append(m.budgets, cfg)
	m.mu.Unlock()
	log.Infof("service: budget added - $%s %s %s (%s)", cfg.Limit, cfg.Period, cfg.Scope, cfg.Action)
	return nil
}

// RemoveBudget 按指针移除
func (m *BudgetManager) RemoveBudget(cfg *model.BudgetConfig) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range m.budgets {
		if b == cfg {
			m.budgets = append(m.budgets[:i], m.budgets[i+1:]...)
			return true
		}
	}
	return false
}

// ListBudgets 预算快照（按配置顺序）
func (m *BudgetManager) ListBudgets() []*model.BudgetConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.BudgetConfig, len(m.budgets))
	copy(out, m.budgets)
	return out
}

// Check 每个预算一条状态；userID 为全局预算的附加过滤条件
func (m *BudgetManager) Check(userID string) ([]model.BudgetStatus, error) {
	budgets := m.ListBudgets()
	statuses := make([]model.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		st, err := m.checkOne(b, userID)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (m *BudgetManager) checkOne(cfg *model.BudgetConfig, userID string) (model.BudgetStatus, error) {
	since, err := PeriodStart(cfg.Period, m.now())
	if err != nil {
		return model.BudgetStatus{}, err
	}
	scope, err := model.ParseScope(cfg.Scope)
	if err != nil {
		return model.BudgetStatus{}, err
	}

	// 仅 global 预算受调用方 userID 约束
	filter := model.RecordFilter{Since: since}
	switch scope.Kind {
	case model.ScopeUser:
		filter.UserID = scope.ID
	case model.ScopeSession:
		filter.SessionID = scope.ID
	default:
		filter.UserID = userID
	}

	spent, err := m.tracker.GetTotal(filter)
	if err != nil {
		return model.BudgetStatus{}, err
	}
	return model.NewBudgetStatus(cfg, spent), nil
}

// WouldExceed 任一预算的已花费加上预估成本达到上限即为 true
func (m *BudgetManager) WouldExceed(estimatedCost decimal.Decimal, userID string) (bool, error) {
	statuses, err := m.Check(userID)
	if err != nil {
		return false, err
	}
	for _, st := range statuses {
		if st.Spent.Add(estimatedCost).GreaterThanOrEqual(st.Config.Limit) {
			return true, nil
		}
	}
	return false, nil
}

// Enforce 只检查 block 预算，按配置顺序返回第一个违规
func (m *BudgetManager) Enforce(estimatedCost decimal.Decimal, userID string) error {
	statuses, err := m.Check(userID)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		if !st.Spent.Add(estimatedCost).GreaterThanOrEqual(st.Config.Limit) {
			continue
		}
		if st.Config.Action == model.ActionBlock {
			metrics.BudgetBlocksTotal.Inc()
			log.Warnf("service: blocked by budget $%s %s %s - spent $%s, estimated $%s",
				st.Config.Limit, st.Config.Period, st.Config.Scope, st.Spent, estimatedCost)
			return &BudgetExceededError{Status: st}
		}
		log.Warnf("service: budget $%s %s %s would be exceeded - spent $%s, estimated $%s",
			st.Config.Limit, st.Config.Period, st.Config.Scope, st.Spent, estimatedCost)
	}
	return nil
}
