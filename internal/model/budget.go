package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPeriod = errors.New("invalid budget period")
	ErrInvalidAction = errors.New("invalid budget action")
	ErrInvalidScope  = errors.New("invalid budget scope")
	ErrInvalidLimit  = errors.New("invalid budget limit")
)

// Period 预算周期
type Period string

const (
	PeriodSession Period = "session"
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodTotal   Period = "total"
)

// ParsePeriod 解析周期字符串，未知值返回 ErrInvalidPeriod
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodSession, PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodTotal:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// Action 超预算时的动作
type Action string

const (
	ActionWarn  Action = "warn"
	ActionBlock Action = "block"
)

// ParseAction 解析动作字符串
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionWarn, ActionBlock:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// ScopeKind 预算作用范围
type ScopeKind string

const (
	ScopeGlobal  ScopeKind = "global"
	ScopeUser    ScopeKind = "user"
	ScopeSession ScopeKind = "session"
)

// Scope 解析后的作用范围
type Scope struct {
	Kind ScopeKind
	ID   string
}

// ParseScope 解析 "global" / "user:<id>" / "session:<id>"
func ParseScope(s string) (Scope, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == string(ScopeGlobal) {
		return Scope{Kind: ScopeGlobal}, nil
	}
	kind, id, ok := strings.Cut(s, ":")
	if ok && id != "" {
		switch ScopeKind(kind) {
		case ScopeUser:
			return Scope{Kind: ScopeUser, ID: id}, nil
		case ScopeSession:
			return Scope{Kind: ScopeSession, ID: id}, nil
		}
	}
	return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, s)
}

func (s Scope) String() string {
	if s.Kind == ScopeGlobal {
		return string(ScopeGlobal)
	}
	return string(s.Kind) + ":" + s.ID
}

// BudgetConfig 预算配置
type BudgetConfig struct {
	Limit  decimal.Decimal `json:"limit"`
	Period Period          `json:"period"`
	Scope  string          `json:"scope"`
	Action Action          `json:"action"`
}

// Validate 校验配置
func (c *BudgetConfig) Validate() error {
	if c.Limit.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidLimit, c.Limit)
	}
	if _, err := ParsePeriod(string(c.Period)); err != nil {
		return err
	}
	if _, err := ParseAction(string(c.Action)); err != nil {
		return err
	}
	if _, err := ParseScope(c.Scope); err != nil {
		return err
	}
	return nil
}

// BudgetStatus 某个预算的实时状态，每次检查重新计算
type BudgetStatus struct {
	Config      *BudgetConfig   `json:"config"`
	Spent       decimal.Decimal `json:"spent"`
	Remaining   decimal.Decimal `json:"remaining"`
	Utilization float64         `json:"utilization"`
	Exceeded    bool            `json:"exceeded"`
}

// NewBudgetStatus 根据已花费金额计算状态
func NewBudgetStatus(cfg *BudgetConfig, spent decimal.Decimal) BudgetStatus {
	remaining := cfg.Limit.Sub(spent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	var utilization float64
	if cfg.Limit.IsPositive() {
		utilization = spent.Div(cfg.Limit).InexactFloat64()
	}
	return BudgetStatus{
		Config:      cfg,
		Spent:       spent,
		Remaining:   remaining,
		Utilization: utilization,
		Exceeded:    spent.GreaterThanOrEqual(cfg.Limit),
	}
}

// AlertThreshold 告警阈值；Triggered 触发后保持，直到 reset
type AlertThreshold struct {
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message,omitempty"`
	Triggered  bool    `json:"triggered"`
}
