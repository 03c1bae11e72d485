package service

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"

	"tokenmeter/internal/metrics"
	"tokenmeter/internal/model"

	log "github.com/sirupsen/logrus"
)

// DefaultThresholds 默认告警阈值
var DefaultThresholds = []float64{0.5, 0.8, 0.95, 1.0}

// AlertCallback 告警回调
type AlertCallback func(status model.BudgetStatus, message string)

// AlertManager 预算阈值告警
// 阈值在所有预算间共享：某阈值为一个预算触发后，对其它预算同样视为已触发，直到 Reset
type AlertManager struct {
	mu         sync.Mutex
	budgets    *BudgetManager
	thresholds []model.AlertThreshold
	callbacks  []AlertCallback
	fallback   io.Writer
}

func NewAlertManager(budgets *BudgetManager) *AlertManager {
	m := &AlertManager{budgets: budgets, fallback: os.Stderr}
	m.thresholds = newThresholds(DefaultThresholds)
	return m
}

func newThresholds(percentages []float64) []model.AlertThreshold {
	sorted := append([]float64(nil), percentages...)
	sort.Float64s(sorted)
	out := make([]model.AlertThreshold, len(sorted))
	for i, p := range sorted {
		out[i] = model.AlertThreshold{Percentage: p}
	}
	return out
}

// SetFallbackWriter 没有回调时告警写入 w
func (m *AlertManager) SetFallbackWriter(w io.Writer) {
	m.mu.Lock()
	m.fallback = w
	m.mu.Unlock()
}

// OnAlert 注册回调
func (m *AlertManager) OnAlert(cb AlertCallback) {
	m.mu.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.mu.Unlock()
}

// SetThresholds 替换阈值列表，升序排列并全部重新布防
func (m *AlertManager) SetThresholds(percentages []float64) error {
	for _, p := range percentages {
		if math.IsNaN(p) || p < 0 {
			return fmt.Errorf("service: invalid alert threshold %v", p)
		}
	}
	m.mu.Lock()
	m.thresholds = newThresholds(percentages)
	m.mu.Unlock()
	return nil
}

// SetThresholdMessage 为某个阈值指定固定消息
func (m *AlertManager) SetThresholdMessage(percentage float64, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.thresholds {
		if m.thresholds[i].Percentage == percentage {
			m.thresholds[i].Message = message
			return true
		}
	}
	return false
}

// Thresholds 阈值快照
func (m *AlertManager) Thresholds() []model.AlertThreshold {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AlertThreshold(nil), m.thresholds...)
}

type firedAlert struct {
	status  model.BudgetStatus
	message string
}

// CheckAndNotify 外层按预算顺序、内层按阈值升序，触发新越过的阈值
// 返回本次触发的消息
func (m *AlertManager) CheckAndNotify(userID string) ([]string, error) {
	statuses, err := m.budgets.Check(userID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	var fired []firedAlert
	for _, st := range statuses {
		for i := range m.thresholds {
			th := &m.thresholds[i]
			if th.Triggered || st.Utilization < th.Percentage {
				continue
			}
			th.Triggered = true
			msg := th.Message
			if msg == "" {
				msg = formatAlert(st, th.Percentage)
			}
			fired = append(fired, firedAlert{status: st, message: msg})
		}
	}
	callbacks := append([]AlertCallback(nil), m.callbacks...)
	fallback := m.fallback
	m.mu.Unlock()

	messages := make([]string, 0, len(fired))
	for _, f := range fired {
		metrics.AlertsFiredTotal.Inc()
		log.Warnf("service: %s", f.message)
		if len(callbacks) == 0 {
			if fallback != nil {
				fmt.Fprintf(fallback, "[tokenmeter] %s\n", f.message)
			}
		} else {
			for _, cb := range callbacks {
				cb(f.status, f.message)
			}
		}
		messages = append(messages, f.message)
	}
	return messages, nil
}

// Reset 清除所有触发标记
func (m *AlertManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.thresholds {
		m.thresholds[i].Triggered = false
	}
}

func formatAlert(st model.BudgetStatus, pct float64) string {
	cfg := st.Config
	return fmt.Sprintf("Budget alert: %d%% of $%s (%s %s) used. Spent: $%s, Remaining: $%s",
		int(math.Round(pct*100)), cfg.Limit, cfg.Period, cfg.Scope, st.Spent, st.Remaining)
}
