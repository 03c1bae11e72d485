package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"tokenmeter/internal/database"
	"tokenmeter/internal/model"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const budgetsKey = "budgets"

// budgetDoc 预算在配置文件中的形式，limit 保存为字符串
type budgetDoc struct {
	Limit  string `json:"limit"`
	Period string `json:"period"`
	Scope  string `json:"scope"`
	Action string `json:"action"`
}

// LoadBudgets 读取配置文件中的预算；文件不存在返回空列表
func LoadBudgets(path string) ([]*model.BudgetConfig, error) {
	data, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	list := gjson.GetBytes(data, budgetsKey)
	if !list.Exists() {
		return []*model.BudgetConfig{}, nil
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("config: %s in %s is not a list", budgetsKey, path)
	}

	budgets := []*model.BudgetConfig{}
	for i, item := range list.Array() {
		limit, err := decimal.NewFromString(item.Get("limit").String())
		if err != nil {
			return nil, fmt.Errorf("config: budget %d: %w: %q", i, model.ErrInvalidLimit, item.Get("limit").String())
		}
		period, err := model.ParsePeriod(item.Get("period").String())
		if err != nil {
			return nil, fmt.Errorf("config: budget %d: %w", i, err)
		}
		scope, err := model.ParseScope(item.Get("scope").String())
		if err != nil {
			return nil, fmt.Errorf("config: budget %d: %w", i, err)
		}
		actionRaw := item.Get("action").String()
		if actionRaw == "" {
			actionRaw = string(model.ActionWarn)
		}
		action, err := model.ParseAction(actionRaw)
		if err != nil {
			return nil, fmt.Errorf("config: budget %d: %w", i, err)
		}

		cfg := &model.BudgetConfig{Limit: limit, Period: period, Scope: scope.String(), Action: action}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: budget %d: %w", i, err)
		}
		budgets = append(budgets, cfg)
	}
	return budgets, nil
}

// SaveBudgets 只替换 budgets 键，其它顶层键原样保留
func SaveBudgets(path string, budgets []*model.BudgetConfig) error {
	path, err := database.ExpandPath(path)
	if err != nil {
		return err
	}
	data, err := readDocument(path)
	if err != nil {
		return err
	}

	docs := make([]budgetDoc, 0, len(budgets))
	for _, b := range budgets {
		docs = append(docs, budgetDoc{
			Limit:  b.Limit.String(),
			Period: string(b.Period),
			Scope:  b.Scope,
			Action: string(b.Action),
		})
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("config: encode budgets: %w", err)
	}
	out, err := sjson.SetRawBytes(data, budgetsKey, raw)
	if err != nil {
		return fmt.Errorf("config: update %s: %w", path, err)
	}
	if !bytes.HasSuffix(out, []byte("\n")) {
		out = append(out, '\n')
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: create dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("config: replace %s: %w", path, err)
	}
	return nil
}

// readDocument 读取 JSON 对象；文件不存在或为空时返回 {}
func readDocument(path string) ([]byte, error) {
	path, err := database.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []byte("{}"), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("{}"), nil
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("config: %s is not a JSON object", path)
	}
	return data, nil
}
