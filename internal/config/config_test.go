package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tokenmeter/internal/model"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "PORT", "TOKENMETER_STORAGE", "TOKENMETER_WATER", "RATE_LIMIT_RPS"} {
		t.Setenv(key, "")
	}
	c := Load()
	if c.ServerPort != "16830" || c.Storage != "sqlite" || !c.TrackWater || c.RateLimitRPS != 20 {
		t.Fatalf("unexpected defaults %+v", c)
	}

	env, err := c.Environment()
	if err != nil {
		t.Fatalf("Environment: %v", err)
	}
	if !env.PUE.Equal(decimal.RequireFromString("1.2")) || !env.WUESource.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("unexpected environment %+v", env)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("PORT", "9000")
	t.Setenv("TOKENMETER_WATER", "false")
	t.Setenv("TOKENMETER_PUE", "abc")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	c := Load()
	if c.ServerPort != "9000" || c.TrackWater || c.RateLimitRPS != 2.5 {
		t.Fatalf("unexpected overrides %+v", c)
	}
	if _, err := c.Environment(); err == nil || !strings.Contains(err.Error(), "TOKENMETER_PUE") {
		t.Fatalf("expected PUE parse error, got %v", err)
	}
}

func TestLoadBudgetsMissingFile(t *testing.T) {
	budgets, err := LoadBudgets(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("LoadBudgets: %v", err)
	}
	if len(budgets) != 0 {
		t.Fatalf("expected empty list, got %v", budgets)
	}
}

func TestLoadBudgetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{"budgets": [
		{"limit": "10.00", "period": "daily"},
		{"limit": 2.5, "period": "monthly", "scope": "user:bob", "action": "block"}
	]}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	budgets, err := LoadBudgets(path)
	if err != nil {
		t.Fatalf("LoadBudgets: %v", err)
	}
	if len(budgets) != 2 {
		t.Fatalf("expected 2 budgets, got %d", len(budgets))
	}
	if budgets[0].Scope != "global" || budgets[0].Action != model.ActionWarn || !budgets[0].Limit.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected first budget %+v", budgets[0])
	}
	if budgets[1].Scope != "user:bob" || budgets[1].Action != model.ActionBlock || budgets[1].Period != model.PeriodMonthly {
		t.Fatalf("unexpected second budget %+v", budgets[1])
	}
}

func TestLoadBudgetsRejectsBadPeriod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte(`{"budgets": [{"limit": "1", "period": "hourly"}]}`), 0644)

	if _, err := LoadBudgets(path); !errors.Is(err, model.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestSaveBudgetsPreservesOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	os.MkdirAll(filepath.Dir(path), 0755)
	os.WriteFile(path, []byte(`{"theme": {"color": "blue"}, "budgets": [], "version": 3}`), 0644)

	budgets := []*model.BudgetConfig{
		{Limit: decimal.RequireFromString("10.00"), Period: model.PeriodDaily, Scope: "global", Action: model.ActionBlock},
	}
	if err := SaveBudgets(path, budgets); err != nil {
		t.Fatalf("SaveBudgets: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Fatal("expected trailing newline")
	}
	if gjson.GetBytes(data, "theme.color").String() != "blue" || gjson.GetBytes(data, "version").Int() != 3 {
		t.Fatalf("other keys lost: %s", data)
	}
	if got := gjson.GetBytes(data, "budgets.0.limit"); got.Type != gjson.String || got.String() != "10" {
		t.Fatalf("limit should be stored as a string, got %s", got.Raw)
	}

	loaded, err := LoadBudgets(path)
	if err != nil {
		t.Fatalf("LoadBudgets: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Action != model.ActionBlock || !loaded[0].Limit.Equal(budgets[0].Limit) {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestSaveBudgetsCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "config.json")
	if err := SaveBudgets(path, nil); err != nil {
		t.Fatalf("SaveBudgets: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !gjson.GetBytes(data, "budgets").IsArray() {
		t.Fatalf("expected empty budgets list, got %s", data)
	}
}
