package service

import (
	"errors"
	"testing"
	"time"

	"tokenmeter/internal/model"
)

func TestPeriodStart(t *testing.T) {
	wednesday := time.Date(2025, 6, 11, 15, 30, 0, 0, time.Local)
	sunday := time.Date(2025, 6, 15, 23, 59, 0, 0, time.Local)
	monday := time.Date(2025, 6, 9, 0, 0, 0, 0, time.Local)

	tests := []struct {
		name   string
		period model.Period
		now    time.Time
		want   *time.Time
	}{
		{"daily", model.PeriodDaily, wednesday, ptrTime(time.Date(2025, 6, 11, 0, 0, 0, 0, time.Local))},
		{"weekly midweek", model.PeriodWeekly, wednesday, &monday},
		{"weekly sunday", model.PeriodWeekly, sunday, &monday},
		{"weekly monday", model.PeriodWeekly, monday.Add(time.Hour), &monday},
		{"monthly", model.PeriodMonthly, wednesday, ptrTime(time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local))},
		{"session", model.PeriodSession, wednesday, nil},
		{"total", model.PeriodTotal, wednesday, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PeriodStart(tt.period, tt.now)
			if err != nil {
				t.Fatalf("PeriodStart: %v", err)
			}
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected no lower bound, got %v", got)
				}
				return
			}
			if got == nil || !got.Equal(*tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if _, err := PeriodStart("hourly", wednesday); !errors.Is(err, model.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func newTestBudgets(t *testing.T) (*BudgetManager, *UsageTracker, *fixedClock) {
	t.Helper()
	tracker, clock := newTestTracker(t, false)
	mgr := NewBudgetManager(tracker)
	mgr.now = clock.now
	return mgr, tracker, clock
}

func TestSetBudgetValidation(t *testing.T) {
	mgr, _, _ := newTestBudgets(t)

	if _, err := mgr.SetBudget(dec("1"), "fortnightly", "global", "warn"); !errors.Is(err, model.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	if _, err := mgr.SetBudget(dec("1"), "daily", "global", "explode"); !errors.Is(err, model.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	if _, err := mgr.SetBudget(dec("1"), "daily", "team:x", "warn"); !errors.Is(err, model.ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
	if _, err := mgr.SetBudget(dec("-1"), "daily", "global", "warn"); !errors.Is(err, model.ErrInvalidLimit) {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
	if len(mgr.ListBudgets()) != 0 {
		t.Fatal("invalid budgets must not be stored")
	}

	cfg, err := mgr.SetBudget(dec("5"), "Daily", "", "block")
	if err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	if cfg.Period != model.PeriodDaily || cfg.Scope != "global" || cfg.Action != model.ActionBlock {
		t.Fatalf("unexpected normalized config %+v", cfg)
	}
}

func TestRemoveBudget(t *testing.T) {
	mgr, _, _ := newTestBudgets(t)
	a, _ := mgr.SetBudget(dec("1"), "total", "global", "warn")
	b, _ := mgr.SetBudget(dec("1"), "total", "global", "warn")

	if !mgr.RemoveBudget(a) {
		t.Fatal("expected removal")
	}
	if mgr.RemoveBudget(a) {
		t.Fatal("second removal should report false")
	}
	list := mgr.ListBudgets()
	if len(list) != 1 || list[0] != b {
		t.Fatalf("expected only b to remain, got %v", list)
	}
}

func TestCheckClampedStatus(t *testing.T) {
	mgr, tracker, _ := newTestBudgets(t)
	mustManual(t, tracker, ManualUsage{Model: "claude-haiku-4-5", InputTokens: 20_000})
	if _, err := mgr.SetBudget(dec("0.01"), "total", "global", "warn"); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}

	statuses, err := mgr.Check("")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected one status, got %d", len(statuses))
	}
	st := statuses[0]
	if !st.Spent.Equal(dec("0.02")) || !st.Remaining.IsZero() || !st.Exceeded || st.Utilization != 2.0 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestCheckDailyExcludesYesterday(t *testing.T) {
	mgr, tracker, clock := newTestBudgets(t)

	clock.t = time.Date(2025, 6, 10, 23, 0, 0, 0, time.Local)
	mustManual(t, tracker, ManualUsage{Model: "claude-haiku-4-5", InputTokens: 50_000})
	clock.t = time.Date(2025, 6, 11, 9, 0, 0, 0, time.Local)
	mustManual(t, tracker, ManualUsage{Model: "claude-haiku-4-5", InputTokens: 10_000})
	clock.t = time.Date(2025, 6, 11, 12, 0, 0, 0, time.Local)

	if _, err := mgr.SetBudget(dec("1"), "daily", "global", "warn"); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	if _, err := mgr.SetBudget(dec("1"), "total", "global", "warn"); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}

	statuses, err := mgr.Check("")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !statuses[0].Spent.Equal(dec("0.01")) {
		t.Fatalf("daily spent should exclude yesterday, got %s", statuses[0].Spent)
	}
	if !statuses[1].Spent.Equal(dec("0.06")) {
		t.Fatalf("total spent should include everything, got %s", statuses[1].Spent)
	}
}

func TestCheckScopes(t *testing.T) {
	mgr, tracker, _ := newTestBudgets(t)
	mustManual(t, tracker, ManualUsage{Model: "claude-haiku-4-5", InputTokens: 10_000, UserID: "a", SessionID: "s1"})
	mustManual(t, tracker, ManualUsage{Model: "claude-haiku-4-5", InputTokens: 20_000, UserID: "b", SessionID: "s2"})

	for _, scope := range []string{"global", "user:a", "session:s2"} {
		if _, err := mgr.SetBudget(dec("1"), "total", scope, "warn"); err != nil {
			t.Fatalf("SetBudget(%s): %v", scope, err)
		}
	}

	tests := []struct {
		userID string
		want   []string
	}{
		{"", []string{"0.03", "0.01", "0.02"}},
		{"b", []string{"0.02", "0.01", "0.02"}},
		{"a", []string{"0.01", "0.01", "0.02"}},
		{"c", []string{"0", "0.01", "0.02"}},
	}
	for _, tt := range tests {
		statuses, err := mgr.Check(tt.userID)
		if err != nil {
			t.Fatalf("Check(%q): %v", tt.userID, err)
		}
		for i, want := range tt.want {
			if !statuses[i].Spent.Equal(dec(want)) {
				t.Fatalf("Check(%q)[%d] (%s): expected %s, got %s",
					tt.userID, i, statuses[i].Config.Scope, want, statuses[i].Spent)
			}
		}
	}
}

func TestWouldExceedBoundary(t *testing.T) {
	mgr, tracker, _ := newTestBudgets(t)
	mustManual(t, tracker, ManualUsage{Model: "claude-haiku-4-5", InputTokens: 6_000})
	if _, err := mgr.SetBudget(dec("0.01"), "total", "global", "warn"); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}

	exceed, err := mgr.WouldExceed(dec("0.004"), "")
	if err != nil {
		t.Fatalf("WouldExceed: %v", err)
	}
	if !exceed {
		t.Fatal("reaching the limit exactly should count as exceeding")
	}
	exceed, err = mgr.WouldExceed(dec("0.003"), "")
	if err != nil {
		t.Fatalf("WouldExceed: %v", err)
	}
	if exceed {
		t.Fatal("staying under the limit should not exceed")
	}
}

func TestEnforceBlocksOnlyBlockBudgets(t *testing.T) {
	mgr, tracker, _ := newTestBudgets(t)
	mustManual(t, tracker, ManualUsage{Model: "claude-haiku-4-5", InputTokens: 9_000})

	if _, err := mgr.SetBudget(dec("0.01"), "total", "global", "warn"); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	if err := mgr.Enforce(dec("0.005"), ""); err != nil {
		t.Fatalf("warn budgets must not block, got %v", err)
	}

	first, _ := mgr.SetBudget(dec("0.012"), "total", "global", "block")
	if _, err := mgr.SetBudget(dec("0.011"), "total", "global", "block"); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}

	err := mgr.Enforce(dec("0.005"), "")
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	var exceeded *BudgetExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected *BudgetExceededError, got %T", err)
	}
	if exceeded.Status.Config != first {
		t.Fatalf("expected first block budget in order, got %+v", exceeded.Status.Config)
	}
	if !exceeded.Status.Spent.Equal(dec("0.009")) {
		t.Fatalf("expected spent 0.009, got %s", exceeded.Status.Spent)
	}

	if err := mgr.Enforce(dec("0.001"), ""); err != nil {
		t.Fatalf("small estimate should pass block budgets, got %v", err)
	}
}
