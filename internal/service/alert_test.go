package service

import (
	"bytes"
	"strings"
	"testing"

	"tokenmeter/internal/model"
)

func newTestAlerts(t *testing.T) (*AlertManager, *UsageTracker) {
	t.Helper()
	mgr, tracker, _ := newTestBudgets(t)
	return NewAlertManager(mgr), tracker
}

func TestAlertDefaultThresholds(t *testing.T) {
	alerts, _ := newTestAlerts(t)
	got := alerts.Thresholds()
	if len(got) != 4 {
		t.Fatalf("expected 4 thresholds, got %d", len(got))
	}
	for i, want := range []float64{0.5, 0.8, 0.95, 1.0} {
		if got[i].Percentage != want || got[i].Triggered {
			t.Fatalf("threshold %d: %+v", i, got[i])
		}
	}
}

func TestCheckAndNotifyFiresOnce(t *testing.T) {
	alerts, tracker := newTestAlerts(t)
	var buf bytes.Buffer
	alerts.SetFallbackWriter(&buf)

	if _, err := alerts.budgets.SetBudget(dec("1"), "daily", "global", "warn"); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	mustManual(t, tracker, ManualUsage{Model: "claude-haiku-4-5", InputTokens: 600_000})

	msgs, err := alerts.CheckAndNotify("")
	if err != nil {
		t.Fatalf("CheckAndNotify: %v", err)
	}
	want := "Budget alert: 50% of $1 (daily global) used. Spent: $0.6, Remaining: $0.4"
	if len(msgs) != 1 || msgs[0] != want {
		t.Fatalf("unexpected messages %q", msgs)
	}
	if !strings.Contains(buf.String(), "[tokenmeter] "+want) {
		t.Fatalf("fallback output missing, got %q", buf.String())
	}

	msgs, err = alerts.CheckAndNotify("")
	if err != nil {
		t.Fatalf("CheckAndNotify: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no repeat alerts, got %q", msgs)
	}

	mustManual(t, tracker, ManualUsage{Model: "claude-haiku-4-5", InputTokens: 250_000})
	msgs, _ = alerts.CheckAndNotify("")
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0], "Budget alert: 80%") {
		t.Fatalf("expected 80%% alert, got %q", msgs)
	}

	alerts.Reset()
	msgs, _ = alerts.CheckAndNotify("")
	if len(msgs) != 2 || !strings.HasPrefix(msgs[0], "Budget alert: 50%") || !strings.HasPrefix(msgs[1], "Budget alert: 80%") {
		t.Fatalf("expected 50%% then 80%% after reset, got %q", msgs)
	}
}

func TestCheckAndNotifyCallbacks(t *testing.T) {
	alerts, tracker := newTestAlerts(t)
	var buf bytes.Buffer
	alerts.SetFallbackWriter(&buf)

	var got []model.BudgetStatus
	alerts.OnAlert(func(st model.BudgetStatus, msg string) {
		got = append(got, st)
	})

	if _, err := alerts.budgets.SetBudget(dec("0.01"), "total", "global", "block"); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	mustManual(t, tracker, ManualUsage{Model: "claude-haiku-4-5", InputTokens: 20_000})

	msgs, err := alerts.CheckAndNotify("")
	if err != nil {
		t.Fatalf("CheckAndNotify: %v", err)
	}
	if len(msgs) != 4 || len(got) != 4 {
		t.Fatalf("expected all four thresholds, got %d messages and %d callbacks", len(msgs), len(got))
	}
	if !got[0].Exceeded || got[0].Utilization != 2.0 {
		t.Fatalf("callback status mismatch: %+v", got[0])
	}
	if buf.Len() != 0 {
		t.Fatalf("fallback must stay silent when callbacks exist, got %q", buf.String())
	}
}

func TestThresholdsSharedAcrossBudgets(t *testing.T) {
	alerts, tracker := newTestAlerts(t)
	alerts.SetFallbackWriter(&bytes.Buffer{})

	alerts.budgets.SetBudget(dec("1"), "total", "global", "warn")
	alerts.budgets.SetBudget(dec("1"), "daily", "global", "warn")
	mustManual(t, tracker, ManualUsage{Model: "claude-haiku-4-5", InputTokens: 600_000})

	msgs, _ := alerts.CheckAndNotify("")
	if len(msgs) != 1 || !strings.Contains(msgs[0], "(total global)") {
		t.Fatalf("expected a single alert for the first budget, got %q", msgs)
	}
}

func TestSetThresholdsAndMessage(t *testing.T) {
	alerts, tracker := newTestAlerts(t)
	alerts.SetFallbackWriter(&bytes.Buffer{})

	if err := alerts.SetThresholds([]float64{0.9, 0.25}); err != nil {
		t.Fatalf("SetThresholds: %v", err)
	}
	if err := alerts.SetThresholds([]float64{-1}); err == nil {
		t.Fatal("expected negative threshold to be rejected")
	}
	th := alerts.Thresholds()
	if len(th) != 2 || th[0].Percentage != 0.25 || th[1].Percentage != 0.9 {
		t.Fatalf("expected sorted thresholds, got %+v", th)
	}
	if !alerts.SetThresholdMessage(0.25, "quarter gone") {
		t.Fatal("expected message to be set")
	}
	if alerts.SetThresholdMessage(0.5, "nope") {
		t.Fatal("unknown threshold should report false")
	}

	alerts.budgets.SetBudget(dec("1"), "total", "global", "warn")
	mustManual(t, tracker, ManualUsage{Model: "claude-haiku-4-5", InputTokens: 300_000})

	msgs, _ := alerts.CheckAndNotify("")
	if len(msgs) != 1 || msgs[0] != "quarter gone" {
		t.Fatalf("expected custom message, got %q", msgs)
	}
	if !alerts.Thresholds()[0].Triggered {
		t.Fatal("threshold should be marked triggered")
	}
}
