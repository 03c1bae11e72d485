package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestObserveRecord(t *testing.T) {
	before := testutil.ToFloat64(RecordsTotal.WithLabelValues("metrics-test", "m1"))
	tokBefore := testutil.ToFloat64(TokensTotal.WithLabelValues("metrics-test", "output"))

	ObserveRecord("metrics-test", "m1", 100, 50, 0, 0, decimal.RequireFromString("0.25"), decimal.Zero)

	if got := testutil.ToFloat64(RecordsTotal.WithLabelValues("metrics-test", "m1")); got != before+1 {
		t.Fatalf("records = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(TokensTotal.WithLabelValues("metrics-test", "output")); got != tokBefore+50 {
		t.Fatalf("output tokens = %v, want %v", got, tokBefore+50)
	}
	if got := testutil.ToFloat64(CostUSDTotal.WithLabelValues("metrics-test")); got < 0.25 {
		t.Fatalf("cost = %v, want >= 0.25", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	Init()
	Init()
	AlertsFiredTotal.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tokenmeter_alerts_fired_total") {
		t.Fatalf("alerts counter missing from output")
	}
}
