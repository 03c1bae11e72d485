package billing

import (
	"strings"
	"testing"

	"tokenmeter/internal/model"

	"github.com/shopspring/decimal"
)

const litellmSample = `{
  "sample_spec": {"input_cost_per_token": 0, "output_cost_per_token": 0},
  "acme/large": {
    "litellm_provider": "acme",
    "input_cost_per_token": 3e-06,
    "output_cost_per_token": 0.000015,
    "cache_read_input_token_cost": 3e-07
  },
  "embed-only": {"litellm_provider": "acme", "mode": "embedding"},
  "embed-input-only": {"litellm_provider": "acme", "mode": "embedding", "input_cost_per_token": 1e-07},
  "gpt-4o": {"litellm_provider": "openai", "input_cost_per_token": 0.000001, "output_cost_per_token": 0.000002}
}`

func TestLoadLiteLLM(t *testing.T) {
	s := NewPriceStore()
	n, err := s.LoadLiteLLM(strings.NewReader(litellmSample))
	if err != nil {
		t.Fatalf("LoadLiteLLM: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 imported entries, got %d", n)
	}

	p, err := s.Get("acme/large")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !p.InputPerMTok.Equal(decimal.NewFromInt(3)) || !p.OutputPerMTok.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("unexpected per-MTok prices %s / %s", p.InputPerMTok, p.OutputPerMTok)
	}
	if !p.CacheReadPerMTok.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("unexpected cache read %s", p.CacheReadPerMTok)
	}
	if p.CacheWritePerMTok != nil {
		t.Fatalf("expected no cache write price, got %s", p.CacheWritePerMTok)
	}
	if _, err := s.Get("embed-only"); err == nil {
		t.Fatal("entry without prices should be skipped")
	}
	if _, err := s.Get("embed-input-only"); err == nil {
		t.Fatal("entry without an output price should be skipped")
	}
	if _, err := s.Get("sample_spec"); err == nil {
		t.Fatal("sample_spec should be skipped")
	}
}

func TestLoadLiteLLMKeepsManualPrices(t *testing.T) {
	s := NewPriceStore()
	s.Register(model.ModelPricing{ModelID: "gpt-4o", Provider: "openai", InputPerMTok: usd("9"), OutputPerMTok: usd("9")})

	if _, err := s.LoadLiteLLM(strings.NewReader(litellmSample)); err != nil {
		t.Fatalf("LoadLiteLLM: %v", err)
	}
	p, err := s.Get("gpt-4o")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !p.InputPerMTok.Equal(decimal.NewFromInt(9)) {
		t.Fatalf("manual price overwritten: %s", p.InputPerMTok)
	}
}

func TestLoadLiteLLMRejectsGarbage(t *testing.T) {
	s := NewPriceStore()
	if _, err := s.LoadLiteLLM(strings.NewReader("{not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if _, err := s.LoadLiteLLM(strings.NewReader(`[1,2]`)); err == nil {
		t.Fatal("expected error for non-object document")
	}
}
