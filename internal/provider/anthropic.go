package provider

import (
	"tokenmeter/internal/model"

	"github.com/tidwall/gjson"
)

// Anthropic Messages API
type Anthropic struct {
	tok Tokenizer
}

func NewAnthropic(tok Tokenizer) *Anthropic {
	return &Anthropic{tok: tok}
}

func (a *Anthropic) Name() string { return NameAnthropic }

// CountTokensLocal Anthropic 没有公开的本地分词器，BPE 可用时统一用 cl100k_base 近似
func (a *Anthropic) CountTokensLocal(text, _ string) int {
	return countWith(a.tok, text, "")
}

func (a *Anthropic) ExtractUsage(resp gjson.Result) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:      intField(resp, "usage.input_tokens"),
		OutputTokens:     intField(resp, "usage.output_tokens"),
		CacheReadTokens:  intField(resp, "usage.cache_read_input_tokens"),
		CacheWriteTokens: intField(resp, "usage.cache_creation_input_tokens"),
	}
}

func (a *Anthropic) ExtractModel(resp gjson.Result) string {
	return resp.Get("model").String()
}

// MatchResponse type=message 且 usage 含 input_tokens/output_tokens
func (a *Anthropic) MatchResponse(resp gjson.Result) bool {
	return resp.Get("type").String() == "message" &&
		hasNumber(resp, "usage.input_tokens") &&
		hasNumber(resp, "usage.output_tokens")
}
