package provider

import (
	"tokenmeter/internal/model"

	"github.com/tidwall/gjson"
)

// Google Gemini generateContent
type Google struct {
	tok Tokenizer
}

func NewGoogle(tok Tokenizer) *Google {
	return &Google{tok: tok}
}

func (g *Google) Name() string { return NameGoogle }

func (g *Google) CountTokensLocal(text, _ string) int {
	return countWith(g.tok, text, "")
}

// ExtractUsage thinking token 按输出计费
func (g *Google) ExtractUsage(resp gjson.Result) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:     intField(resp, "usageMetadata.promptTokenCount"),
		OutputTokens:    intField(resp, "usageMetadata.candidatesTokenCount") + intField(resp, "usageMetadata.thoughtsTokenCount"),
		CacheReadTokens: intField(resp, "usageMetadata.cachedContentTokenCount"),
	}
}

func (g *Google) ExtractModel(resp gjson.Result) string {
	return resp.Get("modelVersion").String()
}

func (g *Google) MatchResponse(resp gjson.Result) bool {
	return hasNumber(resp, "usageMetadata.promptTokenCount")
}
