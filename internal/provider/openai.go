package provider

import (
	"tokenmeter/internal/model"

	"github.com/tidwall/gjson"
)

// OpenAI Chat Completions 与 Responses API
type OpenAI struct {
	tok Tokenizer
}

func NewOpenAI(tok Tokenizer) *OpenAI {
	return &OpenAI{tok: tok}
}

func (o *OpenAI) Name() string { return NameOpenAI }

func (o *OpenAI) CountTokensLocal(text, modelName string) int {
	return countWith(o.tok, text, modelName)
}

// ExtractUsage prompt_tokens 原样计入输入，cached_tokens 另计为 cache read
func (o *OpenAI) ExtractUsage(resp gjson.Result) model.TokenUsage {
	if isResponsesObject(resp) {
		return model.TokenUsage{
			InputTokens:     intField(resp, "usage.input_tokens"),
			OutputTokens:    intField(resp, "usage.output_tokens"),
			CacheReadTokens: intField(resp, "usage.input_tokens_details.cached_tokens"),
		}
	}
	return model.TokenUsage{
		InputTokens:     intField(resp, "usage.prompt_tokens"),
		OutputTokens:    intField(resp, "usage.completion_tokens"),
		CacheReadTokens: intField(resp, "usage.prompt_tokens_details.cached_tokens"),
	}
}

func (o *OpenAI) ExtractModel(resp gjson.Result) string {
	return resp.Get("model").String()
}

// MatchResponse usage 含 prompt_tokens/completion_tokens，或 object=response 且含 input_tokens
func (o *OpenAI) MatchResponse(resp gjson.Result) bool {
	if isResponsesObject(resp) {
		return hasNumber(resp, "usage.input_tokens")
	}
	return hasNumber(resp, "usage.prompt_tokens") && hasNumber(resp, "usage.completion_tokens")
}

func isResponsesObject(resp gjson.Result) bool {
	return resp.Get("object").String() == "response"
}
