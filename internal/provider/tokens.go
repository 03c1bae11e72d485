package provider

import (
	"fmt"
	"strings"

	"tokenmeter/internal/model"
)

const (
	perMessageOverhead = 4 // role 与分隔符
	primingTokens      = 3
)

// Message 聊天消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenCounter 本地 token 估算与响应用量提取
type TokenCounter struct {
	registry *Registry
}

func NewTokenCounter(registry *Registry) *TokenCounter {
	return &TokenCounter{registry: registry}
}

// CountLocal providerName 为空时从模型名推断，推断失败返回 ErrCannotInferProvider
func (c *TokenCounter) CountLocal(text, modelName, providerName string) (int, error) {
	p, err := c.resolve(modelName, providerName)
	if err != nil {
		return 0, err
	}
	return p.CountTokensLocal(text, modelName), nil
}

// CountMessagesLocal 每条消息额外 4 token，另加 3 个 priming token
func (c *TokenCounter) CountMessagesLocal(messages []Message, modelName, providerName string) (int, error) {
	p, err := c.resolve(modelName, providerName)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, m := range messages {
		total += p.CountTokensLocal(m.Content, modelName) + perMessageOverhead
	}
	return total + primingTokens, nil
}

// FromResponse 从响应中提取实际用量
func (c *TokenCounter) FromResponse(resp any) (model.TokenUsage, error) {
	parsed, err := ParseResponse(resp)
	if err != nil {
		return model.TokenUsage{}, err
	}
	p, err := c.registry.Detect(parsed)
	if err != nil {
		return model.TokenUsage{}, err
	}
	return p.ExtractUsage(parsed), nil
}

func (c *TokenCounter) resolve(modelName, providerName string) (Provider, error) {
	if providerName == "" {
		inferred, ok := InferProvider(modelName)
		if !ok {
			return nil, fmt.Errorf("%w %q, pass the provider explicitly", ErrCannotInferProvider, modelName)
		}
		providerName = inferred
	}
	return c.registry.Get(providerName)
}

// InferProvider 按模型名中的系列标记推断提供商
func InferProvider(modelName string) (string, bool) {
	m := strings.ToLower(modelName)
	switch {
	case strings.Contains(m, "claude"):
		return NameAnthropic, true
	case strings.Contains(m, "gpt"), strings.Contains(m, "o1"), strings.Contains(m, "o3"), strings.Contains(m, "o4"):
		return NameOpenAI, true
	case strings.Contains(m, "gemini"):
		return NameGoogle, true
	}
	return "", false
}
