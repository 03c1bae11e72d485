package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"tokenmeter/internal/model"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var (
	ErrNoProviderMatch     = errors.New("no registered provider matches the response")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrInvalidResponse     = errors.New("response is not a JSON object")
	ErrCannotInferProvider = errors.New("cannot infer provider from model")
)

// 提供商名称
const (
	NameAnthropic = "anthropic"
	NameOpenAI    = "openai"
	NameGoogle    = "google"
	NameUnknown   = "unknown"
)

// Provider 提供商适配器
//
// MatchResponse 按字段探测响应结构，是启发式判断而不是协议约定：
// 手工构造的、字段相同的对象同样会被匹配。
type Provider interface {
	Name() string
	// CountTokensLocal 本地估算 token 数，结果是近似值
	CountTokensLocal(text, modelName string) int
	ExtractUsage(resp gjson.Result) model.TokenUsage
	ExtractModel(resp gjson.Result) string
	MatchResponse(resp gjson.Result) bool
}

// rawJSONer SDK 响应对象（如 openai-go）保留原始 JSON
type rawJSONer interface {
	RawJSON() string
}

// ParseResponse 将各种形式的响应统一为 gjson.Result
// 支持 []byte、json.RawMessage、string、gjson.Result、带 RawJSON() 的 SDK 对象，
// 其它值先 json.Marshal
func ParseResponse(v any) (gjson.Result, error) {
	var raw []byte
	switch r := v.(type) {
	case nil:
		return gjson.Result{}, ErrInvalidResponse
	case gjson.Result:
		if !r.IsObject() {
			return gjson.Result{}, ErrInvalidResponse
		}
		return r, nil
	case []byte:
		raw = r
	case json.RawMessage:
		raw = r
	case string:
		raw = []byte(r)
	case rawJSONer:
		raw = []byte(r.RawJSON())
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("provider: encode response: %w", err)
		}
		raw = b
	}

	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, ErrInvalidResponse
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return gjson.Result{}, ErrInvalidResponse
	}
	return res, nil
}

// Registry 提供商注册表，按注册顺序检测
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry 注册内置提供商：anthropic, openai, google
func NewDefaultRegistry(tok Tokenizer) *Registry {
	r := NewRegistry()
	r.Register(NewAnthropic(tok))
	r.Register(NewOpenAI(tok))
	r.Register(NewGoogle(tok))
	return r
}

// Register 注册提供商；同名时原位替换
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.providers {
		if existing.Name() == p.Name() {
			r.providers[i] = p
			return
		}
	}
	r.providers = append(r.providers, p)
}

// Get 按名称获取
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}

// Detect 返回第一个匹配的提供商
func (r *Registry) Detect(resp gjson.Result) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.MatchResponse(resp) {
			log.Debugf("provider: detected %s response", p.Name())
			return p, nil
		}
	}
	return nil, ErrNoProviderMatch
}

// List 已注册的提供商名称，按注册顺序
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// intField 读取非负整数字段，缺失为 0
func intField(resp gjson.Result, path string) int {
	v := resp.Get(path)
	if !v.Exists() {
		return 0
	}
	n := int(v.Int())
	if n < 0 {
		return 0
	}
	return n
}

func hasNumber(resp gjson.Result, path string) bool {
	return resp.Get(path).Type == gjson.Number
}
