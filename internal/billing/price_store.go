package billing

import (
	"sort"
	"strings"
	"sync"

	"tokenmeter/internal/model"

	log "github.com/sirupsen/logrus"
)

// 内置基表，进程内只读
var (
	basePricing = builtinPricing()
	baseEnergy  = builtinEnergy()
)

type priceEntry struct {
	pricing model.ModelPricing
	source  string
}

// PriceStore 管理模型价格表
// 查询顺序：overlay -> 内置基表；alias 先于查询解析
type PriceStore struct {
	mu      sync.RWMutex
	overlay map[string]priceEntry // canonical id -> 注册的价格
	aliases map[string]string     // alias -> canonical id
}

var (
	globalPriceStore *PriceStore
	priceStoreOnce   sync.Once
)

// NewPriceStore 创建带内置数据的价格表
func NewPriceStore() *PriceStore {
	s := &PriceStore{
		overlay: make(map[string]priceEntry),
		aliases: make(map[string]string, len(builtinAliases)),
	}
	for alias, canonical := range builtinAliases {
		s.aliases[alias] = canonical
	}
	return s
}

// GetPriceStore 获取进程级价格表
func GetPriceStore() *PriceStore {
	priceStoreOnce.Do(func() {
		globalPriceStore = NewPriceStore()
		log.Debugf("billing: price store initialized with %d builtin models", len(basePricing))
	})
	return globalPriceStore
}

// normalizeModel 小写并去除首尾空白
func normalizeModel(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolve 解析为规范模型名，无 alias 时原样返回（已规范化）
func (s *PriceStore) Resolve(name string) string {
	key := normalizeModel(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if canonical, ok := s.aliases[key]; ok {
		return canonical
	}
	return key
}

// Get 获取模型价格，找不到返回 *UnknownModelError
func (s *PriceStore) Get(name string) (model.ModelPricing, error) {
	id := s.Resolve(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.overlay[id]; ok {
		return e.pricing, nil
	}
	if p, ok := basePricing[id]; ok {
		return p, nil
	}
	return model.ModelPricing{}, &UnknownModelError{Model: name}
}

// Register 注册（覆盖）模型价格
func (s *PriceStore) Register(p model.ModelPricing) {
	s.register(p, SourceManual)
}

func (s *PriceStore) register(p model.ModelPricing, source string) {
	p.ModelID = normalizeModel(p.ModelID)
	s.mu.Lock()
	s.overlay[p.ModelID] = priceEntry{pricing: p, source: source}
	s.mu.Unlock()
	log.Debugf("billing: registered price for %s (%s)", p.ModelID, source)
}

// registerIfNotManual 导入外部价格时保留手动设置的条目
func (s *PriceStore) registerIfNotManual(p model.ModelPricing, source string) bool {
	p.ModelID = normalizeModel(p.ModelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.overlay[p.ModelID]; ok && existing.source == SourceManual {
		return false
	}
	s.overlay[p.ModelID] = priceEntry{pricing: p, source: source}
	return true
}

// AddAlias 添加别名
func (s *PriceStore) AddAlias(alias, canonical string) {
	s.mu.Lock()
	s.aliases[normalizeModel(alias)] = normalizeModel(canonical)
	s.mu.Unlock()
}

// ListModels 列出规范模型名（排序），provider 为空时不过滤
func (s *PriceStore) ListModels(provider string) []string {
	prices := s.ListPrices(provider)
	ids := make([]string, len(prices))
	for i, p := range prices {
		ids[i] = p.ModelID
	}
	return ids
}

// ListPrices 列出价格（按模型名排序）
func (s *PriceStore) ListPrices(provider string) []model.ModelPricing {
	s.mu.RLock()
	merged := make(map[string]model.ModelPricing, len(basePricing)+len(s.overlay))
	for id, p := range basePricing {
		merged[id] = p
	}
	for id, e := range s.overlay {
		merged[id] = e.pricing
	}
	s.mu.RUnlock()

	result := make([]model.ModelPricing, 0, len(merged))
	for _, p := range merged {
		if provider != "" && p.Provider != provider {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ModelID < result[j].ModelID })
	return result
}

// GetStats 价格表统计
func (s *PriceStore) GetStats() (builtin, registered int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(basePricing), len(s.overlay)
}
