package billing

import (
	"sort"
	"sync"

	"tokenmeter/internal/model"
)

// EnergyStore 模型能耗表，缺失数据不是错误
type EnergyStore struct {
	mu      sync.RWMutex
	overlay map[string]model.ModelEnergyProfile
	aliases map[string]string
}

var (
	globalEnergyStore *EnergyStore
	energyStoreOnce   sync.Once
)

// NewEnergyStore 创建带内置数据的能耗表
func NewEnergyStore() *EnergyStore {
	s := &EnergyStore{
		overlay: make(map[string]model.ModelEnergyProfile),
		aliases: make(map[string]string, len(builtinAliases)),
	}
	for alias, canonical := range builtinAliases {
		s.aliases[alias] = canonical
	}
	return s
}

// GetEnergyStore 获取进程级能耗表
func GetEnergyStore() *EnergyStore {
	energyStoreOnce.Do(func() {
		globalEnergyStore = NewEnergyStore()
	})
	return globalEnergyStore
}

func (s *EnergyStore) Resolve(name string) string {
	key := normalizeModel(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if canonical, ok := s.aliases[key]; ok {
		return canonical
	}
	return key
}

// Get 获取能耗数据，第二个返回值表示是否存在
func (s *EnergyStore) Get(name string) (model.ModelEnergyProfile, bool) {
	id := s.Resolve(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.overlay[id]; ok {
		return p, true
	}
	p, ok := baseEnergy[id]
	return p, ok
}

func (s *EnergyStore) Register(p model.ModelEnergyProfile) {
	p.ModelID = normalizeModel(p.ModelID)
	s.mu.Lock()
	s.overlay[p.ModelID] = p
	s.mu.Unlock()
}

func (s *EnergyStore) AddAlias(alias, canonical string) {
	s.mu.Lock()
	s.aliases[normalizeModel(alias)] = normalizeModel(canonical)
	s.mu.Unlock()
}

// ListModels 列出有能耗数据的模型
func (s *EnergyStore) ListModels(provider string) []string {
	s.mu.RLock()
	merged := make(map[string]string, len(baseEnergy)+len(s.overlay))
	for id, p := range baseEnergy {
		merged[id] = p.Provider
	}
	for id, p := range s.overlay {
		merged[id] = p.Provider
	}
	s.mu.RUnlock()

	ids := make([]string, 0, len(merged))
	for id, p := range merged {
		if provider == "" || p == provider {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
