package billing

import (
	"fmt"
	"io"
	"os"

	"tokenmeter/internal/model"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// CatalogFile 自定义模型文件
type CatalogFile struct {
	Models []CatalogModel `yaml:"models"`
}

// CatalogModel 自定义模型条目，价格为十进制字符串（USD / 1M tokens）
type CatalogModel struct {
	ID          string   `yaml:"id"`
	Provider    string   `yaml:"provider"`
	Input       string   `yaml:"input"`
	Output      string   `yaml:"output"`
	CacheRead   string   `yaml:"cache_read"`
	CacheWrite  string   `yaml:"cache_write"`
	BatchInput  string   `yaml:"batch_input"`
	BatchOutput string   `yaml:"batch_output"`
	Energy      string   `yaml:"energy"`
	Aliases     []string `yaml:"aliases"`
}

// LoadCatalogYAML 读取自定义模型并注册到价格表和能耗表
// 任一价格无法解析时整个文件不生效
func LoadCatalogYAML(r io.Reader, prices *PriceStore, energy *EnergyStore) (int, error) {
	var file CatalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("billing: parse model catalog: %w", err)
	}

	type parsed struct {
		pricing model.ModelPricing
		energy  *decimal.Decimal
		aliases []string
	}
	entries := make([]parsed, 0, len(file.Models))
	for i, m := range file.Models {
		if normalizeModel(m.ID) == "" {
			return 0, fmt.Errorf("billing: model catalog entry %d: missing id", i)
		}
		var p parsed
		p.pricing = model.ModelPricing{ModelID: m.ID, Provider: m.Provider}
		fields := []struct {
			name string
			raw  string
			dst  **decimal.Decimal
		}{
			{"input", m.Input, &p.pricing.InputPerMTok},
			{"output", m.Output, &p.pricing.OutputPerMTok},
			{"cache_read", m.CacheRead, &p.pricing.CacheReadPerMTok},
			{"cache_write", m.CacheWrite, &p.pricing.CacheWritePerMTok},
			{"batch_input", m.BatchInput, &p.pricing.BatchInputPerMTok},
			{"batch_output", m.BatchOutput, &p.pricing.BatchOutputPerMTok},
			{"energy", m.Energy, &p.energy},
		}
		for _, f := range fields {
			d, err := parseOptionalDecimal(f.raw)
			if err != nil {
				return 0, fmt.Errorf("billing: model catalog %s.%s: %w", m.ID, f.name, err)
			}
			*f.dst = d
		}
		p.aliases = m.Aliases
		entries = append(entries, p)
	}

	for _, e := range entries {
		prices.register(e.pricing, SourceCatalog)
		if e.energy != nil && energy != nil {
			energy.Register(model.ModelEnergyProfile{
				ModelID:       e.pricing.ModelID,
				Provider:      e.pricing.Provider,
				EnergyPerMTok: *e.energy,
			})
		}
		for _, alias := range e.aliases {
			prices.AddAlias(alias, e.pricing.ModelID)
			if energy != nil {
				energy.AddAlias(alias, e.pricing.ModelID)
			}
		}
	}

	log.Infof("billing: loaded %d custom models from catalog", len(entries))
	return len(entries), nil
}

// LoadCatalogYAMLFile 从文件读取自定义模型
func LoadCatalogYAMLFile(path string, prices *PriceStore, energy *EnergyStore) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("billing: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadCatalogYAML(f, prices, energy)
}

func parseOptionalDecimal(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative value %s", s)
	}
	return &d, nil
}
