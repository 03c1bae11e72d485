package billing

import (
	"fmt"
	"io"
	"os"

	"tokenmeter/internal/model"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// LiteLLM 价格表字段（单位 USD / token）
const (
	litellmInputField      = "input_cost_per_token"
	litellmOutputField     = "output_cost_per_token"
	litellmCacheReadField  = "cache_read_input_token_cost"
	litellmCacheWriteField = "cache_creation_input_token_cost"
	litellmProviderField   = "litellm_provider"
)

// LoadLiteLLM 导入 LiteLLM 格式的价格表，返回导入条目数
// 手动注册的价格不会被覆盖
func (s *PriceStore) LoadLiteLLM(r io.Reader) (int, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("billing: read litellm prices: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return 0, fmt.Errorf("billing: litellm prices: invalid JSON")
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return 0, fmt.Errorf("billing: litellm prices: expected object at top level")
	}

	imported := 0
	root.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		// 跳过 sample_spec
		if name == "sample_spec" || !value.IsObject() {
			return true
		}

		input, inErr := perTokenToMTok(value.Get(litellmInputField))
		output, outErr := perTokenToMTok(value.Get(litellmOutputField))
		if inErr != nil || outErr != nil {
			log.Warnf("billing: skipping litellm entry %s: bad price value", name)
			return true
		}
		// 输入、输出价格缺一不可
		if input == nil || output == nil {
			return true
		}
		cacheRead, _ := perTokenToMTok(value.Get(litellmCacheReadField))
		cacheWrite, _ := perTokenToMTok(value.Get(litellmCacheWriteField))

		p := model.ModelPricing{
			ModelID:           name,
			Provider:          value.Get(litellmProviderField).String(),
			InputPerMTok:      input,
			OutputPerMTok:     output,
			CacheReadPerMTok:  cacheRead,
			CacheWritePerMTok: cacheWrite,
		}
		if s.registerIfNotManual(p, SourceLiteLLM) {
			imported++
		}
		return true
	})

	log.Infof("billing: imported %d model prices from litellm table", imported)
	return imported, nil
}

// LoadLiteLLMFile 从文件导入
func (s *PriceStore) LoadLiteLLMFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("billing: open %s: %w", path, err)
	}
	defer f.Close()
	return s.LoadLiteLLM(f)
}

// perTokenToMTok 用 JSON 原始数字文本换算，避免经过 float
func perTokenToMTok(v gjson.Result) (*decimal.Decimal, error) {
	if !v.Exists() || v.Type == gjson.Null {
		return nil, nil
	}
	if v.Type != gjson.Number {
		return nil, fmt.Errorf("not a number: %s", v.Raw)
	}
	d, err := decimal.NewFromString(v.Raw)
	if err != nil {
		return nil, err
	}
	d = d.Shift(6)
	return &d, nil
}
