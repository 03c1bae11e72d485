package provider

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"tokenmeter/internal/model"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// StreamParser 流式响应（SSE）用量解析
type StreamParser interface {
	// Consume 处理一个 SSE 事件；eventName 可能为空
	// 返回是否已拿到最终用量
	Consume(eventName string, data []byte) (final bool)
	// Usage 当前累计的用量，ok=false 表示尚未出现用量
	Usage() (usage model.TokenUsage, ok bool)
	Model() string
}

// NewStreamParser 按提供商名称创建解析器
func NewStreamParser(providerName string) (StreamParser, error) {
	switch providerName {
	case NameAnthropic:
		return &anthropicStream{}, nil
	case NameOpenAI:
		return &openAIStream{}, nil
	case NameGoogle:
		return &googleStream{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
}

// ReadSSE 逐事件读取 SSE 流并交给解析器，遇到最终事件或 EOF 结束
func ReadSSE(r io.Reader, p StreamParser) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		eventName string
		data      bytes.Buffer
	)
	dispatch := func() bool {
		defer func() {
			eventName = ""
			data.Reset()
		}()
		payload := bytes.TrimSpace(data.Bytes())
		if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
			return false
		}
		return p.Consume(eventName, payload)
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if dispatch() {
				return nil
			}
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("provider: read stream: %w", err)
	}
	dispatch()
	return nil
}

// ========== Anthropic ==========

type anthropicStream struct {
	cur   model.TokenUsage
	model string
	seen  bool
}

func (s *anthropicStream) Consume(_ string, data []byte) bool {
	ev := gjson.ParseBytes(data)
	switch ev.Get("type").String() {
	case "message_start":
		// 重置状态，防止旧值泄漏
		s.cur = model.TokenUsage{}
		s.model = ev.Get("message.model").String()
		if u := ev.Get("message.usage"); u.Exists() {
			s.cur.InputTokens = intField(u, "input_tokens")
			s.cur.OutputTokens = intField(u, "output_tokens")
			s.cur.CacheReadTokens = intField(u, "cache_read_input_tokens")
			s.cur.CacheWriteTokens = intField(u, "cache_creation_input_tokens")
			s.seen = true
		}
		return false
	case "message_delta":
		u := ev.Get("usage")
		if !u.Exists() {
			return false
		}
		if u.Get("input_tokens").Exists() {
			s.cur.InputTokens = intField(u, "input_tokens")
		}
		if u.Get("output_tokens").Exists() {
			s.cur.OutputTokens = intField(u, "output_tokens")
		}
		if u.Get("cache_read_input_tokens").Exists() {
			s.cur.CacheReadTokens = intField(u, "cache_read_input_tokens")
		}
		if u.Get("cache_creation_input_tokens").Exists() {
			s.cur.CacheWriteTokens = intField(u, "cache_creation_input_tokens")
		}
		s.seen = true
		log.Debugf("provider [anthropic]: message_delta - input=%d, output=%d, cache_read=%d, cache_write=%d",
			s.cur.InputTokens, s.cur.OutputTokens, s.cur.CacheReadTokens, s.cur.CacheWriteTokens)
		return true
	}
	return false
}

func (s *anthropicStream) Usage() (model.TokenUsage, bool) { return s.cur, s.seen }
func (s *anthropicStream) Model() string { return s.model }

// ========== OpenAI ==========

// openAIStream 同时处理 chat.completion.chunk 和 Responses API 事件
type openAIStream struct {
	cur   model.TokenUsage
	model string
	seen  bool
}

func (s *openAIStream) Consume(eventName string, data []byte) bool {
	ev := gjson.ParseBytes(data)

	if eventName == "response.completed" || ev.Get("type").String() == "response.completed" {
		resp := ev.Get("response")
		if m := resp.Get("model").String(); m != "" {
			s.model = m
		}
		u := ev.Get("usage")
		if !u.Exists() {
			u = resp.Get("usage")
		}
		if !u.Exists() {
			return false
		}
		s.cur = model.TokenUsage{
			InputTokens:     intField(u, "input_tokens"),
			OutputTokens:    intField(u, "output_tokens"),
			CacheReadTokens: intField(u, "input_tokens_details.cached_tokens"),
		}
		s.seen = true
		return true
	}

	if m := ev.Get("model").String(); m != "" {
		s.model = m
	}
	u := ev.Get("usage")
	if !u.IsObject() {
		return false
	}
	s.cur = model.TokenUsage{
		InputTokens:     intField(u, "prompt_tokens"),
		OutputTokens:    intField(u, "completion_tokens"),
		CacheReadTokens: intField(u, "prompt_tokens_details.cached_tokens"),
	}
	s.seen = true
	log.Debugf("provider [openai]: usage chunk - input=%d, output=%d, cache_read=%d",
		s.cur.InputTokens, s.cur.OutputTokens, s.cur.CacheReadTokens)
	return true
}

func (s *openAIStream) Usage() (model.TokenUsage, bool) { return s.cur, s.seen }
func (s *openAIStream) Model() string { return s.model }

// ========== Google ==========

type googleStream struct {
	cur   model.TokenUsage
	model string
	seen  bool
}

// Consume 每个 chunk 都带累计的 usageMetadata，以最后一个为准
func (s *googleStream) Consume(_ string, data []byte) bool {
	ev := gjson.ParseBytes(data)
	if m := ev.Get("modelVersion").String(); m != "" {
		s.model = m
	}
	if !ev.Get("usageMetadata").Exists() {
		return false
	}
	s.cur = (&Google{}).ExtractUsage(ev)
	s.seen = true

	final := false
	ev.Get("candidates.#.finishReason").ForEach(func(_, v gjson.Result) bool {
		if v.String() != "" {
			final = true
			return false
		}
		return true
	})
	return final
}

func (s *googleStream) Usage() (model.TokenUsage, bool) { return s.cur, s.seen }
func (s *googleStream) Model() string { return s.model }
