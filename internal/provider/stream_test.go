package provider

import (
	"errors"
	"strings"
	"testing"

	"tokenmeter/internal/model"
)

func readStream(t *testing.T, providerName, body string) StreamParser {
	t.Helper()
	p, err := NewStreamParser(providerName)
	if err != nil {
		t.Fatalf("NewStreamParser: %v", err)
	}
	if err := ReadSSE(strings.NewReader(body), p); err != nil {
		t.Fatalf("ReadSSE: %v", err)
	}
	return p
}

func TestAnthropicStream(t *testing.T) {
	body := `event: message_start
data: {"type":"message_start","message":{"model":"claude-haiku-4-5","usage":{"input_tokens":25,"output_tokens":1,"cache_read_input_tokens":100}}}

event: content_block_delta
data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":15}}

event: message_stop
data: {"type":"message_stop"}

`
	p := readStream(t, NameAnthropic, body)
	u, ok := p.Usage()
	if !ok {
		t.Fatal("expected usage")
	}
	want := model.TokenUsage{InputTokens: 25, OutputTokens: 15, CacheReadTokens: 100}
	if u != want {
		t.Fatalf("expected %+v, got %+v", want, u)
	}
	if p.Model() != "claude-haiku-4-5" {
		t.Fatalf("unexpected model %s", p.Model())
	}
}

func TestOpenAIChatStream(t *testing.T) {
	body := `data: {"id":"c1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"delta":{"content":"Hi"}}],"usage":null}

data: {"id":"c1","object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":11,"completion_tokens":3,"prompt_tokens_details":{"cached_tokens":4}}}

data: [DONE]

`
	p := readStream(t, NameOpenAI, body)
	u, ok := p.Usage()
	if !ok || u != (model.TokenUsage{InputTokens: 11, OutputTokens: 3, CacheReadTokens: 4}) {
		t.Fatalf("unexpected usage %+v ok=%v", u, ok)
	}
	if p.Model() != "gpt-4o-mini" {
		t.Fatalf("unexpected model %s", p.Model())
	}
}

func TestOpenAIResponsesStream(t *testing.T) {
	body := `event: response.output_text.delta
data: {"type":"response.output_text.delta","delta":"Hi"}

event: response.completed
data: {"type":"response.completed","response":{"model":"gpt-5","usage":{"input_tokens":9,"output_tokens":2,"input_tokens_details":{"cached_tokens":0}}}}
`
	p := readStream(t, NameOpenAI, body)
	u, ok := p.Usage()
	if !ok || u != (model.TokenUsage{InputTokens: 9, OutputTokens: 2}) {
		t.Fatalf("unexpected usage %+v ok=%v", u, ok)
	}
	if p.Model() != "gpt-5" {
		t.Fatalf("unexpected model %s", p.Model())
	}
}

func TestGoogleStream(t *testing.T) {
	body := `data: {"candidates":[{"content":{"parts":[{"text":"H"}]}}],"usageMetadata":{"promptTokenCount":8,"candidatesTokenCount":1},"modelVersion":"gemini-2.5-flash"}

data: {"candidates":[{"content":{"parts":[{"text":"i"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":8,"candidatesTokenCount":5},"modelVersion":"gemini-2.5-flash"}

`
	p := readStream(t, NameGoogle, body)
	u, ok := p.Usage()
	if !ok || u != (model.TokenUsage{InputTokens: 8, OutputTokens: 5}) {
		t.Fatalf("unexpected usage %+v ok=%v", u, ok)
	}
}

func TestStreamWithoutUsage(t *testing.T) {
	p := readStream(t, NameOpenAI, "data: {\"choices\":[]}\n\ndata: [DONE]\n\n")
	if _, ok := p.Usage(); ok {
		t.Fatal("expected no usage")
	}
}

func TestNewStreamParserUnknown(t *testing.T) {
	if _, err := NewStreamParser("mistral"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}
