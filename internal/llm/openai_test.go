package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConvertToOpenAI_PlainText(t *testing.T) {
	msgs := []Message{
		{Role: "system", Content: "you are helpful"},
		{Role: "user", Content: "hello"},
	}

	out := convertToOpenAI(msgs)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Role != "system" {
		t.Errorf("role = %q, want system", out[0].Role)
	}
	if content, ok := out[1].Content.(string); !ok || content != "hello" {
		t.Errorf("content = %v, want plain string 'hello'", out[1].Content)
	}
}

func TestConvertToOpenAI_Images(t *testing.T) {
	msgs := []Message{{
		Role:    "user",
		Content: "describe this",
		Images:  []string{"data:image/png;base64,AAAA"},
	}}

	out := convertToOpenAI(msgs)
	parts, ok := out[0].Content.([]openaiContentPart)
	if !ok {
		t.Fatalf("expected multi-part content, got %T", out[0].Content)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if parts[0].Type != "text" || parts[0].Text != "describe this" {
		t.Errorf("part[0] = %+v", parts[0])
	}
	if parts[1].Type != "image_url" || parts[1].ImageURL.URL != "data:image/png;base64,AAAA" {
		t.Errorf("part[1] = %+v", parts[1])
	}
}

func TestConvertToOpenAI_ToolCallArgumentsEncoded(t *testing.T) {
	msgs := []Message{{
		Role:      "assistant",
		ToolCalls: []ToolCall{NewToolCall("call_1", "send_email", map[string]any{"to": "b@example.com"})},
	}}

	out := convertToOpenAI(msgs)
	if len(out[0].ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(out[0].ToolCalls))
	}
	tc := out[0].ToolCalls[0]
	if tc.Type != "function" {
		t.Errorf("type = %q, want function", tc.Type)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		t.Fatalf("arguments not valid JSON: %v", err)
	}
	if args["to"] != "b@example.com" {
		t.Errorf("args = %v", args)
	}
}

func TestConvertFromOpenAI_ToolCalls(t *testing.T) {
	wire := &openaiResponse{Model: "gpt-4o-mini"}
	wire.Choices = append(wire.Choices, struct {
		Index        int           `json:"index"`
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	}{
		Message: openaiMessage{
			Role: "assistant",
			ToolCalls: []openaiToolCall{func() openaiToolCall {
				var tc openaiToolCall
				tc.ID = "call_abc"
				tc.Type = "function"
				tc.Function.Name = "read_inbox"
				tc.Function.Arguments = `{"limit": 3}`
				return tc
			}()},
		},
		FinishReason: "tool_calls",
	})

	got := convertFromOpenAI(wire)
	if len(got.Message.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(got.Message.ToolCalls))
	}
	tc := got.Message.ToolCalls[0]
	if tc.ID != "call_abc" || tc.Function.Name != "read_inbox" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Function.Arguments["limit"] != float64(3) {
		t.Errorf("arguments = %v", tc.Function.Arguments)
	}
}

func TestConvertFromOpenAI_MalformedArguments(t *testing.T) {
	wire := &openaiResponse{}
	wire.Choices = append(wire.Choices, struct {
		Index        int           `json:"index"`
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	}{
		Message: openaiMessage{
			Role: "assistant",
			ToolCalls: []openaiToolCall{func() openaiToolCall {
				var tc openaiToolCall
				tc.Function.Name = "read_inbox"
				tc.Function.Arguments = `{not json`
				return tc
			}()},
		},
	})

	got := convertFromOpenAI(wire)
	args := got.Message.ToolCalls[0].Function.Arguments
	if args["_raw"] != `{not json` {
		t.Errorf("expected raw fallback, got %v", args)
	}
}

func TestOpenAIClient_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "hi!"},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 9, "completion_tokens": 2},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "test-key", nil)
	resp, err := c.Chat(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hello"}}, nil)
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if resp.Message.Content != "hi!" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.InputTokens != 9 || resp.OutputTokens != 2 {
		t.Errorf("tokens = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestChatResponse_Empty(t *testing.T) {
	tests := []struct {
		name string
		resp *ChatResponse
		want bool
	}{
		{"nil", nil, true},
		{"no content no tools", &ChatResponse{}, true},
		{"content", &ChatResponse{Message: Message{Content: "hi"}}, false},
		{"tool call only", &ChatResponse{Message: Message{ToolCalls: []ToolCall{NewToolCall("", "read_inbox", nil)}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resp.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewFromProvider(t *testing.T) {
	if _, err := NewFromProvider("openai", "", "k", nil); err != nil {
		t.Errorf("openai: %v", err)
	}
	if _, err := NewFromProvider("ollama", "", "", nil); err != nil {
		t.Errorf("ollama: %v", err)
	}
	if _, err := NewFromProvider("", "", "", nil); err != nil {
		t.Errorf("default: %v", err)
	}
	if _, err := NewFromProvider("bogus", "", "", nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
