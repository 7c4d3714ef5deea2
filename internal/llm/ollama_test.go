package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantCount int
		wantName  string // First tool name if wantCount > 0
	}{
		{
			name:      "empty content",
			content:   "",
			wantCount: 0,
		},
		{
			name:      "whitespace only",
			content:   "   \n\t  ",
			wantCount: 0,
		},
		{
			name:      "plain text no JSON",
			content:   "Your next meeting is at 3pm.",
			wantCount: 0,
		},
		{
			name:      "single tool call object",
			content:   `{"name": "read_inbox", "arguments": {"limit": 5}}`,
			wantCount: 1,
			wantName:  "read_inbox",
		},
		{
			name:      "single tool call with whitespace",
			content:   `  {"name": "read_inbox", "arguments": {}}  `,
			wantCount: 1,
			wantName:  "read_inbox",
		},
		{
			name:      "array of tool calls",
			content:   `[{"name": "read_inbox", "arguments": {}}, {"name": "list_calendar_events", "arguments": {}}]`,
			wantCount: 2,
			wantName:  "read_inbox",
		},
		{
			name:      "tagged tool call",
			content:   `<tool_call>{"name": "send_email", "arguments": {"to": "ana@example.com"}}</tool_call>`,
			wantCount: 1,
			wantName:  "send_email",
		},
		{
			name:      "tagged tool call without closing tag",
			content:   `<tool_call>{"name": "search_email", "arguments": {"query": "invoice"}}`,
			wantCount: 1,
			wantName:  "search_email",
		},
		{
			name:      "tagged with preamble",
			content:   `Let me check that for you. <tool_call>{"name": "read_inbox", "arguments": {}}</tool_call>`,
			wantCount: 1,
			wantName:  "read_inbox",
		},
		{
			name:      "malformed JSON",
			content:   `{"name": "read_inbox", "arguments": {`,
			wantCount: 0,
		},
		{
			name:      "JSON without name field",
			content:   `{"foo": "bar", "arguments": {}}`,
			wantCount: 0,
		},
		{
			name:      "JSON with empty name",
			content:   `{"name": "", "arguments": {}}`,
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTextToolCalls(tt.content)

			if len(got) != tt.wantCount {
				t.Errorf("parseTextToolCalls() returned %d tools, want %d", len(got), tt.wantCount)
				return
			}

			if tt.wantCount > 0 && got[0].Function.Name != tt.wantName {
				t.Errorf("parseTextToolCalls() first tool name = %q, want %q", got[0].Function.Name, tt.wantName)
			}
		})
	}
}

func TestParseTextToolCalls_Arguments(t *testing.T) {
	content := `{"name": "send_email", "arguments": {"to": "ana@example.com", "subject": "hi", "body": "hello"}}`

	calls := parseTextToolCalls(content)
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}

	args := calls[0].Function.Arguments
	if args["to"] != "ana@example.com" {
		t.Errorf("to = %v, want 'ana@example.com'", args["to"])
	}
	if args["subject"] != "hi" {
		t.Errorf("subject = %v, want 'hi'", args["subject"])
	}
}

func TestToOllamaMessages_StripsDataURLs(t *testing.T) {
	msgs := []Message{{
		Role:    "user",
		Content: "what is in this picture?",
		Images:  []string{"data:image/png;base64,AAAA", "BBBB"},
	}}

	out := toOllamaMessages(msgs)
	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
	if out[0].Images[0] != "AAAA" {
		t.Errorf("data URL prefix not stripped: %q", out[0].Images[0])
	}
	if out[0].Images[1] != "BBBB" {
		t.Errorf("bare base64 mangled: %q", out[0].Images[1])
	}
}

func TestOllamaClient_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected stream=false")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model": req.Model,
			"message": map[string]any{
				"role":    "assistant",
				"content": "hello there",
			},
			"done":              true,
			"prompt_eval_count": 12,
			"eval_count":        4,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, nil)
	resp, err := c.Chat(context.Background(), "qwen3:4b", []Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if resp.Message.Content != "hello there" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 4 {
		t.Errorf("tokens = %d/%d, want 12/4", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOllamaClient_Chat_TextToolCallFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model": "qwen3:4b",
			"message": map[string]any{
				"role":    "assistant",
				"content": `{"name": "read_inbox", "arguments": {}}`,
			},
			"done": true,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, nil)
	resp, err := c.Chat(context.Background(), "qwen3:4b", []Message{{Role: "user", Content: "check my mail"}}, nil)
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("expected parsed tool call, got %d", len(resp.Message.ToolCalls))
	}
	if resp.Message.Content != "" {
		t.Errorf("content should be cleared after tool call extraction, got %q", resp.Message.Content)
	}
}

func TestOllamaClient_Chat_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, nil)
	_, err := c.Chat(context.Background(), "missing", []Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}
