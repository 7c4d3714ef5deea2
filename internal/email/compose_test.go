package email

import (
	"strings"
	"testing"
)

func TestComposeMessage(t *testing.T) {
	msg, err := composeMessage("Senti <senti@example.com>", SendOptions{
		To:      []string{"Alice <alice@example.com>"},
		Cc:      []string{"bob@example.com"},
		Subject: "Weekly summary",
		Body:    "Hello **Alice**,\n\nHere is the [report](https://example.com/r).",
	})
	if err != nil {
		t.Fatalf("composeMessage() error: %v", err)
	}

	raw := string(msg)
	for _, want := range []string{
		"From: ",
		"senti@example.com",
		"To: ",
		"alice@example.com",
		"Cc: <bob@example.com>",
		"Subject: Weekly summary",
		"multipart/alternative",
		"text/plain",
		"text/html",
		"Message-Id",
	} {
		if !strings.Contains(raw, want) {
			t.Errorf("composed message missing %q", want)
		}
	}

	// The plain part should have markdown stripped.
	if strings.Contains(raw, "**Alice**") {
		t.Error("plain text part still contains markdown bold markers")
	}
	if !strings.Contains(raw, "<strong>Alice</strong>") {
		t.Error("html part missing rendered bold")
	}
}

func TestComposeMessage_BadAddress(t *testing.T) {
	_, err := composeMessage("senti@example.com", SendOptions{
		To:      []string{"not an address"},
		Subject: "x",
		Body:    "y",
	})
	if err == nil {
		t.Fatal("composeMessage() with invalid recipient should fail")
	}
}

func TestMarkdownToPlain(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bold", "this is **important**", "this is important"},
		{"italic", "quite *subtle* really", "quite subtle really"},
		{"link", "see [docs](https://example.com)", "see docs (https://example.com)"},
		{"image", "![chart](https://example.com/c.png)", "chart"},
		{"heading", "# Title\nbody", "Title\nbody"},
		{"inline code", "run `make all` now", "run make all now"},
		{"code block", "```go\nx := 1\n```", "x := 1"},
		{"list untouched", "- one\n- two", "- one\n- two"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := markdownToPlain(tc.in); got != tc.want {
				t.Errorf("markdownToPlain(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMarkdownToHTML(t *testing.T) {
	got, err := markdownToHTML("# Hi\n\nsome **bold** text")
	if err != nil {
		t.Fatalf("markdownToHTML() error: %v", err)
	}
	for _, want := range []string{"<!DOCTYPE html>", "<h1>", "<strong>bold</strong>"} {
		if !strings.Contains(got, want) {
			t.Errorf("markdownToHTML() missing %q:\n%s", want, got)
		}
	}
}
